package main

import (
	"fmt"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/zzenonn/snowstore/internal/service"
)

var (
	srcRootFlag     string
	archiveRootFlag string
	omitFlag        []string
	daysBackFlag    int
	deleteFlag      bool
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Archive aged date directories to the object store",
	Long: "Walks the source tree for date-partitioned directories older than the\n" +
		"threshold, uploads their contents, verifies etags, and deletes local\n" +
		"copies only after verification succeeds",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if daysBackFlag < 0 {
			daysBackFlag = -daysBackFlag
		}
		if daysBackFlag == 0 {
			daysBackFlag = cfg.DaysBack
		}
		if srcRootFlag == "" {
			srcRootFlag = cfg.SrcRootDir
		}
		if archiveRootFlag == "" {
			archiveRootFlag = cfg.ArchiveRootDir
		}
		if len(omitFlag) == 0 {
			omitFlag = cfg.OmitDirs
		}

		omitDirs := service.ResolveOmitDirs(appFs, srcRootFlag, omitFlag)
		verifier := service.NewETagVerifier(appFs)
		archiver := service.NewArchiveService(
			appFs, cache, verifier,
			srcRootFlag, archiveRootFlag,
			omitDirs, daysBackFlag, deleteFlag,
		)

		report, err := archiver.ArchiveEligible(ctx)
		if err != nil {
			log.Errorf("archive run stopped early: %v", err)
		}
		fmt.Println(report)
		return nil
	},
}

func init() {
	archiveCmd.Flags().StringVar(&srcRootFlag, "root", "", "Source tree to walk (default from config)")
	archiveCmd.Flags().StringVar(&archiveRootFlag, "archive-root", "", "Store prefix archived files land under (default from config)")
	archiveCmd.Flags().StringSliceVar(&omitFlag, "omit", nil, "Directory names under the root to skip (default from config)")
	archiveCmd.Flags().IntVar(&daysBackFlag, "days-back", 0, "Archive directories older than this many days (default from config)")
	archiveCmd.Flags().BoolVar(&deleteFlag, "delete", false, "Delete local copies after verified upload")
	rootCmd.AddCommand(archiveCmd)
}

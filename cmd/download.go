package main

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/zzenonn/snowstore/internal/domain"
	"github.com/zzenonn/snowstore/internal/repository/catalog"
	"github.com/zzenonn/snowstore/internal/repository/origin"
	"github.com/zzenonn/snowstore/internal/service"
)

// modisDateSpans are the valid composite windows for MODIS products.
var modisDateSpans = map[int]bool{1: true, 5: true, 8: true}

var (
	productFlag   string
	dateFlag      string
	daysFlag      int
	bboxFlag      []float64
	dayOffsetFlag int
	workersFlag   int
)

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Query the granule catalog and download matching granules",
	Long: "Queries the catalog for a product over a date window and bounding box,\n" +
		"then downloads each granule, preferring copies already in the object store",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.EarthdataUser == "" || cfg.EarthdataPass == "" {
			return fmt.Errorf("EARTHDATA_USER and EARTHDATA_PASS must be set")
		}

		shortName, version, err := splitProduct(productFlag)
		if err != nil {
			return err
		}
		if strings.HasPrefix(shortName, "MOD") && !modisDateSpans[daysFlag] {
			return fmt.Errorf("invalid modis date span %d, valid values are 1, 5 and 8", daysFlag)
		}

		endDate, err := time.Parse(domain.DateDirLayout, dateFlag)
		if err != nil {
			return fmt.Errorf("date must be in format YYYY.MM.DD: %w", err)
		}
		startDate := endDate.AddDate(0, 0, -(daysFlag - 1))

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		catalogClient := catalog.NewClient(cfg.CatalogURL)
		granules, err := catalogClient.Query(ctx, catalog.QueryParams{
			ShortName:   shortName,
			Version:     version,
			StartDate:   startDate,
			EndDate:     endDate,
			BoundingBox: bboxFlag,
			DayOffset:   dayOffsetFlag,
		})
		if err != nil {
			return fmt.Errorf("catalog query failed: %w", err)
		}
		log.Infof("queried product %s, got %d granules, downloading", productFlag, len(granules))

		fetcher := origin.NewFetcher(cfg.EarthdataUser, cfg.EarthdataPass, quiet)
		downloader := service.NewDownloadService(fetcher, cache, appFs, cfg.DataRootDir, cfg.Collection, workersFlag)
		report := downloader.DownloadBatch(ctx, granules)

		fmt.Println(report)
		return nil
	},
}

// splitProduct splits "MOD10A1.61" into short name and version.
func splitProduct(product string) (string, string, error) {
	shortName, version, ok := strings.Cut(product, ".")
	if !ok || shortName == "" || version == "" {
		return "", "", fmt.Errorf("product must have the form NAME.VERSION, got %q", product)
	}
	return shortName, version, nil
}

func init() {
	downloadCmd.Flags().StringVar(&productFlag, "product", "", "Product as NAME.VERSION, e.g. MOD10A1.61")
	downloadCmd.Flags().StringVar(&dateFlag, "date", "", "End date in format YYYY.MM.DD")
	downloadCmd.Flags().IntVar(&daysFlag, "days", 5, "Composite window span in days (1, 5 or 8 for MODIS)")
	downloadCmd.Flags().Float64SliceVar(&bboxFlag, "bbox", nil, "Bounding box: min-lon,min-lat,max-lon,max-lat")
	downloadCmd.Flags().IntVar(&dayOffsetFlag, "day-offset", 0, "Days between a granule's window start and its true date")
	downloadCmd.Flags().IntVar(&workersFlag, "workers", 4, "Concurrent download workers")
	downloadCmd.MarkFlagRequired("product")
	downloadCmd.MarkFlagRequired("date")
	rootCmd.AddCommand(downloadCmd)
}

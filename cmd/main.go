package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/zzenonn/snowstore/internal/config"
	"github.com/zzenonn/snowstore/internal/errors"
	"github.com/zzenonn/snowstore/internal/logging"
	"github.com/zzenonn/snowstore/internal/repository/objectstore"
	"github.com/zzenonn/snowstore/internal/service"
)

var (
	cfgFile string
	cfg     *config.Config
	appFs   afero.Fs
	cache   *service.ListingCache
	quiet   bool
)

var rootCmd = &cobra.Command{
	Use:   "snowstore",
	Short: "Granule download and archive tool backed by object storage",
	Long: "Downloads satellite granules through an object-store write-through cache\n" +
		"and archives aged working directories into the same store with verified deletes",
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to config file")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress progress bars")
}

func initConfig() {
	var err error
	cfg, err = config.LoadConfig(cfgFile)
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}

	logging.InitLogger(cfg.LogLevel)
	appFs = afero.NewOsFs()

	if cfg.Bucket == "" {
		log.Fatalf("%v", errors.ConfigNotSetError("OBJ_STORE_BUCKET"))
	}
	bucketConfig, err := objectstore.ParseBucketConfig(cfg.Bucket)
	if err != nil {
		log.Fatalf("Invalid bucket configuration: %v", err)
	}

	factory := objectstore.NewObjectRepositoryFactory(cfg.AwsConfig, cfg.S3Endpoint, cfg.PartSizeMB<<20, cfg.GcsClient)
	store, err := factory.CreateRepository(bucketConfig)
	if err != nil {
		log.Fatalf("Failed to create object store repository: %v", err)
	}

	cache = service.NewListingCache(store, appFs, quiet)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

package config

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/zzenonn/snowstore/internal/repository/objectstore"
)

// Config holds the application configuration
type Config struct {
	LogLevel string `yaml:"log_level"`

	// Earthdata credentials for origin fetches. Treated as opaque
	// secrets and never logged.
	EarthdataUser string
	EarthdataPass string

	// CatalogURL is the base URL of the granule catalog search API.
	CatalogURL string `yaml:"catalog_url"`

	// Download layout: granules land under
	// {DataRootDir}/{Collection}/{PRODUCT.VER}/{YYYY.MM.DD}/
	DataRootDir string `yaml:"data_root_dir"`
	Collection  string `yaml:"collection"`

	// Archive settings: directories under SrcRootDir whose date segment
	// is older than DaysBack get synced below ArchiveRootDir in the store.
	SrcRootDir     string   `yaml:"src_root_dir"`
	ArchiveRootDir string   `yaml:"obj_store_root_dir"`
	OmitDirs       []string `yaml:"rootdirectories_omit"`
	DaysBack       int      `yaml:"days_back"`

	Workers    int    `yaml:"workers"`
	PartSizeMB int64  `yaml:"part_size_mb"`
	Bucket     string `yaml:"obj_store_bucket"`

	// AwsConfig: AWS SDK uses a shared configuration object that contains
	// credentials, region, retry policies, etc. The S3 client is created
	// from this single config by the objectstore factory.
	AwsConfig aws.Config
	// S3Endpoint overrides the S3 endpoint for S3-compatible stores
	// (path-style addressing is enabled when set).
	S3Endpoint string
	// GcsClient: Google Cloud SDK uses individual service clients that
	// handle their own configuration internally via environment variables
	// or service account files. Only created when the bucket platform
	// is gcs.
	GcsClient *storage.Client
}

// LoadConfig loads configuration from a .env file, config.yaml, environment
// variables, or CLI flags.
// Priority: CLI flags > Environment variables > config.yaml > defaults
func LoadConfig(configPath string) (*Config, error) {
	// deployments keep credentials in a .env next to the binary; a
	// missing file is fine
	_ = godotenv.Load()

	if err := setupViper(configPath); err != nil {
		return nil, err
	}

	cfg := &Config{
		LogLevel:       viper.GetString("log_level"),
		EarthdataUser:  viper.GetString("earthdata_user"),
		EarthdataPass:  viper.GetString("earthdata_pass"),
		CatalogURL:     viper.GetString("catalog_url"),
		DataRootDir:    viper.GetString("data_root_dir"),
		Collection:     viper.GetString("collection"),
		SrcRootDir:     viper.GetString("src_root_dir"),
		ArchiveRootDir: viper.GetString("obj_store_root_dir"),
		OmitDirs:       splitOmitDirs(viper.GetString("rootdirectories_omit")),
		DaysBack:       viper.GetInt("days_back"),
		Workers:        viper.GetInt("workers"),
		PartSizeMB:     viper.GetInt64("part_size_mb"),
		Bucket:         viper.GetString("obj_store_bucket"),
		S3Endpoint:     viper.GetString("obj_store_host"),
	}

	awsCfg, err := loadAWSConfig()
	if err != nil {
		return nil, err
	}
	cfg.AwsConfig = awsCfg

	if isGCSBucket(cfg.Bucket) {
		gcsClient, err := loadGCSClient()
		if err != nil {
			return nil, err
		}
		cfg.GcsClient = gcsClient
	}

	return cfg, nil
}

// setupViper configures Viper with defaults, paths, and env bindings
func setupViper(configPath string) error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	if configPath != "" {
		viper.SetConfigFile(configPath)
	}

	setDefaults()
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("log_level", "info")
	viper.SetDefault("catalog_url", "https://cmr.earthdata.nasa.gov/search")
	viper.SetDefault("data_root_dir", "data")
	viper.SetDefault("collection", "modis-terra")
	viper.SetDefault("src_root_dir", "data")
	viper.SetDefault("obj_store_root_dir", "snowpack_archive")
	viper.SetDefault("rootdirectories_omit", "")
	viper.SetDefault("days_back", 20)
	viper.SetDefault("workers", 4)
	viper.SetDefault("part_size_mb", 8)
}

// loadAWSConfig loads AWS SDK configuration, preferring explicit
// OBJ_STORE_USER / OBJ_STORE_SECRET credentials when both are present
func loadAWSConfig() (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error

	user := viper.GetString("obj_store_user")
	secret := viper.GetString("obj_store_secret")
	if user != "" && secret != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(user, secret, ""),
		))
	}
	if region := viper.GetString("obj_store_region"); region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("unable to load AWS SDK config: %w", err)
	}
	return cfg, nil
}

// isGCSBucket reports whether the bucket string names a GCS bucket. The
// platform decision is delegated to the same parser the objectstore
// factory uses, so every spelling the factory accepts gets its client.
func isGCSBucket(bucket string) bool {
	bucketCfg, err := objectstore.ParseBucketConfig(bucket)
	return err == nil && bucketCfg.Type == objectstore.GCSType
}

// loadGCSClient loads Google Cloud Storage client
func loadGCSClient() (*storage.Client, error) {
	client, err := storage.NewClient(context.Background())
	if err != nil {
		return nil, fmt.Errorf("unable to create GCS client: %w", err)
	}
	return client, nil
}

// splitOmitDirs parses the comma delimited omit list, e.g.
// "kml,plot,norm/archive"
func splitOmitDirs(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	dirs := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			dirs = append(dirs, p)
		}
	}
	return dirs
}

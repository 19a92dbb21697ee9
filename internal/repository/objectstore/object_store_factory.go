package objectstore

import (
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// BucketConfig holds configuration for a storage bucket
type BucketConfig struct {
	Name string
	Type RepositoryType
}

// ObjectRepositoryFactory creates object repository instances
type ObjectRepositoryFactory struct {
	awsConfig aws.Config
	// s3Endpoint overrides the endpoint for S3-compatible stores;
	// path-style addressing is enabled when set
	s3Endpoint string
	partSize   int64
	gcsClient  *storage.Client
}

// NewObjectRepositoryFactory creates a new factory
func NewObjectRepositoryFactory(awsConfig aws.Config, s3Endpoint string, partSize int64, gcsClient *storage.Client) *ObjectRepositoryFactory {
	return &ObjectRepositoryFactory{
		awsConfig:  awsConfig,
		s3Endpoint: s3Endpoint,
		partSize:   partSize,
		gcsClient:  gcsClient,
	}
}

// CreateRepository creates a repository based on bucket configuration
func (f *ObjectRepositoryFactory) CreateRepository(config BucketConfig) (ObjectRepository, error) {
	switch config.Type {
	case S3Type:
		var clientOpts []func(*s3.Options)
		if f.s3Endpoint != "" {
			endpoint := f.s3Endpoint
			clientOpts = append(clientOpts, func(o *s3.Options) {
				o.BaseEndpoint = aws.String(endpoint)
				o.UsePathStyle = true
			})
		}
		client := s3.NewFromConfig(f.awsConfig, clientOpts...)
		repo := NewS3ObjectRepository(client, config.Name, f.partSize)
		return &repo, nil
	case GCSType:
		if f.gcsClient == nil {
			return nil, fmt.Errorf("GCS client not configured")
		}
		return &GCSObjectRepository{client: f.gcsClient, bucketName: config.Name}, nil
	default:
		return nil, fmt.Errorf("unsupported repository type: %s", config.Type)
	}
}

// ParseBucketConfig parses bucket configuration from string
// Formats: "s3://bucket-name", "gs://bucket-name", "s3:bucket-name", or "bucket-name" (defaults to S3)
func ParseBucketConfig(bucketStr string) (BucketConfig, error) {
	bucketStr = strings.TrimSpace(bucketStr)

	scheme := "s3"
	bucketName := bucketStr
	if strings.Contains(bucketStr, "://") {
		parts := strings.SplitN(bucketStr, "://", 2)
		scheme = strings.ToLower(strings.TrimSpace(parts[0]))
		bucketName = strings.TrimSpace(parts[1])
	} else if strings.Contains(bucketStr, ":") {
		parts := strings.SplitN(bucketStr, ":", 2)
		scheme = strings.ToLower(strings.TrimSpace(parts[0]))
		bucketName = strings.TrimSpace(parts[1])
	}

	if bucketName == "" {
		return BucketConfig{}, fmt.Errorf("bucket name cannot be empty")
	}

	switch scheme {
	case "s3":
		return BucketConfig{Name: bucketName, Type: S3Type}, nil
	case "gs", "gcs":
		return BucketConfig{Name: bucketName, Type: GCSType}, nil
	default:
		return BucketConfig{}, fmt.Errorf("unsupported scheme: %s", scheme)
	}
}

package objectstore

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBucketConfig(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    BucketConfig
		wantErr bool
	}{
		{"s3 url", "s3://snowpack", BucketConfig{Name: "snowpack", Type: S3Type}, false},
		{"gs url", "gs://snowpack", BucketConfig{Name: "snowpack", Type: GCSType}, false},
		{"single colon s3", "s3:snowpack", BucketConfig{Name: "snowpack", Type: S3Type}, false},
		{"single colon gs", "gs:snowpack", BucketConfig{Name: "snowpack", Type: GCSType}, false},
		{"single colon gcs", "gcs:snowpack", BucketConfig{Name: "snowpack", Type: GCSType}, false},
		{"bare name defaults to s3", "snowpack", BucketConfig{Name: "snowpack", Type: S3Type}, false},
		{"padded input", "  s3://snowpack  ", BucketConfig{Name: "snowpack", Type: S3Type}, false},
		{"empty", "", BucketConfig{}, true},
		{"empty name", "s3://", BucketConfig{}, true},
		{"unknown scheme", "ftp://snowpack", BucketConfig{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseBucketConfig(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCreateRepository_GCSRequiresClient(t *testing.T) {
	factory := NewObjectRepositoryFactory(aws.Config{}, "", 0, nil)

	_, err := factory.CreateRepository(BucketConfig{Name: "snowpack", Type: GCSType})
	assert.Error(t, err)
}

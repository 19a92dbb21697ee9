// Package objectstore provides object storage repository implementations and factory.
package objectstore

import (
	"context"
	"io"
)

// ObjectInfo describes one stored object as returned by a listing.
type ObjectInfo struct {
	Key  string
	Size int64
	// ETag is the store's content digest, either a plain md5 hex string
	// or "digest-partcount" for multipart uploads. Surrounding quotes
	// are stripped.
	ETag string
}

// ObjectRepository defines the interface for object storage operations.
// Upload returns the ETag the store computed for the stored object.
type ObjectRepository interface {
	Upload(ctx context.Context, key string, r io.Reader, quiet bool) (string, error)
	Download(ctx context.Context, key string, quiet bool) (io.ReadCloser, error)
	// ListDir lists the immediate objects under dir (non-recursive).
	ListDir(ctx context.Context, dir string) ([]ObjectInfo, error)
	Delete(ctx context.Context, key string) error
	GetBucketName() string
	GetStorageType() string
}

// RepositoryType represents the type of object storage
type RepositoryType string

const (
	S3Type  RepositoryType = "s3"
	GCSType RepositoryType = "gcs"
)

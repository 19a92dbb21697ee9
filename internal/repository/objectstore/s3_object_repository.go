package objectstore

import (
	"context"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/schollz/progressbar/v3"
)

// S3ObjectRepository manages S3 interactions for objects.
type S3ObjectRepository struct {
	client     *s3.Client
	uploader   *manager.Uploader
	bucketName string
}

// NewS3ObjectRepository initializes a new S3ObjectRepository. partSize is
// the multipart upload part size in bytes; objects larger than it produce
// composite "digest-partcount" ETags.
func NewS3ObjectRepository(client *s3.Client, bucketName string, partSize int64) S3ObjectRepository {
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		if partSize >= manager.MinUploadPartSize {
			u.PartSize = partSize
		}
		// sequential parts keep the part order deterministic for
		// ETag reconstruction
		u.Concurrency = 1
	})
	return S3ObjectRepository{
		client:     client,
		uploader:   uploader,
		bucketName: bucketName,
	}
}

// GetBucketName returns the bucket name.
func (r *S3ObjectRepository) GetBucketName() string {
	return r.bucketName
}

// GetStorageType returns the object store type.
func (r *S3ObjectRepository) GetStorageType() string {
	return "s3"
}

// Upload uploads an object to S3 and returns the ETag the store computed.
func (r *S3ObjectRepository) Upload(ctx context.Context, key string, reader io.Reader, quiet bool) (string, error) {
	seeker, ok := reader.(io.Seeker)
	var size int64 = -1
	if ok {
		if current, err := seeker.Seek(0, io.SeekCurrent); err == nil {
			if end, err := seeker.Seek(0, io.SeekEnd); err == nil {
				size = end - current
				seeker.Seek(current, io.SeekStart)
			}
		}
	}

	var proxyReader io.Reader = reader
	if !quiet {
		bar := progressbar.DefaultBytes(size, "uploading")
		pbReader := progressbar.NewReader(reader, bar)
		proxyReader = &pbReader
	}

	result, err := r.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(r.bucketName),
		Key:    aws.String(key),
		Body:   proxyReader,
	})
	if err != nil {
		return "", err
	}
	return trimETag(aws.ToString(result.ETag)), nil
}

// Download downloads an object file from S3
func (r *S3ObjectRepository) Download(ctx context.Context, key string, quiet bool) (io.ReadCloser, error) {
	result, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}

	size := result.ContentLength
	if !quiet && size != nil {
		bar := progressbar.DefaultBytes(*size, "downloading")
		proxyReader := progressbar.NewReader(result.Body, bar)
		return &progressReaderCloser{Reader: &proxyReader, Closer: result.Body}, nil
	}
	return result.Body, nil
}

type progressReaderCloser struct {
	io.Reader
	io.Closer
}

// ListDir lists the objects directly under dir, capturing their ETags.
func (r *S3ObjectRepository) ListDir(ctx context.Context, dir string) ([]ObjectInfo, error) {
	prefix := strings.TrimSuffix(dir, "/") + "/"

	var objects []ObjectInfo
	paginator := s3.NewListObjectsV2Paginator(r.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(r.bucketName),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			objects = append(objects, ObjectInfo{
				Key:  aws.ToString(obj.Key),
				Size: aws.ToInt64(obj.Size),
				ETag: trimETag(aws.ToString(obj.ETag)),
			})
		}
	}

	return objects, nil
}

// Delete removes an object file from S3
func (r *S3ObjectRepository) Delete(ctx context.Context, key string) error {
	_, err := r.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(r.bucketName),
		Key:    aws.String(key),
	})
	return err
}

func trimETag(etag string) string {
	return strings.Trim(etag, "\"")
}

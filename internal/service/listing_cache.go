package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/zzenonn/snowstore/internal/repository/objectstore"
)

// StoreRepository is the slice of the object store the cache needs.
type StoreRepository interface {
	Upload(ctx context.Context, key string, r io.Reader, quiet bool) (string, error)
	Download(ctx context.Context, key string, quiet bool) (io.ReadCloser, error)
	ListDir(ctx context.Context, dir string) ([]objectstore.ObjectInfo, error)
}

// ListingCache fronts the object store with a per-run directory-listing
// cache. Checking N files in the same store directory costs one listing
// call instead of N. Listings are never invalidated during a run; the
// store is assumed append-only while the process is alive. The cache is
// discarded with the process.
type ListingCache struct {
	store StoreRepository
	fs    afero.Fs
	quiet bool

	mu sync.Mutex
	// listings maps a store directory to basename -> etag. An empty map
	// means "listed, genuinely empty" and must be cached too, or an
	// empty directory would be re-listed on every check.
	listings map[string]map[string]string
}

// NewListingCache creates a cache over the given store.
func NewListingCache(store StoreRepository, fs afero.Fs, quiet bool) *ListingCache {
	return &ListingCache{
		store:    store,
		fs:       fs,
		quiet:    quiet,
		listings: make(map[string]map[string]string),
	}
}

// Exists reports whether mirrorPath is already present in the store.
func (c *ListingCache) Exists(ctx context.Context, mirrorPath string) (bool, error) {
	_, ok, err := c.ETag(ctx, mirrorPath)
	return ok, err
}

// ETag returns the stored etag for mirrorPath and whether it is present.
func (c *ListingCache) ETag(ctx context.Context, mirrorPath string) (string, bool, error) {
	dir, base := path.Split(mirrorPath)
	dir = path.Clean(dir)

	listing, err := c.dirListing(ctx, dir)
	if err != nil {
		return "", false, err
	}
	etag, ok := listing[base]
	return etag, ok, nil
}

// dirListing returns the cached listing for dir, issuing the single
// listing call on first use. Two workers racing on a cold directory may
// both list it; the duplicate call is wasteful but not incorrect, and the
// first result to land wins.
func (c *ListingCache) dirListing(ctx context.Context, dir string) (map[string]string, error) {
	c.mu.Lock()
	if listing, ok := c.listings[dir]; ok {
		c.mu.Unlock()
		return listing, nil
	}
	c.mu.Unlock()

	objects, err := c.store.ListDir(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list store directory %s: %w", dir, err)
	}

	listing := make(map[string]string, len(objects))
	for _, obj := range objects {
		listing[path.Base(obj.Key)] = obj.ETag
	}
	log.Debugf("cached listing of %s: %d objects", dir, len(listing))

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.listings[dir]; ok {
		return existing, nil
	}
	c.listings[dir] = listing
	return listing, nil
}

// Pull copies the object at mirrorPath into localPath, writing through a
// temp file so a partial pull is never mistaken for a complete one.
func (c *ListingCache) Pull(ctx context.Context, mirrorPath, localPath string) error {
	reader, err := c.store.Download(ctx, mirrorPath, c.quiet)
	if err != nil {
		return fmt.Errorf("failed to pull %s from store: %w", mirrorPath, err)
	}
	defer reader.Close()

	tmpPath := localPath + "." + uuid.NewString() + ".tmp"
	tmpFile, err := c.fs.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(tmpFile, reader); err != nil {
		tmpFile.Close()
		c.fs.Remove(tmpPath)
		return fmt.Errorf("failed writing %s: %w", localPath, err)
	}
	if err := tmpFile.Close(); err != nil {
		c.fs.Remove(tmpPath)
		return err
	}
	return c.fs.Rename(tmpPath, localPath)
}

// Push uploads localPath to mirrorPath (write-through) and records the
// new object in the cached listing so later existence checks see it.
func (c *ListingCache) Push(ctx context.Context, localPath, mirrorPath string) (string, error) {
	file, err := c.fs.Open(localPath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	etag, err := c.store.Upload(ctx, mirrorPath, file, c.quiet)
	if err != nil {
		return "", fmt.Errorf("failed to push %s to store: %w", localPath, err)
	}

	dir, base := path.Split(mirrorPath)
	dir = path.Clean(dir)
	c.mu.Lock()
	if listing, ok := c.listings[dir]; ok {
		listing[base] = etag
	}
	c.mu.Unlock()

	return etag, nil
}

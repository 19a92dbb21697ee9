package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/zzenonn/snowstore/internal/domain"
)

// OriginFetcher retrieves one asset from the origin download service.
type OriginFetcher interface {
	Fetch(ctx context.Context, url string, sink io.Writer) error
}

// MirrorCache is the slice of the listing cache the downloader needs.
type MirrorCache interface {
	Exists(ctx context.Context, mirrorPath string) (bool, error)
	Pull(ctx context.Context, mirrorPath, localPath string) error
	Push(ctx context.Context, localPath, mirrorPath string) (string, error)
}

// ItemStatus is the per-granule outcome of a download batch.
type ItemStatus string

const (
	StatusDownloaded     ItemStatus = "downloaded"
	StatusCacheHit       ItemStatus = "cache-hit"
	StatusSkippedInvalid ItemStatus = "skipped-invalid"
	StatusFailed         ItemStatus = "failed-exhausted-retries"
)

// BatchReport tallies outcomes across one download batch.
type BatchReport struct {
	Downloaded int
	CacheHits  int
	Skipped    int
	Failed     int
}

func (r BatchReport) String() string {
	return fmt.Sprintf("downloaded: %d, cache hits: %d, skipped invalid: %d, failed: %d",
		r.Downloaded, r.CacheHits, r.Skipped, r.Failed)
}

// DownloadService downloads granule batches through the object-store
// write-through cache: assets already persisted in the store are pulled
// from there instead of the origin, and fresh origin fetches are pushed
// to the store for next time.
type DownloadService struct {
	fetcher    OriginFetcher
	cache      MirrorCache
	fs         afero.Fs
	rootDir    string
	collection string
	workers    int
}

// NewDownloadService creates a new DownloadService instance
func NewDownloadService(fetcher OriginFetcher, cache MirrorCache, fs afero.Fs, rootDir, collection string, workers int) *DownloadService {
	if workers <= 0 {
		workers = 4
	}
	return &DownloadService{
		fetcher:    fetcher,
		cache:      cache,
		fs:         fs,
		rootDir:    rootDir,
		collection: collection,
		workers:    workers,
	}
}

// DownloadBatch downloads every granule in the batch across a bounded
// worker pool. One granule's failure never aborts the batch; every
// skipped or failed granule is logged with enough context to re-run it.
// Download order within the batch is not guaranteed.
func (s *DownloadService) DownloadBatch(ctx context.Context, granules []domain.GranuleRecord) BatchReport {
	results := make(chan ItemStatus, len(granules))

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(s.workers)
	for _, gran := range granules {
		group.Go(func() error {
			results <- s.downloadGranule(ctx, gran)
			return nil
		})
	}
	group.Wait()
	close(results)

	var report BatchReport
	for status := range results {
		switch status {
		case StatusDownloaded:
			report.Downloaded++
		case StatusCacheHit:
			report.CacheHits++
		case StatusSkippedInvalid:
			report.Skipped++
		case StatusFailed:
			report.Failed++
		}
	}
	return report
}

// downloadGranule fetches the metadata sidecar, the primary data file,
// and the optional XML/browse assets for one record.
func (s *DownloadService) downloadGranule(ctx context.Context, gran domain.GranuleRecord) ItemStatus {
	if err := gran.Validate(); err != nil {
		log.Warnf("skipping granule %q: %v", gran.Title, err)
		return StatusSkippedInvalid
	}

	relDir, err := gran.RelativeDir(s.collection)
	if err != nil {
		log.Warnf("skipping granule %q: %v", gran.Title, err)
		return StatusSkippedInvalid
	}
	localDir := filepath.Join(s.rootDir, filepath.FromSlash(relDir))
	if err := s.fs.MkdirAll(localDir, 0755); err != nil {
		log.Errorf("failed to create output directory %s: %v", localDir, err)
		return StatusFailed
	}

	if err := s.saveMetadata(gran, filepath.Join(localDir, gran.MetaFileName())); err != nil {
		log.Errorf("failed to save granule metadata for %s: %v", gran.Title, err)
		return StatusFailed
	}

	fetchedFromOrigin := false
	for _, assetURL := range []string{gran.DataURL(), gran.XMLURL(), gran.BrowseURL()} {
		if assetURL == "" {
			continue
		}
		basename := path.Base(assetURL)
		localPath := filepath.Join(localDir, basename)
		mirrorPath := domain.MirrorPath(relDir, basename)

		fetched, err := s.fetchAsset(ctx, assetURL, localPath, mirrorPath)
		if err != nil {
			log.Errorf("failed to download %s to %s: %v", assetURL, localPath, err)
			return StatusFailed
		}
		if fetched {
			fetchedFromOrigin = true
		}
	}

	if fetchedFromOrigin {
		return StatusDownloaded
	}
	return StatusCacheHit
}

// fetchAsset materializes one asset at localPath, preferring the local
// copy, then the store, then the origin. Returns whether the origin was
// hit. Files are written to a temp name and renamed so a partial write is
// never mistaken for a complete one; a leftover temp file from an
// interrupted run is simply ignored and the fetch redone.
func (s *DownloadService) fetchAsset(ctx context.Context, assetURL, localPath, mirrorPath string) (bool, error) {
	if exists, err := afero.Exists(s.fs, localPath); err == nil && exists {
		log.Debugf("already downloaded: %s", localPath)
		return false, nil
	}

	inStore, err := s.cache.Exists(ctx, mirrorPath)
	if err != nil {
		return false, err
	}
	if inStore {
		log.Infof("pulling %s from store", mirrorPath)
		return false, s.cache.Pull(ctx, mirrorPath, localPath)
	}

	tmpPath := localPath + "." + uuid.NewString() + ".tmp"
	tmpFile, err := s.fs.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return false, err
	}

	log.Infof("fetching %s", assetURL)
	if err := s.fetcher.Fetch(ctx, assetURL, tmpFile); err != nil {
		tmpFile.Close()
		s.fs.Remove(tmpPath)
		return false, err
	}
	if err := tmpFile.Close(); err != nil {
		s.fs.Remove(tmpPath)
		return false, err
	}
	if err := s.fs.Rename(tmpPath, localPath); err != nil {
		return false, err
	}

	if _, err := s.cache.Push(ctx, localPath, mirrorPath); err != nil {
		// the local copy is complete; the write-through will catch up
		// on the next archive or download run
		log.Warnf("write-through of %s failed: %v", mirrorPath, err)
	}
	return true, nil
}

// saveMetadata serializes the full granule record next to the data file.
// An existing sidecar is left untouched.
func (s *DownloadService) saveMetadata(gran domain.GranuleRecord, metaPath string) error {
	if exists, err := afero.Exists(s.fs, metaPath); err == nil && exists {
		return nil
	}
	data, err := json.MarshalIndent(gran, "", "    ")
	if err != nil {
		return err
	}
	log.Debugf("saving granule metadata: %s", metaPath)
	return afero.WriteFile(s.fs, metaPath, data, 0644)
}

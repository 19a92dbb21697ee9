package service

import (
	"context"
	goerrors "errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/zzenonn/snowstore/internal/domain"
	"github.com/zzenonn/snowstore/internal/errors"
)

// DirOutcome is the terminal state of one candidate directory.
type DirOutcome string

const (
	OutcomeDeleted      DirOutcome = "archived-and-deleted"
	OutcomeRetained     DirOutcome = "archived-retained"
	OutcomeVerifyFailed DirOutcome = "verify-failed"
	OutcomeSkipped      DirOutcome = "skipped-ineligible"
)

// ArchiveReport tallies outcomes across one archive run.
type ArchiveReport struct {
	Deleted      int
	Retained     int
	VerifyFailed int
	Skipped      int
}

func (r ArchiveReport) String() string {
	return fmt.Sprintf("deleted: %d, retained: %d, verify failed: %d, skipped: %d",
		r.Deleted, r.Retained, r.VerifyFailed, r.Skipped)
}

// ArchiveStore is the slice of the listing cache the archiver needs.
type ArchiveStore interface {
	ETag(ctx context.Context, mirrorPath string) (string, bool, error)
	Push(ctx context.Context, localPath, mirrorPath string) (string, error)
}

// Verifier validates a local file against a store content digest.
type Verifier interface {
	IsValid(localPath, remoteETag string) (bool, error)
}

// ArchiveService syncs date-partitioned working directories older than a
// threshold into the object store and deletes the local copies once the
// upload is cryptographically verified. Archival runs strictly serially:
// deletion is irreversible and each directory must complete its state
// machine before the next one starts.
type ArchiveService struct {
	fs                afero.Fs
	store             ArchiveStore
	verifier          Verifier
	srcRoot           string
	archiveRoot       string
	omitDirs          []string
	daysBack          int
	deleteAfterVerify bool

	// now is swappable for tests
	now func() time.Time
}

// NewArchiveService creates a new ArchiveService instance. omitDirs holds
// resolved paths whose subtrees are excluded from archival.
func NewArchiveService(fs afero.Fs, store ArchiveStore, verifier Verifier, srcRoot, archiveRoot string, omitDirs []string, daysBack int, deleteAfterVerify bool) *ArchiveService {
	return &ArchiveService{
		fs:                fs,
		store:             store,
		verifier:          verifier,
		srcRoot:           srcRoot,
		archiveRoot:       archiveRoot,
		omitDirs:          omitDirs,
		daysBack:          daysBack,
		deleteAfterVerify: deleteAfterVerify,
		now:               time.Now,
	}
}

// ArchiveEligible walks the source tree and archives every eligible
// directory. Per-directory failures are logged and counted; they never
// abort the walk.
func (s *ArchiveService) ArchiveEligible(ctx context.Context) (ArchiveReport, error) {
	var report ArchiveReport

	walker := NewDirectoryWalker(s.fs, s.srcRoot, s.omitDirs)
	for {
		candidate, err := walker.Next()
		if goerrors.Is(err, errors.ErrWalkDone) {
			break
		}
		if err != nil {
			return report, err
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}

		outcome := s.archiveDir(ctx, candidate)
		log.Infof("%s: %s", candidate.Path, outcome)
		switch outcome {
		case OutcomeDeleted:
			report.Deleted++
		case OutcomeRetained:
			report.Retained++
		case OutcomeVerifyFailed:
			report.VerifyFailed++
		case OutcomeSkipped:
			report.Skipped++
		}
	}

	return report, nil
}

// archiveDir runs one candidate through
// Eligible -> Synced -> Verified -> Deleted/Retained.
func (s *ArchiveService) archiveDir(ctx context.Context, candidate domain.CandidateDir) DirOutcome {
	threshold := s.now().AddDate(0, 0, -s.daysBack)
	if !candidate.Date.Before(threshold) {
		log.Debugf("not old enough to archive: %s", candidate.Path)
		return OutcomeSkipped
	}

	files, verified, err := s.syncDir(ctx, candidate.Path)
	if err != nil {
		log.Errorf("failed to sync %s: %v", candidate.Path, err)
		return OutcomeRetained
	}
	if !verified {
		// integrity errors block deletion unconditionally; the local
		// copy is kept for manual review
		log.Errorf("integrity check failed for %s, local copy retained", candidate.Path)
		return OutcomeVerifyFailed
	}
	if !s.deleteAfterVerify {
		return OutcomeRetained
	}

	return s.deleteDir(candidate.Path, files)
}

// syncDir uploads every file under dir that the store does not already
// hold and verifies each file against its store digest. Returns the file
// list and whether every file verified.
func (s *ArchiveService) syncDir(ctx context.Context, dir string) ([]string, bool, error) {
	var files []string
	verified := true

	err := afero.Walk(s.fs, dir, func(filePath string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		files = append(files, filePath)

		mirrorPath := s.mirrorPath(filePath)
		etag, inStore, err := s.store.ETag(ctx, mirrorPath)
		if err != nil {
			return err
		}
		if !inStore {
			log.Infof("uploading %s to %s", filePath, mirrorPath)
			etag, err = s.store.Push(ctx, filePath, mirrorPath)
			if err != nil {
				return err
			}
		} else {
			log.Debugf("already in store: %s", mirrorPath)
		}

		ok, err := s.verifier.IsValid(filePath, etag)
		if err != nil {
			return err
		}
		if !ok {
			log.Errorf("etag mismatch for %s (store etag %s)", filePath, etag)
			verified = false
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return files, verified, nil
}

// deleteDir removes the synced files one by one, then the directory
// itself, but only once it is empty. A directory still holding entries
// after file deletion is left for manual cleanup.
func (s *ArchiveService) deleteDir(dir string, files []string) DirOutcome {
	for _, filePath := range files {
		if err := s.fs.Remove(filePath); err != nil {
			log.Errorf("failed to remove %s: %v", filePath, err)
			return OutcomeRetained
		}
	}

	remaining, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		log.Errorf("failed to re-read %s after file deletion: %v", dir, err)
		return OutcomeRetained
	}
	if len(remaining) > 0 {
		log.Infof("cannot remove the directory as its not empty: %s", dir)
		return OutcomeRetained
	}
	if err := s.fs.Remove(dir); err != nil {
		log.Errorf("failed to remove directory %s: %v", dir, err)
		return OutcomeRetained
	}
	log.Infof("removed the directory: %s", dir)
	return OutcomeDeleted
}

// mirrorPath maps a local file path to its store key by stripping the
// source root and prepending the archive root.
func (s *ArchiveService) mirrorPath(localPath string) string {
	rel := strings.TrimPrefix(filepath.ToSlash(localPath), filepath.ToSlash(s.srcRoot))
	rel = strings.TrimPrefix(rel, "/")
	return path.Join(s.archiveRoot, rel)
}

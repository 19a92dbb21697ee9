package service

import (
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/zzenonn/snowstore/internal/domain"
	"github.com/zzenonn/snowstore/internal/errors"
)

// DirectoryWalker yields date-partitioned directories from a rooted tree,
// one at a time, honoring an omit list. The walk is breadth-first over an
// explicit queue; deep trees (basin directories nest far down) overflow
// the stack when walked with a recursive call per subdirectory, so no
// recursion is used anywhere here. The sequence is lazy, finite, and not
// restartable.
type DirectoryWalker struct {
	fs      afero.Fs
	pending []string
	batch   []domain.CandidateDir
	omit    []string
}

// NewDirectoryWalker creates a walker over root. omit entries are paths
// whose subtrees are skipped entirely.
func NewDirectoryWalker(fs afero.Fs, root string, omit []string) *DirectoryWalker {
	return &DirectoryWalker{
		fs:      fs,
		pending: []string{root},
		omit:    omit,
	}
}

// Next returns the next candidate directory, or errors.ErrWalkDone once
// the tree is exhausted. Directories come back in tree-traversal order,
// not by date.
func (w *DirectoryWalker) Next() (domain.CandidateDir, error) {
	for len(w.batch) == 0 {
		if len(w.pending) == 0 {
			return domain.CandidateDir{}, errors.ErrWalkDone
		}

		dir := w.pending[0]
		w.pending = w.pending[1:]

		entries, err := afero.ReadDir(w.fs, dir)
		if err != nil {
			log.Warnf("skipping unreadable directory %s: %v", dir, err)
			continue
		}

		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			fullPath := filepath.Join(dir, entry.Name())
			if w.isOmitted(fullPath) {
				log.Debugf("omitting %s", fullPath)
				continue
			}
			if domain.DateDirPattern.MatchString(entry.Name()) {
				if date, ok := domain.ParseDirDate(fullPath); ok {
					log.Debugf("date dir found: %s", fullPath)
					w.batch = append(w.batch, domain.CandidateDir{Path: fullPath, Date: date})
				}
				// date dirs are archive units; never descend into them
				continue
			}
			w.pending = append(w.pending, fullPath)
		}
	}

	next := w.batch[0]
	w.batch = w.batch[1:]
	return next, nil
}

func (w *DirectoryWalker) isOmitted(dir string) bool {
	for _, omitDir := range w.omit {
		if domain.IsSubPath(dir, omitDir) {
			return true
		}
	}
	return false
}

// ResolveOmitDirs joins each omit name onto root and keeps the ones that
// exist, warning about the rest so a typo in the omit list is visible.
func ResolveOmitDirs(fs afero.Fs, root string, names []string) []string {
	var resolved []string
	for _, name := range names {
		fullPath := filepath.Clean(filepath.Join(root, name))
		exists, err := afero.DirExists(fs, fullPath)
		if err != nil || !exists {
			log.Warnf("the omit directory %s could not be found", fullPath)
			continue
		}
		log.Infof("adding %s to omit list", fullPath)
		resolved = append(resolved, fullPath)
	}
	return resolved
}

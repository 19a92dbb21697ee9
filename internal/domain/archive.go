package domain

import (
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// DateDirPattern identifies date-partitioned directory names, e.g. 2021.05.15.
var DateDirPattern = regexp.MustCompile(`^\d{4}\.\d{2}\.\d{2}$`)

// CandidateDir is a date-partitioned directory discovered by the walker.
// It is discovered once and consumed exactly once by the archive engine.
type CandidateDir struct {
	Path string
	Date time.Time
}

// ParseDirDate extracts the calendar date from a path by scanning its
// segments from the leaf back towards the root for one matching
// DateDirPattern.
func ParseDirDate(p string) (time.Time, bool) {
	segments := splitPath(p)
	for i := len(segments) - 1; i >= 0; i-- {
		if DateDirPattern.MatchString(segments[i]) {
			date, err := time.Parse(DateDirLayout, segments[i])
			if err != nil {
				continue
			}
			return date, true
		}
	}
	return time.Time{}, false
}

// IsSubPath reports whether child is parent or lies underneath it.
// Comparison is segment-wise on cleaned paths, so "basins2" is not
// considered under "basins".
func IsSubPath(child, parent string) bool {
	childSegs := splitPath(child)
	parentSegs := splitPath(parent)
	if len(parentSegs) > len(childSegs) {
		return false
	}
	for i := range parentSegs {
		if childSegs[i] != parentSegs[i] {
			return false
		}
	}
	return true
}

func splitPath(p string) []string {
	clean := filepath.ToSlash(filepath.Clean(p))
	clean = strings.TrimPrefix(clean, "/")
	if clean == "" || clean == "." {
		return nil
	}
	return strings.Split(clean, "/")
}

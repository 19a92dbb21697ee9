package service

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zzenonn/snowstore/internal/domain"
	"github.com/zzenonn/snowstore/internal/errors"
)

func buildTree(t *testing.T, fs afero.Fs, dirs ...string) {
	t.Helper()
	for _, dir := range dirs {
		require.NoError(t, fs.MkdirAll(dir, 0755))
	}
}

func collectAll(t *testing.T, walker *DirectoryWalker) []string {
	t.Helper()
	var paths []string
	for {
		candidate, err := walker.Next()
		if err != nil {
			require.ErrorIs(t, err, errors.ErrWalkDone)
			return paths
		}
		paths = append(paths, candidate.Path)
	}
}

func TestDirectoryWalker_FindsAllDateDirsOnce(t *testing.T) {
	fs := afero.NewMemMapFs()
	buildTree(t, fs,
		"/data/basins/STAVE/modis/2020.01.01",
		"/data/basins/STAVE/modis/2021.05.15",
		"/data/basins/HORSESHOE/viirs/2021.05.31",
		"/data/watersheds/2099.01.01",
		"/data/plain/no_dates_here",
	)

	walker := NewDirectoryWalker(fs, "/data", nil)
	paths := collectAll(t, walker)

	assert.ElementsMatch(t, []string{
		"/data/basins/STAVE/modis/2020.01.01",
		"/data/basins/STAVE/modis/2021.05.15",
		"/data/basins/HORSESHOE/viirs/2021.05.31",
		"/data/watersheds/2099.01.01",
	}, paths)

	seen := map[string]int{}
	for _, p := range paths {
		seen[p]++
	}
	for p, count := range seen {
		assert.Equal(t, 1, count, "duplicate yield of %s", p)
	}
}

func TestDirectoryWalker_ParsesDates(t *testing.T) {
	fs := afero.NewMemMapFs()
	buildTree(t, fs, "/data/basins/2021.05.15")

	walker := NewDirectoryWalker(fs, "/data", nil)
	candidate, err := walker.Next()
	require.NoError(t, err)
	assert.Equal(t, "/data/basins/2021.05.15", candidate.Path)
	assert.Equal(t, 2021, candidate.Date.Year())
	assert.Equal(t, 15, candidate.Date.Day())
}

// A directory nested under an excluded prefix is never yielded even when
// it matches the date pattern.
func TestDirectoryWalker_OmitListRespected(t *testing.T) {
	fs := afero.NewMemMapFs()
	buildTree(t, fs,
		"/data/kml/2020.01.01",
		"/data/kml/nested/2020.02.02",
		"/data/kml2/2020.03.03",
		"/data/basins/2020.04.04",
	)

	walker := NewDirectoryWalker(fs, "/data", []string{"/data/kml"})
	paths := collectAll(t, walker)

	assert.ElementsMatch(t, []string{
		"/data/kml2/2020.03.03",
		"/data/basins/2020.04.04",
	}, paths)
}

// Date directories are archive units; date dirs nested inside them must
// not be yielded a second time.
func TestDirectoryWalker_NoDescentIntoDateDirs(t *testing.T) {
	fs := afero.NewMemMapFs()
	buildTree(t, fs, "/data/basins/2020.01.01/2020.01.02")

	walker := NewDirectoryWalker(fs, "/data", nil)
	paths := collectAll(t, walker)
	assert.Equal(t, []string{"/data/basins/2020.01.01"}, paths)
}

func TestDirectoryWalker_EmptyTree(t *testing.T) {
	fs := afero.NewMemMapFs()
	buildTree(t, fs, "/data")

	walker := NewDirectoryWalker(fs, "/data", nil)
	_, err := walker.Next()
	assert.ErrorIs(t, err, errors.ErrWalkDone)
}

// Deep trees are the whole reason the walk is iterative; make sure depth
// alone never breaks it.
func TestDirectoryWalker_DeepTree(t *testing.T) {
	fs := afero.NewMemMapFs()
	deep := "/data"
	for i := 0; i < 200; i++ {
		deep += "/level"
	}
	buildTree(t, fs, deep+"/2021.05.31")

	walker := NewDirectoryWalker(fs, "/data", nil)
	paths := collectAll(t, walker)
	require.Len(t, paths, 1)

	date, ok := domain.ParseDirDate(paths[0])
	require.True(t, ok)
	assert.Equal(t, 31, date.Day())
}

func TestResolveOmitDirs(t *testing.T) {
	fs := afero.NewMemMapFs()
	buildTree(t, fs, "/data/kml", "/data/plot")

	resolved := ResolveOmitDirs(fs, "/data", []string{"kml", "plot", "missing"})
	assert.ElementsMatch(t, []string{"/data/kml", "/data/plot"}, resolved)
}

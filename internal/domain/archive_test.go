package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseDirDate(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		wantDate time.Time
		wantOK   bool
	}{
		{
			name:     "date at leaf",
			path:     "data/basins/STAVE/modis/2021.05.15",
			wantDate: time.Date(2021, 5, 15, 0, 0, 0, 0, time.UTC),
			wantOK:   true,
		},
		{
			name:     "date mid path",
			path:     "data/basins/2021.05.15/extras",
			wantDate: time.Date(2021, 5, 15, 0, 0, 0, 0, time.UTC),
			wantOK:   true,
		},
		{
			name:     "deepest date wins",
			path:     "data/2020.01.01/nested/2021.05.15",
			wantDate: time.Date(2021, 5, 15, 0, 0, 0, 0, time.UTC),
			wantOK:   true,
		},
		{
			name:   "no date segment",
			path:   "data/basins/STAVE/modis",
			wantOK: false,
		},
		{
			name:   "date not its own segment",
			path:   "data/backup-2021.05.15",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			date, ok := ParseDirDate(tt.path)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantDate, date)
			}
		})
	}
}

func TestIsSubPath(t *testing.T) {
	tests := []struct {
		name   string
		child  string
		parent string
		want   bool
	}{
		{"direct child", "data/kml/2021.05.15", "data/kml", true},
		{"same path", "data/kml", "data/kml", true},
		{"unrelated", "data/plot", "data/kml", false},
		{"shared name prefix only", "data/kml2/x", "data/kml", false},
		{"parent deeper than child", "data", "data/kml", false},
		{"trailing slash normalized", "data/kml/x", "data/kml/", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsSubPath(tt.child, tt.parent))
		})
	}
}

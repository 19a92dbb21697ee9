package domain

import (
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/zzenonn/snowstore/internal/errors"
)

// DateDirLayout is the layout of the date segment in granule and archive
// paths, e.g. 2023.03.17.
const DateDirLayout = "2006.01.02"

// metaSuffix is appended to the data file basename for the metadata sidecar.
const metaSuffix = "_meta.json"

// titlePattern extracts the product name from catalog titles of the form
// SC:MOD10A1.061:2647238747
var titlePattern = regexp.MustCompile(`^\w+:([\w.]+):\w+`)

// AssetLink is one typed link attached to a granule record.
type AssetLink struct {
	Href string `json:"href"`
	Rel  string `json:"rel,omitempty"`
	Type string `json:"type,omitempty"`
}

// GranuleRecord is one catalog entry for a discrete satellite data file.
// Field names mirror the catalog response so the metadata sidecar is a
// faithful snapshot of what the catalog returned. Records are immutable
// once retrieved; DerivedDate is filled in by the catalog client after
// day-offset correction and drives all path derivation.
type GranuleRecord struct {
	Title             string      `json:"title"`
	TimeStart         string      `json:"time_start"`
	ProducerGranuleID string      `json:"producer_granule_id"`
	Links             []AssetLink `json:"links"`
	Polygons          [][]string  `json:"polygons,omitempty"`
	DerivedDate       time.Time   `json:"-"`
}

// Validate checks the fields every download needs. A record failing
// validation is skipped, never retried - a malformed record cannot be
// fixed by retrying.
func (g *GranuleRecord) Validate() error {
	if g.Title == "" || g.TimeStart == "" || g.ProducerGranuleID == "" {
		return errors.ErrMissingRequiredFields
	}
	if len(g.Links) == 0 {
		return errors.ErrMissingRequiredFields
	}
	if !titlePattern.MatchString(g.Title) {
		return errors.ErrMalformedTitle
	}
	return nil
}

// ProductName returns the PRODUCT.VERSION portion of the title,
// e.g. MOD10A1.061.
func (g *GranuleRecord) ProductName() (string, error) {
	m := titlePattern.FindStringSubmatch(g.Title)
	if m == nil {
		return "", errors.ErrMalformedTitle
	}
	return m[1], nil
}

// DataURL returns the origin URL of the primary data file. By catalog
// convention the first link is the data file.
func (g *GranuleRecord) DataURL() string {
	if len(g.Links) == 0 {
		return ""
	}
	return g.Links[0].Href
}

// XMLURL returns the origin URL of the XML sidecar, or "" if the record
// has none.
func (g *GranuleRecord) XMLURL() string {
	return g.linkByType("text/xml")
}

// BrowseURL returns the origin URL of the browse image, or "" if the
// record has none.
func (g *GranuleRecord) BrowseURL() string {
	return g.linkByType("image/jpeg")
}

func (g *GranuleRecord) linkByType(linkType string) string {
	for _, l := range g.Links {
		if l.Type == linkType {
			return l.Href
		}
	}
	return ""
}

// RelativeDir computes the directory for this granule's assets, relative
// to both the local data root and the store root:
// {collection}/{PRODUCT.VER}/{YYYY.MM.DD}. The same record always maps to
// the same directory, which is what makes "already downloaded" and
// "already archived" checks correct without a separate index.
func (g *GranuleRecord) RelativeDir(collection string) (string, error) {
	product, err := g.ProductName()
	if err != nil {
		return "", err
	}
	return path.Join(collection, product, g.DerivedDate.Format(DateDirLayout)), nil
}

// LocalDir computes the local output directory for this granule's assets.
func (g *GranuleRecord) LocalDir(rootDir, collection string) (string, error) {
	rel, err := g.RelativeDir(collection)
	if err != nil {
		return "", err
	}
	return filepath.Join(rootDir, filepath.FromSlash(rel)), nil
}

// MetaFileName returns the basename of the metadata sidecar, derived from
// the data file basename.
func (g *GranuleRecord) MetaFileName() string {
	return path.Base(g.DataURL()) + metaSuffix
}

// MirrorPath computes the store key for an asset with the given basename.
func MirrorPath(relativeDir, basename string) string {
	return path.Join(relativeDir, basename)
}

// ParseTimeStart parses the catalog's time_start value down to a calendar
// date, tolerating both full RFC3339 timestamps and bare dates.
func ParseTimeStart(timeStart string) (time.Time, error) {
	datePart, _, _ := strings.Cut(timeStart, "T")
	return time.Parse("2006-01-02", datePart)
}

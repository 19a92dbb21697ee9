// Package catalog queries the granule catalog search API for records
// matching a product, temporal window, and bounding box.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/zzenonn/snowstore/internal/domain"
)

const defaultPageSize = 200

// QueryParams describe one catalog search.
type QueryParams struct {
	ShortName string
	Version   string
	// StartDate and EndDate are inclusive calendar dates.
	StartDate time.Time
	EndDate   time.Time
	// BoundingBox is [min-lon, min-lat, max-lon, max-lat]; empty skips
	// the spatial filter.
	BoundingBox []float64
	// DayOffset corrects the catalog's coarse acquisition-window start to
	// the true per-granule date. Per-product constant, default 0.
	DayOffset int
	PageSize  int
}

// Client queries a CMR-style granule catalog. Query failures are surfaced
// to the caller; there are no retries at this layer.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a catalog client for the given search API base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

type feedResponse struct {
	Feed struct {
		Entry []domain.GranuleRecord `json:"entry"`
	} `json:"feed"`
}

// Query returns the granules for the product/version whose offset-corrected
// date falls within [StartDate, EndDate], preserving catalog order. The
// catalog's temporal filter keys on the acquisition window start, which can
// be coarser than requested, so results are re-filtered here after applying
// DayOffset. Zero candidates is not an error.
func (c *Client) Query(ctx context.Context, params QueryParams) ([]domain.GranuleRecord, error) {
	pageSize := params.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	var candidates []domain.GranuleRecord
	for pageNum := 1; ; pageNum++ {
		page, err := c.queryPage(ctx, params, pageSize, pageNum)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, page...)
		if len(page) < pageSize {
			break
		}
	}

	granules := make([]domain.GranuleRecord, 0, len(candidates))
	for _, gran := range candidates {
		date, err := domain.ParseTimeStart(gran.TimeStart)
		if err != nil {
			log.Warnf("discarding granule with unparseable time_start %q: %v", gran.TimeStart, err)
			continue
		}
		derived := date.AddDate(0, 0, params.DayOffset)
		if derived.Before(params.StartDate) || derived.After(params.EndDate) {
			continue
		}
		gran.DerivedDate = derived
		granules = append(granules, gran)
	}

	log.Infof("%d granules found within %s - %s",
		len(granules),
		params.StartDate.Format("2006-01-02"),
		params.EndDate.Format("2006-01-02"))
	return granules, nil
}

func (c *Client) queryPage(ctx context.Context, params QueryParams, pageSize, pageNum int) ([]domain.GranuleRecord, error) {
	values := url.Values{}
	values.Set("short_name", params.ShortName)
	values.Set("version", params.Version)
	values.Set("temporal", fmt.Sprintf("%sT00:00:00Z,%sT23:59:59Z",
		params.StartDate.Format("2006-01-02"),
		params.EndDate.Format("2006-01-02")))
	if len(params.BoundingBox) >= 4 {
		bbox := make([]string, 4)
		for i, v := range params.BoundingBox[:4] {
			bbox[i] = strconv.FormatFloat(v, 'f', -1, 64)
		}
		values.Set("bounding_box", strings.Join(bbox, ","))
	}
	values.Set("page_size", strconv.Itoa(pageSize))
	values.Set("page_num", strconv.Itoa(pageNum))

	queryURL := c.baseURL + "/granules.json?" + values.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, queryURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog query failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog query returned status %d", resp.StatusCode)
	}

	var feed feedResponse
	if err := json.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("failed to decode catalog response: %w", err)
	}
	return feed.Feed.Entry, nil
}

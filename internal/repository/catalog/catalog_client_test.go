package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zzenonn/snowstore/internal/domain"
)

func catalogStub(t *testing.T, entries []domain.GranuleRecord, capture *[]map[string][]string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/granules.json", r.URL.Path)
		if capture != nil {
			*capture = append(*capture, r.URL.Query())
		}

		// single page stub
		page := entries
		if r.URL.Query().Get("page_num") != "1" {
			page = nil
		}
		resp := map[string]any{"feed": map[string]any{"entry": page}}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func record(title, timeStart string) domain.GranuleRecord {
	return domain.GranuleRecord{
		Title:             title,
		TimeStart:         timeStart,
		ProducerGranuleID: title + ".hdf",
		Links:             []domain.AssetLink{{Href: "https://origin.example.com/" + title + ".hdf"}},
	}
}

// The catalog's temporal filter keys on the acquisition window start, so
// candidates a day early must survive the offset correction and
// candidates past the window must be dropped.
func TestClient_Query_DayOffsetRefilter(t *testing.T) {
	entries := []domain.GranuleRecord{
		record("SC:X.1:001", "2024-05-17T23:00:00.000Z"),
		record("SC:X.1:002", "2024-05-17T23:00:00.000Z"),
		record("SC:X.1:003", "2024-05-17T23:00:00.000Z"),
		record("SC:X.1:004", "2024-05-19T00:30:00.000Z"),
		record("SC:X.1:005", "2024-05-19T00:30:00.000Z"),
	}

	var queries []map[string][]string
	server := catalogStub(t, entries, &queries)
	defer server.Close()

	client := NewClient(server.URL)
	granules, err := client.Query(context.Background(), QueryParams{
		ShortName:   "X",
		Version:     "1",
		StartDate:   time.Date(2024, 5, 18, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2024, 5, 18, 0, 0, 0, 0, time.UTC),
		BoundingBox: []float64{-141, 46, -112, 63},
		DayOffset:   1,
	})
	require.NoError(t, err)

	require.Len(t, granules, 3)
	for i, gran := range granules {
		assert.Equal(t, entries[i].Title, gran.Title, "catalog order must be preserved")
		assert.Equal(t, time.Date(2024, 5, 18, 0, 0, 0, 0, time.UTC), gran.DerivedDate)
	}

	require.NotEmpty(t, queries)
	first := queries[0]
	assert.Equal(t, "X", first["short_name"][0])
	assert.Equal(t, "1", first["version"][0])
	assert.Equal(t, "2024-05-18T00:00:00Z,2024-05-18T23:59:59Z", first["temporal"][0])
	assert.Equal(t, "-141,46,-112,63", first["bounding_box"][0])
}

func TestClient_Query_ZeroCandidatesIsNotAnError(t *testing.T) {
	server := catalogStub(t, nil, nil)
	defer server.Close()

	client := NewClient(server.URL)
	granules, err := client.Query(context.Background(), QueryParams{
		ShortName: "MOD10A1",
		Version:   "61",
		StartDate: time.Date(2024, 5, 18, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 5, 18, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Empty(t, granules)
}

func TestClient_Query_ServerErrorSurfaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.Query(context.Background(), QueryParams{
		ShortName: "MOD10A1",
		Version:   "61",
		StartDate: time.Date(2024, 5, 18, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 5, 18, 0, 0, 0, 0, time.UTC),
	})
	assert.Error(t, err)
}

func TestClient_Query_UnparseableTimeStartDiscarded(t *testing.T) {
	entries := []domain.GranuleRecord{
		record("SC:X.1:001", "2024-05-18T00:00:00.000Z"),
		record("SC:X.1:002", "garbage"),
	}
	server := catalogStub(t, entries, nil)
	defer server.Close()

	client := NewClient(server.URL)
	granules, err := client.Query(context.Background(), QueryParams{
		ShortName: "X",
		Version:   "1",
		StartDate: time.Date(2024, 5, 18, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 5, 18, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, granules, 1)
	assert.Equal(t, "SC:X.1:001", granules[0].Title)
}

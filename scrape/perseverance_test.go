package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marsphotos/rovercore"
)

func TestPerseveranceScrapeSolFiltersToFullSampleType(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q, _ := url.ParseQuery(r.URL.RawQuery)
		if q.Get("latest") == "true" {
			w.Write([]byte(`{"latest_sol":10,"total":1}`))
			return
		}
		w.Write([]byte(`{"images":[
			{"imageid":"p1","sol":10,"camera":{"instrument":"NAVCAM_LEFT"},
			 "image_files":{"full_res":"https://example.com/p1.png"},
			 "sample_type":"Full","date_taken_utc":"2024-02-18T00:00:00Z"},
			{"imageid":"p2","sol":10,"camera":{"instrument":"NAVCAM_LEFT"},
			 "image_files":{"full_res":"https://example.com/p2.png"},
			 "sample_type":"Thumbnail","date_taken_utc":"2024-02-18T00:00:00Z"}
		]}`))
	}))
	defer srv.Close()

	store := newFakeStore(rovercore.Rover{ID: 2, Name: "Perseverance"})
	s, err := NewPerseveranceScraper(store, fastClient(), srv.URL)
	require.NoError(t, err)

	res, err := s.ScrapeSol(context.Background(), 10)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.Inserted)
}

func TestPerseveranceScrapeSolHandlesNotFoundAsEmptySuccess(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	store := newFakeStore(rovercore.Rover{ID: 2, Name: "Perseverance"})
	s, err := NewPerseveranceScraper(store, fastClient(), srv.URL)
	require.NoError(t, err)

	res, err := s.ScrapeSol(context.Background(), 10)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 0, res.Inserted)
}

func TestPerseveranceBulkScrapeDiscoversLatestSolAndResumesFromMaxSol(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q, _ := url.ParseQuery(r.URL.RawQuery)
		if q.Get("latest") == "true" {
			w.Write([]byte(`{"latest_sol":12,"total":1}`))
			return
		}
		w.Write([]byte(`{"images":[]}`))
	}))
	defer srv.Close()

	store := newFakeStore(rovercore.Rover{ID: 2, Name: "Perseverance"})
	store.maxSol, store.maxSolAny = 9, true
	s, err := NewPerseveranceScraper(store, fastClient(), srv.URL)
	require.NoError(t, err)

	res, err := s.BulkScrape(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 10, res.StartSol)
	assert.Equal(t, 12, res.EndSol)
	assert.Equal(t, 3, res.SolsAttempted)
}

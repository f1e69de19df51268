package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marsphotos/rovercore"
	"github.com/marsphotos/rovercore/datastore"
	"github.com/marsphotos/rovercore/query"
	"github.com/marsphotos/rovercore/scrape"
)

// fakeStore is a minimal in-memory datastore.Store backing both the query
// engine and, through Engine.Store(), the compare diagnostics.
type fakeStore struct {
	mu sync.Mutex

	rovers       map[int64]rovercore.Rover
	roversByName map[string]rovercore.Rover
	cameras      map[int64]rovercore.Camera
	photos       map[int64]rovercore.Photo
	manifest     []datastore.ManifestEntry
	localIDs     map[int64]map[string]bool // roverID -> sol-agnostic external ids

	jobs []*rovercore.ScraperJob

	lastFilter datastore.Filter
	lastSort   datastore.Sort
	lastPage   datastore.Page
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rovers:       make(map[int64]rovercore.Rover),
		roversByName: make(map[string]rovercore.Rover),
		cameras:      make(map[int64]rovercore.Camera),
		photos:       make(map[int64]rovercore.Photo),
		localIDs:     make(map[int64]map[string]bool),
	}
}

func (f *fakeStore) ExistingExternalIDs(ctx context.Context, roverID int64, ids []string) (map[string]bool, error) {
	out := make(map[string]bool)
	for _, id := range ids {
		if f.localIDs[roverID][id] {
			out[id] = true
		}
	}
	return out, nil
}
func (f *fakeStore) AllExternalIDs(ctx context.Context, roverID int64) (map[string]bool, error) {
	return f.localIDs[roverID], nil
}
func (f *fakeStore) ExternalIDsForSol(ctx context.Context, roverID int64, sol int) (map[string]bool, error) {
	out := make(map[string]bool)
	for id, p := range f.photos {
		_ = id
		if p.RoverID == roverID && p.Sol == sol {
			out[p.ExternalID] = true
		}
	}
	return out, nil
}
func (f *fakeStore) AddPhotos(ctx context.Context, batch []rovercore.Photo) (int, []string, error) {
	return 0, nil, nil
}
func (f *fakeStore) QueryPhotos(ctx context.Context, filter datastore.Filter, sort datastore.Sort, page datastore.Page) (datastore.Result, error) {
	f.mu.Lock()
	f.lastFilter, f.lastSort, f.lastPage = filter, sort, page
	f.mu.Unlock()
	var out []rovercore.Photo
	for _, p := range f.photos {
		out = append(out, p)
	}
	return datastore.Result{Photos: out, TotalCount: len(out) + 3}, nil
}
func (f *fakeStore) LatestPhotos(ctx context.Context, roverID int64) (datastore.Result, error) {
	var out []rovercore.Photo
	for _, p := range f.photos {
		if p.RoverID == roverID {
			out = append(out, p)
		}
	}
	return datastore.Result{Photos: out, TotalCount: len(out)}, nil
}
func (f *fakeStore) Manifest(ctx context.Context, roverID int64) ([]datastore.ManifestEntry, error) {
	return f.manifest, nil
}
func (f *fakeStore) MaxSol(ctx context.Context, roverID int64) (int, bool, error) { return 0, false, nil }
func (f *fakeStore) GetByID(ctx context.Context, id int64) (rovercore.Photo, error) {
	p, ok := f.photos[id]
	if !ok {
		return rovercore.Photo{}, rovercore.ErrNotFound
	}
	return p, nil
}
func (f *fakeStore) FindOrCreateCamera(ctx context.Context, roverID int64, shortName string) (rovercore.Camera, bool, error) {
	return rovercore.Camera{}, false, nil
}
func (f *fakeStore) GetCameraByID(ctx context.Context, id int64) (rovercore.Camera, error) {
	c, ok := f.cameras[id]
	if !ok {
		return rovercore.Camera{}, rovercore.ErrNotFound
	}
	return c, nil
}
func (f *fakeStore) GetRoverByName(ctx context.Context, name string) (rovercore.Rover, error) {
	r, ok := f.roversByName[name]
	if !ok {
		return rovercore.Rover{}, rovercore.ErrUnknownRover
	}
	return r, nil
}
func (f *fakeStore) GetRoverByID(ctx context.Context, id int64) (rovercore.Rover, error) {
	r, ok := f.rovers[id]
	if !ok {
		return rovercore.Rover{}, rovercore.ErrUnknownRover
	}
	return r, nil
}
func (f *fakeStore) ListRovers(ctx context.Context) ([]rovercore.Rover, error) {
	var out []rovercore.Rover
	for _, r := range f.rovers {
		out = append(out, r)
	}
	return out, nil
}
func (f *fakeStore) RecordJob(ctx context.Context, job *rovercore.ScraperJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job)
	return nil
}

func (f *fakeStore) jobCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.jobs)
}

func addRover(f *fakeStore, r rovercore.Rover) {
	f.rovers[r.ID] = r
	f.roversByName[r.Name] = r
}

// fakeScraper is a minimal scrape.Scraper, optionally also a scrape.Comparer
// when withCompare is true.
type fakeScraper struct {
	name        string
	withCompare bool

	solResult  scrape.SolResult
	solErr     error
	bulkResult scrape.BulkResult
	bulkErr    error
	bulkCalled chan struct{}

	upstream map[int]map[string]bool
}

func (s *fakeScraper) RoverName() string { return s.name }
func (s *fakeScraper) ScrapeSol(ctx context.Context, sol int) (scrape.SolResult, error) {
	return s.solResult, s.solErr
}
func (s *fakeScraper) BulkScrape(ctx context.Context, start, end int) (scrape.BulkResult, error) {
	if s.bulkCalled != nil {
		defer close(s.bulkCalled)
	}
	return s.bulkResult, s.bulkErr
}
func (s *fakeScraper) FetchExternalIDs(ctx context.Context, sol int) (map[string]bool, error) {
	return s.upstream[sol], nil
}

var _ scrape.Scraper = (*fakeScraper)(nil)
var _ scrape.Comparer = (*fakeScraper)(nil)

func newTestHandler(t *testing.T) (*HTTP, *fakeStore, *scrape.Registry) {
	t.Helper()
	store := newFakeStore()
	engine := query.New(store)
	registry := scrape.NewRegistry()
	return NewHandler(engine, registry, store), store, registry
}

func decodeEnvelope(t *testing.T, body []byte) envelope {
	t.Helper()
	var e envelope
	require.NoError(t, json.Unmarshal(body, &e))
	return e
}

func TestListRoversReturnsEnvelope(t *testing.T) {
	t.Parallel()
	h, store, _ := newTestHandler(t)
	addRover(store, rovercore.Rover{ID: 1, Name: "Curiosity"})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/rovers", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec.Body.Bytes())
	require.NotNil(t, env.Meta)
	assert.Equal(t, 1, env.Meta.TotalCount)
}

func TestGetRoverUnknownReturns400(t *testing.T) {
	t.Parallel()
	h, _, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/rovers/Nope", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRoverPhotosRequiresSolOrEarthDate(t *testing.T) {
	t.Parallel()
	h, store, _ := newTestHandler(t)
	addRover(store, rovercore.Rover{ID: 1, Name: "Curiosity"})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/rovers/Curiosity/photos", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRoverPhotosReturnsProjectedListWithTotalCountHeader(t *testing.T) {
	t.Parallel()
	h, store, _ := newTestHandler(t)
	addRover(store, rovercore.Rover{ID: 1, Name: "Curiosity"})
	store.cameras[10] = rovercore.Camera{ID: 10, RoverID: 1, ShortName: "NAVCAM"}
	store.photos[100] = rovercore.Photo{ID: 100, RoverID: 1, CameraID: 10, Sol: 5, EarthDate: time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC)}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/rovers/Curiosity/photos?sol=5", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Total-Count"))
	env := decodeEnvelope(t, rec.Body.Bytes())
	require.NotNil(t, env.Pagination)
	assert.Equal(t, 1, env.Pagination.Page)
	assert.Equal(t, 25, env.Pagination.PerPage)
}

func TestRoverPhotosRejectsNonPositivePerPage(t *testing.T) {
	t.Parallel()
	h, store, _ := newTestHandler(t)
	addRover(store, rovercore.Rover{ID: 1, Name: "Curiosity"})

	for _, perPage := range []string{"0", "-1"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/rovers/Curiosity/photos?sol=5&per_page="+perPage, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "per_page=%s", perPage)
	}
}

func TestGetPhotoFullFieldSetIncludesRawData(t *testing.T) {
	t.Parallel()
	h, store, _ := newTestHandler(t)
	store.cameras[10] = rovercore.Camera{ID: 10, ShortName: "NAVCAM"}
	store.rovers[1] = rovercore.Rover{ID: 1, Name: "Curiosity"}
	store.photos[100] = rovercore.Photo{ID: 100, RoverID: 1, CameraID: 10, Raw: []byte(`{"id":1}`)}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/photos/100?field_set=full", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var env struct {
		Data resource `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	attrs, err := json.Marshal(env.Data.Attributes)
	require.NoError(t, err)
	assert.Contains(t, string(attrs), `"raw_data"`)
}

func TestGetPhotoUnknownFieldSetReturns400(t *testing.T) {
	t.Parallel()
	h, store, _ := newTestHandler(t)
	store.photos[100] = rovercore.Photo{ID: 100}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/photos/100?field_set=bogus", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestManifestReturnsEntries(t *testing.T) {
	t.Parallel()
	h, store, _ := newTestHandler(t)
	addRover(store, rovercore.Rover{ID: 1, Name: "Curiosity"})
	store.manifest = []datastore.ManifestEntry{
		{Sol: 1, EarthDate: time.Date(2012, 8, 7, 0, 0, 0, 0, time.UTC), Count: 4, Cameras: []string{"NAVCAM"}},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/manifests/Curiosity", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec.Body.Bytes())
	require.NotNil(t, env.Meta)
	assert.Equal(t, 1, env.Meta.TotalCount)
}

func TestSearchPhotosAppliesRoversFilter(t *testing.T) {
	t.Parallel()
	h, store, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/photos/search?rovers=curiosity,perseverance&page=2&per_page=10", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"curiosity", "perseverance"}, store.lastFilter.Rovers)
	assert.Equal(t, 2, store.lastPage.Page)
	assert.Equal(t, 10, store.lastPage.PerPage)
}

func TestScrapeSolUnknownRoverReturns400(t *testing.T) {
	t.Parallel()
	h, _, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/scraper/Nope?sol=5", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScrapeSolSuccessRecordsJob(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	engine := query.New(store)
	registry := scrape.NewRegistry()
	fs := &fakeScraper{name: "Curiosity", solResult: scrape.SolResult{RoverName: "Curiosity", Sol: 5, Inserted: 3, Success: true}}
	require.NoError(t, registry.Add(fs))
	h := NewHandler(engine, registry, store)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/scraper/Curiosity?sol=5", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, store.jobCount())
}

func TestScrapeBulkAcceptedAndProgressReflectsCompletion(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	engine := query.New(store)
	registry := scrape.NewRegistry()
	done := make(chan struct{})
	fs := &fakeScraper{
		name:       "Curiosity",
		bulkResult: scrape.BulkResult{RoverName: "Curiosity", StartSol: 1, EndSol: 3, SolsAttempted: 3, SolsSucceeded: 3, Inserted: 9},
		bulkCalled: done,
	}
	require.NoError(t, registry.Add(fs))
	h := NewHandler(engine, registry, store)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/scraper/Curiosity/bulk?startSol=1&endSol=3", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("bulk scrape goroutine never ran")
	}
	// allow the goroutine's progress.finish call to land after bulkCalled closes
	deadline := time.Now().Add(time.Second)
	var prog RoverProgress
	var ok bool
	for time.Now().Before(deadline) {
		prog, ok = h.progress.get("Curiosity")
		if ok && !prog.Running {
			break
		}
		time.Sleep(time.Millisecond)
	}
	require.True(t, ok)
	assert.False(t, prog.Running)
	assert.Equal(t, 9, prog.Inserted)
}

func TestScrapeProgressNotFoundBeforeAnyRun(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	engine := query.New(store)
	registry := scrape.NewRegistry()
	require.NoError(t, registry.Add(&fakeScraper{name: "Curiosity"}))
	h := NewHandler(engine, registry, store)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/scraper/Curiosity/progress", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCompareSolMatch(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	addRover(store, rovercore.Rover{ID: 1, Name: "Curiosity"})
	store.photos[1] = rovercore.Photo{ID: 1, RoverID: 1, Sol: 5, ExternalID: "a"}
	store.localIDs[1] = map[string]bool{"a": true}
	engine := query.New(store)
	registry := scrape.NewRegistry()
	fs := &fakeScraper{name: "Curiosity", upstream: map[int]map[string]bool{5: {"a": true}}}
	require.NoError(t, registry.Add(fs))
	h := NewHandler(engine, registry, store)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/compare/sol?rover=Curiosity&sol=5", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var env struct {
		Data scrape.CompareResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "match", env.Data.Status)
}

func TestCompareSolUnsupportedScraperReturns400(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	addRover(store, rovercore.Rover{ID: 1, Name: "Opportunity"})
	engine := query.New(store)
	registry := scrape.NewRegistry()
	require.NoError(t, registry.Add(scrape.NewPDSScraper("Opportunity", store, nil, nil)))
	h := NewHandler(engine, registry, store)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/compare/sol?rover=Opportunity&sol=5", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCompareRangeRejectsAboveCap(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	addRover(store, rovercore.Rover{ID: 1, Name: "Curiosity"})
	engine := query.New(store)
	registry := scrape.NewRegistry()
	require.NoError(t, registry.Add(&fakeScraper{name: "Curiosity", upstream: map[int]map[string]bool{}}))
	h := NewHandler(engine, registry, store)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/compare/range?rover=Curiosity&startSol=0&endSol=500", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

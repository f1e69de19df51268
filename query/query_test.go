package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marsphotos/rovercore"
	"github.com/marsphotos/rovercore/datastore"
)

type fakeQueryStore struct {
	rovers       map[int64]rovercore.Rover
	roversByName map[string]rovercore.Rover
	cameras      map[int64]rovercore.Camera
	photos       map[int64]rovercore.Photo
	manifest     []datastore.ManifestEntry
	lastFilter   datastore.Filter
	lastSort     datastore.Sort
	lastPage     datastore.Page
}

func newFakeQueryStore() *fakeQueryStore {
	return &fakeQueryStore{
		rovers:       make(map[int64]rovercore.Rover),
		roversByName: make(map[string]rovercore.Rover),
		cameras:      make(map[int64]rovercore.Camera),
		photos:       make(map[int64]rovercore.Photo),
	}
}

func (f *fakeQueryStore) ExistingExternalIDs(ctx context.Context, roverID int64, ids []string) (map[string]bool, error) {
	return nil, nil
}
func (f *fakeQueryStore) AllExternalIDs(ctx context.Context, roverID int64) (map[string]bool, error) {
	return nil, nil
}
func (f *fakeQueryStore) ExternalIDsForSol(ctx context.Context, roverID int64, sol int) (map[string]bool, error) {
	return nil, nil
}
func (f *fakeQueryStore) AddPhotos(ctx context.Context, batch []rovercore.Photo) (int, []string, error) {
	return 0, nil, nil
}
func (f *fakeQueryStore) QueryPhotos(ctx context.Context, filter datastore.Filter, sort datastore.Sort, page datastore.Page) (datastore.Result, error) {
	f.lastFilter, f.lastSort, f.lastPage = filter, sort, page
	var out []rovercore.Photo
	for _, p := range f.photos {
		out = append(out, p)
	}
	return datastore.Result{Photos: out, TotalCount: len(out)}, nil
}
func (f *fakeQueryStore) LatestPhotos(ctx context.Context, roverID int64) (datastore.Result, error) {
	return datastore.Result{}, nil
}
func (f *fakeQueryStore) Manifest(ctx context.Context, roverID int64) ([]datastore.ManifestEntry, error) {
	return f.manifest, nil
}
func (f *fakeQueryStore) MaxSol(ctx context.Context, roverID int64) (int, bool, error) {
	return 0, false, nil
}
func (f *fakeQueryStore) GetByID(ctx context.Context, id int64) (rovercore.Photo, error) {
	p, ok := f.photos[id]
	if !ok {
		return rovercore.Photo{}, rovercore.ErrNotFound
	}
	return p, nil
}
func (f *fakeQueryStore) FindOrCreateCamera(ctx context.Context, roverID int64, shortName string) (rovercore.Camera, bool, error) {
	return rovercore.Camera{}, false, nil
}
func (f *fakeQueryStore) GetCameraByID(ctx context.Context, id int64) (rovercore.Camera, error) {
	c, ok := f.cameras[id]
	if !ok {
		return rovercore.Camera{}, rovercore.ErrNotFound
	}
	return c, nil
}
func (f *fakeQueryStore) GetRoverByName(ctx context.Context, name string) (rovercore.Rover, error) {
	r, ok := f.roversByName[name]
	if !ok {
		return rovercore.Rover{}, rovercore.ErrUnknownRover
	}
	return r, nil
}
func (f *fakeQueryStore) GetRoverByID(ctx context.Context, id int64) (rovercore.Rover, error) {
	r, ok := f.rovers[id]
	if !ok {
		return rovercore.Rover{}, rovercore.ErrUnknownRover
	}
	return r, nil
}
func (f *fakeQueryStore) ListRovers(ctx context.Context) ([]rovercore.Rover, error) {
	var out []rovercore.Rover
	for _, r := range f.rovers {
		out = append(out, r)
	}
	return out, nil
}

func TestSearchPhotosDefaultsSortAndPage(t *testing.T) {
	t.Parallel()
	store := newFakeQueryStore()
	e := New(store)

	_, err := e.SearchPhotos(context.Background(), datastore.Filter{}, "", datastore.Page{})
	require.NoError(t, err)
	assert.Equal(t, datastore.SortIDAsc, store.lastSort)
	assert.Equal(t, 1, store.lastPage.Page)
	assert.Equal(t, 25, store.lastPage.PerPage)
}

func TestSearchPhotosRejectsUnknownSort(t *testing.T) {
	t.Parallel()
	store := newFakeQueryStore()
	e := New(store)

	_, err := e.SearchPhotos(context.Background(), datastore.Filter{}, datastore.Sort("bogus"), datastore.Page{})
	assert.Error(t, err)
}

func TestSearchPhotosCapsPerPage(t *testing.T) {
	t.Parallel()
	store := newFakeQueryStore()
	e := New(store)

	_, err := e.SearchPhotos(context.Background(), datastore.Filter{}, datastore.SortSolAsc, datastore.Page{Page: 1, PerPage: 5000})
	require.NoError(t, err)
	assert.Equal(t, maxPerPage, store.lastPage.PerPage)
}

func TestResolverProjectBasic(t *testing.T) {
	t.Parallel()
	store := newFakeQueryStore()
	store.cameras[10] = rovercore.Camera{ID: 10, ShortName: "NAVCAM"}
	store.rovers[1] = rovercore.Rover{ID: 1, Name: "Curiosity"}
	p := rovercore.Photo{
		ID: 100, CameraID: 10, RoverID: 1, Sol: 5,
		EarthDate: time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC),
		Images:    rovercore.ImageURLs{Full: "https://example.com/x.jpg"},
	}

	r := NewResolver(store)
	proj, err := r.Project(context.Background(), p, FieldSetBasic)
	require.NoError(t, err)
	assert.Equal(t, "NAVCAM", proj.CameraShortName)
	assert.Equal(t, "Curiosity", proj.RoverName)
	assert.Equal(t, "2024-01-06", proj.EarthDate)
	assert.Empty(t, proj.NASAID, "basic field-set should not carry extended fields")
}

func TestResolverProjectExtendedIncludesDimensions(t *testing.T) {
	t.Parallel()
	store := newFakeQueryStore()
	store.cameras[10] = rovercore.Camera{ID: 10, ShortName: "NAVCAM"}
	store.rovers[1] = rovercore.Rover{ID: 1, Name: "Curiosity"}
	w, h := 1024, 768
	p := rovercore.Photo{
		ID: 100, CameraID: 10, RoverID: 1, ExternalID: "nasa-1",
		Width: &w, Height: &h,
	}

	r := NewResolver(store)
	proj, err := r.Project(context.Background(), p, FieldSetExtended)
	require.NoError(t, err)
	assert.Equal(t, "nasa-1", proj.NASAID)
	require.NotNil(t, proj.Dimensions)
	assert.InDelta(t, float64(1024)/float64(768), proj.Dimensions.AspectRatio, 0.0001)
	assert.Nil(t, proj.RawData)
}

func TestResolverProjectFullIncludesRawData(t *testing.T) {
	t.Parallel()
	store := newFakeQueryStore()
	store.cameras[10] = rovercore.Camera{ID: 10, ShortName: "NAVCAM"}
	store.rovers[1] = rovercore.Rover{ID: 1, Name: "Curiosity"}
	p := rovercore.Photo{ID: 100, CameraID: 10, RoverID: 1, Raw: []byte(`{"id":1}`)}

	r := NewResolver(store)
	proj, err := r.Project(context.Background(), p, FieldSetFull)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":1}`, string(proj.RawData))
}

func TestResolverCachesLookupsAcrossProjectAll(t *testing.T) {
	t.Parallel()
	store := newFakeQueryStore()
	store.cameras[10] = rovercore.Camera{ID: 10, ShortName: "NAVCAM"}
	store.rovers[1] = rovercore.Rover{ID: 1, Name: "Curiosity"}
	photos := []rovercore.Photo{
		{ID: 1, CameraID: 10, RoverID: 1},
		{ID: 2, CameraID: 10, RoverID: 1},
	}

	r := NewResolver(store)
	projs, err := r.ProjectAll(context.Background(), photos, FieldSetBasic)
	require.NoError(t, err)
	assert.Len(t, projs, 2)
	assert.Len(t, r.cameras, 1)
	assert.Len(t, r.rovers, 1)
}

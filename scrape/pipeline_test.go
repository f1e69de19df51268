package scrape

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marsphotos/rovercore"
)

// fakeStore is a minimal in-memory Store used by pipeline and scraper tests.
type fakeStore struct {
	rover   rovercore.Rover
	cameras map[string]rovercore.Camera
	photos  map[string]rovercore.Photo
	nextCam int64

	failCamera   string // camera short name that always fails resolution
	failAddOnce  bool   // if true, the next AddPhotos call returns an error
	maxSol       int
	maxSolAny    bool
}

func newFakeStore(rover rovercore.Rover) *fakeStore {
	return &fakeStore{
		rover:   rover,
		cameras: make(map[string]rovercore.Camera),
		photos:  make(map[string]rovercore.Photo),
	}
}

func (f *fakeStore) GetRoverByName(ctx context.Context, name string) (rovercore.Rover, error) {
	if name != f.rover.Name {
		return rovercore.Rover{}, rovercore.ErrUnknownRover
	}
	return f.rover, nil
}

func (f *fakeStore) FindOrCreateCamera(ctx context.Context, roverID int64, shortName string) (rovercore.Camera, bool, error) {
	if shortName == f.failCamera {
		return rovercore.Camera{}, false, rovercore.ErrUnknownCamera
	}
	if c, ok := f.cameras[shortName]; ok {
		return c, false, nil
	}
	f.nextCam++
	c := rovercore.Camera{ID: f.nextCam, RoverID: roverID, ShortName: shortName, FullName: shortName}
	f.cameras[shortName] = c
	return c, true, nil
}

func (f *fakeStore) ExistingExternalIDs(ctx context.Context, roverID int64, ids []string) (map[string]bool, error) {
	out := make(map[string]bool)
	for _, id := range ids {
		if _, ok := f.photos[id]; ok {
			out[id] = true
		}
	}
	return out, nil
}

func (f *fakeStore) AllExternalIDs(ctx context.Context, roverID int64) (map[string]bool, error) {
	out := make(map[string]bool, len(f.photos))
	for id := range f.photos {
		out[id] = true
	}
	return out, nil
}

func (f *fakeStore) ExternalIDsForSol(ctx context.Context, roverID int64, sol int) (map[string]bool, error) {
	out := make(map[string]bool)
	for id, p := range f.photos {
		if p.Sol == sol {
			out[id] = true
		}
	}
	return out, nil
}

func (f *fakeStore) AddPhotos(ctx context.Context, batch []rovercore.Photo) (int, []string, error) {
	if f.failAddOnce {
		f.failAddOnce = false
		return 0, nil, assertErr
	}
	var inserted int
	var skipped []string
	for _, p := range batch {
		if _, ok := f.photos[p.ExternalID]; ok {
			skipped = append(skipped, p.ExternalID)
			continue
		}
		f.photos[p.ExternalID] = p
		inserted++
	}
	return inserted, skipped, nil
}

func (f *fakeStore) MaxSol(ctx context.Context, roverID int64) (int, bool, error) {
	return f.maxSol, f.maxSolAny, nil
}

var assertErr = errUnexpected{}

type errUnexpected struct{}

func (errUnexpected) Error() string { return "fake store: forced AddPhotos failure" }

func candidate(id string, sol int) Candidate {
	t := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, sol)
	return Candidate{
		ExternalID:  id,
		Sol:         sol,
		EarthDate:   t,
		TakenUTC:    t,
		CameraShort: "NAVCAM",
	}
}

func TestRunPipelineInsertsNewCandidates(t *testing.T) {
	t.Parallel()
	store := newFakeStore(rovercore.Rover{ID: 1, Name: "Curiosity"})
	ch := make(chan Candidate, 3)
	ch <- candidate("a", 1)
	ch <- candidate("b", 2)
	ch <- candidate("c", 3)
	close(ch)

	inserted, skipped, err := runPipeline(context.Background(), store, store.rover, ch, map[string]bool{})
	require.NoError(t, err)
	assert.Equal(t, 3, inserted)
	assert.Equal(t, 0, skipped)
	assert.Len(t, store.photos, 3)
}

func TestRunPipelineSkipsPreloadedSkipSet(t *testing.T) {
	t.Parallel()
	store := newFakeStore(rovercore.Rover{ID: 1, Name: "Curiosity"})
	ch := make(chan Candidate, 2)
	ch <- candidate("a", 1)
	ch <- candidate("b", 2)
	close(ch)

	inserted, skipped, err := runPipeline(context.Background(), store, store.rover, ch, map[string]bool{"a": true})
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)
	assert.Equal(t, 1, skipped)
}

func TestRunPipelineSkipsIntraBatchDuplicates(t *testing.T) {
	t.Parallel()
	store := newFakeStore(rovercore.Rover{ID: 1, Name: "Curiosity"})
	ch := make(chan Candidate, 2)
	ch <- candidate("a", 1)
	ch <- candidate("a", 1)
	close(ch)

	inserted, skipped, err := runPipeline(context.Background(), store, store.rover, ch, map[string]bool{})
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)
	assert.Equal(t, 1, skipped)
}

func TestRunPipelineSkipsRowsWithUnresolvableCamera(t *testing.T) {
	t.Parallel()
	store := newFakeStore(rovercore.Rover{ID: 1, Name: "Curiosity"})
	store.failCamera = "BADCAM"
	ch := make(chan Candidate, 2)
	ch <- candidate("a", 1)
	bad := candidate("b", 2)
	bad.CameraShort = "BADCAM"
	ch <- bad
	close(ch)

	inserted, skipped, err := runPipeline(context.Background(), store, store.rover, ch, map[string]bool{})
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)
	assert.Equal(t, 1, skipped)
}

// TestRunPipelineCountsRepeatedSkipOnce covers the re-run case: a feed that
// repeats an external id already stored (A, B, A, both preloaded into the
// skip set) must count the skip once per distinct id, not once per
// occurrence.
func TestRunPipelineCountsRepeatedSkipOnce(t *testing.T) {
	t.Parallel()
	store := newFakeStore(rovercore.Rover{ID: 1, Name: "Curiosity"})
	ch := make(chan Candidate, 3)
	ch <- candidate("a", 1)
	ch <- candidate("b", 2)
	ch <- candidate("a", 1)
	close(ch)

	inserted, skipped, err := runPipeline(context.Background(), store, store.rover, ch, map[string]bool{"a": true, "b": true})
	require.NoError(t, err)
	assert.Equal(t, 0, inserted)
	assert.Equal(t, 2, skipped)
}

func TestLoadSkipSetReturnsEmptyMapForNoCandidates(t *testing.T) {
	t.Parallel()
	store := newFakeStore(rovercore.Rover{ID: 1, Name: "Curiosity"})
	set, err := loadSkipSet(context.Background(), store, 1, nil)
	require.NoError(t, err)
	assert.Empty(t, set)
}

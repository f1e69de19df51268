package scrape

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marsphotos/rovercore"
)

type fakeComparer struct {
	rover   string
	upstream map[int]map[string]bool
}

func (f *fakeComparer) RoverName() string { return f.rover }
func (f *fakeComparer) ScrapeSol(ctx context.Context, sol int) (SolResult, error) {
	return SolResult{}, nil
}
func (f *fakeComparer) BulkScrape(ctx context.Context, start, end int) (BulkResult, error) {
	return BulkResult{}, nil
}
func (f *fakeComparer) FetchExternalIDs(ctx context.Context, sol int) (map[string]bool, error) {
	return f.upstream[sol], nil
}

func TestCompareSolMatch(t *testing.T) {
	t.Parallel()
	store := newFakeStore(rovercore.Rover{ID: 1, Name: "Curiosity"})
	store.photos["a"] = rovercore.Photo{ExternalID: "a", Sol: 5}
	store.photos["b"] = rovercore.Photo{ExternalID: "b", Sol: 5}
	comparer := &fakeComparer{rover: "Curiosity", upstream: map[int]map[string]bool{
		5: {"a": true, "b": true},
	}}

	res, err := CompareSol(context.Background(), store, comparer, store.rover, 5)
	require.NoError(t, err)
	assert.Equal(t, "match", res.Status)
	assert.Equal(t, float64(100), res.MatchPercent)
	assert.Empty(t, res.Missing)
	assert.Empty(t, res.Extra)
}

func TestCompareSolMissing(t *testing.T) {
	t.Parallel()
	store := newFakeStore(rovercore.Rover{ID: 1, Name: "Curiosity"})
	store.photos["a"] = rovercore.Photo{ExternalID: "a", Sol: 5}
	comparer := &fakeComparer{rover: "Curiosity", upstream: map[int]map[string]bool{
		5: {"a": true, "b": true},
	}}

	res, err := CompareSol(context.Background(), store, comparer, store.rover, 5)
	require.NoError(t, err)
	assert.Equal(t, "missing", res.Status)
	assert.Equal(t, []string{"b"}, res.Missing)
	assert.Equal(t, float64(50), res.MatchPercent)
}

func TestCompareSolExtra(t *testing.T) {
	t.Parallel()
	store := newFakeStore(rovercore.Rover{ID: 1, Name: "Curiosity"})
	store.photos["a"] = rovercore.Photo{ExternalID: "a", Sol: 5}
	store.photos["b"] = rovercore.Photo{ExternalID: "b", Sol: 5}
	comparer := &fakeComparer{rover: "Curiosity", upstream: map[int]map[string]bool{
		5: {"a": true},
	}}

	res, err := CompareSol(context.Background(), store, comparer, store.rover, 5)
	require.NoError(t, err)
	assert.Equal(t, "extra", res.Status)
	assert.Equal(t, []string{"b"}, res.Extra)
}

func TestCompareSolDivergent(t *testing.T) {
	t.Parallel()
	store := newFakeStore(rovercore.Rover{ID: 1, Name: "Curiosity"})
	store.photos["a"] = rovercore.Photo{ExternalID: "a", Sol: 5}
	store.photos["c"] = rovercore.Photo{ExternalID: "c", Sol: 5}
	comparer := &fakeComparer{rover: "Curiosity", upstream: map[int]map[string]bool{
		5: {"a": true, "b": true},
	}}

	res, err := CompareSol(context.Background(), store, comparer, store.rover, 5)
	require.NoError(t, err)
	assert.Equal(t, "divergent", res.Status)
	assert.Equal(t, []string{"b"}, res.Missing)
	assert.Equal(t, []string{"c"}, res.Extra)
}

func TestCompareRangeRejectsAboveCap(t *testing.T) {
	t.Parallel()
	store := newFakeStore(rovercore.Rover{ID: 1, Name: "Curiosity"})
	comparer := &fakeComparer{rover: "Curiosity", upstream: map[int]map[string]bool{}}

	_, err := CompareRange(context.Background(), store, comparer, store.rover, 1, 100)
	assert.Error(t, err)
}

func TestCompareRangeWalksEverySol(t *testing.T) {
	t.Parallel()
	store := newFakeStore(rovercore.Rover{ID: 1, Name: "Curiosity"})
	comparer := &fakeComparer{rover: "Curiosity", upstream: map[int]map[string]bool{
		1: {"a": true}, 2: {"b": true}, 3: {"c": true},
	}}

	res, err := CompareRange(context.Background(), store, comparer, store.rover, 1, 3)
	require.NoError(t, err)
	assert.Len(t, res.PerSol, 3)
}

func TestComparePhotoStatuses(t *testing.T) {
	t.Parallel()
	store := newFakeStore(rovercore.Rover{ID: 1, Name: "Curiosity"})
	store.photos["a"] = rovercore.Photo{ExternalID: "a", Sol: 5}
	comparer := &fakeComparer{rover: "Curiosity", upstream: map[int]map[string]bool{
		5: {"a": true, "b": true},
	}}

	match, err := ComparePhoto(context.Background(), store, comparer, store.rover, "a", 5)
	require.NoError(t, err)
	assert.Equal(t, "match", match.Status)

	missing, err := ComparePhoto(context.Background(), store, comparer, store.rover, "b", 5)
	require.NoError(t, err)
	assert.Equal(t, "missing", missing.Status)

	notFound, err := ComparePhoto(context.Background(), store, comparer, store.rover, "z", 5)
	require.NoError(t, err)
	assert.Equal(t, "not_found", notFound.Status)
}

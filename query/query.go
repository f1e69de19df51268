// Package query is the read side of rovercore: it wraps datastore.Store with
// the filter/sort/paginate photo search contract, latest_photos, manifest,
// and the field-set projections the HTTP layer serializes.
package query

import (
	"context"
	"fmt"

	"github.com/marsphotos/rovercore"
	"github.com/marsphotos/rovercore/datastore"
)

// Store is the subset of datastore.Store the query engine needs.
type Store interface {
	datastore.PhotoStore
	datastore.CameraStore
	datastore.RoverStore
}

// Engine answers photo search, latest-photos, and manifest queries against
// Store, adding only sort defaulting/validation and page normalization to
// what datastore.Store implements — it exists as the stable read-side API the HTTP layer and
// compare diagnostics depend on, independent of the storage backend.
type Engine struct {
	store Store
}

// New returns an Engine backed by store.
func New(store Store) *Engine {
	return &Engine{store: store}
}

// SearchPhotos runs the filter/sort/paginate contract.
func (e *Engine) SearchPhotos(ctx context.Context, filter datastore.Filter, sort datastore.Sort, page datastore.Page) (datastore.Result, error) {
	if sort == "" {
		sort = datastore.SortIDAsc
	}
	if !datastore.ValidSorts[sort] {
		return datastore.Result{}, fmt.Errorf("%w: sort %q", rovercore.ErrInvalidQuery, sort)
	}
	return e.store.QueryPhotos(ctx, filter, sort, normalizePage(page))
}

// LatestPhotos returns the photos at the rover's current max(sol).
func (e *Engine) LatestPhotos(ctx context.Context, roverID int64) (datastore.Result, error) {
	return e.store.LatestPhotos(ctx, roverID)
}

// Manifest returns one entry per (sol, earth_date) the rover has
// photographed, ascending by sol.
func (e *Engine) Manifest(ctx context.Context, roverID int64) ([]datastore.ManifestEntry, error) {
	return e.store.Manifest(ctx, roverID)
}

// GetRover resolves a rover by case-insensitive name.
func (e *Engine) GetRover(ctx context.Context, name string) (rovercore.Rover, error) {
	return e.store.GetRoverByName(ctx, name)
}

// ListRovers returns every rover.
func (e *Engine) ListRovers(ctx context.Context) ([]rovercore.Rover, error) {
	return e.store.ListRovers(ctx)
}

// GetPhoto fetches a single photo by id.
func (e *Engine) GetPhoto(ctx context.Context, id int64) (rovercore.Photo, error) {
	return e.store.GetByID(ctx, id)
}

// NewResolver returns a field-set projection Resolver backed by this
// engine's Store.
func (e *Engine) NewResolver() *Resolver {
	return NewResolver(e.store)
}

// Store exposes the engine's backing repository. Its method set is a
// superset of scrape.Store's, so callers that only need the narrower
// ingestion-side capability (the compare diagnostics, in particular) can
// use the returned value directly as one.
func (e *Engine) Store() Store {
	return e.store
}

const (
	defaultPerPage = 25
	maxPerPage     = 1000
)

// normalizePage applies the default/cap per_page and floors page at 1.
func normalizePage(p datastore.Page) datastore.Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PerPage <= 0 {
		p.PerPage = defaultPerPage
	}
	if p.PerPage > maxPerPage {
		p.PerPage = maxPerPage
	}
	return p
}

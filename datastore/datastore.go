// Package datastore declares the repository contract the rest of rovercore
// depends on. It splits interfaces (this package) from implementation
// (datastore/postgres): nothing in this package imports a database driver.
package datastore

import (
	"context"
	"time"

	"github.com/marsphotos/rovercore"
)

// Sort is one of the fixed allow-listed sort orders for photo search.
type Sort string

const (
	SortIDAsc        Sort = "id"
	SortIDDesc       Sort = "-id"
	SortSolAsc       Sort = "sol"
	SortSolDesc      Sort = "-sol"
	SortEarthDateAsc Sort = "earth_date"
	SortEarthDateDsc Sort = "-earth_date"
)

// ValidSorts is the fixed allow-list; any other value is a caller error.
var ValidSorts = map[Sort]bool{
	SortIDAsc: true, SortIDDesc: true,
	SortSolAsc: true, SortSolDesc: true,
	SortEarthDateAsc: true, SortEarthDateDsc: true,
}

// Filter is the optional predicate set for photo search. A nil pointer, an
// empty string or an empty slice means "not specified"; the numeric and date
// predicates are pointers so that sol=0 (landing day) is a valid,
// distinguishable query.
type Filter struct {
	RoverID   *int64
	RoverName string

	Sol       *int
	EarthDate *time.Time

	Camera string // single rover-scoped camera filter, case-insensitive

	SolMin, SolMax       *int
	DateMin, DateMax     *time.Time

	NASAID string // case-insensitive substring match on external_id

	Site  *int
	Drive *int

	SampleType string

	// Rovers/Cameras are used by the cross-rover search endpoint only.
	Rovers  []string
	Cameras []string
}

// Page is offset-based pagination input/output.
type Page struct {
	Page    int // 1-based
	PerPage int
}

// Result is a page of photos plus the total count across all pages.
type Result struct {
	Photos     []rovercore.Photo
	TotalCount int
}

// ManifestEntry is one (sol, earth_date) summary row of a rover's manifest.
type ManifestEntry struct {
	Sol       int
	EarthDate time.Time
	Count     int
	Cameras   []string
}

// PhotoStore is the repository contract for photos.
type PhotoStore interface {
	// ExistingExternalIDs returns the subset of ids already present for the
	// given rover.
	ExistingExternalIDs(ctx context.Context, roverID int64, ids []string) (map[string]bool, error)

	// AllExternalIDs returns every external_id stored for the given rover,
	// for scrapers that pre-load a whole-rover skip-set up front (the PDS
	// volume walker, where candidate ids aren't known before the stream is
	// read) rather than checking a known batch of candidate ids.
	AllExternalIDs(ctx context.Context, roverID int64) (map[string]bool, error)

	// ExternalIDsForSol returns every external_id stored for the given
	// rover at sol, backing the compare diagnostics' local side of the
	// upstream-vs-local set comparison.
	ExternalIDsForSol(ctx context.Context, roverID int64, sol int) (map[string]bool, error)

	// AddPhotos inserts a batch in a single transaction. A unique-constraint
	// violation on external_id drops that row only; the rest of the batch
	// still commits. Returns how many rows were actually inserted and which
	// external_ids were skipped as duplicates.
	AddPhotos(ctx context.Context, batch []rovercore.Photo) (inserted int, skipped []string, err error)

	// QueryPhotos answers the filter/sort/paginate search contract.
	QueryPhotos(ctx context.Context, filter Filter, sort Sort, page Page) (Result, error)

	// LatestPhotos returns the photos at max(sol) for the rover.
	LatestPhotos(ctx context.Context, roverID int64) (Result, error)

	// Manifest returns one entry per (sol, earth_date) the rover has
	// photographed, ascending by sol.
	Manifest(ctx context.Context, roverID int64) ([]ManifestEntry, error)

	// MaxSol returns the highest sol stored for the rover, and whether any
	// photo exists at all (used for incremental scraping).
	MaxSol(ctx context.Context, roverID int64) (sol int, any bool, err error)

	// GetByID fetches a single photo.
	GetByID(ctx context.Context, id int64) (rovercore.Photo, error)
}

// CameraStore is the repository contract for cameras.
type CameraStore interface {
	// FindOrCreateCamera returns the existing (roverID, shortName) camera or
	// creates one with shortName as a full-name placeholder, emitting an
	// "unknown camera" warning on creation.
	FindOrCreateCamera(ctx context.Context, roverID int64, shortName string) (camera rovercore.Camera, created bool, err error)

	// GetCameraByID looks up a single camera, for the query engine's
	// field-set projections (camera_short_name is not stored on Photo
	// itself).
	GetCameraByID(ctx context.Context, id int64) (rovercore.Camera, error)
}

// RoverStore is the repository contract for rovers.
type RoverStore interface {
	GetRoverByName(ctx context.Context, name string) (rovercore.Rover, error)
	GetRoverByID(ctx context.Context, id int64) (rovercore.Rover, error)
	ListRovers(ctx context.Context) ([]rovercore.Rover, error)
}

// JobStore is the repository contract for scraper job history.
type JobStore interface {
	// RecordJob commits the job and its rover details atomically.
	RecordJob(ctx context.Context, job *rovercore.ScraperJob) error
}

// Store aggregates every repository capability the rest of rovercore needs.
type Store interface {
	PhotoStore
	CameraStore
	RoverStore
	JobStore
}

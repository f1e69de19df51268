// Package scrape implements the per-rover scraper framework: a common
// interface, a keyed registry, the four concrete scrapers, the shared
// bulk-ingest pipeline, and the NASA-compare diagnostics.
package scrape

import (
	"context"
	"encoding/json"
	"time"

	"github.com/marsphotos/rovercore"
)

// SolResult is the outcome of scraping a single sol or PDS volume.
type SolResult struct {
	RoverName string `json:"rover_name"`
	Sol       int    `json:"sol"`
	Inserted  int    `json:"inserted"`
	Skipped   int    `json:"skipped"`
	Success   bool   `json:"success"`

	// Err is not itself serializable (most error values carry no exported
	// fields); MarshalJSON below surfaces its message as a string instead.
	Err error `json:"-"`
}

// solResultJSON mirrors SolResult for serialization, with Err flattened to
// its message.
type solResultJSON struct {
	RoverName string `json:"rover_name"`
	Sol       int    `json:"sol"`
	Inserted  int    `json:"inserted"`
	Skipped   int    `json:"skipped"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

func (r SolResult) MarshalJSON() ([]byte, error) {
	out := solResultJSON{
		RoverName: r.RoverName, Sol: r.Sol,
		Inserted: r.Inserted, Skipped: r.Skipped, Success: r.Success,
	}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	return json.Marshal(out)
}

// BulkResult aggregates the outcome of a bulk_scrape call across a sol
// range (or, for Opportunity/Spirit, across a volume set).
type BulkResult struct {
	RoverName     string        `json:"rover_name"`
	StartSol      int           `json:"start_sol"`
	EndSol        int           `json:"end_sol"`
	SolsAttempted int           `json:"sols_attempted"`
	SolsSucceeded int           `json:"sols_succeeded"`
	Inserted      int           `json:"inserted"`
	Skipped       int           `json:"skipped"`
	FailedSols    []int         `json:"failed_sols,omitempty"`
	PerSol        []SolResult   `json:"per_sol,omitempty"`
	Duration      time.Duration `json:"duration"`
}

// Scraper is the capability set every rover-specific scraper implements:
// a rover name, a single-sol scrape, and a bulk range scrape.
type Scraper interface {
	// RoverName returns the canonical rover name this scraper ingests for.
	RoverName() string
	// ScrapeSol ingests a single sol (or, for the PDS-backed scrapers, the
	// single volume corresponding to that unit) and returns its outcome.
	ScrapeSol(ctx context.Context, sol int) (SolResult, error)
	// BulkScrape ingests every sol in [start, end]. end == 0 means "use the
	// scraper's own notion of latest available" where supported.
	BulkScrape(ctx context.Context, start, end int) (BulkResult, error)
}

// Store is the subset of datastore.Store the pipeline and scrapers need,
// narrowed so tests can supply a minimal fake instead of a full
// datastore.Store implementation.
type Store interface {
	GetRoverByName(ctx context.Context, name string) (rovercore.Rover, error)
	FindOrCreateCamera(ctx context.Context, roverID int64, shortName string) (rovercore.Camera, bool, error)
	ExistingExternalIDs(ctx context.Context, roverID int64, ids []string) (map[string]bool, error)
	AllExternalIDs(ctx context.Context, roverID int64) (map[string]bool, error)
	ExternalIDsForSol(ctx context.Context, roverID int64, sol int) (map[string]bool, error)
	AddPhotos(ctx context.Context, batch []rovercore.Photo) (int, []string, error)
	MaxSol(ctx context.Context, roverID int64) (int, bool, error)
}

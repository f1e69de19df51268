// Package api is the HTTP surface of rovercore: read-side photo/rover/
// manifest/search endpoints, an admin scraper-control plane, and the
// NASA-compare diagnostics, all serialized through a common envelope.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/quay/zlog"

	"github.com/marsphotos/rovercore/datastore"
	"github.com/marsphotos/rovercore/query"
	"github.com/marsphotos/rovercore/scrape"
)

var _ http.Handler = (*HTTP)(nil)

// HTTP is the full routed API surface. It holds no storage handle directly:
// everything it needs is reached through engine (read side), registry
// (scraper control), and jobs (job history), keeping the handler layer
// storage-agnostic.
type HTTP struct {
	*http.ServeMux
	engine   *query.Engine
	registry *scrape.Registry
	jobs     datastore.JobStore
	progress *progressTracker
}

// NewHandler builds the routed API surface over engine and registry. jobs
// may be nil if job history is not being recorded.
func NewHandler(engine *query.Engine, registry *scrape.Registry, jobs datastore.JobStore) *HTTP {
	h := &HTTP{
		engine:   engine,
		registry: registry,
		jobs:     jobs,
		progress: newProgressTracker(),
	}

	m := http.NewServeMux()

	m.HandleFunc("GET /api/v1/rovers", h.ListRovers)
	m.HandleFunc("GET /api/v1/rovers/{name}", h.GetRover)
	m.HandleFunc("GET /api/v1/rovers/{name}/photos", h.RoverPhotos)
	m.HandleFunc("GET /api/v1/rovers/{name}/latest_photos", h.LatestPhotos)
	m.HandleFunc("GET /api/v1/photos/{id}", h.GetPhoto)
	m.HandleFunc("GET /api/v1/manifests/{name}", h.Manifest)
	m.HandleFunc("GET /api/v1/photos/search", h.SearchPhotos)

	m.HandleFunc("POST /api/v1/scraper/opportunity/volume/{volumeName}", h.ScrapeVolume)
	m.HandleFunc("POST /api/v1/scraper/opportunity/all", h.ScrapeAllVolumes)
	m.HandleFunc("POST /api/v1/scraper/{rover}/bulk", h.ScrapeBulk)
	m.HandleFunc("POST /api/v1/scraper/{rover}", h.ScrapeSol)
	m.HandleFunc("GET /api/v1/scraper/{rover}/progress", h.ScrapeProgress)

	m.HandleFunc("GET /api/v1/compare/sol", h.CompareSol)
	m.HandleFunc("GET /api/v1/compare/photo", h.ComparePhoto)
	m.HandleFunc("GET /api/v1/compare/range", h.CompareRange)

	h.ServeMux = m
	return h
}

// writeJSON encodes v as the response body. Like the rest of rovercore's
// HTTP layer, an encode failure after headers are already written can only
// be logged, not recovered from.
func writeJSON(ctx context.Context, w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zlog.Warn(ctx).Err(err).Msg("failed to encode response")
	}
}

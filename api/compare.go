package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/marsphotos/rovercore"
	"github.com/marsphotos/rovercore/pkg/apierr"
	"github.com/marsphotos/rovercore/scrape"
)

// CompareSol handles GET /api/v1/compare/sol?rover=&sol=.
func (h *HTTP) CompareSol(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	roverName := r.URL.Query().Get("rover")
	sol, err := strconv.Atoi(r.URL.Query().Get("sol"))
	if err != nil {
		apierr.BadRequest(w, "invalid-query", "sol query parameter is required and must be numeric")
		return
	}

	rv, err := h.engine.GetRover(ctx, roverName)
	if err != nil {
		writeRoverLookupError(w, roverName, err)
		return
	}
	comparer, ok := h.comparerFor(w, rv)
	if !ok {
		return
	}

	res, err := scrape.CompareSol(ctx, h.engine.Store(), comparer, rv, sol)
	if err != nil {
		apierr.Internal(w, "compare-error", err.Error())
		return
	}
	writeJSON(ctx, w, envelope{Data: res})
}

// CompareRange handles GET /api/v1/compare/range?rover=&startSol=&endSol=.
func (h *HTTP) CompareRange(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	roverName := q.Get("rover")
	start, err := strconv.Atoi(q.Get("startSol"))
	if err != nil {
		apierr.BadRequest(w, "invalid-query", "startSol query parameter is required and must be numeric")
		return
	}
	end, err := strconv.Atoi(q.Get("endSol"))
	if err != nil {
		apierr.BadRequest(w, "invalid-query", "endSol query parameter is required and must be numeric")
		return
	}

	rv, err := h.engine.GetRover(ctx, roverName)
	if err != nil {
		writeRoverLookupError(w, roverName, err)
		return
	}
	comparer, ok := h.comparerFor(w, rv)
	if !ok {
		return
	}

	res, err := scrape.CompareRange(ctx, h.engine.Store(), comparer, rv, start, end)
	if err != nil {
		if errors.Is(err, rovercore.ErrInvalidQuery) {
			apierr.BadRequest(w, "invalid-query", err.Error())
			return
		}
		apierr.Internal(w, "compare-error", err.Error())
		return
	}
	writeJSON(ctx, w, envelope{Data: res})
}

// ComparePhoto handles GET /api/v1/compare/photo?rover=&nasa_id=&sol=.
func (h *HTTP) ComparePhoto(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	roverName := q.Get("rover")
	nasaID := q.Get("nasa_id")
	if nasaID == "" {
		apierr.BadRequest(w, "invalid-query", "nasa_id query parameter is required")
		return
	}
	sol, err := strconv.Atoi(q.Get("sol"))
	if err != nil {
		apierr.BadRequest(w, "invalid-query", "sol query parameter is required and must be numeric")
		return
	}

	rv, err := h.engine.GetRover(ctx, roverName)
	if err != nil {
		writeRoverLookupError(w, roverName, err)
		return
	}
	comparer, ok := h.comparerFor(w, rv)
	if !ok {
		return
	}

	res, err := scrape.ComparePhoto(ctx, h.engine.Store(), comparer, rv, nasaID, sol)
	if err != nil {
		apierr.Internal(w, "compare-error", err.Error())
		return
	}
	writeJSON(ctx, w, envelope{Data: res})
}

// comparerFor looks up rv's registered scraper and asserts it implements
// scrape.Comparer (the PDS-backed volume walker does not, since it has no
// sol-keyed upstream listing). Writes the error response and returns
// ok=false on either failure.
func (h *HTTP) comparerFor(w http.ResponseWriter, rv rovercore.Rover) (scrape.Comparer, bool) {
	s, err := h.registry.Get(rv.Name)
	if err != nil {
		writeScraperLookupError(w, rv.Name, err)
		return nil, false
	}
	comparer, ok := s.(scrape.Comparer)
	if !ok {
		apierr.BadRequest(w, "compare-unsupported", rv.Name+" does not support live-upstream comparison")
		return nil, false
	}
	return comparer, true
}

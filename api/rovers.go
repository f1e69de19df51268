package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/marsphotos/rovercore"
	"github.com/marsphotos/rovercore/pkg/apierr"
)

func roverAttributes(r rovercore.Rover) interface{} {
	return struct {
		Name        string                `json:"name"`
		LandingDate string                `json:"landing_date"`
		LaunchDate  string                `json:"launch_date"`
		Status      rovercore.RoverStatus `json:"status"`
		MaxSol      int                   `json:"max_sol"`
		TotalPhotos int64                 `json:"total_photos"`
	}{
		Name:        r.Name,
		LandingDate: r.LandingDate.Format("2006-01-02"),
		LaunchDate:  r.LaunchDate.Format("2006-01-02"),
		Status:      r.Status,
		MaxSol:      r.MaxSol,
		TotalPhotos: r.TotalPhotos,
	}
}

// ListRovers handles GET /api/v1/rovers.
func (h *HTTP) ListRovers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rovers, err := h.engine.ListRovers(ctx)
	if err != nil {
		apierr.Internal(w, "internal-error", err.Error())
		return
	}
	data := make([]resource, len(rovers))
	for i, rv := range rovers {
		data[i] = resource{ID: rv.ID, Attributes: roverAttributes(rv)}
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(len(data)))
	writeJSON(ctx, w, envelope{
		Data: data,
		Meta: &metaBlock{TotalCount: len(data), ReturnedCount: len(data)},
	})
}

// GetRover handles GET /api/v1/rovers/{name}.
func (h *HTTP) GetRover(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := r.PathValue("name")
	rv, err := h.engine.GetRover(ctx, name)
	if err != nil {
		writeRoverLookupError(w, name, err)
		return
	}
	writeJSON(ctx, w, envelope{Data: resource{ID: rv.ID, Attributes: roverAttributes(rv)}})
}

// Manifest handles GET /api/v1/manifests/{name}.
func (h *HTTP) Manifest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := r.PathValue("name")
	rv, err := h.engine.GetRover(ctx, name)
	if err != nil {
		writeRoverLookupError(w, name, err)
		return
	}
	entries, err := h.engine.Manifest(ctx, rv.ID)
	if err != nil {
		apierr.Internal(w, "internal-error", err.Error())
		return
	}
	type manifestRow struct {
		Sol       int      `json:"sol"`
		EarthDate string   `json:"earth_date"`
		Count     int      `json:"count"`
		Cameras   []string `json:"cameras"`
	}
	rows := make([]manifestRow, len(entries))
	for i, e := range entries {
		rows[i] = manifestRow{
			Sol:       e.Sol,
			EarthDate: e.EarthDate.Format("2006-01-02"),
			Count:     e.Count,
			Cameras:   e.Cameras,
		}
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(len(rows)))
	writeJSON(ctx, w, envelope{
		Data: rows,
		Meta: &metaBlock{TotalCount: len(rows), ReturnedCount: len(rows)},
	})
}

func writeRoverLookupError(w http.ResponseWriter, name string, err error) {
	if errors.Is(err, rovercore.ErrUnknownRover) {
		apierr.BadRequest(w, "invalid-rover", "no such rover: "+name)
		return
	}
	apierr.Internal(w, "internal-error", err.Error())
}

package api

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/marsphotos/rovercore"
	"github.com/marsphotos/rovercore/datastore"
	"github.com/marsphotos/rovercore/pkg/apierr"
	"github.com/marsphotos/rovercore/query"
)

const dateLayout = "2006-01-02"

func queryInt(q url.Values, key string) *int {
	s := q.Get(key)
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &n
}

func queryDate(q url.Values, key string) *time.Time {
	s := q.Get(key)
	if s == "" {
		return nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil
	}
	return &t
}

func queryList(q url.Values, key string) []string {
	s := q.Get(key)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseFilter builds a datastore.Filter from a request's query string.
// When rover is non-nil the filter is scoped to that rover; otherwise the
// cross-rover search endpoint's rovers/cameras lists apply.
func parseFilter(q url.Values, rover *rovercore.Rover) datastore.Filter {
	f := datastore.Filter{
		Sol:        queryInt(q, "sol"),
		EarthDate:  queryDate(q, "earth_date"),
		Camera:     q.Get("camera"),
		SolMin:     queryInt(q, "sol_min"),
		SolMax:     queryInt(q, "sol_max"),
		DateMin:    queryDate(q, "date_min"),
		DateMax:    queryDate(q, "date_max"),
		NASAID:     q.Get("nasa_id"),
		Site:       queryInt(q, "site"),
		Drive:      queryInt(q, "drive"),
		SampleType: q.Get("sample_type"),
	}
	if rover != nil {
		f.RoverID = &rover.ID
		f.RoverName = rover.Name
	} else {
		f.Rovers = queryList(q, "rovers")
		f.Cameras = queryList(q, "cameras")
	}
	return f
}

// parsePage reads page/per_page from the query string. An explicit
// per_page <= 0 is a client error rather than "use the default" — the zero
// value is indistinguishable from "absent" otherwise, so the raw query
// value is inspected directly rather than going through queryInt.
func parsePage(q url.Values) (datastore.Page, error) {
	page := 0
	if v := queryInt(q, "page"); v != nil {
		page = *v
	}
	perPage := 0
	if raw := q.Get("per_page"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			return datastore.Page{}, errors.New("per_page must be a positive integer")
		}
		perPage = v
	}
	return datastore.Page{Page: page, PerPage: perPage}, nil
}

func parseFieldSet(q url.Values) (query.FieldSet, error) {
	fs := query.FieldSet(q.Get("field_set"))
	if fs == "" {
		fs = query.FieldSetBasic
	}
	if !query.ValidFieldSets[fs] {
		return "", errors.New("unknown field_set: " + string(fs))
	}
	return fs, nil
}

func writeQueryError(w http.ResponseWriter, err error) {
	if errors.Is(err, rovercore.ErrInvalidQuery) {
		apierr.BadRequest(w, "invalid-query", err.Error())
		return
	}
	if errors.Is(err, rovercore.ErrNotFound) || errors.Is(err, rovercore.ErrUnknownRover) {
		apierr.NotFound(w, "not-found", err.Error())
		return
	}
	apierr.Internal(w, "internal-error", err.Error())
}

// writePhotoList projects photos to fs and writes them under the standard
// list envelope, including pagination and navigation links.
func (h *HTTP) writePhotoList(w http.ResponseWriter, r *http.Request, res datastore.Result, page datastore.Page, fs query.FieldSet) {
	ctx := r.Context()
	resolver := h.engine.NewResolver()
	projections, err := resolver.ProjectAll(ctx, res.Photos, fs)
	if err != nil {
		apierr.Internal(w, "internal-error", err.Error())
		return
	}
	data := make([]resource, len(projections))
	for i, p := range projections {
		data[i] = resource{ID: p.ID, Attributes: p}
	}
	pages := totalPages(res.TotalCount, page.PerPage)
	w.Header().Set("X-Total-Count", strconv.Itoa(res.TotalCount))
	writeJSON(ctx, w, envelope{
		Data:       data,
		Meta:       &metaBlock{TotalCount: res.TotalCount, ReturnedCount: len(data)},
		Pagination: &pageBlock{Page: page.Page, PerPage: page.PerPage, TotalPages: pages},
		Links:      pageLinks(r, page.Page, pages),
	})
}

// RoverPhotos handles GET /api/v1/rovers/{name}/photos.
func (h *HTTP) RoverPhotos(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := r.PathValue("name")
	rv, err := h.engine.GetRover(ctx, name)
	if err != nil {
		writeRoverLookupError(w, name, err)
		return
	}

	q := r.URL.Query()
	if q.Get("sol") == "" && q.Get("earth_date") == "" && q.Get("sol_min") == "" {
		apierr.BadRequest(w, "invalid-query", "one of sol, earth_date, or sol_min is required")
		return
	}
	fs, err := parseFieldSet(q)
	if err != nil {
		apierr.BadRequest(w, "invalid-query", err.Error())
		return
	}
	filter := parseFilter(q, &rv)
	page, err := parsePage(q)
	if err != nil {
		apierr.BadRequest(w, "invalid-query", err.Error())
		return
	}
	sort := datastore.Sort(q.Get("sort"))

	res, err := h.engine.SearchPhotos(ctx, filter, sort, page)
	if err != nil {
		writeQueryError(w, err)
		return
	}
	h.writePhotoList(w, r, res, normalizedPage(page), fs)
}

// LatestPhotos handles GET /api/v1/rovers/{name}/latest_photos.
func (h *HTTP) LatestPhotos(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := r.PathValue("name")
	rv, err := h.engine.GetRover(ctx, name)
	if err != nil {
		writeRoverLookupError(w, name, err)
		return
	}
	fs, err := parseFieldSet(r.URL.Query())
	if err != nil {
		apierr.BadRequest(w, "invalid-query", err.Error())
		return
	}
	res, err := h.engine.LatestPhotos(ctx, rv.ID)
	if err != nil {
		writeQueryError(w, err)
		return
	}
	resolver := h.engine.NewResolver()
	projections, err := resolver.ProjectAll(ctx, res.Photos, fs)
	if err != nil {
		apierr.Internal(w, "internal-error", err.Error())
		return
	}
	data := make([]resource, len(projections))
	for i, p := range projections {
		data[i] = resource{ID: p.ID, Attributes: p}
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(len(data)))
	writeJSON(ctx, w, envelope{
		Data: data,
		Meta: &metaBlock{TotalCount: len(data), ReturnedCount: len(data)},
	})
}

// GetPhoto handles GET /api/v1/photos/{id}.
func (h *HTTP) GetPhoto(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		apierr.BadRequest(w, "invalid-query", "photo id must be numeric")
		return
	}
	fs, err := parseFieldSet(r.URL.Query())
	if err != nil {
		apierr.BadRequest(w, "invalid-query", err.Error())
		return
	}
	photo, err := h.engine.GetPhoto(ctx, id)
	if err != nil {
		writeQueryError(w, err)
		return
	}
	resolver := h.engine.NewResolver()
	proj, err := resolver.Project(ctx, photo, fs)
	if err != nil {
		apierr.Internal(w, "internal-error", err.Error())
		return
	}
	writeJSON(ctx, w, envelope{Data: resource{ID: proj.ID, Attributes: proj}})
}

// SearchPhotos handles GET /api/v1/photos/search, the cross-rover query
// endpoint: no rover is required in the path, and rovers/cameras filters
// may each name more than one value.
func (h *HTTP) SearchPhotos(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	fs, err := parseFieldSet(q)
	if err != nil {
		apierr.BadRequest(w, "invalid-query", err.Error())
		return
	}
	filter := parseFilter(q, nil)
	page, err := parsePage(q)
	if err != nil {
		apierr.BadRequest(w, "invalid-query", err.Error())
		return
	}
	sort := datastore.Sort(q.Get("sort"))

	res, err := h.engine.SearchPhotos(ctx, filter, sort, page)
	if err != nil {
		writeQueryError(w, err)
		return
	}
	h.writePhotoList(w, r, res, normalizedPage(page), fs)
}

// normalizedPage reconstructs the page/per_page actually applied (the
// engine floors/defaults/caps them internally but returns only the result
// rows), so pagination links reflect what was used rather than the raw
// request.
func normalizedPage(requested datastore.Page) datastore.Page {
	page := requested.Page
	if page < 1 {
		page = 1
	}
	perPage := requested.PerPage
	switch {
	case perPage <= 0:
		perPage = 25
	case perPage > 1000:
		perPage = 1000
	}
	return datastore.Page{Page: page, PerPage: perPage}
}

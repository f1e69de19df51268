package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/quay/zlog"

	"github.com/marsphotos/rovercore"
	"github.com/marsphotos/rovercore/pkg/apierr"
	"github.com/marsphotos/rovercore/scrape"
)

func writeScraperLookupError(w http.ResponseWriter, rover string, err error) {
	if errors.Is(err, rovercore.ErrUnknownRover) {
		apierr.BadRequest(w, "invalid-rover", "no registered scraper for: "+rover)
		return
	}
	apierr.Internal(w, "internal-error", err.Error())
}

// recordSolJob wraps a single ScrapeSol outcome as a one-rover ScraperJob,
// matching the shape bulk jobs are recorded under so job history doesn't
// need a separate schema for single-sol admin calls.
func (h *HTTP) recordSolJob(ctx context.Context, roverName string, sol int, sr scrape.SolResult, callErr error) {
	if h.jobs == nil {
		return
	}
	job := rovercore.NewJob(1)
	status := rovercore.JobSuccess
	errMsg := ""
	if callErr != nil || !sr.Success {
		status = rovercore.JobFailed
		if callErr != nil {
			errMsg = callErr.Error()
		}
	}
	job.Details = append(job.Details, rovercore.RoverJobDetail{
		JobID:         job.ID,
		RoverName:     roverName,
		StartSol:      sol,
		EndSol:        sol,
		SolsAttempted: 1,
		SolsSucceeded: boolToInt(sr.Success),
		PhotosAdded:   sr.Inserted,
		ErrorMessage:  errMsg,
		Status:        status,
	})
	job.Finish()
	if err := h.jobs.RecordJob(ctx, job); err != nil {
		zlog.Warn(ctx).Err(err).Msg("failed to record scraper job")
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// ScrapeSol handles POST /api/v1/scraper/{rover}?sol=N.
func (h *HTTP) ScrapeSol(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	roverName := r.PathValue("rover")
	sol, err := strconv.Atoi(r.URL.Query().Get("sol"))
	if err != nil {
		apierr.BadRequest(w, "invalid-query", "sol query parameter is required and must be numeric")
		return
	}

	s, err := h.registry.Get(roverName)
	if err != nil {
		writeScraperLookupError(w, roverName, err)
		return
	}

	res, err := s.ScrapeSol(ctx, sol)
	h.recordSolJob(ctx, s.RoverName(), sol, res, err)
	if err != nil {
		apierr.Internal(w, "scrape-error", err.Error())
		return
	}
	writeJSON(ctx, w, envelope{Data: res})
}

// ScrapeBulk handles POST /api/v1/scraper/{rover}/bulk?startSol=A&endSol=B.
// The scrape itself runs detached from the request so a large range isn't
// bound to the client's connection lifetime; progress is polled separately
// via ScrapeProgress.
func (h *HTTP) ScrapeBulk(w http.ResponseWriter, r *http.Request) {
	roverName := r.PathValue("rover")
	q := r.URL.Query()
	start, err := strconv.Atoi(q.Get("startSol"))
	if err != nil {
		apierr.BadRequest(w, "invalid-query", "startSol query parameter is required and must be numeric")
		return
	}
	end := 0
	if q.Get("endSol") != "" {
		end, err = strconv.Atoi(q.Get("endSol"))
		if err != nil {
			apierr.BadRequest(w, "invalid-query", "endSol must be numeric")
			return
		}
	}

	s, err := h.registry.Get(roverName)
	if err != nil {
		writeScraperLookupError(w, roverName, err)
		return
	}

	key := s.RoverName()
	h.progress.start(key, start, end)
	go func() {
		ctx := context.Background()
		res, err := s.BulkScrape(ctx, start, end)
		h.progress.finish(key, res.SolsAttempted, res.SolsSucceeded, res.Inserted, res.Skipped, err)
		if h.jobs != nil {
			job := rovercore.NewJob(1)
			status := rovercore.JobSuccess
			switch {
			case res.SolsSucceeded == 0:
				status = rovercore.JobFailed
			case res.SolsSucceeded < res.SolsAttempted:
				status = rovercore.JobPartial
			}
			errMsg := ""
			if err != nil {
				errMsg = err.Error()
			}
			job.Details = append(job.Details, rovercore.RoverJobDetail{
				JobID:         job.ID,
				RoverName:     key,
				StartSol:      res.StartSol,
				EndSol:        res.EndSol,
				SolsAttempted: res.SolsAttempted,
				SolsSucceeded: res.SolsSucceeded,
				PhotosAdded:   res.Inserted,
				FailedSols:    res.FailedSols,
				ErrorMessage:  errMsg,
				Status:        status,
				Duration:      res.Duration,
			})
			job.Finish()
			if err := h.jobs.RecordJob(ctx, job); err != nil {
				zlog.Warn(ctx).Err(err).Msg("failed to record bulk scraper job")
			}
		}
	}()

	w.WriteHeader(http.StatusAccepted)
	writeJSON(r.Context(), w, envelope{Data: map[string]interface{}{
		"rover_name": key,
		"start_sol":  start,
		"end_sol":    end,
		"status":     "started",
	}})
}

// ScrapeProgress handles GET /api/v1/scraper/{rover}/progress.
func (h *HTTP) ScrapeProgress(w http.ResponseWriter, r *http.Request) {
	roverName := r.PathValue("rover")
	s, err := h.registry.Get(roverName)
	if err != nil {
		writeScraperLookupError(w, roverName, err)
		return
	}
	p, ok := h.progress.get(s.RoverName())
	if !ok {
		apierr.NotFound(w, "no-progress", "no scrape has been run for this rover since startup")
		return
	}
	writeJSON(r.Context(), w, envelope{Data: p})
}

// pdsScraper is the narrow capability ScrapeVolume/ScrapeAllVolumes need
// from the registered "opportunity" scraper: the two admin endpoints are
// PDS-specific and have no analog for the JSON-feed rovers.
type pdsScraper interface {
	scrape.Scraper
	VolumeByName(name string) (scrape.Volume, bool)
	ScrapeVolume(ctx context.Context, vol scrape.Volume) (scrape.SolResult, error)
}

func (h *HTTP) opportunityPDSScraper(w http.ResponseWriter) (pdsScraper, bool) {
	s, err := h.registry.Get("opportunity")
	if err != nil {
		writeScraperLookupError(w, "opportunity", err)
		return nil, false
	}
	pds, ok := s.(pdsScraper)
	if !ok {
		apierr.Internal(w, "internal-error", "opportunity scraper does not support volume operations")
		return nil, false
	}
	return pds, true
}

// ScrapeVolume handles POST /api/v1/scraper/opportunity/volume/{volumeName}.
func (h *HTTP) ScrapeVolume(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pds, ok := h.opportunityPDSScraper(w)
	if !ok {
		return
	}
	name := r.PathValue("volumeName")
	vol, ok := pds.VolumeByName(name)
	if !ok {
		apierr.NotFound(w, "unknown-volume", "no such volume: "+name)
		return
	}
	res, err := pds.ScrapeVolume(ctx, vol)
	h.recordSolJob(ctx, pds.RoverName(), 0, res, err)
	if err != nil {
		apierr.Internal(w, "scrape-error", err.Error())
		return
	}
	writeJSON(ctx, w, envelope{Data: res})
}

// ScrapeAllVolumes handles POST /api/v1/scraper/opportunity/all.
func (h *HTTP) ScrapeAllVolumes(w http.ResponseWriter, r *http.Request) {
	pds, ok := h.opportunityPDSScraper(w)
	if !ok {
		return
	}
	key := pds.RoverName()
	h.progress.start(key, 0, 0)
	go func() {
		ctx := context.Background()
		res, err := pds.BulkScrape(ctx, 0, 0)
		h.progress.finish(key, res.SolsAttempted, res.SolsSucceeded, res.Inserted, res.Skipped, err)
		if h.jobs != nil {
			job := rovercore.NewJob(1)
			status := rovercore.JobSuccess
			if res.SolsSucceeded < res.SolsAttempted {
				status = rovercore.JobPartial
			}
			if res.SolsSucceeded == 0 {
				status = rovercore.JobFailed
			}
			job.Details = append(job.Details, rovercore.RoverJobDetail{
				JobID: job.ID, RoverName: key,
				StartSol: res.StartSol, EndSol: res.EndSol,
				SolsAttempted: res.SolsAttempted, SolsSucceeded: res.SolsSucceeded,
				PhotosAdded: res.Inserted, FailedSols: res.FailedSols,
				Status: status, Duration: res.Duration,
			})
			job.Finish()
			if err := h.jobs.RecordJob(ctx, job); err != nil {
				zlog.Warn(ctx).Err(err).Msg("failed to record volume-walk job")
			}
		}
	}()
	w.WriteHeader(http.StatusAccepted)
	writeJSON(r.Context(), w, envelope{Data: map[string]interface{}{
		"rover_name": key,
		"status":     "started",
	}})
}

package scrape

import (
	"context"
	"encoding/json"
	"time"

	"github.com/quay/zlog"

	"github.com/marsphotos/rovercore"
)

// Candidate is a scraper-normalized photo ready for the pipeline, before
// its camera has been resolved to an ID.
type Candidate struct {
	ExternalID    string
	Sol           int
	EarthDate     time.Time
	TakenUTC      time.Time
	CameraShort   string
	MarsLocalTime string
	ReceivedUTC   *time.Time
	Images        rovercore.ImageURLs
	Width         *int
	Height        *int
	SampleType    string
	Location      rovercore.Location
	Telemetry     rovercore.Telemetry
	Raw           json.RawMessage
}

// progressInterval is the default row count between progress log lines.
const progressInterval = 10000

// defaultBatchSize is the default flush threshold.
const defaultBatchSize = 1000

// runPipeline drives the shared bulk-ingest algorithm over one stream of
// Candidates for one rover: pre-loaded skip-set, per-row normalization and
// camera resolution, batched inserts, and progress logging. Fetching
// already happened upstream of this call (the scraper did it); this
// function only parses, persists, and logs.
func runPipeline(ctx context.Context, store Store, rover rovercore.Rover, candidates <-chan Candidate, skipSet map[string]bool) (inserted int, skipped int, err error) {
	ctx = zlog.ContextWithValues(ctx, "component", "scrape/runPipeline", "rover", rover.Name)

	pending := make([]rovercore.Photo, 0, defaultBatchSize)
	pendingIDs := make(map[string]bool, defaultBatchSize)
	var seen int

	// skipCounted tracks which external ids have already been counted in
	// skipped, so a candidate seen more than once in a run (e.g. a duplicate
	// within the same feed, itself already stored) is tallied once, not once
	// per occurrence.
	skipCounted := make(map[string]bool)
	countSkip := func(externalID string) {
		if skipCounted[externalID] {
			return
		}
		skipCounted[externalID] = true
		skipped++
	}

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		n, skippedIDs, ferr := store.AddPhotos(ctx, pending)
		if ferr != nil {
			return ferr
		}
		inserted += n
		for _, id := range skippedIDs {
			skipSet[id] = true
			countSkip(id)
		}
		for _, p := range pending {
			skipSet[p.ExternalID] = true
		}
		pending = pending[:0]
		pendingIDs = make(map[string]bool, defaultBatchSize)
		return nil
	}

	for c := range candidates {
		select {
		case <-ctx.Done():
			return inserted, skipped, ctx.Err()
		default:
		}

		seen++
		if seen%progressInterval == 0 {
			zlog.Info(ctx).Int("rows_seen", seen).Int("inserted", inserted).Int("skipped", skipped).Msg("ingest progress")
		}

		if skipSet[c.ExternalID] || pendingIDs[c.ExternalID] {
			countSkip(c.ExternalID)
			continue
		}

		camera, _, cerr := store.FindOrCreateCamera(ctx, rover.ID, c.CameraShort)
		if cerr != nil {
			zlog.Warn(ctx).Err(cerr).Str("external_id", c.ExternalID).Msg("skipping row: camera resolution failed")
			countSkip(c.ExternalID)
			continue
		}

		pending = append(pending, rovercore.Photo{
			ExternalID:    c.ExternalID,
			RoverID:       rover.ID,
			CameraID:      camera.ID,
			Sol:           c.Sol,
			EarthDate:     c.EarthDate,
			TakenUTC:      c.TakenUTC,
			MarsLocalTime: c.MarsLocalTime,
			ReceivedUTC:   c.ReceivedUTC,
			Images:        c.Images,
			Width:         c.Width,
			Height:        c.Height,
			SampleType:    c.SampleType,
			Location:      c.Location,
			Telemetry:     c.Telemetry,
			Raw:           c.Raw,
		})
		pendingIDs[c.ExternalID] = true

		if len(pending) >= defaultBatchSize {
			if ferr := flush(); ferr != nil {
				return inserted, skipped, ferr
			}
		}
	}

	if ferr := flush(); ferr != nil {
		return inserted, skipped, ferr
	}
	return inserted, skipped, nil
}

// loadSkipSet pre-loads the in-memory duplicate-detection set with those of
// the candidate IDs about to be ingested that are already stored for rover.
func loadSkipSet(ctx context.Context, store Store, roverID int64, candidateIDs []string) (map[string]bool, error) {
	existing, err := store.ExistingExternalIDs(ctx, roverID, candidateIDs)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		existing = make(map[string]bool)
	}
	return existing, nil
}

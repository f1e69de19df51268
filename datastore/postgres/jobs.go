package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/quay/zlog"

	"github.com/marsphotos/rovercore"
)

// RecordJob implements datastore.JobStore: the job and its per-rover details
// commit atomically.
func (s *Store) RecordJob(ctx context.Context, job *rovercore.ScraperJob) error {
	ctx = zlog.ContextWithValues(ctx, "component", "datastore/postgres/Store.RecordJob")

	const insertJob = `
INSERT INTO scraper_jobs (id, started_at, ended_at, duration_ms, rovers_attempted, rovers_succeeded, photos_added, status, cancelled_at_sol)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9);
`
	const insertDetail = `
INSERT INTO rover_job_details (job_id, rover_name, start_sol, end_sol, sols_attempted, sols_succeeded, photos_added, failed_sols, added_photos, error_message, status, duration_ms)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12);
`
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, insertJob, job.ID, job.StartedAt, job.EndedAt, job.Duration.Milliseconds(),
			job.RoversAttempted, job.RoversSucceeded, job.PhotosAdded, job.Status, job.CancelledAtSol)
		if err != nil {
			return fmt.Errorf("insert scraper_job: %w", err)
		}
		for _, d := range job.Details {
			added, err := json.Marshal(d.AddedPhotos)
			if err != nil {
				return fmt.Errorf("marshal added photos: %w", err)
			}
			_, err = tx.Exec(ctx, insertDetail, job.ID, d.RoverName, d.StartSol, d.EndSol,
				d.SolsAttempted, d.SolsSucceeded, d.PhotosAdded, d.FailedSols, added,
				nullString(d.ErrorMessage), d.Status, d.Duration.Milliseconds())
			if err != nil {
				return fmt.Errorf("insert rover_job_detail for %s: %w", d.RoverName, err)
			}
		}
		return nil
	})
}

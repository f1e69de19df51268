package rovercore

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the outcome of a scraper invocation or one rover within it.
type JobStatus string

const (
	JobSuccess JobStatus = "success"
	JobFailed  JobStatus = "failed"
	JobPartial JobStatus = "partial"
)

// AddedPhotoSummary is a bounded, per-job record of one inserted photo, used
// for job-history observability. Callers cap how many are retained per job.
type AddedPhotoSummary struct {
	Sol        int    `json:"sol"`
	ExternalID string `json:"external_id"`
}

// RoverJobDetail is the per-rover outcome of one ScraperJob.
type RoverJobDetail struct {
	ID            int64               `json:"id"`
	JobID         uuid.UUID           `json:"job_id"`
	RoverName     string              `json:"rover_name"`
	StartSol      int                 `json:"start_sol"`
	EndSol        int                 `json:"end_sol"`
	SolsAttempted int                 `json:"sols_attempted"`
	SolsSucceeded int                 `json:"sols_succeeded"`
	PhotosAdded   int                 `json:"photos_added"`
	FailedSols    []int               `json:"failed_sols,omitempty"`
	AddedPhotos   []AddedPhotoSummary `json:"added_photos,omitempty"`
	ErrorMessage  string              `json:"error_message,omitempty"`
	Status        JobStatus           `json:"status"`
	Duration      time.Duration       `json:"duration"`
}

// ScraperJob records a single scraper invocation (single-sol or bulk).
type ScraperJob struct {
	ID               uuid.UUID        `json:"id"`
	StartedAt        time.Time        `json:"started_at"`
	EndedAt          time.Time        `json:"ended_at"`
	Duration         time.Duration    `json:"duration"`
	RoversAttempted  int              `json:"rovers_attempted"`
	RoversSucceeded  int              `json:"rovers_succeeded"`
	PhotosAdded      int              `json:"photos_added"`
	Status           JobStatus        `json:"status"`
	CancelledAtSol   *int             `json:"cancelled_at_sol,omitempty"`
	Details          []RoverJobDetail `json:"details"`
}

// NewJob allocates a job at start time with no details yet recorded.
func NewJob(plannedRovers int) *ScraperJob {
	return &ScraperJob{
		ID:              uuid.New(),
		StartedAt:       time.Now().UTC(),
		RoversAttempted: plannedRovers,
		Status:          JobFailed,
	}
}

// Finish stamps end time/duration and derives the overall status from the
// per-rover detail outcomes: partial means 0 < succeeded < attempted.
func (j *ScraperJob) Finish() {
	j.EndedAt = time.Now().UTC()
	j.Duration = j.EndedAt.Sub(j.StartedAt)

	succeeded := 0
	for _, d := range j.Details {
		if d.Status == JobSuccess {
			succeeded++
		}
		j.PhotosAdded += d.PhotosAdded
	}
	j.RoversSucceeded = succeeded

	switch {
	case j.RoversAttempted == 0:
		j.Status = JobFailed
	case succeeded == j.RoversAttempted:
		j.Status = JobSuccess
	case succeeded == 0:
		j.Status = JobFailed
	default:
		j.Status = JobPartial
	}
}

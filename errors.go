package rovercore

import "errors"

// Sentinel errors used across ingestion's error taxonomy. Scrapers and the
// ingest pipeline classify failures against these rather than inspecting
// upstream-specific error strings, letting a source signal "no new data"
// without an ad-hoc error type per source.
var (
	// ErrUpstreamEmpty names the case where the upstream reports no data for
	// the requested unit (404, or an empty array). It is not an error
	// condition, and the scrapers in this module do not return it: they
	// report that case as a successful SolResult with 0 inserted, 0 skipped.
	ErrUpstreamEmpty = errors.New("rovercore: upstream has no data for this unit")

	// ErrMalformedRow marks a single upstream record that could not be
	// normalized (missing required field, unparseable date, wrong PDS field
	// count). The row is skipped; the enclosing sol/volume continues.
	ErrMalformedRow = errors.New("rovercore: malformed upstream row")

	// ErrUnknownCamera marks a photo whose instrument has no matching camera
	// row and auto-create is disabled for the caller.
	ErrUnknownCamera = errors.New("rovercore: unknown camera")

	// ErrDuplicateExternalID marks a row skipped because its external_id was
	// already present (skip-set, pending-set, or database unique index).
	ErrDuplicateExternalID = errors.New("rovercore: duplicate external_id")

	// ErrIntegrity marks a non-external_id integrity failure (missing FK,
	// other constraint violation) that aborts the enclosing batch.
	ErrIntegrity = errors.New("rovercore: integrity failure")

	// ErrCancelled marks a bulk operation stopped by caller cancellation
	// before completion; the job is recorded partial.
	ErrCancelled = errors.New("rovercore: cancelled")

	// ErrUnknownRover is returned by the scraper registry and the query
	// engine when a rover name/id has no match.
	ErrUnknownRover = errors.New("rovercore: unknown rover")

	// ErrNotFound is a generic "no such row" used by repository lookups.
	ErrNotFound = errors.New("rovercore: not found")

	// ErrInvalidQuery marks a caller-supplied query parameter that fails
	// validation (unknown sort value, a compare range that is reversed or
	// over the sol cap). The HTTP layer maps it to 400; it rejects an
	// unknown field_set or a missing date predicate with a 400 directly.
	ErrInvalidQuery = errors.New("rovercore: invalid query parameter")
)

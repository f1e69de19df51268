// Package microbatch batches row inserts onto a pgx.Batch and flushes them
// in groups, amortizing per-statement round-trip cost the way a loop of
// single-row INSERTs cannot. Every queued row is tagged with a
// caller-supplied key so a unique-constraint no-op (ON CONFLICT DO NOTHING)
// can be attributed back to the one row that caused it, giving callers
// row-granularity skip/insert counts instead of a single pass/fail per
// flush.
package microbatch

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Result reports the outcome of one queued row after its batch flushed.
type Result struct {
	Key          string
	RowsAffected int64
}

// Insert batches INSERT statements for a single transaction.
type Insert struct {
	tx        pgx.Tx
	batchSize int
	timeout   time.Duration

	currBatch *pgx.Batch
	currKeys  []string
	results   []Result
}

// NewInsert returns a new micro-batcher bound to tx. A zero timeout defaults
// to one minute per flush.
func NewInsert(tx pgx.Tx, batchSize int, timeout time.Duration) *Insert {
	if timeout == 0 {
		timeout = time.Minute
	}
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &Insert{tx: tx, batchSize: batchSize, timeout: timeout}
}

// Queue enqueues one row's INSERT under key, flushing the current batch
// first if it is already at batchSize.
func (v *Insert) Queue(ctx context.Context, key string, query string, args ...interface{}) error {
	if len(v.currKeys) >= v.batchSize {
		if err := v.flush(ctx); err != nil {
			return fmt.Errorf("failed to flush batch while queueing %q: %w", key, err)
		}
	}
	if v.currBatch == nil {
		v.currBatch = &pgx.Batch{}
	}
	v.currBatch.Queue(query, args...)
	v.currKeys = append(v.currKeys, key)
	return nil
}

// Done flushes any remaining queued rows and returns the per-row results
// accumulated across every flush this Insert performed.
func (v *Insert) Done(ctx context.Context) ([]Result, error) {
	if len(v.currKeys) > 0 {
		if err := v.flush(ctx); err != nil {
			return nil, err
		}
	}
	return v.results, nil
}

func (v *Insert) flush(ctx context.Context) error {
	tctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	res := v.tx.SendBatch(tctx, v.currBatch)
	defer res.Close()

	keys := v.currKeys
	for _, key := range keys {
		tag, err := res.Exec()
		if err != nil {
			return fmt.Errorf("exec for key %q: %w", key, err)
		}
		v.results = append(v.results, Result{Key: key, RowsAffected: tag.RowsAffected()})
	}

	v.currBatch = nil
	v.currKeys = nil
	return nil
}

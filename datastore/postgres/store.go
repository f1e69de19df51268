// Package postgres is the pgx/v5 + goqu implementation of the datastore
// interfaces: one pgxpool.Pool shared across small, single-purpose query
// files, each instrumented with a prometheus counter/histogram pair.
package postgres

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marsphotos/rovercore/datastore"
)

// Store implements datastore.Store against a Postgres database.
type Store struct {
	pool *pgxpool.Pool
}

var _ datastore.Store = (*Store)(nil)

// NewStore wraps an already-connected pool. Callers are expected to have run
// Migrate first.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Pool exposes the underlying pool, primarily for callers that need to share
// it with other components (e.g. a health check).
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/quay/zlog"

	"github.com/marsphotos/rovercore"
)

// GetRoverByName implements datastore.RoverStore. The comparison is
// case-insensitive.
func (s *Store) GetRoverByName(ctx context.Context, name string) (rovercore.Rover, error) {
	const query = `SELECT id, name, landing_date, launch_date, status FROM rovers WHERE lower(name) = lower($1);`
	ctx = zlog.ContextWithValues(ctx, "component", "datastore/postgres/Store.GetRoverByName")

	var r rovercore.Rover
	var landing, launch time.Time
	err := s.pool.QueryRow(ctx, query, name).Scan(&r.ID, &r.Name, &landing, &launch, &r.Status)
	switch {
	case err == nil:
	case errors.Is(err, pgx.ErrNoRows):
		return rovercore.Rover{}, rovercore.ErrUnknownRover
	default:
		return rovercore.Rover{}, fmt.Errorf("query rover by name: %w", err)
	}
	r.LandingDate, r.LaunchDate = landing, launch

	if err := s.fillRoverStats(ctx, &r); err != nil {
		return rovercore.Rover{}, err
	}
	return r, nil
}

// GetRoverByID implements datastore.RoverStore.
func (s *Store) GetRoverByID(ctx context.Context, id int64) (rovercore.Rover, error) {
	const query = `SELECT id, name, landing_date, launch_date, status FROM rovers WHERE id = $1;`
	ctx = zlog.ContextWithValues(ctx, "component", "datastore/postgres/Store.GetRoverByID")

	var r rovercore.Rover
	var landing, launch time.Time
	err := s.pool.QueryRow(ctx, query, id).Scan(&r.ID, &r.Name, &landing, &launch, &r.Status)
	switch {
	case err == nil:
	case errors.Is(err, pgx.ErrNoRows):
		return rovercore.Rover{}, rovercore.ErrUnknownRover
	default:
		return rovercore.Rover{}, fmt.Errorf("query rover by id: %w", err)
	}
	r.LandingDate, r.LaunchDate = landing, launch

	if err := s.fillRoverStats(ctx, &r); err != nil {
		return rovercore.Rover{}, err
	}
	return r, nil
}

// ListRovers implements datastore.RoverStore.
func (s *Store) ListRovers(ctx context.Context) ([]rovercore.Rover, error) {
	const query = `SELECT id, name, landing_date, launch_date, status FROM rovers ORDER BY id;`
	ctx = zlog.ContextWithValues(ctx, "component", "datastore/postgres/Store.ListRovers")

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query rovers: %w", err)
	}
	defer rows.Close()

	var out []rovercore.Rover
	for rows.Next() {
		var r rovercore.Rover
		var landing, launch time.Time
		if err := rows.Scan(&r.ID, &r.Name, &landing, &launch, &r.Status); err != nil {
			return nil, fmt.Errorf("scan rover: %w", err)
		}
		r.LandingDate, r.LaunchDate = landing, launch
		if err := s.fillRoverStats(ctx, &r); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) fillRoverStats(ctx context.Context, r *rovercore.Rover) error {
	const query = `SELECT coalesce(max(sol), 0), count(*) FROM photos WHERE rover_id = $1;`
	return s.pool.QueryRow(ctx, query, r.ID).Scan(&r.MaxSol, &r.TotalPhotos)
}

// normalizeRoverName trims and lowercases a rover name for the
// case-insensitive match of the search filter's rover list.
func normalizeRoverName(name string) string { return strings.ToLower(strings.TrimSpace(name)) }

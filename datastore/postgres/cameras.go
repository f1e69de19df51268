package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/quay/zlog"

	"github.com/marsphotos/rovercore"
)

// FindOrCreateCamera implements datastore.CameraStore. It emits an
// "unknown camera" warning log on creation.
func (s *Store) FindOrCreateCamera(ctx context.Context, roverID int64, shortName string) (rovercore.Camera, bool, error) {
	ctx = zlog.ContextWithValues(ctx, "component", "datastore/postgres/Store.FindOrCreateCamera")
	shortName = strings.ToUpper(strings.TrimSpace(shortName))

	const selectQuery = `SELECT id, rover_id, short_name, full_name FROM cameras WHERE rover_id = $1 AND upper(short_name) = $2;`
	var c rovercore.Camera
	err := s.pool.QueryRow(ctx, selectQuery, roverID, shortName).Scan(&c.ID, &c.RoverID, &c.ShortName, &c.FullName)
	switch {
	case err == nil:
		return c, false, nil
	case errors.Is(err, pgx.ErrNoRows):
		// fall through to create
	default:
		return rovercore.Camera{}, false, fmt.Errorf("query camera: %w", err)
	}

	const insertQuery = `INSERT INTO cameras (rover_id, short_name, full_name) VALUES ($1, $2, $2) RETURNING id, rover_id, short_name, full_name;`
	err = s.pool.QueryRow(ctx, insertQuery, roverID, shortName).Scan(&c.ID, &c.RoverID, &c.ShortName, &c.FullName)
	if err != nil {
		// A concurrent insert of the same camera lost the race; the unique
		// index on (rover_id, short_name) rejected us. Re-select instead of
		// erroring, since the row now exists.
		if selErr := s.pool.QueryRow(ctx, selectQuery, roverID, shortName).Scan(&c.ID, &c.RoverID, &c.ShortName, &c.FullName); selErr == nil {
			return c, false, nil
		}
		return rovercore.Camera{}, false, fmt.Errorf("create camera: %w", err)
	}

	zlog.Warn(ctx).
		Int64("rover_id", roverID).
		Str("short_name", shortName).
		Msg("unknown camera auto-created")
	return c, true, nil
}

// GetCameraByID implements datastore.CameraStore.
func (s *Store) GetCameraByID(ctx context.Context, id int64) (rovercore.Camera, error) {
	const query = `SELECT id, rover_id, short_name, full_name FROM cameras WHERE id = $1;`
	var c rovercore.Camera
	err := s.pool.QueryRow(ctx, query, id).Scan(&c.ID, &c.RoverID, &c.ShortName, &c.FullName)
	switch {
	case err == nil:
		return c, nil
	case errors.Is(err, pgx.ErrNoRows):
		return rovercore.Camera{}, rovercore.ErrNotFound
	default:
		return rovercore.Camera{}, fmt.Errorf("query camera by id: %w", err)
	}
}

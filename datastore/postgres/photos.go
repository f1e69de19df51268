package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/quay/zlog"

	"github.com/marsphotos/rovercore"
	"github.com/marsphotos/rovercore/datastore"
	"github.com/marsphotos/rovercore/pkg/microbatch"
)

var (
	queryPhotosCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rovercore",
			Subsystem: "datastore",
			Name:      "query_photos_total",
			Help:      "Total number of QueryPhotos calls issued.",
		},
		[]string{"op"},
	)
	queryPhotosDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rovercore",
			Subsystem: "datastore",
			Name:      "query_photos_duration_seconds",
			Help:      "Duration of QueryPhotos calls.",
		},
		[]string{"op"},
	)
)

// ExistingExternalIDs implements datastore.PhotoStore. It backs the
// in-memory skip-set used during bulk ingestion.
func (s *Store) ExistingExternalIDs(ctx context.Context, roverID int64, ids []string) (map[string]bool, error) {
	ctx = zlog.ContextWithValues(ctx, "component", "datastore/postgres/Store.ExistingExternalIDs")
	out := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	const query = `SELECT external_id FROM photos WHERE rover_id = $1 AND external_id = ANY($2);`
	rows, err := s.pool.Query(ctx, query, roverID, ids)
	if err != nil {
		return nil, fmt.Errorf("query existing external ids: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan external id: %w", err)
		}
		out[id] = true
	}
	return out, rows.Err()
}

// AllExternalIDs implements datastore.PhotoStore. It backs the whole-rover
// skip-set the PDS volume walker pre-loads before streaming a volume.
func (s *Store) AllExternalIDs(ctx context.Context, roverID int64) (map[string]bool, error) {
	ctx = zlog.ContextWithValues(ctx, "component", "datastore/postgres/Store.AllExternalIDs")
	const query = `SELECT external_id FROM photos WHERE rover_id = $1;`
	rows, err := s.pool.Query(ctx, query, roverID)
	if err != nil {
		return nil, fmt.Errorf("query all external ids: %w", err)
	}
	defer rows.Close()
	out := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan external id: %w", err)
		}
		out[id] = true
	}
	return out, rows.Err()
}

// ExternalIDsForSol implements datastore.PhotoStore. It backs the local side
// of the compare diagnostics' upstream-vs-local set comparison.
func (s *Store) ExternalIDsForSol(ctx context.Context, roverID int64, sol int) (map[string]bool, error) {
	ctx = zlog.ContextWithValues(ctx, "component", "datastore/postgres/Store.ExternalIDsForSol")
	const query = `SELECT external_id FROM photos WHERE rover_id = $1 AND sol = $2;`
	rows, err := s.pool.Query(ctx, query, roverID, sol)
	if err != nil {
		return nil, fmt.Errorf("query external ids for sol: %w", err)
	}
	defer rows.Close()
	out := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan external id: %w", err)
		}
		out[id] = true
	}
	return out, rows.Err()
}

const insertPhotoSQL = `
INSERT INTO photos (
	external_id, rover_id, camera_id, sol, earth_date, taken_utc, mars_local_time,
	received_utc, img_thumbnail, img_small, img_medium, img_full, width, height,
	sample_type, site, drive, xyz, mast_az, mast_el, filter_name, title, caption,
	credit, raw
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25)
ON CONFLICT (external_id) DO NOTHING;
`

// AddPhotos implements datastore.PhotoStore. It runs the whole batch in one
// transaction via pkg/microbatch, dropping individual unique-violations
// without aborting the rest of the batch.
func (s *Store) AddPhotos(ctx context.Context, batch []rovercore.Photo) (int, []string, error) {
	ctx = zlog.ContextWithValues(ctx, "component", "datastore/postgres/Store.AddPhotos")
	defer queryPhotosCounter.WithLabelValues("add_photos").Inc()
	timer := prometheus.NewTimer(queryPhotosDuration.WithLabelValues("add_photos"))
	defer timer.ObserveDuration()

	if len(batch) == 0 {
		return 0, nil, nil
	}

	var inserted int
	var skipped []string
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		ins := microbatch.NewInsert(tx, 1000, time.Minute)
		for i := range batch {
			p := &batch[i]
			var xyz []float64
			if p.XYZ != nil {
				xyz = p.XYZ[:]
			}
			if err := ins.Queue(ctx, p.ExternalID, insertPhotoSQL,
				p.ExternalID, p.RoverID, p.CameraID, p.Sol, p.EarthDate, p.TakenUTC,
				nullString(p.MarsLocalTime), p.ReceivedUTC, nullString(p.Images.Thumbnail),
				nullString(p.Images.Small), nullString(p.Images.Medium), nullString(p.Images.Full),
				p.Width, p.Height, nullString(p.SampleType), p.Site, p.Drive, xyz,
				p.MastAz, p.MastEl, nullString(p.Filter), nullString(p.Title),
				nullString(p.Caption), nullString(p.Credit), []byte(p.Raw),
			); err != nil {
				return fmt.Errorf("queue photo %s: %w", p.ExternalID, err)
			}
		}
		results, err := ins.Done(ctx)
		if err != nil {
			return fmt.Errorf("flush photo batch: %w", err)
		}
		for _, r := range results {
			if r.RowsAffected == 0 {
				skipped = append(skipped, r.Key)
				continue
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, nil, err
	}
	return inserted, skipped, nil
}

// QueryPhotos implements datastore.PhotoStore.
func (s *Store) QueryPhotos(ctx context.Context, filter datastore.Filter, sort datastore.Sort, page datastore.Page) (datastore.Result, error) {
	ctx = zlog.ContextWithValues(ctx, "component", "datastore/postgres/Store.QueryPhotos")
	defer queryPhotosCounter.WithLabelValues("query_photos").Inc()
	timer := prometheus.NewTimer(queryPhotosDuration.WithLabelValues("query_photos"))
	defer timer.ObserveDuration()

	selectSQL, countSQL, _, err := buildPhotosQuery(filter, sort, page)
	if err != nil {
		return datastore.Result{}, err
	}

	var total int
	if err := s.pool.QueryRow(ctx, countSQL).Scan(&total); err != nil {
		return datastore.Result{}, fmt.Errorf("count photos: %w", err)
	}
	if total == 0 {
		return datastore.Result{TotalCount: 0}, nil
	}

	rows, err := s.pool.Query(ctx, selectSQL)
	if err != nil {
		return datastore.Result{}, fmt.Errorf("query photos: %w", err)
	}
	defer rows.Close()

	photos, err := scanPhotos(rows)
	if err != nil {
		return datastore.Result{}, err
	}
	return datastore.Result{Photos: photos, TotalCount: total}, nil
}

// LatestPhotos implements datastore.PhotoStore: compute max(sol) and reuse
// QueryPhotos with that sol substituted in as the filter, without any
// further special-casing.
func (s *Store) LatestPhotos(ctx context.Context, roverID int64) (datastore.Result, error) {
	sol, any, err := s.MaxSol(ctx, roverID)
	if err != nil {
		return datastore.Result{}, err
	}
	if !any {
		return datastore.Result{}, nil
	}
	return s.QueryPhotos(ctx, datastore.Filter{RoverID: &roverID, Sol: &sol}, "", datastore.Page{Page: 1, PerPage: 100000})
}

// MaxSol implements datastore.PhotoStore.
func (s *Store) MaxSol(ctx context.Context, roverID int64) (int, bool, error) {
	const query = `SELECT max(sol) FROM photos WHERE rover_id = $1;`
	var sol *int
	if err := s.pool.QueryRow(ctx, query, roverID).Scan(&sol); err != nil {
		return 0, false, fmt.Errorf("query max sol: %w", err)
	}
	if sol == nil {
		return 0, false, nil
	}
	return *sol, true, nil
}

// Manifest implements datastore.PhotoStore: a single grouped
// scan with distinct camera-name aggregation, using Postgres array_agg over
// DISTINCT short names.
func (s *Store) Manifest(ctx context.Context, roverID int64) ([]datastore.ManifestEntry, error) {
	ctx = zlog.ContextWithValues(ctx, "component", "datastore/postgres/Store.Manifest")
	const query = `
SELECT p.sol, p.earth_date, count(*), array_agg(DISTINCT c.short_name)
FROM photos p JOIN cameras c ON p.camera_id = c.id
WHERE p.rover_id = $1
GROUP BY p.sol, p.earth_date
ORDER BY p.sol ASC;
`
	rows, err := s.pool.Query(ctx, query, roverID)
	if err != nil {
		return nil, fmt.Errorf("query manifest: %w", err)
	}
	defer rows.Close()

	var out []datastore.ManifestEntry
	for rows.Next() {
		var e datastore.ManifestEntry
		var earthDate time.Time
		if err := rows.Scan(&e.Sol, &earthDate, &e.Count, &e.Cameras); err != nil {
			return nil, fmt.Errorf("scan manifest entry: %w", err)
		}
		e.EarthDate = earthDate
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetByID implements datastore.PhotoStore.
func (s *Store) GetByID(ctx context.Context, id int64) (rovercore.Photo, error) {
	query := fmt.Sprintf(`SELECT %s FROM photos p WHERE p.id = $1;`, photoColumns)
	rows, err := s.pool.Query(ctx, query, id)
	if err != nil {
		return rovercore.Photo{}, fmt.Errorf("query photo: %w", err)
	}
	defer rows.Close()
	photos, err := scanPhotos(rows)
	if err != nil {
		return rovercore.Photo{}, err
	}
	if len(photos) == 0 {
		return rovercore.Photo{}, rovercore.ErrNotFound
	}
	return photos[0], nil
}

func scanPhotos(rows pgx.Rows) ([]rovercore.Photo, error) {
	var out []rovercore.Photo
	for rows.Next() {
		var p rovercore.Photo
		var marsLocal, thumb, small, medium, full, sampleType, filterName, title, caption, credit *string
		var xyz []float64
		if err := rows.Scan(
			&p.ID, &p.ExternalID, &p.RoverID, &p.CameraID, &p.Sol, &p.EarthDate, &p.TakenUTC,
			&marsLocal, &p.ReceivedUTC, &thumb, &small, &medium, &full,
			&p.Width, &p.Height, &sampleType, &p.Site, &p.Drive, &xyz,
			&p.MastAz, &p.MastEl, &filterName, &title, &caption, &credit,
			&p.Raw, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan photo: %w", err)
		}
		p.MarsLocalTime = deref(marsLocal)
		p.Images = rovercore.ImageURLs{
			Thumbnail: deref(thumb), Small: deref(small), Medium: deref(medium), Full: deref(full),
		}
		p.SampleType = deref(sampleType)
		p.Filter = deref(filterName)
		p.Title = deref(title)
		p.Caption = deref(caption)
		p.Credit = deref(credit)
		if len(xyz) == 3 {
			arr := [3]float64{xyz[0], xyz[1], xyz[2]}
			p.XYZ = &arr
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

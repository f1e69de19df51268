package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/quay/zlog"
	"github.com/remind101/migrate"

	"github.com/marsphotos/rovercore/datastore/postgres/migrations"
)

// Connect initializes a pgxpool.Pool from a connection string, the way the
// teacher's database/postgres.Connect does, tagging the pool with an
// application_name for operational visibility.
func Connect(ctx context.Context, connString, applicationName string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if cfg.MaxConns < 4 {
		cfg.MaxConns = 30
	}
	const appnameKey = "application_name"
	if _, ok := cfg.ConnConfig.RuntimeParams[appnameKey]; !ok {
		cfg.ConnConfig.RuntimeParams[appnameKey] = applicationName
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	return pool, nil
}

// Migrate runs every pending rovercore migration against the database the
// pool is connected to.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	ctx = zlog.ContextWithValues(ctx, "component", "datastore/postgres.Migrate")
	cfg := pool.Config().ConnConfig
	db := stdlib.OpenDB(*cfg)
	defer db.Close()

	migrator := migrate.NewPostgresMigrator(db)
	migrator.Table = migrations.MigrationTable
	if err := migrator.Exec(migrate.Up, migrations.Migrations...); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	zlog.Info(ctx).Int("count", len(migrations.Migrations)).Msg("migrations applied")
	return nil
}

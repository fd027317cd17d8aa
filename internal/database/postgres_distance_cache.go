package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"ride-dispatcher/internal/models"
)

const postgresDistanceCacheSchema = `
CREATE TABLE IF NOT EXISTS distance_cache (
	origin_key TEXT NOT NULL,
	dest_key TEXT NOT NULL,
	origin_lat DOUBLE PRECISION NOT NULL,
	origin_lng DOUBLE PRECISION NOT NULL,
	dest_lat DOUBLE PRECISION NOT NULL,
	dest_lng DOUBLE PRECISION NOT NULL,
	distance_meters DOUBLE PRECISION NOT NULL,
	duration_secs DOUBLE PRECISION NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (origin_key, dest_key)
);
`

// PostgresDistanceCache is a Postgres-backed DistanceCacheRepository using the pgx stdlib driver
type PostgresDistanceCache struct {
	DB *sql.DB
}

// OpenPostgresDistanceCache connects with dsn and ensures the cache table exists
func OpenPostgresDistanceCache(ctx context.Context, dsn string) (*PostgresDistanceCache, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, postgresDistanceCacheSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create distance_cache table: %w", err)
	}
	return &PostgresDistanceCache{DB: db}, nil
}

func (s *PostgresDistanceCache) Get(ctx context.Context, origin, dest models.Coordinates) (*models.DistanceCacheEntry, error) {
	if s.DB == nil {
		return nil, errors.New("distance cache: db is nil")
	}

	q := `
	SELECT origin_lat, origin_lng, dest_lat, dest_lng, distance_meters, duration_secs
	FROM distance_cache
	WHERE origin_key = $1 AND dest_key = $2;
	`

	var entry models.DistanceCacheEntry
	err := s.DB.QueryRowContext(ctx, q, origin.Key(), dest.Key()).Scan(
		&entry.Origin.Lat, &entry.Origin.Lng,
		&entry.Destination.Lat, &entry.Destination.Lng,
		&entry.DistanceMeters, &entry.DurationSecs,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get distance cache: %w", err)
	}
	return &entry, nil
}

func (s *PostgresDistanceCache) Set(ctx context.Context, entry *models.DistanceCacheEntry) error {
	return s.SetBatch(ctx, []models.DistanceCacheEntry{*entry})
}

func (s *PostgresDistanceCache) SetBatch(ctx context.Context, entries []models.DistanceCacheEntry) error {
	if s.DB == nil {
		return errors.New("distance cache: db is nil")
	}
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("insert distance cache: db begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO distance_cache (origin_key, dest_key, origin_lat, origin_lng, dest_lat, dest_lng, distance_meters, duration_secs)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (origin_key, dest_key) DO UPDATE
	SET distance_meters = EXCLUDED.distance_meters,
		duration_secs = EXCLUDED.duration_secs;
	`)
	if err != nil {
		return fmt.Errorf("insert distance cache: db prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx,
			e.Origin.Key(), e.Destination.Key(),
			e.Origin.Lat, e.Origin.Lng, e.Destination.Lat, e.Destination.Lng,
			e.DistanceMeters, e.DurationSecs,
		); err != nil {
			return fmt.Errorf("insert distance cache %s: %w", MakeCacheKey(e.Origin, e.Destination), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("insert distance cache commit: %w", err)
	}
	return nil
}

func (s *PostgresDistanceCache) Clear(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, "DELETE FROM distance_cache"); err != nil {
		return fmt.Errorf("clear distance cache: %w", err)
	}
	return nil
}

func (s *PostgresDistanceCache) Close() error {
	return s.DB.Close()
}

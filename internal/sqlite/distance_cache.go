package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ride-dispatcher/internal/models"
)

const upsertRouteLeg = `
INSERT INTO route_legs
	(origin_key, dest_key, origin_lat, origin_lng, dest_lat, dest_lng, distance_meters, duration_secs, fetched_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (origin_key, dest_key) DO UPDATE SET
	distance_meters = excluded.distance_meters,
	duration_secs = excluded.duration_secs,
	fetched_at = excluded.fetched_at`

// routeLegRepository implements database.DistanceCacheRepository over the route_legs table
type routeLegRepository struct {
	store *Store
}

func (r *routeLegRepository) Get(ctx context.Context, origin, dest models.Coordinates) (*models.DistanceCacheEntry, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	entry := models.DistanceCacheEntry{}
	err := r.store.db.QueryRowContext(ctx,
		`SELECT origin_lat, origin_lng, dest_lat, dest_lng, distance_meters, duration_secs
		 FROM route_legs WHERE origin_key = ? AND dest_key = ?`,
		origin.Key(), dest.Key(),
	).Scan(
		&entry.Origin.Lat, &entry.Origin.Lng,
		&entry.Destination.Lat, &entry.Destination.Lng,
		&entry.DistanceMeters, &entry.DurationSecs,
	)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read route leg %s -> %s: %w", origin.Key(), dest.Key(), err)
	}
	return &entry, nil
}

func (r *routeLegRepository) Set(ctx context.Context, entry *models.DistanceCacheEntry) error {
	return r.SetBatch(ctx, []models.DistanceCacheEntry{*entry})
}

// SetBatch upserts all legs in one transaction
func (r *routeLegRepository) SetBatch(ctx context.Context, entries []models.DistanceCacheEntry) error {
	if len(entries) == 0 {
		return nil
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertRouteLeg)
	if err != nil {
		return fmt.Errorf("failed to prepare route leg upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, e := range entries {
		_, err := stmt.ExecContext(ctx,
			e.Origin.Key(), e.Destination.Key(),
			models.RoundCoordinate(e.Origin.Lat), models.RoundCoordinate(e.Origin.Lng),
			models.RoundCoordinate(e.Destination.Lat), models.RoundCoordinate(e.Destination.Lng),
			e.DistanceMeters, e.DurationSecs, now,
		)
		if err != nil {
			return fmt.Errorf("failed to store route leg %s -> %s: %w", e.Origin.Key(), e.Destination.Key(), err)
		}
	}

	return tx.Commit()
}

func (r *routeLegRepository) Clear(ctx context.Context) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, err := r.store.db.ExecContext(ctx, "DELETE FROM route_legs"); err != nil {
		return fmt.Errorf("failed to clear route legs: %w", err)
	}
	return nil
}

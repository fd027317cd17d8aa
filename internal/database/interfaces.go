package database

import (
	"context"

	"ride-dispatcher/internal/models"
)

// DistanceCacheRepository stores per-leg routing results keyed by rounded coordinates.
// A nil entry with a nil error means "not cached".
type DistanceCacheRepository interface {
	Get(ctx context.Context, origin, dest models.Coordinates) (*models.DistanceCacheEntry, error)
	Set(ctx context.Context, entry *models.DistanceCacheEntry) error
	SetBatch(ctx context.Context, entries []models.DistanceCacheEntry) error
	Clear(ctx context.Context) error
}

// RunRepository handles dispatch run history persistence
type RunRepository interface {
	List(ctx context.Context, limit, offset int) ([]models.Run, int, error)
	GetByID(ctx context.Context, id string) (*models.Run, []models.RunAssignment, []models.ID, error)
	Create(ctx context.Context, run *models.Run, assignments []models.RunAssignment, unassigned []models.ID) error
	Delete(ctx context.Context, id string) error
}

// MakeCacheKey keys a directed leg on both endpoints rounded to five decimals
func MakeCacheKey(origin, dest models.Coordinates) string {
	return origin.Key() + "->" + dest.Key()
}

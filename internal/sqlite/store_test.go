package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ride-dispatcher/internal/database"
	"ride-dispatcher/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "data.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_HealthCheck(t *testing.T) {
	store := newTestStore(t)
	assert.NoError(t, store.HealthCheck(context.Background()))
}

func TestStore_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.db")
	ctx := context.Background()

	store, err := New(path, zap.NewNop())
	require.NoError(t, err)
	entry := &models.DistanceCacheEntry{
		Origin:         models.Coordinates{Lat: 1, Lng: 2},
		Destination:    models.Coordinates{Lat: 3, Lng: 4},
		DistanceMeters: 10,
		DurationSecs:   5,
	}
	require.NoError(t, store.DistanceCache().Set(ctx, entry))
	require.NoError(t, store.Close())

	reopened, err := New(path, zap.NewNop())
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.DistanceCache().Get(ctx, entry.Origin, entry.Destination)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 10.0, got.DistanceMeters)
}

func TestDistanceCache_RoundedMatching(t *testing.T) {
	cache := newTestStore(t).DistanceCache()
	ctx := context.Background()

	origin := models.Coordinates{Lat: 40.712776, Lng: -74.005974}
	dest := models.Coordinates{Lat: 40.758896, Lng: -73.985130}
	require.NoError(t, cache.SetBatch(ctx, []models.DistanceCacheEntry{
		{Origin: origin, Destination: dest, DistanceMeters: 6100, DurationSecs: 900},
		{Origin: dest, Destination: origin, DistanceMeters: 6300, DurationSecs: 950},
	}))

	got, err := cache.Get(ctx, models.Coordinates{Lat: 40.7127762, Lng: -74.0059741}, dest)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 6100.0, got.DistanceMeters)

	got, err = cache.Get(ctx, dest, origin)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 950.0, got.DurationSecs)

	require.NoError(t, cache.Clear(ctx))
	got, err = cache.Get(ctx, origin, dest)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDistanceCache_UpsertReplacesLeg(t *testing.T) {
	cache := newTestStore(t).DistanceCache()
	ctx := context.Background()
	origin := models.Coordinates{Lat: 1, Lng: 1}
	dest := models.Coordinates{Lat: 2, Lng: 2}

	require.NoError(t, cache.Set(ctx, &models.DistanceCacheEntry{Origin: origin, Destination: dest, DistanceMeters: 100, DurationSecs: 10}))
	require.NoError(t, cache.Set(ctx, &models.DistanceCacheEntry{Origin: origin, Destination: dest, DistanceMeters: 250, DurationSecs: 30}))

	got, err := cache.Get(ctx, origin, dest)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 250.0, got.DistanceMeters)
	assert.Equal(t, 30.0, got.DurationSecs)
}

func sampleRun(id string, createdAt time.Time) *models.Run {
	return &models.Run{
		ID:          id,
		CreatedAt:   createdAt,
		RideCount:   3,
		DriverCount: 2,
		Rounds:      2,
		Cost:        models.CostBreakdown{InBetween: 1.5, Rides: 10.25, ReturnHome: 2, Total: 13.75},
	}
}

func TestRuns_CreateGetDelete(t *testing.T) {
	runs := newTestStore(t).Runs()
	ctx := context.Background()

	run := sampleRun("run-1", time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	assignments := []models.RunAssignment{
		{DriverID: "A", Sequence: 0, RideID: "R1", CostToStart: 0.5},
		{DriverID: "A", Sequence: 1, RideID: "R3", CostToStart: 1},
		{DriverID: "B", Sequence: 0, RideID: "R2", CostToStart: 0},
	}
	require.NoError(t, runs.Create(ctx, run, assignments, []models.ID{"R9"}))

	got, gotAssignments, unassigned, err := runs.GetByID(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, run.Cost, got.Cost)
	assert.Equal(t, 2, got.Rounds)
	assert.True(t, run.CreatedAt.Equal(got.CreatedAt))
	require.Len(t, gotAssignments, 3)
	assert.Equal(t, models.ID("R3"), gotAssignments[1].RideID)
	assert.Equal(t, "run-1", gotAssignments[2].RunID)
	assert.Equal(t, []models.ID{"R9"}, unassigned)

	require.NoError(t, runs.Delete(ctx, "run-1"))
	_, _, _, err = runs.GetByID(ctx, "run-1")
	assert.ErrorIs(t, err, database.ErrNotFound)
	assert.ErrorIs(t, runs.Delete(ctx, "run-1"), database.ErrNotFound)
}

func TestRuns_GetByIDOrdersNumericIDs(t *testing.T) {
	runs := newTestStore(t).Runs()
	ctx := context.Background()

	assignments := []models.RunAssignment{
		{DriverID: "10", Sequence: 1, RideID: "7"},
		{DriverID: "2", Sequence: 0, RideID: "5"},
		{DriverID: "10", Sequence: 0, RideID: "6"},
	}
	require.NoError(t, runs.Create(ctx, sampleRun("run-ids", time.Now().UTC()), assignments, []models.ID{"10", "9"}))

	_, got, unassigned, err := runs.GetByID(ctx, "run-ids")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []models.ID{"2", "10", "10"}, []models.ID{got[0].DriverID, got[1].DriverID, got[2].DriverID})
	assert.Equal(t, []models.ID{"5", "6", "7"}, []models.ID{got[0].RideID, got[1].RideID, got[2].RideID})
	assert.Equal(t, []models.ID{"9", "10"}, unassigned)
}

func TestRuns_ListPaginatesNewestFirst(t *testing.T) {
	runs := newTestStore(t).Runs()
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "mid", "new"} {
		require.NoError(t, runs.Create(ctx, sampleRun(id, base.Add(time.Duration(i)*time.Hour)), nil, nil))
	}

	page, total, err := runs.List(ctx, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 2)
	assert.Equal(t, "new", page[0].ID)
	assert.Equal(t, "mid", page[1].ID)

	page, _, err = runs.List(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "old", page[0].ID)
}

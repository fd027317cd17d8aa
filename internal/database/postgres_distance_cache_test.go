package database

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ride-dispatcher/internal/models"
)

// Runs only when TEST_POSTGRES_DSN points at a disposable database.
func TestPostgresCache_RoundTrip(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	cache, err := OpenPostgresDistanceCache(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = cache.Clear(ctx)
		_ = cache.Close()
	})
	require.NoError(t, cache.Clear(ctx))

	origin := models.Coordinates{Lat: 34.05, Lng: -118.24}
	dest := models.Coordinates{Lat: 34.10, Lng: -118.30}

	result, err := cache.Get(ctx, origin, dest)
	require.NoError(t, err)
	assert.Nil(t, result)

	require.NoError(t, cache.Set(ctx, &models.DistanceCacheEntry{Origin: origin, Destination: dest, DistanceMeters: 900, DurationSecs: 80}))
	require.NoError(t, cache.Set(ctx, &models.DistanceCacheEntry{Origin: origin, Destination: dest, DistanceMeters: 950, DurationSecs: 85}))

	result, err = cache.Get(ctx, origin, dest)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 950.0, result.DistanceMeters)
	assert.Equal(t, 85.0, result.DurationSecs)
}

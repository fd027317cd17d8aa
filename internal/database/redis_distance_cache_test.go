package database

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ride-dispatcher/internal/models"
)

func newTestRedisCache(t *testing.T, ttl time.Duration) (*RedisDistanceCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisDistanceCache(client, ttl), mr
}

func TestRedisCache_SetGet(t *testing.T) {
	cache, _ := newTestRedisCache(t, 0)
	ctx := context.Background()
	origin := models.Coordinates{Lat: 40.1, Lng: -74.2}
	dest := models.Coordinates{Lat: 40.3, Lng: -74.4}

	result, err := cache.Get(ctx, origin, dest)
	require.NoError(t, err)
	assert.Nil(t, result)

	require.NoError(t, cache.Set(ctx, &models.DistanceCacheEntry{
		Origin: origin, Destination: dest, DistanceMeters: 4200, DurationSecs: 300,
	}))

	result, err = cache.Get(ctx, models.Coordinates{Lat: 40.1000001, Lng: -74.2}, dest)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 4200.0, result.DistanceMeters)
	assert.Equal(t, 300.0, result.DurationSecs)
}

func TestRedisCache_TTL(t *testing.T) {
	cache, mr := newTestRedisCache(t, time.Hour)
	ctx := context.Background()
	origin := models.Coordinates{Lat: 1, Lng: 1}
	dest := models.Coordinates{Lat: 2, Lng: 2}

	require.NoError(t, cache.SetBatch(ctx, []models.DistanceCacheEntry{
		{Origin: origin, Destination: dest, DistanceMeters: 10},
	}))
	assert.Equal(t, time.Hour, mr.TTL(cache.key(origin, dest)))

	mr.FastForward(2 * time.Hour)

	result, err := cache.Get(ctx, origin, dest)
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestRedisCache_ClearKeepsForeignKeys(t *testing.T) {
	cache, mr := newTestRedisCache(t, 0)
	ctx := context.Background()

	require.NoError(t, mr.Set("unrelated", "value"))
	require.NoError(t, cache.SetBatch(ctx, []models.DistanceCacheEntry{
		{Origin: models.Coordinates{Lat: 0, Lng: 0}, Destination: models.Coordinates{Lat: 1, Lng: 1}, DistanceMeters: 1},
		{Origin: models.Coordinates{Lat: 1, Lng: 1}, Destination: models.Coordinates{Lat: 2, Lng: 2}, DistanceMeters: 2},
	}))

	require.NoError(t, cache.Clear(ctx))

	result, err := cache.Get(ctx, models.Coordinates{Lat: 0, Lng: 0}, models.Coordinates{Lat: 1, Lng: 1})
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.True(t, mr.Exists("unrelated"))
}

func TestRedisCache_CorruptEntry(t *testing.T) {
	cache, mr := newTestRedisCache(t, 0)
	origin := models.Coordinates{Lat: 5, Lng: 5}
	dest := models.Coordinates{Lat: 6, Lng: 6}
	require.NoError(t, mr.Set(cache.key(origin, dest), "not-json"))

	_, err := cache.Get(context.Background(), origin, dest)
	assert.ErrorContains(t, err, "redis decode entry")
}

func TestOpenRedisDistanceCache_Unreachable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	_, err = OpenRedisDistanceCache(context.Background(), addr, 0)
	assert.Error(t, err)
}

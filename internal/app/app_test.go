package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ride-dispatcher/internal/config"
	"ride-dispatcher/internal/database"
	"ride-dispatcher/internal/models"
)

func testConfig(t *testing.T, backend string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Routing: config.RoutingConfig{
			BaseURL:        "http://127.0.0.1:1",
			Profile:        "driving",
			MaxAttempts:    1,
			RequestTimeout: time.Second,
		},
		Dispatch: config.DispatchConfig{LookupWorkers: 2, HourlyWage: 30},
		Cache: config.CacheConfig{
			Backend:    backend,
			File:       filepath.Join(dir, "cache", "distances.json"),
			SQLitePath: filepath.Join(dir, "data.db"),
			RedisTTL:   time.Hour,
		},
	}
}

func TestNew_MemoryBackend(t *testing.T) {
	a, err := New(context.Background(), testConfig(t, config.CacheMemory), zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &database.MemoryDistanceCache{}, a.Cache)
	assert.NotNil(t, a.Router)
	assert.NotNil(t, a.Dispatcher)
	assert.NoError(t, a.HealthCheck(context.Background()))
}

func TestNew_FileBackendCreatesCacheFile(t *testing.T) {
	cfg := testConfig(t, config.CacheFile)
	a, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &database.FileDistanceCache{}, a.Cache)
	assert.FileExists(t, cfg.Cache.File)
}

func TestClose_FlushesFileCache(t *testing.T) {
	cfg := testConfig(t, config.CacheFile)
	a, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, a.Cache.Set(context.Background(), &models.DistanceCacheEntry{
		Origin:         models.Coordinates{Lat: 1, Lng: 1},
		Destination:    models.Coordinates{Lat: 2, Lng: 2},
		DistanceMeters: 1000,
	}))
	require.NoError(t, a.Close())

	reopened, err := database.NewFileDistanceCache(cfg.Cache.File, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 1, reopened.Count())
}

func TestNew_SQLiteBackendSharesStore(t *testing.T) {
	a, err := New(context.Background(), testConfig(t, config.CacheSQLite), zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	ctx := context.Background()
	entry := &models.DistanceCacheEntry{
		Origin:         models.Coordinates{Lat: 1, Lng: 1},
		Destination:    models.Coordinates{Lat: 2, Lng: 2},
		DistanceMeters: 1000,
		DurationSecs:   60,
	}
	require.NoError(t, a.Cache.Set(ctx, entry))

	got, err := a.Store.DistanceCache().Get(ctx, entry.Origin, entry.Destination)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 1000.0, got.DistanceMeters)
}

func TestNew_RedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t, config.CacheRedis)
	cfg.Cache.RedisAddr = mr.Addr()

	a, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)

	assert.IsType(t, &database.RedisDistanceCache{}, a.Cache)
	assert.NoError(t, a.Close())
}

func TestNew_RedisUnreachable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	cfg := testConfig(t, config.CacheRedis)
	cfg.Cache.RedisAddr = addr

	_, err = New(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "distance cache")
}

func TestNew_UnknownBackend(t *testing.T) {
	_, err := New(context.Background(), testConfig(t, "etcd"), zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown cache backend "etcd"`)
}

func TestDispatcherSavesToStore(t *testing.T) {
	a, err := New(context.Background(), testConfig(t, config.CacheMemory), zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	ctx := context.Background()
	drivers := []models.Driver{{ID: "1", Home: models.Coordinates{Lat: 0, Lng: 0}, Seats: 4, FuelCost: 1}}

	res, err := a.Dispatcher.Dispatch(ctx, nil, drivers)
	require.NoError(t, err)
	assert.Empty(t, res.Manifest.Assignments)
	require.NoError(t, a.Dispatcher.Save(ctx, res))

	runs, total, err := a.Store.Runs().List(ctx, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, runs, 1)
	assert.Equal(t, res.RunID, runs[0].ID)
}

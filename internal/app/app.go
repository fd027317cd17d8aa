// Package app opens the configured stores and assembles the dispatcher shared by the CLI and the HTTP service.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"ride-dispatcher/internal/config"
	"ride-dispatcher/internal/database"
	"ride-dispatcher/internal/dispatch"
	"ride-dispatcher/internal/distance"
	"ride-dispatcher/internal/sqlite"
)

// App holds long-lived dependencies
type App struct {
	Config     *config.Config
	Store      *sqlite.Store
	Cache      database.DistanceCacheRepository
	Router     distance.RouteCostProvider
	Dispatcher *dispatch.Dispatcher

	log     *zap.Logger
	closers []io.Closer
}

// New opens the run-history store and the distance cache selected by cfg.Cache.Backend
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	a := &App{Config: cfg, log: log}

	dbPath := cfg.Cache.SQLitePath
	if dbPath == "" {
		p, err := database.GetDefaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve database path: %w", err)
		}
		dbPath = p
	}

	log.Info("[APP] Initializing data store...")
	store, err := sqlite.New(dbPath, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize data store: %w", err)
	}
	a.Store = store
	a.closers = append(a.closers, store)

	log.Info("[APP] Initializing distance cache...", zap.String("backend", cfg.Cache.Backend))
	cache, err := a.openCache(ctx, cfg.Cache)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize distance cache: %w", err)
	}
	a.Cache = cache

	a.Router = distance.NewOSRMRouter(distance.Config{
		BaseURL:        cfg.Routing.BaseURL,
		MaxAttempts:    cfg.Routing.MaxAttempts,
		RetryBackoff:   cfg.Routing.RetryBackoff,
		RequestTimeout: cfg.Routing.RequestTimeout,
		RateLimit:      cfg.Routing.RateLimit,
	}, cache, log)

	a.Dispatcher = dispatch.NewDispatcher(a.Router, dispatch.Options{
		Profile:       cfg.Routing.Profile,
		LookupWorkers: cfg.Dispatch.LookupWorkers,
		HourlyWage:    cfg.Dispatch.HourlyWage,
	}, cfg.Dispatch.RunTimeout, store.Runs(), log)

	return a, nil
}

func (a *App) openCache(ctx context.Context, cc config.CacheConfig) (database.DistanceCacheRepository, error) {
	switch cc.Backend {
	case config.CacheMemory:
		return database.NewMemoryDistanceCache(), nil
	case config.CacheFile:
		path := cc.File
		if path == "" {
			p, err := database.GetDistanceCachePath()
			if err != nil {
				return nil, err
			}
			path = p
		}
		fc, err := database.NewFileDistanceCache(path, a.log)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, fc)
		return fc, nil
	case config.CacheSQLite:
		return a.Store.DistanceCache(), nil
	case config.CachePostgres:
		pg, err := database.OpenPostgresDistanceCache(ctx, cc.PostgresDSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pg)
		return pg, nil
	case config.CacheRedis:
		rc, err := database.OpenRedisDistanceCache(ctx, cc.RedisAddr, cc.RedisTTL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, rc)
		return rc, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cc.Backend)
	}
}

// HealthCheck reports whether the run-history store is reachable
func (a *App) HealthCheck(ctx context.Context) error {
	return a.Store.HealthCheck(ctx)
}

// Close releases stores in reverse order of opening
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

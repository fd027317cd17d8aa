package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"ride-dispatcher/internal/database"

	_ "modernc.org/sqlite"
)

const schemaVersion = 1

// Store is a SQLite-backed home for the distance cache and run history
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
	log    *zap.Logger

	runRepo           database.RunRepository
	distanceCacheRepo database.DistanceCacheRepository
}

// New creates a new SQLite store at the specified path
func New(dbPath string, log *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	log.Info("[STORE] Opening SQLite database", zap.String("path", dbPath))

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	store := &Store{db: db, dbPath: dbPath, log: log}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	store.runRepo = &runRepository{store: store}
	store.distanceCacheRepo = &routeLegRepository{store: store}

	return store, nil
}

// GetDBPath returns the current database file path
func (s *Store) GetDBPath() string {
	return s.dbPath
}

func (s *Store) initSchema() error {
	var version int
	if err := s.db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return s.createSchema()
	}
	if version < schemaVersion {
		_, err := s.db.Exec("UPDATE schema_version SET version = ?", schemaVersion)
		return err
	}
	return nil
}

func (s *Store) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);
	INSERT INTO schema_version (version) VALUES (1);

	-- Dispatch runs
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL,
		ride_count INTEGER NOT NULL,
		driver_count INTEGER NOT NULL,
		rounds INTEGER NOT NULL,
		in_between_cost REAL NOT NULL DEFAULT 0,
		ride_cost REAL NOT NULL DEFAULT 0,
		return_home_cost REAL NOT NULL DEFAULT 0,
		total_cost REAL NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS run_assignments (
		run_id TEXT NOT NULL,
		driver_id TEXT NOT NULL,
		sequence INTEGER NOT NULL,
		ride_id TEXT NOT NULL,
		cost_to_start REAL NOT NULL DEFAULT 0,
		PRIMARY KEY (run_id, driver_id, sequence),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS run_unassigned (
		run_id TEXT NOT NULL,
		ride_id TEXT NOT NULL,
		PRIMARY KEY (run_id, ride_id),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	-- Route legs from the routing backend, keyed like every other cache backend
	CREATE TABLE IF NOT EXISTS route_legs (
		origin_key TEXT NOT NULL,
		dest_key TEXT NOT NULL,
		origin_lat REAL NOT NULL,
		origin_lng REAL NOT NULL,
		dest_lat REAL NOT NULL,
		dest_lng REAL NOT NULL,
		distance_meters REAL NOT NULL,
		duration_secs REAL NOT NULL,
		fetched_at DATETIME NOT NULL,
		PRIMARY KEY (origin_key, dest_key)
	);

	CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at DESC);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	s.log.Info("[STORE] SQLite schema initialized", zap.Int("version", schemaVersion))
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		return s.db.Close()
	}
	return nil
}

// HealthCheck verifies the database connection
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Runs() database.RunRepository                    { return s.runRepo }
func (s *Store) DistanceCache() database.DistanceCacheRepository { return s.distanceCacheRepo }

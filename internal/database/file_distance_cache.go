package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"ride-dispatcher/internal/models"
)

const legFileVersion = 1

// legFile is the on-disk layout: one object per directed leg, keyed by MakeCacheKey
type legFile struct {
	Version int                                  `json:"version"`
	Legs    map[string]models.DistanceCacheEntry `json:"legs"`
}

// FileDistanceCache keeps route legs in memory and persists them to a single JSON file.
// New legs reach disk on Flush or Close; Clear is written immediately.
type FileDistanceCache struct {
	path string
	log  *zap.Logger

	mu    sync.RWMutex
	legs  map[string]models.DistanceCacheEntry
	dirty bool
}

// NewFileDistanceCache opens (or creates) the cache file at path.
// A file written with a different layout version is discarded.
func NewFileDistanceCache(path string, log *zap.Logger) (*FileDistanceCache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	c := &FileDistanceCache{path: path, log: log, legs: make(map[string]models.DistanceCacheEntry)}
	if err := c.load(); err != nil {
		return nil, err
	}

	log.Info("[CACHE] Loaded distance cache", zap.String("path", path), zap.Int("legs", len(c.legs)))
	return c, nil
}

func (c *FileDistanceCache) load() error {
	raw, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return c.flush()
	}
	if err != nil {
		return fmt.Errorf("failed to read cache file: %w", err)
	}

	var f legFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("failed to parse cache file %s: %w", c.path, err)
	}
	if f.Version != legFileVersion {
		c.log.Warn("[CACHE] Discarding cache file with unknown layout",
			zap.String("path", c.path), zap.Int("version", f.Version))
		return c.flush()
	}
	if f.Legs != nil {
		c.legs = f.Legs
	}
	return nil
}

// flush writes the whole cache to a temp file beside the target and renames it into place.
// Callers hold the write lock (or own c exclusively).
func (c *FileDistanceCache) flush() error {
	tmp, err := os.CreateTemp(filepath.Dir(c.path), filepath.Base(c.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp cache file: %w", err)
	}
	defer os.Remove(tmp.Name())

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(legFile{Version: legFileVersion, Legs: c.legs}); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write temp cache file: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		return fmt.Errorf("failed to replace cache file: %w", err)
	}
	return nil
}

func (c *FileDistanceCache) Get(ctx context.Context, origin, dest models.Coordinates) (*models.DistanceCacheEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.legs[MakeCacheKey(origin, dest)]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

func (c *FileDistanceCache) Set(ctx context.Context, entry *models.DistanceCacheEntry) error {
	return c.SetBatch(ctx, []models.DistanceCacheEntry{*entry})
}

// SetBatch stores legs in memory and marks the file stale
func (c *FileDistanceCache) SetBatch(ctx context.Context, entries []models.DistanceCacheEntry) error {
	if len(entries) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range entries {
		c.legs[MakeCacheKey(e.Origin, e.Destination)] = e
	}
	c.dirty = true
	return nil
}

func (c *FileDistanceCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.legs = make(map[string]models.DistanceCacheEntry)
	if err := c.flush(); err != nil {
		return err
	}
	c.dirty = false
	return nil
}

// Flush writes pending legs to disk. It is a no-op when nothing changed since the last write.
func (c *FileDistanceCache) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.dirty {
		return nil
	}
	if err := c.flush(); err != nil {
		return err
	}
	c.dirty = false
	c.log.Debug("[CACHE] Flushed distance cache", zap.String("path", c.path), zap.Int("legs", len(c.legs)))
	return nil
}

// Close flushes pending legs
func (c *FileDistanceCache) Close() error {
	return c.Flush()
}

// Count returns the number of cached legs
func (c *FileDistanceCache) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.legs)
}

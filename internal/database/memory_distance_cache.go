package database

import (
	"context"
	"sync"

	"ride-dispatcher/internal/models"
)

// MemoryDistanceCache keeps legs for the lifetime of the process
type MemoryDistanceCache struct {
	mu      sync.RWMutex
	entries map[string]models.DistanceCacheEntry
}

func NewMemoryDistanceCache() *MemoryDistanceCache {
	return &MemoryDistanceCache{entries: make(map[string]models.DistanceCacheEntry)}
}

func (c *MemoryDistanceCache) Get(ctx context.Context, origin, dest models.Coordinates) (*models.DistanceCacheEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[MakeCacheKey(origin, dest)]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

func (c *MemoryDistanceCache) Set(ctx context.Context, entry *models.DistanceCacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[MakeCacheKey(entry.Origin, entry.Destination)] = *entry
	return nil
}

func (c *MemoryDistanceCache) SetBatch(ctx context.Context, entries []models.DistanceCacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range entries {
		c.entries[MakeCacheKey(e.Origin, e.Destination)] = e
	}
	return nil
}

func (c *MemoryDistanceCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]models.DistanceCacheEntry)
	return nil
}

// Count returns the number of cached legs
func (c *MemoryDistanceCache) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

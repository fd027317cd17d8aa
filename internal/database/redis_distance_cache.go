package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"ride-dispatcher/internal/models"
)

const redisKeyPrefix = "ride-dispatcher:leg:"

// RedisDistanceCache shares cached legs between processes through Redis.
// Entries expire after ttl; a zero ttl keeps them forever.
type RedisDistanceCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisDistanceCache(client *redis.Client, ttl time.Duration) *RedisDistanceCache {
	return &RedisDistanceCache{client: client, ttl: ttl}
}

// OpenRedisDistanceCache connects to addr and verifies the connection
func OpenRedisDistanceCache(ctx context.Context, addr string, ttl time.Duration) (*RedisDistanceCache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return NewRedisDistanceCache(client, ttl), nil
}

func (c *RedisDistanceCache) key(origin, dest models.Coordinates) string {
	return redisKeyPrefix + MakeCacheKey(origin, dest)
}

func (c *RedisDistanceCache) Get(ctx context.Context, origin, dest models.Coordinates) (*models.DistanceCacheEntry, error) {
	raw, err := c.client.Get(ctx, c.key(origin, dest)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry models.DistanceCacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("redis decode entry: %w", err)
	}
	return &entry, nil
}

func (c *RedisDistanceCache) Set(ctx context.Context, entry *models.DistanceCacheEntry) error {
	return c.SetBatch(ctx, []models.DistanceCacheEntry{*entry})
}

func (c *RedisDistanceCache) SetBatch(ctx context.Context, entries []models.DistanceCacheEntry) error {
	if len(entries) == 0 {
		return nil
	}

	pipe := c.client.TxPipeline()
	for _, entry := range entries {
		raw, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("redis encode entry: %w", err)
		}
		pipe.Set(ctx, c.key(entry.Origin, entry.Destination), raw, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis set batch: %w", err)
	}
	return nil
}

// Clear removes every leg under the cache prefix, leaving other keys alone
func (c *RedisDistanceCache) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

func (c *RedisDistanceCache) Close() error {
	return c.client.Close()
}

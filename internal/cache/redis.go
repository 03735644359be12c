// Package cache provides a Redis-backed JSON cache for the index read
// endpoints. The service treats the cache as optional: a nil *Cache is
// accepted everywhere and simply disables caching.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/trogers1052/stock-index-service/internal/config"
)

// DefaultTTL is how long cached index payloads live before expiring.
const DefaultTTL = time.Hour

// Cache wraps the Redis client
type Cache struct {
	client *redis.Client
}

// New creates a Redis cache connection and verifies it with a ping
func New(cfg config.RedisConfig) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Cache{client: client}, nil
}

// NewFromClient wraps an existing Redis client
func NewFromClient(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// GetJSON reads a key and unmarshals its JSON payload into dest. The
// second return reports whether the key was present.
func (c *Cache) GetJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	if c == nil {
		return false, nil
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read cache key %s: %w", key, err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to decode cached payload for %s: %w", key, err)
	}
	return true, nil
}

// SetJSON marshals value to JSON and stores it under key with a TTL
func (c *Cache) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if c == nil {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode payload for %s: %w", key, err)
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write cache key %s: %w", key, err)
	}
	return nil
}

// Delete removes the given keys
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if c == nil || len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete cache keys: %w", err)
	}
	return nil
}

// DeleteByPattern removes every key matching a glob pattern
func (c *Cache) DeleteByPattern(ctx context.Context, pattern string) error {
	if c == nil {
		return nil
	}

	keys, err := c.client.Keys(ctx, pattern).Result()
	if err != nil {
		return fmt.Errorf("failed to list cache keys for %s: %w", pattern, err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete cache keys for %s: %w", pattern, err)
	}
	return nil
}

// CompositionKey is the cache key for a single day's index composition
func CompositionKey(date string) string {
	return "index_composition:" + date
}

// PerformanceKey is the cache key for a performance range query
func PerformanceKey(start, end string) string {
	return "index_performance:" + start + ":" + end
}

// ChangesKey is the cache key for a composition changes range query
func ChangesKey(start, end string) string {
	return "composition_changes:" + start + ":" + end
}

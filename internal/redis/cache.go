package redis

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/riddle-backend/internal/metrics"
)

// Cache is a best-effort JSON cache. Failures are logged and reported as
// misses, never returned to callers.
type Cache struct {
	client *redis.Client
	logger *slog.Logger
}

// NewCache creates a cache over an existing client
func NewCache(client *redis.Client, logger *slog.Logger) *Cache {
	return &Cache{client: client, logger: logger}
}

// Get decodes the value at key into dest and reports whether it was found
func (c *Cache) Get(ctx context.Context, key string, dest any) bool {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.fail("get", key, err)
		}
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		c.fail("decode", key, err)
		return false
	}
	return true
}

// Set stores value as JSON; ttl <= 0 stores without expiry
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		c.fail("encode", key, err)
		return
	}
	if ttl < 0 {
		ttl = 0
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.fail("set", key, err)
	}
}

// Delete removes keys
func (c *Cache) Delete(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.fail("delete", keys[0], err)
	}
}

// DeletePattern removes every key matching a glob pattern
func (c *Cache) DeletePattern(ctx context.Context, pattern string) {
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	batch := make([]string, 0, 100)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			c.Delete(ctx, batch...)
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		c.fail("scan", pattern, err)
		return
	}
	c.Delete(ctx, batch...)
}

// Increment adds one to the counter at key and refreshes its ttl.
// The second return is false when the cache is unavailable.
func (c *Cache) Increment(ctx context.Context, key string, ttl time.Duration) (int64, bool) {
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.fail("incr", key, err)
		return 0, false
	}
	return incr.Val(), true
}

// Ping checks connectivity
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Cache) fail(op, key string, err error) {
	metrics.CacheErrors.WithLabelValues(op).Inc()
	c.logger.Warn("cache operation failed", "op", op, "key", key, "error", err)
}

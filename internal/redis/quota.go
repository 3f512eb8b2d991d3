package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Unlimited disables the limit check in Consume
const Unlimited int64 = -1

// Result codes returned by the consume script
const (
	quotaDenied  = -1
	quotaMissing = -2
)

var (
	// ErrQuotaExceeded means the counter is already at the limit
	ErrQuotaExceeded = errors.New("daily quota exceeded")
	// ErrQuotaUnseeded means the counter does not exist yet and must be seeded
	ErrQuotaUnseeded = errors.New("daily quota counter not seeded")
)

// consumeScript increments the counter only while it is below the limit.
// KEYS[1] counter, ARGV[1] limit (negative = unlimited), ARGV[2] ttl seconds.
var consumeScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if not current then
	return -2
end
local limit = tonumber(ARGV[1])
if limit >= 0 and tonumber(current) >= limit then
	return -1
end
local n = redis.call('INCR', KEYS[1])
redis.call('EXPIRE', KEYS[1], ARGV[2])
return n
`)

// releaseScript gives back one unit without going below zero
var releaseScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if current <= 0 then
	return 0
end
return redis.call('DECR', KEYS[1])
`)

// QuotaCounter tracks riddles served per user per UTC day
type QuotaCounter struct {
	client *redis.Client
	logger *slog.Logger
	ttl    time.Duration
}

// NewQuotaCounter creates a counter whose keys expire after a day
func NewQuotaCounter(client *redis.Client, logger *slog.Logger) *QuotaCounter {
	return &QuotaCounter{client: client, logger: logger, ttl: TTLLong}
}

// Consume atomically checks the counter against limit and increments it.
// It returns the new count, ErrQuotaExceeded, or ErrQuotaUnseeded.
func (q *QuotaCounter) Consume(ctx context.Context, userID string, day time.Time, limit int64) (int64, error) {
	key := DailyLimitKey(userID, day)
	n, err := consumeScript.Run(ctx, q.client, []string{key}, limit, int(q.ttl.Seconds())).Int64()
	if err != nil {
		return 0, fmt.Errorf("consuming quota: %w", err)
	}
	switch n {
	case quotaDenied:
		return 0, ErrQuotaExceeded
	case quotaMissing:
		return 0, ErrQuotaUnseeded
	}
	return n, nil
}

// Seed initialises the counter if it does not already exist
func (q *QuotaCounter) Seed(ctx context.Context, userID string, day time.Time, count int64) error {
	key := DailyLimitKey(userID, day)
	if err := q.client.SetNX(ctx, key, count, q.ttl).Err(); err != nil {
		return fmt.Errorf("seeding quota: %w", err)
	}
	return nil
}

// Release returns one unit consumed by a request that then failed
func (q *QuotaCounter) Release(ctx context.Context, userID string, day time.Time) {
	key := DailyLimitKey(userID, day)
	if err := releaseScript.Run(ctx, q.client, []string{key}).Err(); err != nil {
		q.logger.Warn("failed to release quota", "user_id", userID, "error", err)
	}
}

// Count returns the current count; a missing counter reads as found=false
func (q *QuotaCounter) Count(ctx context.Context, userID string, day time.Time) (int64, bool, error) {
	n, err := q.client.Get(ctx, DailyLimitKey(userID, day)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("reading quota: %w", err)
	}
	return n, true, nil
}

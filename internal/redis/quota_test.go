package redis

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riddle-backend/internal/logging"
	"github.com/riddle-backend/internal/testhelper"
)

var quotaDay = time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)

func TestQuotaConsumeRequiresSeed(t *testing.T) {
	_, client := testhelper.NewRedis(t)
	q := NewQuotaCounter(client, logging.Discard())

	_, err := q.Consume(context.Background(), "u1", quotaDay, 5)
	assert.ErrorIs(t, err, ErrQuotaUnseeded)
}

func TestQuotaConsumeStopsAtLimit(t *testing.T) {
	_, client := testhelper.NewRedis(t)
	q := NewQuotaCounter(client, logging.Discard())
	ctx := context.Background()

	require.NoError(t, q.Seed(ctx, "u1", quotaDay, 0))
	for i := int64(1); i <= 5; i++ {
		n, err := q.Consume(ctx, "u1", quotaDay, 5)
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}

	_, err := q.Consume(ctx, "u1", quotaDay, 5)
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	n, found, err := q.Count(ctx, "u1", quotaDay)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(5), n)
}

func TestQuotaUnlimited(t *testing.T) {
	_, client := testhelper.NewRedis(t)
	q := NewQuotaCounter(client, logging.Discard())
	ctx := context.Background()

	require.NoError(t, q.Seed(ctx, "u1", quotaDay, 100))
	n, err := q.Consume(ctx, "u1", quotaDay, Unlimited)
	require.NoError(t, err)
	assert.Equal(t, int64(101), n)
}

func TestQuotaSeedDoesNotOverwrite(t *testing.T) {
	_, client := testhelper.NewRedis(t)
	q := NewQuotaCounter(client, logging.Discard())
	ctx := context.Background()

	require.NoError(t, q.Seed(ctx, "u1", quotaDay, 3))
	require.NoError(t, q.Seed(ctx, "u1", quotaDay, 0))

	n, _, err := q.Count(ctx, "u1", quotaDay)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestQuotaKeysArePerDay(t *testing.T) {
	_, client := testhelper.NewRedis(t)
	q := NewQuotaCounter(client, logging.Discard())
	ctx := context.Background()

	require.NoError(t, q.Seed(ctx, "u1", quotaDay, 5))
	_, err := q.Consume(ctx, "u1", quotaDay.Add(24*time.Hour), 5)
	assert.ErrorIs(t, err, ErrQuotaUnseeded)
}

func TestQuotaRelease(t *testing.T) {
	_, client := testhelper.NewRedis(t)
	q := NewQuotaCounter(client, logging.Discard())
	ctx := context.Background()

	require.NoError(t, q.Seed(ctx, "u1", quotaDay, 0))
	_, err := q.Consume(ctx, "u1", quotaDay, 5)
	require.NoError(t, err)

	q.Release(ctx, "u1", quotaDay)
	q.Release(ctx, "u1", quotaDay)

	n, _, err := q.Count(ctx, "u1", quotaDay)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestQuotaConcurrentConsumersNeverExceedLimit(t *testing.T) {
	_, client := testhelper.NewRedis(t)
	q := NewQuotaCounter(client, logging.Discard())
	ctx := context.Background()
	require.NoError(t, q.Seed(ctx, "u1", quotaDay, 0))

	var granted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := q.Consume(ctx, "u1", quotaDay, 5); err == nil {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(5), granted.Load())
}

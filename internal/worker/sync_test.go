package worker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riddle-backend/internal/config"
	"github.com/riddle-backend/internal/domain"
	"github.com/riddle-backend/internal/logging"
	"github.com/riddle-backend/internal/redis"
	"github.com/riddle-backend/internal/service"
	"github.com/riddle-backend/internal/testhelper"
)

func newWorker(t *testing.T, interval time.Duration) (*SyncWorker, *service.LeaderboardService, *testhelper.MemStore) {
	t.Helper()
	w, boards, store, _ := newWorkerWithRedis(t, interval)
	return w, boards, store
}

func newWorkerWithRedis(t *testing.T, interval time.Duration) (*SyncWorker, *service.LeaderboardService, *testhelper.MemStore, *miniredis.Miniredis) {
	t.Helper()
	logger := logging.Discard()
	mini, client := testhelper.NewRedis(t)
	store := testhelper.NewMemStore()
	boards := service.NewLeaderboardService(redis.NewLeaderboard(client, logger), store,
		&config.LeaderboardConfig{DefaultLimit: 10, MaxLimit: 100}, logger)
	w := NewSyncWorker(boards, store, &config.SyncConfig{Interval: interval, MaxEntries: 2}, logger)
	return w, boards, store, mini
}

func TestFlushAllWritesTopEntries(t *testing.T) {
	w, boards, store := newWorker(t, time.Hour)
	ctx := context.Background()

	boards.RecordSolve(ctx, "u1", "ada", 1)
	boards.RecordSolve(ctx, "u2", "grace", 5)
	boards.RecordSolve(ctx, "u3", "linus", 3)

	w.FlushAll(ctx)

	for _, period := range domain.Periods {
		entries, err := store.GetLeaderboardEntries(ctx, period, time.Time{}, 10)
		require.NoError(t, err)
		require.Len(t, entries, 2, period)
		assert.Equal(t, "u2", entries[0].UserID)
		assert.Equal(t, "u3", entries[1].UserID)
	}
}

func TestRestoreAllRefillsEmptyBoards(t *testing.T) {
	w, boards, store := newWorker(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, store.UpsertLeaderboardEntries(ctx, domain.PeriodAllTime, []domain.LeaderboardEntry{
		{Rank: 1, UserID: "u1", Username: "ada", Score: 8},
	}))

	require.NoError(t, w.RestoreAll(ctx))

	page, err := boards.GetTopPlayers(ctx, domain.PeriodAllTime, 10)
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
	assert.Equal(t, int64(8), page.Entries[0].Score)
}

func TestRestoreAllSkipsExpiredPeriods(t *testing.T) {
	w, boards, _, mini := newWorkerWithRedis(t, time.Hour)
	ctx := context.Background()

	boards.RecordSolve(ctx, "u1", "ada", 7)
	w.FlushAll(ctx)

	mini.FastForward(48 * time.Hour)
	later := time.Now().Add(48 * time.Hour)
	boards.SetClock(func() time.Time { return later })

	require.NoError(t, w.RestoreAll(ctx))

	daily, err := boards.GetTopPlayers(ctx, domain.PeriodDaily, 10)
	require.NoError(t, err)
	assert.Empty(t, daily.Entries)

	weekly, err := boards.GetTopPlayers(ctx, domain.PeriodWeekly, 10)
	require.NoError(t, err)
	require.Len(t, weekly.Entries, 1)
	assert.Equal(t, int64(7), weekly.Entries[0].Score)

	alltime, err := boards.GetTopPlayers(ctx, domain.PeriodAllTime, 10)
	require.NoError(t, err)
	require.Len(t, alltime.Entries, 1)
}

func TestStopFlushesBeforeExit(t *testing.T) {
	w, boards, store := newWorker(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, w.Start(ctx))
	assert.True(t, w.IsRunning())

	boards.RecordSolve(ctx, "u1", "ada", 2)
	require.NoError(t, w.Stop())
	assert.False(t, w.IsRunning())

	entries, err := store.GetLeaderboardEntries(ctx, domain.PeriodDaily, time.Time{}, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestTickerFlushes(t *testing.T) {
	w, boards, store := newWorker(t, 20*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	boards.RecordSolve(ctx, "u1", "ada", 2)
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	require.Eventually(t, func() bool {
		entries, _ := store.GetLeaderboardEntries(context.Background(), domain.PeriodWeekly, time.Time{}, 10)
		return len(entries) == 1
	}, time.Second, 10*time.Millisecond)
}

package redis

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riddle-backend/internal/domain"
	"github.com/riddle-backend/internal/logging"
	"github.com/riddle-backend/internal/testhelper"
)

func TestLeaderboardTopNOrdering(t *testing.T) {
	_, client := testhelper.NewRedis(t)
	board := NewLeaderboard(client, logging.Discard())
	ctx := context.Background()

	for i := 1; i <= 15; i++ {
		require.NoError(t, board.SetScore(ctx, domain.PeriodDaily, fmt.Sprintf("u%d", i), fmt.Sprintf("player%d", i), int64(i*10)))
	}

	top, err := board.GetTopN(ctx, domain.PeriodDaily, 10)
	require.NoError(t, err)
	require.Len(t, top, 10)

	for i, e := range top {
		assert.Equal(t, int64(i+1), e.Rank)
		if i > 0 {
			assert.Greater(t, top[i-1].Score, e.Score)
		}
	}
	assert.Equal(t, "u15", top[0].UserID)
	assert.Equal(t, "player15", top[0].Username)
	assert.Equal(t, int64(150), top[0].Score)
}

func TestLeaderboardSetScoreReplaces(t *testing.T) {
	_, client := testhelper.NewRedis(t)
	board := NewLeaderboard(client, logging.Discard())
	ctx := context.Background()

	require.NoError(t, board.SetScore(ctx, domain.PeriodAllTime, "u1", "alice", 3))
	require.NoError(t, board.SetScore(ctx, domain.PeriodAllTime, "u1", "alice", 4))

	count, err := board.GetCount(ctx, domain.PeriodAllTime)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	entry, err := board.GetUserRank(ctx, domain.PeriodAllTime, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), entry.Score)
	assert.Equal(t, int64(1), entry.Rank)
	assert.Equal(t, "alice", entry.Username)
}

func TestLeaderboardRank(t *testing.T) {
	_, client := testhelper.NewRedis(t)
	board := NewLeaderboard(client, logging.Discard())
	ctx := context.Background()

	require.NoError(t, board.SetScore(ctx, domain.PeriodWeekly, "a", "", 5))
	require.NoError(t, board.SetScore(ctx, domain.PeriodWeekly, "b", "", 9))
	require.NoError(t, board.SetScore(ctx, domain.PeriodWeekly, "c", "", 1))

	entry, err := board.GetUserRank(ctx, domain.PeriodWeekly, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(2), entry.Rank)

	_, err = board.GetUserRank(ctx, domain.PeriodWeekly, "missing")
	assert.ErrorIs(t, err, domain.ErrNotRanked)
}

func TestLeaderboardPeriodExpiry(t *testing.T) {
	mini, client := testhelper.NewRedis(t)
	board := NewLeaderboard(client, logging.Discard())
	ctx := context.Background()

	require.NoError(t, board.SetScore(ctx, domain.PeriodDaily, "u1", "", 1))
	require.NoError(t, board.SetScore(ctx, domain.PeriodAllTime, "u1", "", 1))

	assert.Equal(t, domain.PeriodDaily.TTL(), mini.TTL(LeaderboardKey(domain.PeriodDaily)))
	assert.Zero(t, mini.TTL(LeaderboardKey(domain.PeriodAllTime)))
}

func TestLeaderboardBatchSetScores(t *testing.T) {
	_, client := testhelper.NewRedis(t)
	board := NewLeaderboard(client, logging.Discard())
	ctx := context.Background()

	exists, err := board.Exists(ctx, domain.PeriodMonthly)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, board.BatchSetScores(ctx, domain.PeriodMonthly, []domain.LeaderboardEntry{
		{UserID: "a", Username: "amy", Score: 2},
		{UserID: "b", Username: "bob", Score: 7},
	}))

	top, err := board.GetTopN(ctx, domain.PeriodMonthly, 10)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "bob", top[0].Username)
	assert.Equal(t, "amy", top[1].Username)
}

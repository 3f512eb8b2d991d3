package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riddle-backend/internal/ai"
	"github.com/riddle-backend/internal/config"
	"github.com/riddle-backend/internal/domain"
	"github.com/riddle-backend/internal/logging"
	"github.com/riddle-backend/internal/redis"
	"github.com/riddle-backend/internal/testhelper"
)

var now = time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)

var testGame = config.GameConfig{FreeDailyLimit: 5, PremiumDailyLimit: 999999}

// stubGenerator replies with a canned text or error
type stubGenerator struct {
	reply string
	err   error
	calls int
}

func (g *stubGenerator) Generate(context.Context, string) (string, error) {
	g.calls++
	return g.reply, g.err
}

type fixture struct {
	store       *testhelper.MemStore
	mini        *miniredis.Miniredis
	cache       *redis.Cache
	quota       *redis.QuotaCounter
	board       *redis.Leaderboard
	leaderboard *LeaderboardService
	riddles     *RiddleService
	gen         *stubGenerator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := logging.Discard()
	mini, client := testhelper.NewRedis(t)

	f := &fixture{
		store: testhelper.NewMemStore(),
		mini:  mini,
		cache: redis.NewCache(client, logger),
		quota: redis.NewQuotaCounter(client, logger),
		board: redis.NewLeaderboard(client, logger),
		gen:   &stubGenerator{},
	}
	f.leaderboard = NewLeaderboardService(f.board, f.store, &config.LeaderboardConfig{DefaultLimit: 10, MaxLimit: 100}, logger)
	f.riddles = NewRiddleService(f.store, f.quota, f.cache, f.leaderboard, ai.NewAssistant(f.gen, logger), testGame, logger)
	f.riddles.SetClock(func() time.Time { return now })

	f.store.AddUser(domain.User{
		ID:                 "free",
		Email:              "free@example.com",
		Username:           "ada",
		SubscriptionTier:   domain.TierFree,
		RiddlesPerDayLimit: 2,
	})
	f.store.AddUser(domain.User{
		ID:                 "premium",
		Email:              "premium@example.com",
		Username:           "grace",
		IsPremium:          true,
		SubscriptionTier:   domain.TierPremium,
		RiddlesPerDayLimit: testGame.PremiumDailyLimit,
	})
	f.store.AddRiddle(domain.Riddle{
		ID:         "r1",
		Question:   "What has keys but can't open locks?",
		Answer:     "keyboard",
		Difficulty: domain.DifficultyEasy,
		Category:   "Objects",
		Hints:      []string{"You type on it", "It sits on a desk", "QWERTY"},
		IsActive:   true,
	})
	f.store.AddRiddle(domain.Riddle{
		ID:         "r2",
		Question:   "What gets wetter the more it dries?",
		Answer:     "towel",
		Difficulty: domain.DifficultyMedium,
		Category:   "Objects",
		Hints:      []string{"Bathroom", "Cloth"},
		IsActive:   true,
	})
	return f
}

func assertStatus(t *testing.T, err error, status int, message string) {
	t.Helper()
	require.Error(t, err)
	var appErr *domain.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %v", err)
	assert.Equal(t, status, appErr.Status)
	if message != "" {
		assert.Equal(t, message, appErr.Message)
	}
}

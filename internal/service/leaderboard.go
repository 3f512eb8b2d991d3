package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/riddle-backend/internal/config"
	"github.com/riddle-backend/internal/domain"
	"github.com/riddle-backend/internal/metrics"
	"github.com/riddle-backend/internal/redis"
)

// solvePeriods receive a user's new solved total after every correct answer
var solvePeriods = []domain.Period{domain.PeriodDaily, domain.PeriodWeekly, domain.PeriodMonthly, domain.PeriodAllTime}

// LeaderboardService provides business logic for leaderboard operations
type LeaderboardService struct {
	redis    *redis.Leaderboard
	store    LeaderboardStore
	notifier Notifier
	config   *config.LeaderboardConfig
	logger   *slog.Logger
	now      func() time.Time
}

// NewLeaderboardService creates a new leaderboard service
func NewLeaderboardService(
	redis *redis.Leaderboard,
	store LeaderboardStore,
	cfg *config.LeaderboardConfig,
	logger *slog.Logger,
) *LeaderboardService {
	return &LeaderboardService{
		redis:  redis,
		store:  store,
		config: cfg,
		logger: logger,
		now:    time.Now,
	}
}

// SetClock overrides the time source
func (s *LeaderboardService) SetClock(now func() time.Time) {
	s.now = now
}

// SetNotifier attaches a listener for leaderboard changes
func (s *LeaderboardService) SetNotifier(n Notifier) {
	s.notifier = n
}

// RecordSolve pushes a user's solved total into every period. Cache failures
// are logged and not returned.
func (s *LeaderboardService) RecordSolve(ctx context.Context, userID, username string, total int) {
	for _, period := range solvePeriods {
		if err := s.redis.SetScore(ctx, period, userID, username, int64(total)); err != nil {
			metrics.CacheErrors.WithLabelValues("leaderboard_set").Inc()
			s.logger.Warn("failed to update leaderboard",
				"period", period,
				"user_id", userID,
				"error", err,
			)
			continue
		}
		if s.notifier != nil {
			s.notifier.LeaderboardChanged(period)
		}
	}
}

// GetTopPlayers returns the top n entries of a period. When Redis fails the
// last flushed snapshot is served instead, if it is still inside the period.
func (s *LeaderboardService) GetTopPlayers(ctx context.Context, period domain.Period, n int) (*domain.LeaderboardPage, error) {
	if n <= 0 {
		n = s.config.DefaultLimit
	}
	if n > s.config.MaxLimit {
		n = s.config.MaxLimit
	}

	entries, err := s.redis.GetTopN(ctx, period, n)
	if err != nil {
		s.logger.Warn("leaderboard cache unavailable, reading snapshot", "period", period, "error", err)
		entries, err = s.store.GetLeaderboardEntries(ctx, period, period.Since(s.now()), n)
		if err != nil {
			return nil, fmt.Errorf("getting leaderboard snapshot: %w", err)
		}
		return &domain.LeaderboardPage{Period: period, Entries: nonNil(entries), Total: int64(len(entries))}, nil
	}

	total, err := s.redis.GetCount(ctx, period)
	if err != nil {
		total = int64(len(entries))
	}
	return &domain.LeaderboardPage{Period: period, Entries: nonNil(entries), Total: total}, nil
}

// GetUserRank returns a user's 1-based rank and score in a period
func (s *LeaderboardService) GetUserRank(ctx context.Context, period domain.Period, userID string) (*domain.LeaderboardEntry, error) {
	entry, err := s.redis.GetUserRank(ctx, period, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotRanked) {
			return nil, domain.NotFound("User not ranked on this leaderboard", err)
		}
		return nil, fmt.Errorf("getting rank: %w", err)
	}
	return entry, nil
}

// Snapshot returns the top n of a period for persistence
func (s *LeaderboardService) Snapshot(ctx context.Context, period domain.Period, n int) ([]domain.LeaderboardEntry, error) {
	return s.redis.GetTopN(ctx, period, n)
}

// Restore loads a period from the durable snapshot if its sorted set is
// empty. Snapshot rows older than the period's lifetime are not restored.
func (s *LeaderboardService) Restore(ctx context.Context, period domain.Period, n int) (int, error) {
	exists, err := s.redis.Exists(ctx, period)
	if err != nil {
		return 0, fmt.Errorf("checking %s leaderboard: %w", period, err)
	}
	if exists {
		return 0, nil
	}

	entries, err := s.store.GetLeaderboardEntries(ctx, period, period.Since(s.now()), n)
	if err != nil {
		return 0, fmt.Errorf("loading %s snapshot: %w", period, err)
	}
	if err := s.redis.BatchSetScores(ctx, period, entries); err != nil {
		return 0, fmt.Errorf("restoring %s leaderboard: %w", period, err)
	}
	return len(entries), nil
}

func nonNil(entries []domain.LeaderboardEntry) []domain.LeaderboardEntry {
	if entries == nil {
		return []domain.LeaderboardEntry{}
	}
	return entries
}

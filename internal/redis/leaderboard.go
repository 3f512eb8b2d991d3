package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/riddle-backend/internal/domain"
)

// Leaderboard stores per-period scores in sorted sets keyed leaderboard:{period}.
// Members are user ids; display names live in a shared hash.
type Leaderboard struct {
	client *redis.Client
	logger *slog.Logger
}

// NewLeaderboard creates a sorted-set leaderboard over an existing client
func NewLeaderboard(client *redis.Client, logger *slog.Logger) *Leaderboard {
	return &Leaderboard{client: client, logger: logger}
}

// SetScore records a user's score for a period and refreshes the period's expiry
func (l *Leaderboard) SetScore(ctx context.Context, period domain.Period, userID, username string, score int64) error {
	key := LeaderboardKey(period)

	pipe := l.client.Pipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(score), Member: userID})
	if username != "" {
		pipe.HSet(ctx, leaderboardNamesKey, userID, username)
	}
	if ttl := period.TTL(); ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("setting score: %w", err)
	}
	return nil
}

// GetTopN returns the top n users in descending score order
func (l *Leaderboard) GetTopN(ctx context.Context, period domain.Period, n int) ([]domain.LeaderboardEntry, error) {
	if n <= 0 {
		return []domain.LeaderboardEntry{}, nil
	}
	return l.GetRange(ctx, period, 0, n-1)
}

// GetRange returns users within a 0-indexed rank range
func (l *Leaderboard) GetRange(ctx context.Context, period domain.Period, start, end int) ([]domain.LeaderboardEntry, error) {
	results, err := l.client.ZRevRangeWithScores(ctx, LeaderboardKey(period), int64(start), int64(end)).Result()
	if err != nil {
		return nil, fmt.Errorf("getting range: %w", err)
	}

	entries := make([]domain.LeaderboardEntry, len(results))
	ids := make([]string, len(results))
	for i, result := range results {
		member, _ := result.Member.(string)
		ids[i] = member
		entries[i] = domain.LeaderboardEntry{
			Rank:   int64(start + i + 1),
			UserID: member,
			Score:  int64(result.Score),
		}
	}

	if err := l.attachNames(ctx, ids, entries); err != nil {
		l.logger.Warn("failed to load leaderboard names", "period", period, "error", err)
	}
	return entries, nil
}

// GetUserRank returns a user's 1-based rank and score
func (l *Leaderboard) GetUserRank(ctx context.Context, period domain.Period, userID string) (*domain.LeaderboardEntry, error) {
	key := LeaderboardKey(period)

	pipe := l.client.Pipeline()
	rankCmd := pipe.ZRevRank(ctx, key, userID)
	scoreCmd := pipe.ZScore(ctx, key, userID)
	nameCmd := pipe.HGet(ctx, leaderboardNamesKey, userID)
	_, err := pipe.Exec(ctx)
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("getting user rank: %w", err)
	}

	rank, err := rankCmd.Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotRanked
		}
		return nil, fmt.Errorf("getting rank result: %w", err)
	}

	score, err := scoreCmd.Result()
	if err != nil {
		return nil, fmt.Errorf("getting score result: %w", err)
	}

	return &domain.LeaderboardEntry{
		Rank:     rank + 1,
		UserID:   userID,
		Username: nameCmd.Val(),
		Score:    int64(score),
	}, nil
}

// GetCount returns the number of users on a period's board
func (l *Leaderboard) GetCount(ctx context.Context, period domain.Period) (int64, error) {
	count, err := l.client.ZCard(ctx, LeaderboardKey(period)).Result()
	if err != nil {
		return 0, fmt.Errorf("getting count: %w", err)
	}
	return count, nil
}

// BatchSetScores restores scores using pipelining
func (l *Leaderboard) BatchSetScores(ctx context.Context, period domain.Period, entries []domain.LeaderboardEntry) error {
	if len(entries) == 0 {
		return nil
	}
	key := LeaderboardKey(period)
	pipe := l.client.Pipeline()

	for _, e := range entries {
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(e.Score), Member: e.UserID})
		if e.Username != "" {
			pipe.HSet(ctx, leaderboardNamesKey, e.UserID, e.Username)
		}
	}
	if ttl := period.TTL(); ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("batch setting scores: %w", err)
	}
	return nil
}

// Exists checks if a period's sorted set exists
func (l *Leaderboard) Exists(ctx context.Context, period domain.Period) (bool, error) {
	exists, err := l.client.Exists(ctx, LeaderboardKey(period)).Result()
	if err != nil {
		return false, fmt.Errorf("checking existence: %w", err)
	}
	return exists > 0, nil
}

func (l *Leaderboard) attachNames(ctx context.Context, ids []string, entries []domain.LeaderboardEntry) error {
	if len(ids) == 0 {
		return nil
	}
	names, err := l.client.HMGet(ctx, leaderboardNamesKey, ids...).Result()
	if err != nil {
		return err
	}
	for i, name := range names {
		if s, ok := name.(string); ok {
			entries[i].Username = s
		}
	}
	return nil
}

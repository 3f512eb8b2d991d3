package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/riddle-backend/internal/domain"
)

// GetUserStats reads aggregate counters joined with the user's streaks
func (r *Repository) GetUserStats(ctx context.Context, userID string) (*domain.UserStats, error) {
	var s domain.UserStats
	err := r.pool.QueryRow(ctx, `
		SELECT s.user_id, s.total_solved, s.total_attempts, s.total_hints_used, s.total_time_spent,
			u.current_streak, u.longest_streak, u.riddles_per_day_limit
		FROM user_stats s
		JOIN users u ON u.id = s.user_id
		WHERE s.user_id = $1
	`, userID).Scan(
		&s.UserID,
		&s.TotalSolved,
		&s.TotalAttempts,
		&s.TotalHintsUsed,
		&s.TotalTimeSpent,
		&s.CurrentStreak,
		&s.LongestStreak,
		&s.DailyLimit,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("getting user stats: %w", err)
	}
	return &s, nil
}

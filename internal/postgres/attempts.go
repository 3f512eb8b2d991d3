package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/riddle-backend/internal/domain"
)

// GetOpenAttempt returns the most recent unsolved attempt of a user on a riddle
func (r *Repository) GetOpenAttempt(ctx context.Context, userID, riddleID string) (*domain.RiddleAttempt, error) {
	var a domain.RiddleAttempt
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, riddle_id, solved, attempts, hints_used, time_spent, started_at, completed_at
		FROM riddle_attempts
		WHERE user_id = $1 AND riddle_id = $2 AND NOT solved
		ORDER BY started_at DESC
		LIMIT 1
	`, userID, riddleID).Scan(
		&a.ID,
		&a.UserID,
		&a.RiddleID,
		&a.Solved,
		&a.Attempts,
		&a.HintsUsed,
		&a.TimeSpent,
		&a.StartedAt,
		&a.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAttemptNotFound
		}
		return nil, fmt.Errorf("getting open attempt: %w", err)
	}
	return &a, nil
}

// CreateAttempt inserts a new attempt
func (r *Repository) CreateAttempt(ctx context.Context, a *domain.RiddleAttempt) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO riddle_attempts (id, user_id, riddle_id, started_at)
		VALUES ($1, $2, $3, $4)
	`, a.ID, a.UserID, a.RiddleID, a.StartedAt)
	if err != nil {
		return fmt.Errorf("creating attempt: %w", err)
	}
	return nil
}

// CountAttemptsSince counts attempts a user started at or after since
func (r *Repository) CountAttemptsSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM riddle_attempts WHERE user_id = $1 AND started_at >= $2
	`, userID, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting attempts: %w", err)
	}
	return count, nil
}

// RecordSubmission applies an answer to the attempt and, when correct, to the
// riddle, user, stats and daily progress rows in one transaction
func (r *Repository) RecordSubmission(ctx context.Context, s domain.Submission) (*domain.SubmissionOutcome, error) {
	var out domain.SubmissionOutcome
	day := domain.StartOfDay(s.At)

	err := r.inTx(ctx, func(tx pgx.Tx) error {
		var completedAt *time.Time
		if s.Correct {
			completedAt = &s.At
		}
		result, err := tx.Exec(ctx, `
			UPDATE riddle_attempts
			SET solved = $2, attempts = attempts + 1, hints_used = GREATEST(hints_used, $3),
				time_spent = $4, completed_at = $5
			WHERE id = $1
		`, s.AttemptID, s.Correct, s.HintsUsed, s.TimeSpent, completedAt)
		if err != nil {
			return fmt.Errorf("updating attempt: %w", err)
		}
		if result.RowsAffected() == 0 {
			return domain.ErrAttemptNotFound
		}

		solvedDelta := 0
		if s.Correct {
			solvedDelta = 1
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO daily_progress (user_id, date, riddles_solved, riddles_attempted)
			VALUES ($1, $2, $3, 1)
			ON CONFLICT (user_id, date)
			DO UPDATE SET riddles_solved = daily_progress.riddles_solved + $3,
				riddles_attempted = daily_progress.riddles_attempted + 1
		`, s.UserID, day, solvedDelta)
		if err != nil {
			return fmt.Errorf("upserting daily progress: %w", err)
		}

		var user *domain.User
		user, err = scanUser(tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, s.UserID))
		if err != nil {
			if errors.Is(err, domain.ErrUserNotFound) {
				return err
			}
			return fmt.Errorf("locking user: %w", err)
		}
		out.Username = user.DisplayName()
		out.TotalRiddlesSolved = user.TotalRiddlesSolved
		out.CurrentStreak = user.CurrentStreak

		if !s.Correct {
			_, err = tx.Exec(ctx, `
				UPDATE user_stats SET total_attempts = total_attempts + 1, updated_at = $2 WHERE user_id = $1
			`, s.UserID, s.At)
			if err != nil {
				return fmt.Errorf("updating stats: %w", err)
			}
			return nil
		}

		_, err = tx.Exec(ctx, `
			UPDATE riddles SET times_solved = times_solved + 1, updated_at = $2 WHERE id = $1
		`, s.RiddleID, s.At)
		if err != nil {
			return fmt.Errorf("updating riddle: %w", err)
		}

		current, longest := domain.NextStreak(user.LastSolvedDate, user.CurrentStreak, user.LongestStreak, s.At)
		err = tx.QueryRow(ctx, `
			UPDATE users
			SET total_riddles_solved = total_riddles_solved + 1, current_streak = $2,
				longest_streak = $3, last_solved_date = $4, updated_at = $4
			WHERE id = $1
			RETURNING total_riddles_solved
		`, s.UserID, current, longest, s.At).Scan(&out.TotalRiddlesSolved)
		if err != nil {
			return fmt.Errorf("updating user: %w", err)
		}
		out.CurrentStreak = current

		_, err = tx.Exec(ctx, `
			UPDATE user_stats
			SET total_solved = total_solved + 1, total_attempts = total_attempts + 1,
				total_hints_used = total_hints_used + $2, total_time_spent = total_time_spent + $3,
				updated_at = $4
			WHERE user_id = $1
		`, s.UserID, s.HintsUsed, s.TimeSpent, s.At)
		if err != nil {
			return fmt.Errorf("updating stats: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

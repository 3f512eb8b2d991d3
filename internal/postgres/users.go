package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/riddle-backend/internal/domain"
)

const userColumns = `id, email, username, password_hash, is_premium, subscription_tier,
	riddles_per_day_limit, total_riddles_solved, current_streak, longest_streak,
	last_solved_date, reset_token_hash, reset_token_expiry, created_at, updated_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	var username, resetHash *string
	err := row.Scan(
		&u.ID,
		&u.Email,
		&username,
		&u.PasswordHash,
		&u.IsPremium,
		&u.SubscriptionTier,
		&u.RiddlesPerDayLimit,
		&u.TotalRiddlesSolved,
		&u.CurrentStreak,
		&u.LongestStreak,
		&u.LastSolvedDate,
		&resetHash,
		&u.ResetTokenExpiry,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	u.Username = deref(username)
	u.ResetTokenHash = deref(resetHash)
	return &u, nil
}

// CreateUser inserts a user together with an empty stats row
func (r *Repository) CreateUser(ctx context.Context, u *domain.User) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO users (id, email, username, password_hash, is_premium, subscription_tier,
				riddles_per_day_limit, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		`, u.ID, u.Email, nullString(u.Username), u.PasswordHash, u.IsPremium,
			string(u.SubscriptionTier), u.RiddlesPerDayLimit, u.CreatedAt)
		if err != nil {
			switch constraint := uniqueConstraint(err); {
			case strings.Contains(constraint, "email"):
				return domain.ErrEmailTaken
			case strings.Contains(constraint, "username"):
				return domain.ErrUsernameTaken
			}
			return fmt.Errorf("creating user: %w", err)
		}

		_, err = tx.Exec(ctx, `INSERT INTO user_stats (user_id) VALUES ($1)`, u.ID)
		if err != nil {
			return fmt.Errorf("creating user stats: %w", err)
		}
		return nil
	})
}

// GetUserByID retrieves a user by id
func (r *Repository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return u, err
}

// GetUserByEmail retrieves a user by email, case-insensitively
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email))
	if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
		return nil, fmt.Errorf("getting user by email: %w", err)
	}
	return u, err
}

// GetUserByUsername retrieves a user by username
func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username))
	if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
		return nil, fmt.Errorf("getting user by username: %w", err)
	}
	return u, err
}

// SetPasswordResetToken stores the hash of a reset token
func (r *Repository) SetPasswordResetToken(ctx context.Context, userID, tokenHash string, expiry time.Time) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE users SET reset_token_hash = $2, reset_token_expiry = $3, updated_at = NOW()
		WHERE id = $1
	`, userID, tokenHash, expiry)
	if err != nil {
		return fmt.Errorf("setting reset token: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// GetUserByResetToken finds the user holding an unexpired reset token
func (r *Repository) GetUserByResetToken(ctx context.Context, tokenHash string, now time.Time) (*domain.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE reset_token_hash = $1 AND reset_token_expiry > $2
	`, tokenHash, now))
	if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
		return nil, fmt.Errorf("getting user by reset token: %w", err)
	}
	return u, err
}

// UpdatePassword sets a new password hash and clears any reset token
func (r *Repository) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE users
		SET password_hash = $2, reset_token_hash = NULL, reset_token_expiry = NULL, updated_at = NOW()
		WHERE id = $1
	`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/riddle-backend/internal/domain"
)

// SaveRiddle bookmarks a riddle; saving twice is a no-op
func (r *Repository) SaveRiddle(ctx context.Context, userID, riddleID string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO saved_riddles (user_id, riddle_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, riddle_id) DO NOTHING
	`, userID, riddleID, at)
	if err != nil {
		return fmt.Errorf("saving riddle: %w", err)
	}
	return nil
}

// ListSavedRiddles returns a user's bookmarks, newest first
func (r *Repository) ListSavedRiddles(ctx context.Context, userID string) ([]domain.SavedRiddle, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+prefixed("r", riddleColumns)+`, s.created_at
		FROM saved_riddles s
		JOIN riddles r ON r.id = s.riddle_id
		WHERE s.user_id = $1
		ORDER BY s.created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing saved riddles: %w", err)
	}
	defer rows.Close()

	saved := []domain.SavedRiddle{}
	for rows.Next() {
		var sr domain.SavedRiddle
		var createdBy *string
		err := rows.Scan(
			&sr.Riddle.ID,
			&sr.Riddle.Question,
			&sr.Riddle.Answer,
			&sr.Riddle.Difficulty,
			&sr.Riddle.Category,
			&sr.Riddle.Hints,
			&sr.Riddle.TimesAttempted,
			&sr.Riddle.TimesSolved,
			&sr.Riddle.IsActive,
			&sr.Riddle.AIGenerated,
			&createdBy,
			&sr.Riddle.CreatedAt,
			&sr.Riddle.UpdatedAt,
			&sr.SavedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning saved riddle: %w", err)
		}
		sr.Riddle.CreatedBy = deref(createdBy)
		saved = append(saved, sr)
	}
	return saved, rows.Err()
}

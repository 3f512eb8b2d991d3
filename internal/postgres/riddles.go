package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/riddle-backend/internal/domain"
)

const riddleColumns = `id, question, answer, difficulty, category, hints, times_attempted,
	times_solved, is_active, ai_generated, created_by, created_at, updated_at`

func scanRiddle(row pgx.Row) (*domain.Riddle, error) {
	var rd domain.Riddle
	var createdBy *string
	err := row.Scan(
		&rd.ID,
		&rd.Question,
		&rd.Answer,
		&rd.Difficulty,
		&rd.Category,
		&rd.Hints,
		&rd.TimesAttempted,
		&rd.TimesSolved,
		&rd.IsActive,
		&rd.AIGenerated,
		&createdBy,
		&rd.CreatedAt,
		&rd.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRiddleNotFound
		}
		return nil, err
	}
	rd.CreatedBy = deref(createdBy)
	return &rd, nil
}

// GetRiddle retrieves a riddle by id
func (r *Repository) GetRiddle(ctx context.Context, id string) (*domain.Riddle, error) {
	rd, err := scanRiddle(r.pool.QueryRow(ctx, `SELECT `+riddleColumns+` FROM riddles WHERE id = $1`, id))
	if err != nil && !errors.Is(err, domain.ErrRiddleNotFound) {
		return nil, fmt.Errorf("getting riddle: %w", err)
	}
	return rd, err
}

// SelectRiddleCandidate picks the least-served active riddle the user has not
// solved, optionally filtered by difficulty
func (r *Repository) SelectRiddleCandidate(ctx context.Context, userID string, difficulty domain.Difficulty) (*domain.Riddle, error) {
	query := `
		SELECT ` + riddleColumns + `
		FROM riddles r
		WHERE r.is_active
		  AND ($2 = '' OR r.difficulty = $2)
		  AND NOT EXISTS (
			SELECT 1 FROM riddle_attempts a
			WHERE a.user_id = $1 AND a.riddle_id = r.id AND a.solved
		  )
		ORDER BY r.times_attempted ASC, r.created_at ASC
		LIMIT 1
	`
	rd, err := scanRiddle(r.pool.QueryRow(ctx, query, userID, string(difficulty)))
	if err != nil {
		if errors.Is(err, domain.ErrRiddleNotFound) {
			return nil, domain.ErrNoRiddlesAvailable
		}
		return nil, fmt.Errorf("selecting riddle: %w", err)
	}
	return rd, nil
}

// IncrementServed bumps a riddle's serve counter
func (r *Repository) IncrementServed(ctx context.Context, riddleID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE riddles SET times_attempted = times_attempted + 1, updated_at = NOW() WHERE id = $1
	`, riddleID)
	if err != nil {
		return fmt.Errorf("incrementing serve count: %w", err)
	}
	return nil
}

// riddleInsertColumns are written by CreateRiddle, in riddleInsertValues order
const riddleInsertColumns = `id, question, answer, difficulty, category, hints, is_active,
	ai_generated, created_by, times_attempted, times_solved, created_at, updated_at`

func riddleInsertValues(rd *domain.Riddle) []any {
	return []any{
		rd.ID, rd.Question, rd.Answer, string(rd.Difficulty), rd.Category, rd.Hints, rd.IsActive,
		rd.AIGenerated, nullString(rd.CreatedBy), rd.TimesAttempted, rd.TimesSolved, rd.CreatedAt, rd.CreatedAt,
	}
}

// CreateRiddle inserts a riddle with its counters as given
func (r *Repository) CreateRiddle(ctx context.Context, rd *domain.Riddle) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO riddles (`+riddleInsertColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, riddleInsertValues(rd)...)
	if err != nil {
		return fmt.Errorf("creating riddle: %w", err)
	}
	return nil
}

// SeedRiddles loads the starter pool when the riddles table is empty
func (r *Repository) SeedRiddles(ctx context.Context, riddles []domain.Riddle) error {
	var count int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM riddles`).Scan(&count); err != nil {
		return fmt.Errorf("counting riddles: %w", err)
	}
	if count > 0 || len(riddles) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	now := time.Now().UTC()
	for _, rd := range riddles {
		id := rd.ID
		if id == "" {
			id = uuid.NewString()
		}
		batch.Queue(`
			INSERT INTO riddles (id, question, answer, difficulty, category, hints, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		`, id, rd.Question, rd.Answer, string(rd.Difficulty), rd.Category, rd.Hints, now)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range riddles {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("seeding riddles: %w", err)
		}
	}

	r.logger.Info("seeded riddle pool", "count", len(riddles))
	return nil
}

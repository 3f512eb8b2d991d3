package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/riddle-backend/internal/domain"
)

// UpsertLeaderboardEntries writes a snapshot of one period's ranking
func (r *Repository) UpsertLeaderboardEntries(ctx context.Context, period domain.Period, entries []domain.LeaderboardEntry) error {
	if len(entries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO leaderboard (user_id, period, username, score, rank, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, period)
		DO UPDATE SET username = $3, score = $4, rank = $5, updated_at = $6
	`
	now := time.Now()

	for _, e := range entries {
		batch.Queue(query, e.UserID, string(period), e.Username, e.Score, e.Rank, now)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range entries {
		_, err := br.Exec()
		if err != nil {
			return fmt.Errorf("batch upserting leaderboard: %w", err)
		}
	}
	return nil
}

// GetLeaderboardEntries returns the stored ranking of a period, best first.
// Rows flushed before since are skipped.
func (r *Repository) GetLeaderboardEntries(ctx context.Context, period domain.Period, since time.Time, limit int) ([]domain.LeaderboardEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT user_id, username, score,
			   ROW_NUMBER() OVER (ORDER BY score DESC, updated_at ASC) AS rank
		FROM leaderboard
		WHERE period = $1 AND updated_at >= $2
		ORDER BY score DESC, updated_at ASC
		LIMIT $3
	`, string(period), since, limit)
	if err != nil {
		return nil, fmt.Errorf("getting leaderboard entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.LeaderboardEntry
	for rows.Next() {
		var e domain.LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.Username, &e.Score, &e.Rank); err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

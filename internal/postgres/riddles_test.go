package postgres

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riddle-backend/internal/domain"
)

func TestRiddleInsertValuesMatchColumns(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rd := &domain.Riddle{
		ID:             "r1",
		Question:       "What has keys but can't open locks?",
		Answer:         "keyboard",
		Difficulty:     domain.DifficultyEasy,
		Category:       "objects",
		Hints:          []string{"typing"},
		IsActive:       true,
		AIGenerated:    true,
		CreatedBy:      "u1",
		TimesAttempted: 1,
		CreatedAt:      created,
	}

	columns := strings.Split(riddleInsertColumns, ",")
	values := riddleInsertValues(rd)
	require.Len(t, values, len(columns))

	byColumn := make(map[string]any, len(columns))
	for i, c := range columns {
		byColumn[strings.TrimSpace(c)] = values[i]
	}
	assert.Equal(t, 1, byColumn["times_attempted"])
	assert.Equal(t, 0, byColumn["times_solved"])
	assert.Equal(t, true, byColumn["ai_generated"])
	assert.Equal(t, "EASY", byColumn["difficulty"])
	assert.Equal(t, created, byColumn["updated_at"])
}

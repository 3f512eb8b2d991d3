package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riddle-backend/internal/domain"
	"github.com/riddle-backend/internal/logging"
)

const generatedRiddle = `RIDDLE: I have a face and two hands but no arms or legs. What am I?
ANSWER: clock
HINT1: It hangs on walls
HINT2: It tells you something
HINT3: Tick tock
CATEGORY: Objects`

func TestGetRiddleConsumesDailyQuota(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.riddles.GetRiddle(ctx, "free", "")
	require.NoError(t, err)
	second, err := f.riddles.GetRiddle(ctx, "free", "")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	_, err = f.riddles.GetRiddle(ctx, "free", "")
	assertStatus(t, err, 403, msgQuotaReached)

	assert.Len(t, f.store.Attempts("free"), 2)
	n, found, err := f.quota.Count(ctx, "free", now)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(2), n)
}

func TestGetRiddleHidesAnswer(t *testing.T) {
	f := newFixture(t)

	r, err := f.riddles.GetRiddle(context.Background(), "free", domain.DifficultyEasy)
	require.NoError(t, err)
	assert.Equal(t, "r1", r.ID)
	assert.Equal(t, 3, r.HintsAvailable)
}

func TestGetRiddleReusesOpenAttempt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for range 2 {
		_, err := f.riddles.GetRiddle(ctx, "premium", domain.DifficultyEasy)
		require.NoError(t, err)
	}
	assert.Len(t, f.store.Attempts("premium"), 1)
}

func TestGetRiddleSeedsQuotaFromStore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.CreateAttempt(ctx, &domain.RiddleAttempt{ID: "a0", UserID: "free", RiddleID: "r2", StartedAt: now}))

	_, err := f.riddles.GetRiddle(ctx, "free", domain.DifficultyEasy)
	require.NoError(t, err)

	_, err = f.riddles.GetRiddle(ctx, "free", domain.DifficultyEasy)
	assertStatus(t, err, 403, msgQuotaReached)
}

func TestGetRiddleReleasesQuotaWhenNoneAvailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.riddles.GetRiddle(ctx, "free", domain.DifficultyHard)
	assertStatus(t, err, 404, msgNoRiddles)

	n, _, err := f.quota.Count(ctx, "free", now)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestGetRiddleUnknownUser(t *testing.T) {
	f := newFixture(t)

	_, err := f.riddles.GetRiddle(context.Background(), "ghost", "")
	assertStatus(t, err, 404, "User not found")
}

func TestQuotaFallsBackToStoreWhenRedisIsDown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, id := range []string{"a1", "a2"} {
		require.NoError(t, f.store.CreateAttempt(ctx, &domain.RiddleAttempt{ID: id, UserID: "free", RiddleID: "r2", StartedAt: now}))
	}
	f.mini.Close()

	_, err := f.riddles.GetRiddle(ctx, "free", "")
	assertStatus(t, err, 403, msgQuotaReached)

	_, err = f.riddles.GetRiddle(ctx, "premium", "")
	assert.NoError(t, err)
}

func TestSubmitCorrectAnswer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.riddles.GetRiddle(ctx, "free", domain.DifficultyEasy)
	require.NoError(t, err)

	res, err := f.riddles.SubmitAnswer(ctx, "free", "r1", "  Keyboard ", 42, 1)
	require.NoError(t, err)
	assert.True(t, res.Correct)
	assert.Equal(t, "keyboard", res.Answer)
	assert.Equal(t, "Correct! Well done!", res.Message)

	for _, period := range domain.Periods {
		entry, err := f.leaderboard.GetUserRank(ctx, period, "free")
		require.NoError(t, err, period)
		assert.Equal(t, int64(1), entry.Rank)
		assert.Equal(t, int64(1), entry.Score)
		assert.Equal(t, "ada", entry.Username)
	}

	progress := f.store.DailyProgress("free", now)
	assert.Equal(t, 1, progress.RiddlesSolved)

	// solved riddles are no longer served
	next, err := f.riddles.GetRiddle(ctx, "free", "")
	require.NoError(t, err)
	assert.Equal(t, "r2", next.ID)
}

func TestSubmitIncorrectAnswer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.riddles.GetRiddle(ctx, "free", domain.DifficultyEasy)
	require.NoError(t, err)

	res, err := f.riddles.SubmitAnswer(ctx, "free", "r1", "piano", 10, 0)
	require.NoError(t, err)
	assert.False(t, res.Correct)
	assert.Empty(t, res.Answer)
	assert.Equal(t, "Incorrect. Try again!", res.Message)

	_, err = f.leaderboard.GetUserRank(ctx, domain.PeriodDaily, "free")
	assert.True(t, errors.Is(err, domain.ErrNotRanked))
}

func TestSubmitRequiresOpenAttempt(t *testing.T) {
	f := newFixture(t)

	_, err := f.riddles.SubmitAnswer(context.Background(), "free", "r1", "keyboard", 0, 0)
	assertStatus(t, err, 404, msgNoAttempt)

	_, err = f.riddles.SubmitAnswer(context.Background(), "free", "missing", "keyboard", 0, 0)
	assertStatus(t, err, 404, "Riddle not found")
}

func TestGetHintGating(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	hint, err := f.riddles.GetHint(ctx, "free", "r1", 0)
	require.NoError(t, err)
	assert.Equal(t, "You type on it", hint.Hint)
	assert.Equal(t, 3, hint.TotalHints)

	_, err = f.riddles.GetHint(ctx, "free", "r1", 1)
	assertStatus(t, err, 403, msgPremiumHints)

	_, err = f.riddles.GetHint(ctx, "free", "r1", 3)
	assertStatus(t, err, 400, "Invalid hint number")

	hint, err = f.riddles.GetHint(ctx, "premium", "r1", 2)
	require.NoError(t, err)
	assert.Equal(t, "QWERTY", hint.Hint)
}

func TestGetUserStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.riddles.GetRiddle(ctx, "free", domain.DifficultyEasy)
	require.NoError(t, err)
	_, err = f.riddles.SubmitAnswer(ctx, "free", "r1", "piano", 5, 0)
	require.NoError(t, err)
	_, err = f.riddles.SubmitAnswer(ctx, "free", "r1", "keyboard", 20, 0)
	require.NoError(t, err)

	stats, err := f.riddles.GetUserStats(ctx, "free")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalSolved)
	assert.Equal(t, 2, stats.TotalAttempts)
	assert.InDelta(t, 50.0, stats.Accuracy, 0.001)
	assert.Equal(t, int64(1), stats.RiddlesToday)
	assert.Equal(t, 2, stats.DailyLimit)
	assert.Equal(t, 1, stats.CurrentStreak)

	_, err = f.riddles.GetUserStats(ctx, "ghost")
	assertStatus(t, err, 404, "User stats not found")
}

func TestGenerateAIHintRequiresPremium(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.riddles.GetRiddle(ctx, "free", domain.DifficultyEasy)
	require.NoError(t, err)

	_, err = f.riddles.GenerateAIHint(ctx, "free", "r1")
	assertStatus(t, err, 403, msgPremiumAIHints)
	assert.Zero(t, f.gen.calls)
}

func TestGenerateAIHintIsCached(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.gen.reply = "Think about what sits in front of a monitor"

	_, err := f.riddles.GenerateAIHint(ctx, "premium", "r1")
	assertStatus(t, err, 404, msgNoAttempt)

	_, err = f.riddles.GetRiddle(ctx, "premium", domain.DifficultyEasy)
	require.NoError(t, err)

	hint, err := f.riddles.GenerateAIHint(ctx, "premium", "r1")
	require.NoError(t, err)
	assert.Equal(t, f.gen.reply, hint.Hint)
	assert.InDelta(t, 0.85, hint.Confidence, 0.001)

	f.gen.err = errors.New("model down")
	again, err := f.riddles.GenerateAIHint(ctx, "premium", "r1")
	require.NoError(t, err)
	assert.Equal(t, hint.Hint, again.Hint)
	assert.Equal(t, 1, f.gen.calls)
}

func TestGenerateAIHintFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.gen.err = errors.New("model down")

	_, err := f.riddles.GetRiddle(ctx, "premium", domain.DifficultyEasy)
	require.NoError(t, err)

	_, err = f.riddles.GenerateAIHint(ctx, "premium", "r1")
	assertStatus(t, err, 500, "Failed to generate AI hint")
}

func TestValidateAnswerWithAI(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	v, err := f.riddles.ValidateAnswerWithAI(ctx, "r1", "KEYBOARD")
	require.NoError(t, err)
	assert.Equal(t, 1.0, v.Similarity)
	assert.Zero(t, f.gen.calls)

	f.gen.reply = "CLOSE"
	v, err = f.riddles.ValidateAnswerWithAI(ctx, "r1", "keypad")
	require.NoError(t, err)
	assert.False(t, v.IsCorrect)
	assert.Equal(t, 0.7, v.Similarity)

	f.gen.err = errors.New("model down")
	v, err = f.riddles.ValidateAnswerWithAI(ctx, "r1", "keypad")
	require.NoError(t, err)
	assert.False(t, v.IsCorrect)
	assert.Equal(t, 0.0, v.Similarity)
	assert.Equal(t, "Incorrect", v.Feedback)
}

func TestGenerateAIRiddleAndSave(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.gen.reply = generatedRiddle

	r, err := f.riddles.GenerateAIRiddle(ctx, "free", "", "", "")
	require.NoError(t, err)
	assert.True(t, r.AIGenerated)
	assert.Equal(t, domain.DifficultyMedium, r.Difficulty)
	assert.Equal(t, 3, r.HintsAvailable)

	stored, err := f.store.GetRiddle(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "clock", stored.Answer)
	assert.Equal(t, "free", stored.CreatedBy)
	assert.True(t, stored.IsActive)
	assert.Len(t, f.store.Attempts("free"), 1)

	_, err = f.riddles.SaveCustomRiddle(ctx, "premium", r.ID)
	assertStatus(t, err, 403, "")

	saved, err := f.riddles.SaveCustomRiddle(ctx, "free", r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.ID, saved.Riddle.ID)
	_, err = f.riddles.SaveCustomRiddle(ctx, "free", r.ID)
	require.NoError(t, err)

	list, err := f.riddles.GetSavedRiddles(ctx, "free")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, r.ID, list[0].Riddle.ID)

	_, err = f.riddles.SaveCustomRiddle(ctx, "free", "r1")
	assertStatus(t, err, 403, "")
}

func TestGenerateAIRiddleFailureReleasesQuota(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.gen.reply = "not a riddle"

	_, err := f.riddles.GenerateAIRiddle(ctx, "free", domain.DifficultyHard, "", "")
	assertStatus(t, err, 500, "Failed to generate AI riddle")

	n, _, err := f.quota.Count(ctx, "free", now)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestGenerateVariationRequiresPremium(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.gen.reply = "What clacks under your fingers all day?"

	_, err := f.riddles.GenerateRiddleVariation(ctx, "free", "r1")
	assertStatus(t, err, 403, "")

	v, err := f.riddles.GenerateRiddleVariation(ctx, "premium", "r1")
	require.NoError(t, err)
	assert.Equal(t, "r1", v.RiddleID)
	assert.Equal(t, f.gen.reply, v.Variation)
}

func TestAIDisabled(t *testing.T) {
	f := newFixture(t)
	svc := NewRiddleService(f.store, f.quota, f.cache, f.leaderboard, nil, testGame, logging.Discard())
	ctx := context.Background()

	assert.False(t, svc.AIEnabled())
	_, err := svc.GenerateAIHint(ctx, "premium", "r1")
	assertStatus(t, err, 503, "")
	_, err = svc.GenerateAIRiddle(ctx, "free", "", "", "")
	assertStatus(t, err, 503, "")

	v, err := svc.ValidateAnswerWithAI(ctx, "r1", "piano")
	require.NoError(t, err)
	assert.False(t, v.IsCorrect)
}

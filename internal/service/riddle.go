package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/riddle-backend/internal/ai"
	"github.com/riddle-backend/internal/config"
	"github.com/riddle-backend/internal/domain"
	"github.com/riddle-backend/internal/metrics"
	"github.com/riddle-backend/internal/redis"
)

const (
	msgQuotaReached   = "Daily riddle limit reached. Upgrade to premium for unlimited riddles."
	msgNoRiddles      = "No riddles available. Try a different difficulty level."
	msgNoAttempt      = "No active attempt found for this riddle"
	msgPremiumHints   = "Upgrade to premium to access more hints"
	msgPremiumAIHints = "Upgrade to premium to access AI-powered hints"
	msgAIDisabled     = "AI features are not configured"
)

// RiddleService serves riddles, enforces the daily quota and scores answers
type RiddleService struct {
	store       RiddleStore
	quota       *redis.QuotaCounter
	cache       *redis.Cache
	leaderboard *LeaderboardService
	assistant   Assistant
	game        config.GameConfig
	logger      *slog.Logger
	now         func() time.Time
}

// NewRiddleService creates a riddle service; assistant may be nil
func NewRiddleService(
	store RiddleStore,
	quota *redis.QuotaCounter,
	cache *redis.Cache,
	leaderboard *LeaderboardService,
	assistant Assistant,
	game config.GameConfig,
	logger *slog.Logger,
) *RiddleService {
	return &RiddleService{
		store:       store,
		quota:       quota,
		cache:       cache,
		leaderboard: leaderboard,
		assistant:   assistant,
		game:        game,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source
func (s *RiddleService) SetClock(now func() time.Time) {
	s.now = now
}

// AIEnabled reports whether an assistant is configured
func (s *RiddleService) AIEnabled() bool {
	return s.assistant != nil
}

// GetRiddle serves the least-served unsolved riddle and consumes one unit of
// the user's daily quota
func (s *RiddleService) GetRiddle(ctx context.Context, userID string, difficulty domain.Difficulty) (*domain.RiddleSummary, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := s.consumeQuota(ctx, user); err != nil {
		return nil, err
	}

	riddle, err := s.store.SelectRiddleCandidate(ctx, userID, difficulty)
	if err != nil {
		s.quota.Release(ctx, userID, s.now())
		if errors.Is(err, domain.ErrNoRiddlesAvailable) {
			return nil, domain.NotFound(msgNoRiddles, err)
		}
		return nil, fmt.Errorf("selecting riddle: %w", err)
	}

	if err := s.store.IncrementServed(ctx, riddle.ID); err != nil {
		s.quota.Release(ctx, userID, s.now())
		return nil, err
	}
	if err := s.ensureAttempt(ctx, userID, riddle.ID); err != nil {
		s.quota.Release(ctx, userID, s.now())
		return nil, err
	}

	metrics.RiddlesServed.WithLabelValues("pool").Inc()
	summary := riddle.Summary()
	return &summary, nil
}

// SubmitAnswer scores an answer against the user's open attempt
func (s *RiddleService) SubmitAnswer(ctx context.Context, userID, riddleID, answer string, timeSpent, hintsUsed int) (*domain.AnswerResult, error) {
	riddle, err := s.loadRiddle(ctx, riddleID)
	if err != nil {
		return nil, err
	}

	attempt, err := s.store.GetOpenAttempt(ctx, userID, riddleID)
	if err != nil {
		if errors.Is(err, domain.ErrAttemptNotFound) {
			return nil, domain.NotFound(msgNoAttempt, err)
		}
		return nil, fmt.Errorf("loading attempt: %w", err)
	}

	correct := domain.AnswersMatch(answer, riddle.Answer)
	outcome, err := s.store.RecordSubmission(ctx, domain.Submission{
		AttemptID: attempt.ID,
		UserID:    userID,
		RiddleID:  riddleID,
		Correct:   correct,
		TimeSpent: max(timeSpent, 0),
		HintsUsed: max(hintsUsed, 0),
		At:        s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("recording submission: %w", err)
	}

	if !correct {
		metrics.AnswersSubmitted.WithLabelValues("incorrect").Inc()
		s.cache.Delete(ctx, redis.UserStatsKey(userID))
		return &domain.AnswerResult{Correct: false, Message: "Incorrect. Try again!"}, nil
	}

	metrics.AnswersSubmitted.WithLabelValues("correct").Inc()
	s.leaderboard.RecordSolve(ctx, userID, outcome.Username, outcome.TotalRiddlesSolved)
	s.cache.Delete(ctx, redis.UserStatsKey(userID), redis.UserProfileKey(userID))

	return &domain.AnswerResult{
		Correct: true,
		Answer:  riddle.Answer,
		Message: "Correct! Well done!",
	}, nil
}

// GetHint returns a static hint; only the first is free
func (s *RiddleService) GetHint(ctx context.Context, userID, riddleID string, hintNumber int) (*domain.HintResult, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	riddle, err := s.loadRiddle(ctx, riddleID)
	if err != nil {
		return nil, err
	}

	if hintNumber < 0 || hintNumber >= len(riddle.Hints) {
		return nil, domain.BadRequest("Invalid hint number")
	}
	if !user.IsPremium && hintNumber > 0 {
		return nil, domain.Forbidden(msgPremiumHints)
	}

	return &domain.HintResult{
		Hint:       riddle.Hints[hintNumber],
		HintNumber: hintNumber,
		TotalHints: len(riddle.Hints),
	}, nil
}

// GetUserStats returns aggregate stats, cached for 30 minutes
func (s *RiddleService) GetUserStats(ctx context.Context, userID string) (*domain.UserStats, error) {
	var stats domain.UserStats
	if !s.cache.Get(ctx, redis.UserStatsKey(userID), &stats) {
		st, err := s.store.GetUserStats(ctx, userID)
		if err != nil {
			if errors.Is(err, domain.ErrUserNotFound) {
				return nil, domain.NotFound("User stats not found", err)
			}
			return nil, fmt.Errorf("loading stats: %w", err)
		}
		stats = *st
		if stats.TotalAttempts > 0 {
			stats.Accuracy = math.Round(float64(stats.TotalSolved)/float64(stats.TotalAttempts)*1000) / 10
		}
		s.cache.Set(ctx, redis.UserStatsKey(userID), stats, redis.TTLMedium)
	}

	if n, found, err := s.quota.Count(ctx, userID, s.now()); err == nil && found {
		stats.RiddlesToday = n
	}
	return &stats, nil
}

// GenerateAIHint writes a contextual hint for a premium user's open attempt
func (s *RiddleService) GenerateAIHint(ctx context.Context, userID, riddleID string) (*domain.AIHintResult, error) {
	if s.assistant == nil {
		return nil, domain.NewAppError(503, msgAIDisabled, nil)
	}
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	riddle, err := s.loadRiddle(ctx, riddleID)
	if err != nil {
		return nil, err
	}
	attempt, err := s.store.GetOpenAttempt(ctx, userID, riddleID)
	if err != nil {
		if errors.Is(err, domain.ErrAttemptNotFound) {
			return nil, domain.NotFound(msgNoAttempt, err)
		}
		return nil, fmt.Errorf("loading attempt: %w", err)
	}
	if !user.IsPremium {
		return nil, domain.Forbidden(msgPremiumAIHints)
	}

	previous := riddle.Hints[:min(attempt.HintsUsed, len(riddle.Hints))]
	key := redis.HintKey(riddleID, len(previous))

	var cached domain.AIHintResult
	if s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	hint, err := s.assistant.GenerateHint(ctx, riddle, previous)
	if err != nil {
		s.logger.Error("generating ai hint failed", "riddle_id", riddleID, "error", err)
		return nil, domain.Internal("Failed to generate AI hint", err)
	}
	s.cache.Set(ctx, key, hint, redis.TTLShort)
	return hint, nil
}

// ValidateAnswerWithAI judges a free-form answer, falling back to exact
// matching when the model is unavailable
func (s *RiddleService) ValidateAnswerWithAI(ctx context.Context, riddleID, answer string) (*domain.AnswerValidation, error) {
	riddle, err := s.loadRiddle(ctx, riddleID)
	if err != nil {
		return nil, err
	}

	exact := domain.AnswersMatch(answer, riddle.Answer)
	if exact {
		return &domain.AnswerValidation{IsCorrect: true, Similarity: 1.0, Feedback: "Correct!"}, nil
	}
	if s.assistant == nil {
		return fallbackValidation(exact), nil
	}

	verdict, err := s.assistant.ValidateAnswer(ctx, riddle.Answer, answer)
	if err != nil {
		s.logger.Warn("ai validation failed, using exact match", "riddle_id", riddleID, "error", err)
		return fallbackValidation(exact), nil
	}
	v := ai.ValidationFor(verdict)
	return &v, nil
}

func fallbackValidation(correct bool) *domain.AnswerValidation {
	if correct {
		return &domain.AnswerValidation{IsCorrect: true, Similarity: 1.0, Feedback: "Correct!"}
	}
	return &domain.AnswerValidation{IsCorrect: false, Similarity: 0.0, Feedback: "Incorrect"}
}

// GenerateAIRiddle creates, stores and serves a model-written riddle. It
// consumes quota like GetRiddle and releases it if generation fails.
func (s *RiddleService) GenerateAIRiddle(ctx context.Context, userID string, difficulty domain.Difficulty, category, customAnswer string) (*domain.RiddleSummary, error) {
	if s.assistant == nil {
		return nil, domain.NewAppError(503, msgAIDisabled, nil)
	}
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if difficulty == "" {
		difficulty = domain.DifficultyMedium
	}

	if err := s.consumeQuota(ctx, user); err != nil {
		return nil, err
	}

	generated, err := s.assistant.GenerateRiddle(ctx, ai.RiddleRequest{
		Difficulty: difficulty,
		Category:   strings.TrimSpace(category),
		Answer:     strings.TrimSpace(customAnswer),
	})
	if err != nil {
		s.quota.Release(ctx, userID, s.now())
		s.logger.Error("generating ai riddle failed", "user_id", userID, "error", err)
		return nil, domain.Internal("Failed to generate AI riddle", err)
	}

	now := s.now()
	riddle := &domain.Riddle{
		ID:             uuid.NewString(),
		Question:       generated.Question,
		Answer:         generated.Answer,
		Difficulty:     difficulty,
		Category:       generated.Category,
		Hints:          generated.Hints,
		TimesAttempted: 1,
		IsActive:       true,
		AIGenerated:    true,
		CreatedBy:      userID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.CreateRiddle(ctx, riddle); err != nil {
		s.quota.Release(ctx, userID, now)
		return nil, fmt.Errorf("storing ai riddle: %w", err)
	}
	if err := s.ensureAttempt(ctx, userID, riddle.ID); err != nil {
		s.quota.Release(ctx, userID, now)
		return nil, err
	}

	metrics.RiddlesServed.WithLabelValues("ai").Inc()
	summary := riddle.Summary()
	return &summary, nil
}

// GenerateRiddleVariation rephrases a riddle for premium users
func (s *RiddleService) GenerateRiddleVariation(ctx context.Context, userID, riddleID string) (*domain.RiddleVariation, error) {
	if s.assistant == nil {
		return nil, domain.NewAppError(503, msgAIDisabled, nil)
	}
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.IsPremium {
		return nil, domain.Forbidden("Upgrade to premium to access riddle variations")
	}
	riddle, err := s.loadRiddle(ctx, riddleID)
	if err != nil {
		return nil, err
	}

	text, err := s.assistant.GenerateVariation(ctx, riddle)
	if err != nil {
		s.logger.Error("generating variation failed", "riddle_id", riddleID, "error", err)
		return nil, domain.Internal("Failed to generate riddle variation", err)
	}
	return &domain.RiddleVariation{RiddleID: riddleID, Variation: text}, nil
}

// SaveCustomRiddle bookmarks an AI riddle the user generated
func (s *RiddleService) SaveCustomRiddle(ctx context.Context, userID, riddleID string) (*domain.SavedRiddle, error) {
	riddle, err := s.loadRiddle(ctx, riddleID)
	if err != nil {
		return nil, err
	}
	if !riddle.AIGenerated || riddle.CreatedBy != userID {
		return nil, domain.Forbidden("Only riddles you generated can be saved")
	}

	now := s.now()
	if err := s.store.SaveRiddle(ctx, userID, riddleID, now); err != nil {
		return nil, fmt.Errorf("saving riddle: %w", err)
	}
	return &domain.SavedRiddle{Riddle: *riddle, SavedAt: now}, nil
}

// GetSavedRiddles lists the user's bookmarks, newest first
func (s *RiddleService) GetSavedRiddles(ctx context.Context, userID string) ([]domain.SavedRiddle, error) {
	saved, err := s.store.ListSavedRiddles(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing saved riddles: %w", err)
	}
	return saved, nil
}

// consumeQuota runs the fused check-and-increment. A missing counter is
// seeded from the store; a cache failure falls back to the store count.
func (s *RiddleService) consumeQuota(ctx context.Context, user *domain.User) error {
	limit := s.dailyLimit(user)
	now := s.now()

	_, err := s.quota.Consume(ctx, user.ID, now, limit)
	if errors.Is(err, redis.ErrQuotaUnseeded) {
		count, cerr := s.store.CountAttemptsSince(ctx, user.ID, domain.StartOfDay(now))
		if cerr != nil {
			return fmt.Errorf("counting today's attempts: %w", cerr)
		}
		if serr := s.quota.Seed(ctx, user.ID, now, count); serr != nil {
			err = serr
		} else {
			_, err = s.quota.Consume(ctx, user.ID, now, limit)
		}
	}

	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.ErrQuotaExceeded):
		metrics.QuotaDenied.Inc()
		return domain.Forbidden(msgQuotaReached)
	}

	metrics.CacheErrors.WithLabelValues("quota").Inc()
	s.logger.Warn("quota counter unavailable, checking store", "user_id", user.ID, "error", err)

	count, cerr := s.store.CountAttemptsSince(ctx, user.ID, domain.StartOfDay(now))
	if cerr != nil {
		return fmt.Errorf("counting today's attempts: %w", cerr)
	}
	if limit != redis.Unlimited && count >= limit {
		metrics.QuotaDenied.Inc()
		return domain.Forbidden(msgQuotaReached)
	}
	return nil
}

func (s *RiddleService) dailyLimit(user *domain.User) int64 {
	if user.IsPremium {
		return redis.Unlimited
	}
	if user.RiddlesPerDayLimit > 0 {
		return int64(user.RiddlesPerDayLimit)
	}
	return int64(s.game.FreeDailyLimit)
}

// ensureAttempt reuses the open attempt on a riddle or starts one
func (s *RiddleService) ensureAttempt(ctx context.Context, userID, riddleID string) error {
	_, err := s.store.GetOpenAttempt(ctx, userID, riddleID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrAttemptNotFound) {
		return fmt.Errorf("loading attempt: %w", err)
	}
	attempt := &domain.RiddleAttempt{
		ID:        uuid.NewString(),
		UserID:    userID,
		RiddleID:  riddleID,
		StartedAt: s.now(),
	}
	if err := s.store.CreateAttempt(ctx, attempt); err != nil {
		return fmt.Errorf("creating attempt: %w", err)
	}
	return nil
}

func (s *RiddleService) loadUser(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.NotFound("User not found", err)
		}
		return nil, fmt.Errorf("loading user: %w", err)
	}
	return user, nil
}

func (s *RiddleService) loadRiddle(ctx context.Context, riddleID string) (*domain.Riddle, error) {
	riddle, err := s.store.GetRiddle(ctx, riddleID)
	if err != nil {
		if errors.Is(err, domain.ErrRiddleNotFound) {
			return nil, domain.NotFound("Riddle not found", err)
		}
		return nil, fmt.Errorf("loading riddle: %w", err)
	}
	return riddle, nil
}

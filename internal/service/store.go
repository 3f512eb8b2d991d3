package service

import (
	"context"
	"time"

	"github.com/riddle-backend/internal/ai"
	"github.com/riddle-backend/internal/domain"
)

// UserStore is the account persistence used by AuthService
type UserStore interface {
	CreateUser(ctx context.Context, u *domain.User) error
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
	SetPasswordResetToken(ctx context.Context, userID, tokenHash string, expiry time.Time) error
	GetUserByResetToken(ctx context.Context, tokenHash string, now time.Time) (*domain.User, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
}

// RiddleStore is the persistence used by RiddleService
type RiddleStore interface {
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	GetRiddle(ctx context.Context, id string) (*domain.Riddle, error)
	SelectRiddleCandidate(ctx context.Context, userID string, difficulty domain.Difficulty) (*domain.Riddle, error)
	IncrementServed(ctx context.Context, riddleID string) error
	CreateRiddle(ctx context.Context, r *domain.Riddle) error
	GetOpenAttempt(ctx context.Context, userID, riddleID string) (*domain.RiddleAttempt, error)
	CreateAttempt(ctx context.Context, a *domain.RiddleAttempt) error
	CountAttemptsSince(ctx context.Context, userID string, since time.Time) (int64, error)
	RecordSubmission(ctx context.Context, s domain.Submission) (*domain.SubmissionOutcome, error)
	GetUserStats(ctx context.Context, userID string) (*domain.UserStats, error)
	SaveRiddle(ctx context.Context, userID, riddleID string, at time.Time) error
	ListSavedRiddles(ctx context.Context, userID string) ([]domain.SavedRiddle, error)
}

// LeaderboardStore holds the durable leaderboard snapshot
type LeaderboardStore interface {
	UpsertLeaderboardEntries(ctx context.Context, period domain.Period, entries []domain.LeaderboardEntry) error
	GetLeaderboardEntries(ctx context.Context, period domain.Period, since time.Time, limit int) ([]domain.LeaderboardEntry, error)
}

// SubscriptionStore is the read side used by SubscriptionService
type SubscriptionStore interface {
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	GetLatestSubscription(ctx context.Context, userID string) (*domain.Subscription, error)
}

// Assistant is the generative AI surface; a nil Assistant disables AI routes
type Assistant interface {
	GenerateHint(ctx context.Context, r *domain.Riddle, previous []string) (*domain.AIHintResult, error)
	ValidateAnswer(ctx context.Context, correct, given string) (domain.Verdict, error)
	GenerateRiddle(ctx context.Context, req ai.RiddleRequest) (*ai.GeneratedRiddle, error)
	GenerateVariation(ctx context.Context, r *domain.Riddle) (string, error)
}

// Notifier is told when a leaderboard period changes
type Notifier interface {
	LeaderboardChanged(period domain.Period)
}

// ResetSender delivers password reset tokens to users
type ResetSender interface {
	SendPasswordReset(ctx context.Context, email, token string) error
}

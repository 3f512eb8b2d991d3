package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/riddle-backend/internal/auth"
	"github.com/riddle-backend/internal/config"
	"github.com/riddle-backend/internal/domain"
	"github.com/riddle-backend/internal/redis"
)

const (
	resetTokenTTL = time.Hour
	// maxResetRequests bounds reset mails per email per token lifetime
	maxResetRequests = 3
)

// ResetRequestedMessage is returned whether or not the email is registered
const ResetRequestedMessage = "If an account with that email exists, a password reset link has been sent."

// AuthService handles registration, login, profiles and password resets
type AuthService struct {
	store  UserStore
	tokens *auth.TokenManager
	cache  *redis.Cache
	quota  *redis.QuotaCounter
	mailer ResetSender
	game   config.GameConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewAuthService creates a new auth service
func NewAuthService(
	store UserStore,
	tokens *auth.TokenManager,
	cache *redis.Cache,
	quota *redis.QuotaCounter,
	mailer ResetSender,
	game config.GameConfig,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		store:  store,
		tokens: tokens,
		cache:  cache,
		quota:  quota,
		mailer: mailer,
		game:   game,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source
func (s *AuthService) SetClock(now func() time.Time) {
	s.now = now
}

// Register creates an account and returns a signed token
func (s *AuthService) Register(ctx context.Context, email, password, username string) (*domain.AuthResult, error) {
	email = strings.TrimSpace(email)
	username = strings.TrimSpace(username)

	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return nil, domain.Conflict("User already exists")
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, fmt.Errorf("checking email: %w", err)
	}

	if username != "" {
		if _, err := s.store.GetUserByUsername(ctx, username); err == nil {
			return nil, domain.Conflict("Username already taken")
		} else if !errors.Is(err, domain.ErrUserNotFound) {
			return nil, fmt.Errorf("checking username: %w", err)
		}
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	now := s.now()
	user := &domain.User{
		ID:                 uuid.NewString(),
		Email:              email,
		Username:           username,
		PasswordHash:       hash,
		SubscriptionTier:   domain.TierFree,
		RiddlesPerDayLimit: s.game.FreeDailyLimit,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.store.CreateUser(ctx, user); err != nil {
		switch {
		case errors.Is(err, domain.ErrEmailTaken):
			return nil, domain.Conflict("User already exists")
		case errors.Is(err, domain.ErrUsernameTaken):
			return nil, domain.Conflict("Username already taken")
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}

	token, err := s.tokens.Issue(user.ID, user.Email, user.IsPremium)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user registered", "user_id", user.ID)
	return &domain.AuthResult{User: user, Token: token}, nil
}

// Login verifies credentials and returns a signed token
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.AuthResult, error) {
	user, err := s.store.GetUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.Unauthorized("Invalid credentials")
		}
		return nil, fmt.Errorf("loading user: %w", err)
	}
	if !auth.CheckPassword(user.PasswordHash, password) {
		return nil, domain.Unauthorized("Invalid credentials")
	}

	token, err := s.tokens.Issue(user.ID, user.Email, user.IsPremium)
	if err != nil {
		return nil, err
	}

	s.cache.Set(ctx, redis.UserProfileKey(user.ID), user, redis.TTLLong)
	return &domain.AuthResult{User: user, Token: token}, nil
}

// GetProfile returns the user with today's served count filled in
func (s *AuthService) GetProfile(ctx context.Context, userID string) (*domain.User, error) {
	var user domain.User
	if !s.cache.Get(ctx, redis.UserProfileKey(userID), &user) {
		u, err := s.store.GetUserByID(ctx, userID)
		if err != nil {
			if errors.Is(err, domain.ErrUserNotFound) {
				return nil, domain.NotFound("User not found", err)
			}
			return nil, fmt.Errorf("loading user: %w", err)
		}
		user = *u
		s.cache.Set(ctx, redis.UserProfileKey(userID), user, redis.TTLLong)
	}

	count, found, err := s.quota.Count(ctx, userID, s.now())
	if err != nil {
		s.logger.Warn("reading daily count failed", "user_id", userID, "error", err)
	}
	if found {
		user.RiddlesTodayCount = count
	}
	return &user, nil
}

// RequestPasswordReset issues a one-hour reset token when the email exists.
// It never reports whether the account exists.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	email = strings.TrimSpace(email)
	if n, ok := s.cache.Increment(ctx, redis.ResetRequestsKey(email), resetTokenTTL); ok && n > maxResetRequests {
		s.logger.Warn("password reset requests throttled", "email", email, "requests", n)
		return ResetRequestedMessage, nil
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return ResetRequestedMessage, nil
		}
		return "", fmt.Errorf("loading user: %w", err)
	}

	plain, hash, err := auth.NewResetToken()
	if err != nil {
		return "", err
	}
	if err := s.store.SetPasswordResetToken(ctx, user.ID, hash, s.now().Add(resetTokenTTL)); err != nil {
		return "", fmt.Errorf("storing reset token: %w", err)
	}
	if err := s.mailer.SendPasswordReset(ctx, user.Email, plain); err != nil {
		s.logger.Error("sending password reset failed", "user_id", user.ID, "error", err)
	}
	return ResetRequestedMessage, nil
}

// ResetPassword consumes a reset token and sets a new password
func (s *AuthService) ResetPassword(ctx context.Context, token, password string) error {
	user, err := s.store.GetUserByResetToken(ctx, auth.HashResetToken(token), s.now())
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return domain.BadRequest("Invalid or expired password reset token")
		}
		return fmt.Errorf("loading reset token: %w", err)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	if err := s.store.UpdatePassword(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("updating password: %w", err)
	}

	s.cache.DeletePattern(ctx, redis.UserKeysPattern(user.ID))
	s.logger.Info("password reset", "user_id", user.ID)
	return nil
}

// LogResetSender writes reset tokens to the log; used until an email service is configured
type LogResetSender struct {
	Logger *slog.Logger
}

func (l LogResetSender) SendPasswordReset(_ context.Context, email, token string) error {
	l.Logger.Info("password reset requested", "email", email)
	l.Logger.Debug("password reset token issued", "email", email, "token", token)
	return nil
}

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/riddle-backend/internal/domain"
)

// GetLatestSubscription returns the user's newest subscription row
func (r *Repository) GetLatestSubscription(ctx context.Context, userID string) (*domain.Subscription, error) {
	var s domain.Subscription
	var customerID, externalID, productID *string
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, provider, customer_id, external_id, product_id, status, tier,
			current_period_start, current_period_end, cancel_at_period_end, last_event_at,
			created_at, updated_at
		FROM subscriptions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, userID).Scan(
		&s.ID,
		&s.UserID,
		&s.Provider,
		&customerID,
		&externalID,
		&productID,
		&s.Status,
		&s.Tier,
		&s.CurrentPeriodStart,
		&s.CurrentPeriodEnd,
		&s.CancelAtPeriodEnd,
		&s.LastEventAt,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("getting subscription: %w", err)
	}
	s.CustomerID = deref(customerID)
	s.ExternalID = deref(externalID)
	s.ProductID = deref(productID)
	return &s, nil
}

// FindUserIDByCustomer maps a provider customer id back to a user
func (r *Repository) FindUserIDByCustomer(ctx context.Context, provider, customerID string) (string, error) {
	var userID string
	err := r.pool.QueryRow(ctx, `
		SELECT user_id FROM subscriptions
		WHERE provider = $1 AND customer_id = $2
		ORDER BY created_at DESC
		LIMIT 1
	`, provider, customerID).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domain.ErrUserNotFound
		}
		return "", fmt.Errorf("finding customer: %w", err)
	}
	return userID, nil
}

// SaveSubscription upserts a subscription row and applies the entitlement to
// its user in the same transaction
func (r *Repository) SaveSubscription(ctx context.Context, s *domain.Subscription, ent domain.Entitlement) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO subscriptions (id, user_id, provider, customer_id, external_id, product_id,
				status, tier, current_period_start, current_period_end, cancel_at_period_end,
				last_event_at, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			ON CONFLICT (id) DO UPDATE SET
				provider = EXCLUDED.provider,
				customer_id = EXCLUDED.customer_id,
				external_id = EXCLUDED.external_id,
				product_id = EXCLUDED.product_id,
				status = EXCLUDED.status,
				tier = EXCLUDED.tier,
				current_period_start = EXCLUDED.current_period_start,
				current_period_end = EXCLUDED.current_period_end,
				cancel_at_period_end = EXCLUDED.cancel_at_period_end,
				last_event_at = EXCLUDED.last_event_at,
				updated_at = EXCLUDED.updated_at
		`, s.ID, s.UserID, s.Provider, nullString(s.CustomerID), nullString(s.ExternalID),
			nullString(s.ProductID), string(s.Status), string(s.Tier), s.CurrentPeriodStart,
			s.CurrentPeriodEnd, s.CancelAtPeriodEnd, s.LastEventAt, s.CreatedAt, s.UpdatedAt)
		if err != nil {
			if isForeignKeyViolation(err) {
				return domain.ErrUserNotFound
			}
			return fmt.Errorf("upserting subscription: %w", err)
		}

		result, err := tx.Exec(ctx, `
			UPDATE users SET is_premium = $2, subscription_tier = $3, riddles_per_day_limit = $4, updated_at = $5
			WHERE id = $1
		`, s.UserID, ent.IsPremium, string(ent.Tier), ent.RiddlesPerDayLimit, s.UpdatedAt)
		if err != nil {
			return fmt.Errorf("updating user entitlement: %w", err)
		}
		if result.RowsAffected() == 0 {
			return domain.ErrUserNotFound
		}
		return nil
	})
}

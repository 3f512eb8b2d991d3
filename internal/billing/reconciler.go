package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/riddle-backend/internal/config"
	"github.com/riddle-backend/internal/domain"
	"github.com/riddle-backend/internal/metrics"
	"github.com/riddle-backend/internal/redis"
)

// Store is the persistence the reconciler needs
type Store interface {
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	GetLatestSubscription(ctx context.Context, userID string) (*domain.Subscription, error)
	FindUserIDByCustomer(ctx context.Context, provider, customerID string) (string, error)
	// SaveSubscription upserts the row and applies the entitlement to the user
	// in one transaction
	SaveSubscription(ctx context.Context, sub *domain.Subscription, ent domain.Entitlement) error
}

// Invalidator drops cached user views
type Invalidator interface {
	Delete(ctx context.Context, keys ...string)
}

type transition struct {
	from map[domain.SubscriptionState]bool
	// to is empty when the event keeps the current state
	to domain.SubscriptionState
}

func states(s ...domain.SubscriptionState) map[domain.SubscriptionState]bool {
	m := make(map[domain.SubscriptionState]bool, len(s))
	for _, st := range s {
		m[st] = true
	}
	return m
}

var allStates = states(domain.StateFree, domain.StateActive, domain.StateCancelPending, domain.StateExpired, domain.StateBillingIssue)

// transitions lists the legal source states per event
var transitions = map[domain.BillingEventType]transition{
	domain.EventInitialPurchase: {
		from: states(domain.StateFree, domain.StateExpired, domain.StateActive),
		to:   domain.StateActive,
	},
	domain.EventRenewal: {
		from: states(domain.StateActive, domain.StateCancelPending, domain.StateBillingIssue, domain.StateExpired),
		to:   domain.StateActive,
	},
	domain.EventCancellation: {
		from: states(domain.StateActive, domain.StateBillingIssue, domain.StateCancelPending),
		to:   domain.StateCancelPending,
	},
	domain.EventUncancellation: {
		from: states(domain.StateCancelPending, domain.StateActive),
		to:   domain.StateActive,
	},
	domain.EventNonRenewingPurchase: {
		from: allStates,
	},
	domain.EventExpiration: {
		from: states(domain.StateActive, domain.StateCancelPending, domain.StateBillingIssue, domain.StateExpired),
		to:   domain.StateExpired,
	},
	domain.EventBillingIssue: {
		from: states(domain.StateActive, domain.StateCancelPending, domain.StateBillingIssue),
		to:   domain.StateBillingIssue,
	},
	domain.EventProductChange: {
		from: states(domain.StateActive, domain.StateCancelPending, domain.StateBillingIssue),
	},
}

// Reconciler applies normalized billing events to local subscription state
type Reconciler struct {
	store  Store
	cache  Invalidator
	game   config.GameConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewReconciler creates a reconciler
func NewReconciler(store Store, cache Invalidator, game config.GameConfig, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		store:  store,
		cache:  cache,
		game:   game,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source
func (r *Reconciler) SetClock(now func() time.Time) {
	r.now = now
}

// Entitlement returns the user fields a subscription state grants
func (r *Reconciler) Entitlement(state domain.SubscriptionState) domain.Entitlement {
	if state.Premium() {
		return domain.Entitlement{IsPremium: true, Tier: domain.TierPremium, RiddlesPerDayLimit: r.game.PremiumDailyLimit}
	}
	return domain.Entitlement{IsPremium: false, Tier: domain.TierFree, RiddlesPerDayLimit: r.game.FreeDailyLimit}
}

// Apply runs one event through the state machine. Rejected events return an
// outcome with Applied=false and a nil error; errors are store failures only.
func (r *Reconciler) Apply(ctx context.Context, ev domain.BillingEvent) (*domain.ReconcileOutcome, error) {
	out := &domain.ReconcileOutcome{EventID: ev.ID, UserID: ev.UserID}

	if out.UserID == "" && ev.CustomerID != "" {
		userID, err := r.store.FindUserIDByCustomer(ctx, ev.Provider, ev.CustomerID)
		if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
			return nil, fmt.Errorf("resolving customer %s: %w", ev.CustomerID, err)
		}
		out.UserID = userID
	}
	if out.UserID == "" {
		return r.reject(out, ev, "unknown user"), nil
	}
	if _, err := r.store.GetUserByID(ctx, out.UserID); err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return r.reject(out, ev, "unknown user"), nil
		}
		return nil, fmt.Errorf("loading user: %w", err)
	}

	current, err := r.store.GetLatestSubscription(ctx, out.UserID)
	if err != nil && !errors.Is(err, domain.ErrSubscriptionNotFound) {
		return nil, fmt.Errorf("loading subscription: %w", err)
	}
	if errors.Is(err, domain.ErrSubscriptionNotFound) {
		current = nil
	}
	out.From = current.State()
	out.To = out.From

	rule, ok := transitions[ev.Type]
	if !ok {
		return r.reject(out, ev, "unknown event type"), nil
	}
	if current != nil && current.LastEventAt != nil && !ev.OccurredAt.IsZero() && ev.OccurredAt.Before(*current.LastEventAt) {
		return r.reject(out, ev, "stale event"), nil
	}
	if !rule.from[out.From] {
		return r.reject(out, ev, fmt.Sprintf("illegal transition from %s", out.From)), nil
	}

	if ev.Type == domain.EventNonRenewingPurchase {
		r.logger.Info("non-renewing purchase recorded", "user_id", out.UserID, "product_id", ev.ProductID)
		r.invalidate(ctx, out.UserID)
		out.Applied = true
		metrics.BillingEvents.WithLabelValues(ev.Provider, string(ev.Type), "applied").Inc()
		return out, nil
	}

	to := rule.to
	if to == "" {
		to = out.From
	}

	next := r.nextRecord(current, out.UserID, ev)
	setState(next, to)
	r.applyDetails(next, ev)

	if err := r.store.SaveSubscription(ctx, next, r.Entitlement(to)); err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return r.reject(out, ev, "unknown user"), nil
		}
		metrics.BillingEvents.WithLabelValues(ev.Provider, string(ev.Type), "error").Inc()
		return nil, fmt.Errorf("saving subscription: %w", err)
	}
	r.invalidate(ctx, out.UserID)

	out.To = to
	out.Applied = true
	metrics.BillingEvents.WithLabelValues(ev.Provider, string(ev.Type), "applied").Inc()
	r.logger.Info("subscription updated",
		"user_id", out.UserID,
		"event", ev.Type,
		"from", out.From,
		"to", out.To,
	)
	return out, nil
}

// nextRecord starts a new row for a fresh purchase after expiry so history is
// kept; every other event edits the latest row
func (r *Reconciler) nextRecord(current *domain.Subscription, userID string, ev domain.BillingEvent) *domain.Subscription {
	now := r.now()
	if current == nil || (ev.Type == domain.EventInitialPurchase && current.State() == domain.StateExpired) {
		next := &domain.Subscription{
			ID:        uuid.NewString(),
			UserID:    userID,
			Provider:  ev.Provider,
			Status:    domain.StatusActive,
			Tier:      domain.TierFree,
			CreatedAt: now,
		}
		if current != nil {
			next.CustomerID = current.CustomerID
		}
		next.UpdatedAt = now
		return next
	}
	next := *current
	next.UpdatedAt = now
	return &next
}

// setState writes the status columns that derive to the given state
func setState(s *domain.Subscription, to domain.SubscriptionState) {
	switch to {
	case domain.StateActive:
		s.Status = domain.StatusActive
		s.Tier = domain.TierPremium
		s.CancelAtPeriodEnd = false
	case domain.StateCancelPending:
		s.Status = domain.StatusActive
		s.Tier = domain.TierPremium
		s.CancelAtPeriodEnd = true
	case domain.StateBillingIssue:
		s.Status = domain.StatusBillingIssue
		s.Tier = domain.TierPremium
	case domain.StateExpired:
		s.Status = domain.StatusExpired
		s.Tier = domain.TierFree
		s.CancelAtPeriodEnd = false
	}
}

func (r *Reconciler) applyDetails(s *domain.Subscription, ev domain.BillingEvent) {
	if ev.Provider != "" {
		s.Provider = ev.Provider
	}
	if ev.CustomerID != "" {
		s.CustomerID = ev.CustomerID
	}
	if ev.SubscriptionID != "" {
		s.ExternalID = ev.SubscriptionID
	}
	if ev.ProductID != "" {
		s.ProductID = ev.ProductID
	}
	if ev.PeriodStart != nil && ev.Type != domain.EventProductChange {
		s.CurrentPeriodStart = ev.PeriodStart
	}
	if ev.PeriodEnd != nil {
		s.CurrentPeriodEnd = ev.PeriodEnd
	}
	at := ev.OccurredAt
	if at.IsZero() {
		at = r.now()
	}
	s.LastEventAt = &at
}

func (r *Reconciler) reject(out *domain.ReconcileOutcome, ev domain.BillingEvent, reason string) *domain.ReconcileOutcome {
	out.Applied = false
	out.Reason = reason
	metrics.BillingEvents.WithLabelValues(ev.Provider, string(ev.Type), "rejected").Inc()
	r.logger.Warn("billing event rejected",
		"event_id", ev.ID,
		"event", ev.Type,
		"user_id", out.UserID,
		"state", out.From,
		"reason", reason,
	)
	return out
}

func (r *Reconciler) invalidate(ctx context.Context, userID string) {
	if r.cache == nil {
		return
	}
	r.cache.Delete(ctx, redis.UserProfileKey(userID), redis.UserStatsKey(userID))
}

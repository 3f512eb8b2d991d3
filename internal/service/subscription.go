package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/riddle-backend/internal/billing"
	"github.com/riddle-backend/internal/config"
	"github.com/riddle-backend/internal/domain"
)

// signatureHeaders names the header each provider authenticates webhooks with
var signatureHeaders = map[string]string{
	billing.ProviderRevenueCat: "Authorization",
	billing.ProviderStripe:     "Stripe-Signature",
}

var premiumFeatures = []string{
	"Unlimited riddles per day",
	"No advertisements",
	"Priority support",
	"Exclusive riddle categories",
}

// SubscriptionService exposes the active billing provider to the API
type SubscriptionService struct {
	store      SubscriptionStore
	provider   billing.Provider
	reconciler *billing.Reconciler
	stripe     config.StripeConfig
	logger     *slog.Logger
	now        func() time.Time
}

// NewSubscriptionService creates a subscription service
func NewSubscriptionService(
	store SubscriptionStore,
	provider billing.Provider,
	reconciler *billing.Reconciler,
	stripe config.StripeConfig,
	logger *slog.Logger,
) *SubscriptionService {
	return &SubscriptionService{
		store:      store,
		provider:   provider,
		reconciler: reconciler,
		stripe:     stripe,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source
func (s *SubscriptionService) SetClock(now func() time.Time) {
	s.now = now
}

// Provider returns the active provider name
func (s *SubscriptionService) Provider() string {
	return s.provider.Name()
}

// GetStatus combines the local subscription with the provider's view.
// Provider failures are logged and the local view is returned alone.
func (s *SubscriptionService) GetStatus(ctx context.Context, userID string) (*domain.SubscriptionStatusView, error) {
	user, sub, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	view := &domain.SubscriptionStatusView{
		Subscription:       sub,
		State:              sub.State(),
		IsPremium:          user.IsPremium,
		Tier:               user.SubscriptionTier,
		RiddlesPerDayLimit: user.RiddlesPerDayLimit,
		Provider:           s.provider.Name(),
	}

	remote, err := s.provider.FetchSubscriber(ctx, userID)
	if err != nil {
		s.logger.Warn("fetching remote subscriber failed", "user_id", userID, "provider", s.provider.Name(), "error", err)
		return view, nil
	}
	if remote != nil {
		view.ProviderData = remote.Raw
		view.HasActiveEntitlements = remote.HasActiveEntitlements
	}
	return view, nil
}

// Sync pulls the provider's view and grants premium locally when the
// provider reports an active entitlement the webhook has not delivered yet
func (s *SubscriptionService) Sync(ctx context.Context, userID string) (*domain.SubscriptionStatusView, error) {
	_, sub, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	remote, err := s.provider.FetchSubscriber(ctx, userID)
	if err != nil {
		return nil, domain.NewAppError(http.StatusBadGateway, "Failed to sync subscription", err)
	}

	if remote != nil && remote.HasActiveEntitlements {
		var eventType domain.BillingEventType
		switch sub.State() {
		case domain.StateFree, domain.StateExpired:
			eventType = domain.EventInitialPurchase
		case domain.StateBillingIssue:
			eventType = domain.EventRenewal
		}

		if eventType != "" {
			out, err := s.reconciler.Apply(ctx, domain.BillingEvent{
				ID:         "sync-" + uuid.NewString(),
				Provider:   s.provider.Name(),
				Type:       eventType,
				UserID:     userID,
				OccurredAt: s.now(),
			})
			if err != nil {
				return nil, fmt.Errorf("applying synced state: %w", err)
			}
			s.logger.Info("subscription synced from provider",
				"user_id", userID,
				"from", out.From,
				"to", out.To,
				"applied", out.Applied,
			)
		}
	}

	return s.GetStatus(ctx, userID)
}

// CreateCheckout opens a hosted purchase page for the premium plan
func (s *SubscriptionService) CreateCheckout(ctx context.Context, userID, priceID string) (*billing.Session, error) {
	user, sub, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub.State().Premium() {
		return nil, domain.Conflict("Subscription already active")
	}

	req := billing.CheckoutRequest{UserID: userID, Email: user.Email, PriceID: priceID}
	if sub != nil && sub.Provider == s.provider.Name() {
		req.CustomerID = sub.CustomerID
	}

	session, err := s.provider.CreateCheckout(ctx, req)
	if err != nil {
		return nil, s.providerError("Failed to create checkout session", err)
	}
	s.logger.Info("checkout session created", "user_id", userID, "customer_id", session.CustomerID)
	return session, nil
}

// CreatePortal opens the provider's self-service billing page
func (s *SubscriptionService) CreatePortal(ctx context.Context, userID string) (*billing.Session, error) {
	_, sub, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub == nil || sub.CustomerID == "" || sub.Provider != s.provider.Name() {
		return nil, domain.BadRequest("No billing account found")
	}

	session, err := s.provider.CreatePortal(ctx, sub.CustomerID)
	if err != nil {
		return nil, s.providerError("Failed to create portal session", err)
	}
	return session, nil
}

// Offerings lists the purchasable packages
func (s *SubscriptionService) Offerings() []domain.Offering {
	productID := "premium_monthly"
	if s.provider.Name() == billing.ProviderStripe && s.stripe.PremiumPriceID != "" {
		productID = s.stripe.PremiumPriceID
	}
	return []domain.Offering{{
		Identifier:  "premium_monthly",
		ProductID:   productID,
		Title:       "Premium",
		Description: "Premium Monthly Subscription",
		Price:       4.99,
		Currency:    "USD",
		Period:      "P1M",
		Features:    premiumFeatures,
	}}
}

// HandleWebhook authenticates a provider webhook and reconciles each event
func (s *SubscriptionService) HandleWebhook(ctx context.Context, header http.Header, payload []byte) ([]domain.ReconcileOutcome, error) {
	if name, ok := signatureHeaders[s.provider.Name()]; ok && header.Get(name) == "" {
		return nil, domain.BadRequest("Missing authorization header")
	}

	events, err := s.provider.ParseWebhook(header, payload)
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrInvalidSignature):
			return nil, domain.NewAppError(http.StatusUnauthorized, "Invalid webhook signature", err)
		case errors.Is(err, billing.ErrMalformedPayload):
			return nil, domain.NewAppError(http.StatusBadRequest, "Invalid webhook payload", err)
		}
		return nil, err
	}

	outcomes := make([]domain.ReconcileOutcome, 0, len(events))
	for _, ev := range events {
		out, err := s.reconciler.Apply(ctx, ev)
		if err != nil {
			return nil, fmt.Errorf("reconciling %s: %w", ev.ID, err)
		}
		outcomes = append(outcomes, *out)
	}
	return outcomes, nil
}

func (s *SubscriptionService) load(ctx context.Context, userID string) (*domain.User, *domain.Subscription, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, nil, domain.NotFound("User not found", err)
		}
		return nil, nil, fmt.Errorf("loading user: %w", err)
	}
	sub, err := s.store.GetLatestSubscription(ctx, userID)
	if err != nil && !errors.Is(err, domain.ErrSubscriptionNotFound) {
		return nil, nil, fmt.Errorf("loading subscription: %w", err)
	}
	return user, sub, nil
}

func (s *SubscriptionService) providerError(message string, err error) error {
	if errors.Is(err, billing.ErrUnsupported) {
		return domain.BadRequest(fmt.Sprintf("%s checkout is handled by the mobile app", s.provider.Name()))
	}
	s.logger.Error(message, "provider", s.provider.Name(), "error", err)
	return domain.NewAppError(http.StatusBadGateway, message, err)
}

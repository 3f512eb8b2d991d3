package billing

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/riddle-backend/internal/config"
	"github.com/riddle-backend/internal/domain"
)

const stripeUserIDKey = "userId"

// Stripe implements Provider on Stripe Checkout, Billing Portal and webhooks
type Stripe struct {
	api           *client.API
	webhookSecret string
	priceID       string
	successURL    string
	cancelURL     string
	returnURL     string
	logger        *slog.Logger
}

// NewStripe creates a Stripe provider
func NewStripe(cfg config.StripeConfig, logger *slog.Logger) *Stripe {
	return &Stripe{
		api:           client.New(cfg.SecretKey, nil),
		webhookSecret: cfg.WebhookSecret,
		priceID:       cfg.PremiumPriceID,
		successURL:    cfg.SuccessURL,
		cancelURL:     cfg.CancelURL,
		returnURL:     cfg.PortalReturnURL,
		logger:        logger,
	}
}

func (s *Stripe) Name() string { return ProviderStripe }

// ParseWebhook verifies the Stripe-Signature header and maps the event
func (s *Stripe) ParseWebhook(header http.Header, payload []byte) ([]domain.BillingEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, header.Get("Stripe-Signature"), s.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if event.Data == nil {
		return nil, ErrMalformedPayload
	}

	occurred := time.Unix(event.Created, 0).UTC()
	base := domain.BillingEvent{ID: event.ID, Provider: ProviderStripe, OccurredAt: occurred}

	switch string(event.Type) {
	case "checkout.session.completed":
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		if cs.Mode != stripe.CheckoutSessionModeSubscription {
			return nil, nil
		}
		ev := base
		ev.Type = domain.EventInitialPurchase
		ev.UserID = cs.ClientReferenceID
		if ev.UserID == "" {
			ev.UserID = cs.Metadata[stripeUserIDKey]
		}
		if cs.Customer != nil {
			ev.CustomerID = cs.Customer.ID
		}
		if cs.Subscription != nil {
			ev.SubscriptionID = cs.Subscription.ID
		}
		return []domain.BillingEvent{ev}, nil

	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		eventType, ok := subscriptionEventType(string(event.Type), &sub)
		if !ok {
			s.logger.Info("ignoring stripe subscription status", "status", sub.Status, "subscription_id", sub.ID)
			return nil, nil
		}
		ev := fromSubscription(base, &sub)
		ev.Type = eventType
		return []domain.BillingEvent{ev}, nil

	case "invoice.payment_failed":
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		if inv.Subscription == nil {
			return nil, nil
		}
		ev := base
		ev.Type = domain.EventBillingIssue
		ev.SubscriptionID = inv.Subscription.ID
		ev.UserID = inv.Subscription.Metadata[stripeUserIDKey]
		if inv.Customer != nil {
			ev.CustomerID = inv.Customer.ID
		}
		return []domain.BillingEvent{ev}, nil
	}

	s.logger.Debug("ignoring stripe event", "type", event.Type)
	return nil, nil
}

func subscriptionEventType(kind string, sub *stripe.Subscription) (domain.BillingEventType, bool) {
	if kind == "customer.subscription.deleted" {
		return domain.EventExpiration, true
	}
	switch sub.Status {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing:
		if kind == "customer.subscription.created" {
			return domain.EventInitialPurchase, true
		}
		if sub.CancelAtPeriodEnd {
			return domain.EventCancellation, true
		}
		return domain.EventRenewal, true
	case stripe.SubscriptionStatusPastDue, stripe.SubscriptionStatusUnpaid:
		return domain.EventBillingIssue, true
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusIncompleteExpired:
		return domain.EventExpiration, true
	}
	return "", false
}

func fromSubscription(base domain.BillingEvent, sub *stripe.Subscription) domain.BillingEvent {
	ev := base
	ev.SubscriptionID = sub.ID
	ev.UserID = sub.Metadata[stripeUserIDKey]
	if sub.Customer != nil {
		ev.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		ev.ProductID = sub.Items.Data[0].Price.ID
	}
	ev.PeriodStart = unixTime(sub.CurrentPeriodStart)
	ev.PeriodEnd = unixTime(sub.CurrentPeriodEnd)
	return ev
}

// FetchSubscriber looks the customer up by metadata and reports whether any
// subscription is active
func (s *Stripe) FetchSubscriber(ctx context.Context, userID string) (*RemoteSubscriber, error) {
	search := &stripe.CustomerSearchParams{}
	search.Query = fmt.Sprintf("metadata['%s']:'%s'", stripeUserIDKey, userID)
	search.Context = ctx

	iter := s.api.Customers.Search(search)
	var customer *stripe.Customer
	if iter.Next() {
		customer = iter.Customer()
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("searching stripe customers: %w", err)
	}
	if customer == nil {
		return nil, nil
	}

	list := &stripe.SubscriptionListParams{
		Customer: stripe.String(customer.ID),
		Status:   stripe.String(string(stripe.SubscriptionStatusActive)),
	}
	list.Context = ctx
	subs := s.api.Subscriptions.List(list)

	var active []string
	for subs.Next() {
		active = append(active, subs.Subscription().ID)
	}
	if err := subs.Err(); err != nil {
		return nil, fmt.Errorf("listing stripe subscriptions: %w", err)
	}

	return &RemoteSubscriber{
		Raw: map[string]any{
			"customerId":          customer.ID,
			"activeSubscriptions": active,
		},
		HasActiveEntitlements: len(active) > 0,
	}, nil
}

// CreateCheckout opens a subscription Checkout session, creating the
// customer first when the user has none
func (s *Stripe) CreateCheckout(ctx context.Context, req CheckoutRequest) (*Session, error) {
	customerID := req.CustomerID
	if customerID == "" {
		params := &stripe.CustomerParams{Email: stripe.String(req.Email)}
		params.Context = ctx
		params.AddMetadata(stripeUserIDKey, req.UserID)
		c, err := s.api.Customers.New(params)
		if err != nil {
			return nil, fmt.Errorf("creating stripe customer: %w", err)
		}
		customerID = c.ID
	}

	priceID := req.PriceID
	if priceID == "" {
		priceID = s.priceID
	}

	params := &stripe.CheckoutSessionParams{
		Customer:          stripe.String(customerID),
		ClientReferenceID: stripe.String(req.UserID),
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(priceID), Quantity: stripe.Int64(1)},
		},
		SuccessURL: stripe.String(s.successURL),
		CancelURL:  stripe.String(s.cancelURL),
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{stripeUserIDKey: req.UserID},
		},
	}
	params.Context = ctx

	cs, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("creating checkout session: %w", err)
	}
	return &Session{ID: cs.ID, URL: cs.URL, CustomerID: customerID}, nil
}

// CreatePortal opens the Stripe billing portal for an existing customer
func (s *Stripe) CreatePortal(ctx context.Context, customerID string) (*Session, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(s.returnURL),
	}
	params.Context = ctx

	ps, err := s.api.BillingPortalSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("creating portal session: %w", err)
	}
	return &Session{ID: ps.ID, URL: ps.URL, CustomerID: customerID}, nil
}

func unixTime(sec int64) *time.Time {
	if sec == 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

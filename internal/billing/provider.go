package billing

import (
	"context"
	"errors"
	"net/http"

	"github.com/riddle-backend/internal/domain"
)

// Provider names
const (
	ProviderRevenueCat = "revenuecat"
	ProviderStripe     = "stripe"
)

var (
	// ErrUnsupported is returned for operations a provider does not offer
	ErrUnsupported = errors.New("operation not supported by billing provider")
	// ErrInvalidSignature is returned when a webhook fails authentication
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrMalformedPayload is returned when a webhook body cannot be decoded
	ErrMalformedPayload = errors.New("malformed webhook payload")
)

// RemoteSubscriber is the provider's view of a customer
type RemoteSubscriber struct {
	Raw                   any
	HasActiveEntitlements bool
}

// CheckoutRequest starts a hosted purchase
type CheckoutRequest struct {
	UserID     string
	Email      string
	CustomerID string
	PriceID    string
}

// Session is a redirect to a provider-hosted page
type Session struct {
	ID         string `json:"sessionId,omitempty"`
	URL        string `json:"url"`
	CustomerID string `json:"-"`
}

// Provider adapts one billing service. Exactly one is active per deployment.
type Provider interface {
	Name() string
	// ParseWebhook authenticates a webhook and normalizes it. A nil slice with
	// a nil error means the event is acknowledged but irrelevant.
	ParseWebhook(header http.Header, payload []byte) ([]domain.BillingEvent, error)
	// FetchSubscriber returns nil, nil when the provider has no record
	FetchSubscriber(ctx context.Context, userID string) (*RemoteSubscriber, error)
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*Session, error)
	CreatePortal(ctx context.Context, customerID string) (*Session, error)
}

package billing

import (
	"context"
	"crypto/subtle"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/riddle-backend/internal/config"
	"github.com/riddle-backend/internal/domain"
)

// RevenueCat talks to the RevenueCat REST API and accepts its webhooks
type RevenueCat struct {
	apiKey       string
	webhookToken string
	baseURL      string
	httpClient   *http.Client
	logger       *slog.Logger
}

// NewRevenueCat creates a RevenueCat provider
func NewRevenueCat(cfg config.RevenueCatConfig, logger *slog.Logger) *RevenueCat {
	return &RevenueCat{
		apiKey:       cfg.APIKey,
		webhookToken: cfg.WebhookAuthToken,
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		logger:       logger,
	}
}

func (r *RevenueCat) Name() string { return ProviderRevenueCat }

type revenueCatWebhook struct {
	Event struct {
		ID              string `json:"id"`
		Type            string `json:"type"`
		AppUserID       string `json:"app_user_id"`
		ProductID       string `json:"product_id"`
		NewProductID    string `json:"new_product_id"`
		PurchasedAtMs   *int64 `json:"purchased_at_ms"`
		ExpirationAtMs  *int64 `json:"expiration_at_ms"`
		EventTimestamp  int64  `json:"event_timestamp_ms"`
		OriginalAppUser string `json:"original_app_user_id"`
	} `json:"event"`
}

var revenueCatEventTypes = map[string]domain.BillingEventType{
	"INITIAL_PURCHASE":      domain.EventInitialPurchase,
	"RENEWAL":               domain.EventRenewal,
	"CANCELLATION":          domain.EventCancellation,
	"UNCANCELLATION":        domain.EventUncancellation,
	"NON_RENEWING_PURCHASE": domain.EventNonRenewingPurchase,
	"EXPIRATION":            domain.EventExpiration,
	"BILLING_ISSUE":         domain.EventBillingIssue,
	"PRODUCT_CHANGE":        domain.EventProductChange,
}

// ParseWebhook checks the Authorization header and decodes the event.
// Without a configured token any non-empty header is accepted.
func (r *RevenueCat) ParseWebhook(header http.Header, payload []byte) ([]domain.BillingEvent, error) {
	if err := r.verify(header.Get("Authorization")); err != nil {
		return nil, err
	}

	var body revenueCatWebhook
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	ev := body.Event

	eventType, ok := revenueCatEventTypes[ev.Type]
	if !ok {
		r.logger.Info("ignoring revenuecat event", "type", ev.Type)
		return nil, nil
	}

	userID := ev.AppUserID
	if userID == "" {
		userID = ev.OriginalAppUser
	}
	if userID == "" {
		r.logger.Warn("revenuecat event without app_user_id", "type", ev.Type)
		return nil, nil
	}

	productID := ev.ProductID
	if eventType == domain.EventProductChange && ev.NewProductID != "" {
		productID = ev.NewProductID
	}

	occurred := time.Now().UTC()
	if ev.EventTimestamp > 0 {
		occurred = time.UnixMilli(ev.EventTimestamp).UTC()
	}

	return []domain.BillingEvent{{
		ID:          ev.ID,
		Provider:    ProviderRevenueCat,
		Type:        eventType,
		UserID:      userID,
		ProductID:   productID,
		PeriodStart: millis(ev.PurchasedAtMs),
		PeriodEnd:   millis(ev.ExpirationAtMs),
		OccurredAt:  occurred,
	}}, nil
}

func (r *RevenueCat) verify(authorization string) error {
	if authorization == "" {
		return ErrInvalidSignature
	}
	if r.webhookToken == "" {
		return nil
	}
	token := strings.TrimSpace(strings.TrimPrefix(authorization, "Bearer "))
	if subtle.ConstantTimeCompare([]byte(token), []byte(r.webhookToken)) != 1 {
		return ErrInvalidSignature
	}
	return nil
}

type revenueCatSubscriber struct {
	Subscriber struct {
		Entitlements     map[string]json.RawMessage `json:"entitlements"`
		Subscriptions    map[string]json.RawMessage `json:"subscriptions"`
		NonSubscriptions map[string]json.RawMessage `json:"non_subscriptions"`
	} `json:"subscriber"`
}

// FetchSubscriber calls GET /subscribers/{id}; 404 yields nil, nil
func (r *RevenueCat) FetchSubscriber(ctx context.Context, userID string) (*RemoteSubscriber, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/subscribers/"+url.PathEscape(userID), nil)
	if err != nil {
		return nil, fmt.Errorf("building revenuecat request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling revenuecat: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("revenuecat api error: %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading revenuecat response: %w", err)
	}
	var sub revenueCatSubscriber
	if err := json.Unmarshal(data, &sub); err != nil {
		return nil, fmt.Errorf("decoding revenuecat response: %w", err)
	}

	var raw any
	_ = json.Unmarshal(data, &raw)
	return &RemoteSubscriber{
		Raw:                   raw,
		HasActiveEntitlements: len(sub.Subscriber.Entitlements) > 0,
	}, nil
}

// CreateCheckout is handled by the mobile SDK for RevenueCat
func (r *RevenueCat) CreateCheckout(context.Context, CheckoutRequest) (*Session, error) {
	return nil, ErrUnsupported
}

// CreatePortal is handled by the app stores for RevenueCat
func (r *RevenueCat) CreatePortal(context.Context, string) (*Session, error) {
	return nil, ErrUnsupported
}

func millis(ms *int64) *time.Time {
	if ms == nil || *ms == 0 {
		return nil
	}
	t := time.UnixMilli(*ms).UTC()
	return &t
}

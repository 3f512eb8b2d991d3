package domain

import "time"

// SubscriptionStatus is the stored status column of a subscription row
type SubscriptionStatus string

const (
	StatusActive       SubscriptionStatus = "ACTIVE"
	StatusCanceled     SubscriptionStatus = "CANCELED"
	StatusExpired      SubscriptionStatus = "EXPIRED"
	StatusTrial        SubscriptionStatus = "TRIAL"
	StatusBillingIssue SubscriptionStatus = "BILLING_ISSUE"
)

// SubscriptionState is the reconciliation state derived from the latest subscription row
type SubscriptionState string

const (
	StateFree          SubscriptionState = "FREE"
	StateActive        SubscriptionState = "ACTIVE"
	StateCancelPending SubscriptionState = "CANCEL_PENDING"
	StateExpired       SubscriptionState = "EXPIRED"
	StateBillingIssue  SubscriptionState = "BILLING_ISSUE"
)

// Premium reports whether the state grants premium access
func (s SubscriptionState) Premium() bool {
	switch s {
	case StateActive, StateCancelPending, StateBillingIssue:
		return true
	}
	return false
}

// Subscription is one billing record; the latest by CreatedAt is current
type Subscription struct {
	ID                 string             `json:"id"`
	UserID             string             `json:"userId"`
	Provider           string             `json:"provider"`
	CustomerID         string             `json:"customerId,omitempty"`
	ExternalID         string             `json:"externalId,omitempty"`
	ProductID          string             `json:"productId,omitempty"`
	Status             SubscriptionStatus `json:"status"`
	Tier               SubscriptionTier   `json:"tier"`
	CurrentPeriodStart *time.Time         `json:"currentPeriodStart,omitempty"`
	CurrentPeriodEnd   *time.Time         `json:"currentPeriodEnd,omitempty"`
	CancelAtPeriodEnd  bool               `json:"cancelAtPeriodEnd"`
	LastEventAt        *time.Time         `json:"lastEventAt,omitempty"`
	CreatedAt          time.Time          `json:"createdAt"`
	UpdatedAt          time.Time          `json:"updatedAt"`
}

// State derives the reconciliation state; a nil subscription is FREE
func (s *Subscription) State() SubscriptionState {
	if s == nil {
		return StateFree
	}
	switch {
	case s.Status == StatusExpired:
		return StateExpired
	case s.Tier != TierPremium:
		return StateFree
	case s.Status == StatusBillingIssue:
		return StateBillingIssue
	case s.Status == StatusCanceled || s.CancelAtPeriodEnd:
		return StateCancelPending
	}
	return StateActive
}

// BillingEventType is a normalized provider event
type BillingEventType string

const (
	EventInitialPurchase     BillingEventType = "INITIAL_PURCHASE"
	EventRenewal             BillingEventType = "RENEWAL"
	EventCancellation        BillingEventType = "CANCELLATION"
	EventUncancellation      BillingEventType = "UNCANCELLATION"
	EventNonRenewingPurchase BillingEventType = "NON_RENEWING_PURCHASE"
	EventExpiration          BillingEventType = "EXPIRATION"
	EventBillingIssue        BillingEventType = "BILLING_ISSUE"
	EventProductChange       BillingEventType = "PRODUCT_CHANGE"
)

// BillingEvent is a provider webhook translated into provider-neutral terms
type BillingEvent struct {
	ID             string           `json:"id"`
	Provider       string           `json:"provider"`
	Type           BillingEventType `json:"type"`
	UserID         string           `json:"userId,omitempty"`
	CustomerID     string           `json:"customerId,omitempty"`
	SubscriptionID string           `json:"subscriptionId,omitempty"`
	ProductID      string           `json:"productId,omitempty"`
	PeriodStart    *time.Time       `json:"periodStart,omitempty"`
	PeriodEnd      *time.Time       `json:"periodEnd,omitempty"`
	OccurredAt     time.Time        `json:"occurredAt"`
}

// ReconcileOutcome reports what the reconciler did with an event
type ReconcileOutcome struct {
	EventID string            `json:"eventId,omitempty"`
	UserID  string            `json:"userId,omitempty"`
	From    SubscriptionState `json:"from"`
	To      SubscriptionState `json:"to"`
	Applied bool              `json:"applied"`
	Reason  string            `json:"reason,omitempty"`
}

// SubscriptionStatusView is returned by the status endpoint
type SubscriptionStatusView struct {
	Subscription          *Subscription     `json:"subscription"`
	State                 SubscriptionState `json:"state"`
	IsPremium             bool              `json:"isPremium"`
	Tier                  SubscriptionTier  `json:"tier"`
	RiddlesPerDayLimit    int               `json:"riddlesPerDayLimit"`
	Provider              string            `json:"provider"`
	ProviderData          any               `json:"providerData,omitempty"`
	HasActiveEntitlements bool              `json:"hasActiveEntitlements"`
}

// Offering is a purchasable package
type Offering struct {
	Identifier  string   `json:"identifier"`
	ProductID   string   `json:"productId"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Price       float64  `json:"price"`
	Currency    string   `json:"currency"`
	Period      string   `json:"period"`
	Features    []string `json:"features"`
}

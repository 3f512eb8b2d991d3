package domain

import "time"

// SubscriptionTier is the access level granted to a user
type SubscriptionTier string

const (
	TierFree    SubscriptionTier = "FREE"
	TierPremium SubscriptionTier = "PREMIUM"
)

// User represents an account
type User struct {
	ID                 string           `json:"id"`
	Email              string           `json:"email"`
	Username           string           `json:"username,omitempty"`
	PasswordHash       string           `json:"-"`
	IsPremium          bool             `json:"isPremium"`
	SubscriptionTier   SubscriptionTier `json:"subscriptionTier"`
	RiddlesPerDayLimit int              `json:"riddlesPerDayLimit"`
	RiddlesTodayCount  int64            `json:"riddlesTodayCount"`
	TotalRiddlesSolved int              `json:"totalRiddlesSolved"`
	CurrentStreak      int              `json:"currentStreak"`
	LongestStreak      int              `json:"longestStreak"`
	LastSolvedDate     *time.Time       `json:"lastSolvedDate,omitempty"`
	ResetTokenHash     string           `json:"-"`
	ResetTokenExpiry   *time.Time       `json:"-"`
	CreatedAt          time.Time        `json:"createdAt"`
	UpdatedAt          time.Time        `json:"updatedAt"`
}

// DisplayName is the name shown on leaderboards
func (u *User) DisplayName() string {
	if u.Username != "" {
		return u.Username
	}
	return u.Email
}

// Entitlement is the access a subscription state grants to a user
type Entitlement struct {
	IsPremium          bool             `json:"isPremium"`
	Tier               SubscriptionTier `json:"tier"`
	RiddlesPerDayLimit int              `json:"riddlesPerDayLimit"`
}

// AuthResult is returned by register and login
type AuthResult struct {
	User  *User  `json:"user"`
	Token string `json:"token"`
}

// NextStreak computes streak counters after a solve at now.
// Solving again on the same UTC day leaves the streak unchanged.
func NextStreak(lastSolved *time.Time, current, longest int, now time.Time) (int, int) {
	today := StartOfDay(now)
	switch {
	case lastSolved == nil:
		current = 1
	case StartOfDay(*lastSolved).Equal(today):
		if current == 0 {
			current = 1
		}
	case StartOfDay(*lastSolved).Equal(today.AddDate(0, 0, -1)):
		current++
	default:
		current = 1
	}
	if current > longest {
		longest = current
	}
	return current, longest
}

// StartOfDay truncates t to midnight UTC
func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

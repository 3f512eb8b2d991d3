package redis

import (
	"fmt"
	"strings"
	"time"

	"github.com/riddle-backend/internal/domain"
)

// Cache lifetimes
const (
	TTLShort  = 5 * time.Minute
	TTLMedium = 30 * time.Minute
	TTLLong   = 24 * time.Hour
	TTLWeek   = 7 * 24 * time.Hour
)

const leaderboardNamesKey = "leaderboard:names"

func UserProfileKey(userID string) string {
	return fmt.Sprintf("user:profile:%s", userID)
}

func UserStatsKey(userID string) string {
	return fmt.Sprintf("user:stats:%s", userID)
}

// UserKeysPattern matches every cached view of a user
func UserKeysPattern(userID string) string {
	return fmt.Sprintf("user:*:%s", userID)
}

// ResetRequestsKey counts password reset requests for an email
func ResetRequestsKey(email string) string {
	return fmt.Sprintf("reset:requests:%s", strings.ToLower(email))
}

// DailyLimitKey is the quota counter for a user on the UTC day containing day
func DailyLimitKey(userID string, day time.Time) string {
	return fmt.Sprintf("limit:%s:%s", userID, day.UTC().Format("2006-01-02"))
}

func LeaderboardKey(period domain.Period) string {
	return fmt.Sprintf("leaderboard:%s", period)
}

// HintKey caches the AI hint generated as the n-th hint of a riddle
func HintKey(riddleID string, n int) string {
	return fmt.Sprintf("hint:%s:%d", riddleID, n)
}

package domain

import "time"

// Period selects a leaderboard view
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
	PeriodAllTime Period = "alltime"
)

// Periods lists every leaderboard view
var Periods = []Period{PeriodDaily, PeriodWeekly, PeriodMonthly, PeriodAllTime}

// ParsePeriod validates a period name; empty input yields daily.
func ParsePeriod(s string) (Period, bool) {
	if s == "" {
		return PeriodDaily, true
	}
	for _, p := range Periods {
		if string(p) == s {
			return p, true
		}
	}
	return "", false
}

// TTL returns how long a period's sorted set lives after its last write; 0 means no expiry.
func (p Period) TTL() time.Duration {
	switch p {
	case PeriodDaily:
		return 24 * time.Hour
	case PeriodWeekly:
		return 7 * 24 * time.Hour
	case PeriodMonthly:
		return 31 * 24 * time.Hour
	}
	return 0
}

// Since returns the oldest snapshot time still valid for the period at now.
// Periods without expiry return the zero time.
func (p Period) Since(now time.Time) time.Time {
	ttl := p.TTL()
	if ttl == 0 {
		return time.Time{}
	}
	return now.Add(-ttl)
}

// LeaderboardEntry represents a single entry in the leaderboard
type LeaderboardEntry struct {
	Rank     int64  `json:"rank"`
	UserID   string `json:"userId"`
	Username string `json:"username,omitempty"`
	Score    int64  `json:"score"`
}

// LeaderboardPage is the response for a top-N query
type LeaderboardPage struct {
	Period  Period             `json:"period"`
	Entries []LeaderboardEntry `json:"leaderboard"`
	Total   int64              `json:"total"`
}

package domain

import "time"

// UserStats aggregates a user's lifetime activity
type UserStats struct {
	UserID         string  `json:"userId"`
	TotalSolved    int     `json:"totalSolved"`
	TotalAttempts  int     `json:"totalAttempts"`
	TotalHintsUsed int     `json:"totalHintsUsed"`
	TotalTimeSpent int     `json:"totalTimeSpent"`
	CurrentStreak  int     `json:"currentStreak"`
	LongestStreak  int     `json:"longestStreak"`
	Accuracy       float64 `json:"accuracy"`
	RiddlesToday   int64   `json:"riddlesToday"`
	DailyLimit     int     `json:"dailyLimit"`
}

// DailyProgress is one user's activity on one UTC day
type DailyProgress struct {
	UserID           string    `json:"userId"`
	Date             time.Time `json:"date"`
	RiddlesSolved    int       `json:"riddlesSolved"`
	RiddlesAttempted int       `json:"riddlesAttempted"`
}

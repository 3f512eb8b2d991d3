package domain

import (
	"strings"
	"time"
)

// Difficulty represents how hard a riddle is
type Difficulty string

const (
	DifficultyEasy   Difficulty = "EASY"
	DifficultyMedium Difficulty = "MEDIUM"
	DifficultyHard   Difficulty = "HARD"
	DifficultyExpert Difficulty = "EXPERT"
)

// ParseDifficulty accepts any casing; empty input yields "" with ok=true.
func ParseDifficulty(s string) (Difficulty, bool) {
	d := Difficulty(strings.ToUpper(strings.TrimSpace(s)))
	switch d {
	case "", DifficultyEasy, DifficultyMedium, DifficultyHard, DifficultyExpert:
		return d, true
	}
	return "", false
}

// Riddle is a stored riddle with its answer and hints
type Riddle struct {
	ID             string     `json:"id"`
	Question       string     `json:"question"`
	Answer         string     `json:"answer"`
	Difficulty     Difficulty `json:"difficulty"`
	Category       string     `json:"category"`
	Hints          []string   `json:"hints"`
	TimesAttempted int        `json:"timesAttempted"`
	TimesSolved    int        `json:"timesSolved"`
	IsActive       bool       `json:"isActive"`
	AIGenerated    bool       `json:"aiGenerated"`
	CreatedBy      string     `json:"createdBy,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// Summary strips the answer and hint text for delivery to a player
func (r *Riddle) Summary() RiddleSummary {
	return RiddleSummary{
		ID:             r.ID,
		Question:       r.Question,
		Difficulty:     r.Difficulty,
		Category:       r.Category,
		HintsAvailable: len(r.Hints),
		AIGenerated:    r.AIGenerated,
	}
}

// RiddleSummary is what a player sees when a riddle is served
type RiddleSummary struct {
	ID             string     `json:"id"`
	Question       string     `json:"question"`
	Difficulty     Difficulty `json:"difficulty"`
	Category       string     `json:"category"`
	HintsAvailable int        `json:"hintsAvailable"`
	AIGenerated    bool       `json:"aiGenerated,omitempty"`
}

// RiddleAttempt tracks one user's session on one riddle
type RiddleAttempt struct {
	ID          string     `json:"id"`
	UserID      string     `json:"userId"`
	RiddleID    string     `json:"riddleId"`
	Solved      bool       `json:"solved"`
	Attempts    int        `json:"attempts"`
	HintsUsed   int        `json:"hintsUsed"`
	TimeSpent   int        `json:"timeSpent"`
	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Submission is one answer attempt as applied to the store
type Submission struct {
	AttemptID string
	UserID    string
	RiddleID  string
	Correct   bool
	TimeSpent int
	HintsUsed int
	At        time.Time
}

// SubmissionOutcome reports the user's totals after a submission was recorded
type SubmissionOutcome struct {
	Username           string
	TotalRiddlesSolved int
	CurrentStreak      int
}

// AnswerResult is returned to the player after submitting an answer
type AnswerResult struct {
	Correct bool   `json:"correct"`
	Answer  string `json:"answer,omitempty"`
	Message string `json:"message"`
}

// HintResult is a static hint lookup
type HintResult struct {
	Hint       string `json:"hint"`
	HintNumber int    `json:"hintNumber"`
	TotalHints int    `json:"totalHints"`
}

// AIHintResult is a generated hint
type AIHintResult struct {
	Hint       string  `json:"hint"`
	Confidence float64 `json:"confidence"`
	HintNumber int     `json:"hintNumber"`
}

// Verdict is the AI's judgement of a free-form answer
type Verdict string

const (
	VerdictCorrect Verdict = "CORRECT"
	VerdictClose   Verdict = "CLOSE"
	VerdictWrong   Verdict = "WRONG"
)

// AnswerValidation is the outcome of an AI-assisted answer check
type AnswerValidation struct {
	IsCorrect  bool    `json:"isCorrect"`
	Similarity float64 `json:"similarity"`
	Feedback   string  `json:"feedback,omitempty"`
}

// RiddleVariation is a rephrased riddle text
type RiddleVariation struct {
	RiddleID  string `json:"riddleId"`
	Variation string `json:"variation"`
}

// SavedRiddle is a bookmark of an AI-generated riddle
type SavedRiddle struct {
	Riddle  Riddle    `json:"riddle"`
	SavedAt time.Time `json:"savedAt"`
}

// NormalizeAnswer case-folds and trims an answer for comparison
func NormalizeAnswer(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// AnswersMatch is the deterministic correctness check
func AnswersMatch(given, expected string) bool {
	return NormalizeAnswer(given) == NormalizeAnswer(expected)
}

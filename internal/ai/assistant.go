package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/riddle-backend/internal/domain"
	"github.com/riddle-backend/internal/metrics"
)

// ErrMalformedRiddle means the model reply did not follow the riddle format
var ErrMalformedRiddle = errors.New("malformed riddle response")

// GeneratedRiddle is a parsed model-authored riddle
type GeneratedRiddle struct {
	Question string
	Answer   string
	Hints    []string
	Category string
}

// RiddleRequest parameterises riddle generation
type RiddleRequest struct {
	Difficulty domain.Difficulty
	Category   string
	Answer     string
}

// Assistant implements the riddle-specific AI operations over a Generator
type Assistant struct {
	gen    Generator
	logger *slog.Logger
}

// NewAssistant creates an assistant
func NewAssistant(gen Generator, logger *slog.Logger) *Assistant {
	return &Assistant{gen: gen, logger: logger}
}

// GenerateHint writes the next hint given the hints already shown
func (a *Assistant) GenerateHint(ctx context.Context, r *domain.Riddle, previous []string) (*domain.AIHintResult, error) {
	text, err := a.call(ctx, "hint", hintPrompt(r, previous))
	if err != nil {
		return nil, err
	}
	return &domain.AIHintResult{
		Hint:       text,
		Confidence: HintConfidence(text, len(previous)),
		HintNumber: len(previous),
	}, nil
}

// ValidateAnswer asks the model to judge a free-form answer
func (a *Assistant) ValidateAnswer(ctx context.Context, correct, given string) (domain.Verdict, error) {
	text, err := a.call(ctx, "validate", validationPrompt(correct, given))
	if err != nil {
		return "", err
	}
	return ParseVerdict(text), nil
}

// GenerateRiddle writes a new riddle
func (a *Assistant) GenerateRiddle(ctx context.Context, req RiddleRequest) (*GeneratedRiddle, error) {
	if req.Difficulty == "" {
		req.Difficulty = domain.DifficultyMedium
	}
	text, err := a.call(ctx, "riddle", riddlePrompt(req.Difficulty, req.Category, req.Answer))
	if err != nil {
		return nil, err
	}
	g, err := ParseRiddle(text, req.Category)
	if err != nil {
		metrics.AIRequests.WithLabelValues("riddle", "malformed").Inc()
		a.logger.Warn("model riddle did not parse", "error", err)
		return nil, err
	}
	if req.Answer != "" {
		g.Answer = strings.TrimSpace(req.Answer)
	}
	return g, nil
}

// GenerateVariation rephrases an existing riddle
func (a *Assistant) GenerateVariation(ctx context.Context, r *domain.Riddle) (string, error) {
	return a.call(ctx, "variation", variationPrompt(r))
}

func (a *Assistant) call(ctx context.Context, op, prompt string) (string, error) {
	text, err := a.gen.Generate(ctx, prompt)
	if err != nil {
		metrics.AIRequests.WithLabelValues(op, "error").Inc()
		return "", fmt.Errorf("ai %s: %w", op, err)
	}
	metrics.AIRequests.WithLabelValues(op, "ok").Inc()
	return strings.TrimSpace(text), nil
}

var riddleFields = regexp.MustCompile(`(?m)^\s*\**(RIDDLE|ANSWER|HINT1|HINT2|HINT3|CATEGORY)\**\s*:\**\s*`)

// ParseRiddle reads the RIDDLE/ANSWER/HINT1..3/CATEGORY format.
// CATEGORY is optional and falls back to fallbackCategory, then "General".
func ParseRiddle(text, fallbackCategory string) (*GeneratedRiddle, error) {
	locs := riddleFields.FindAllStringSubmatchIndex(text, -1)
	fields := make(map[string]string, len(locs))
	for i, loc := range locs {
		name := text[loc[2]:loc[3]]
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		if _, seen := fields[name]; !seen {
			fields[name] = strings.TrimSpace(text[loc[1]:end])
		}
	}

	for _, name := range []string{"RIDDLE", "ANSWER", "HINT1", "HINT2", "HINT3"} {
		if fields[name] == "" {
			return nil, fmt.Errorf("%w: missing %s", ErrMalformedRiddle, name)
		}
	}

	category := fields["CATEGORY"]
	if category == "" {
		category = fallbackCategory
	}
	if category == "" {
		category = "General"
	}

	return &GeneratedRiddle{
		Question: fields["RIDDLE"],
		Answer:   fields["ANSWER"],
		Hints:    []string{fields["HINT1"], fields["HINT2"], fields["HINT3"]},
		Category: category,
	}, nil
}

// ParseVerdict maps free text to a verdict; CORRECT wins over CLOSE
func ParseVerdict(text string) domain.Verdict {
	upper := strings.ToUpper(text)
	switch {
	case strings.Contains(upper, "INCORRECT"), strings.Contains(upper, "WRONG"):
		return domain.VerdictWrong
	case strings.Contains(upper, "CORRECT"):
		return domain.VerdictCorrect
	case strings.Contains(upper, "CLOSE"):
		return domain.VerdictClose
	}
	return domain.VerdictWrong
}

// ValidationFor converts a verdict to the response shown to players
func ValidationFor(v domain.Verdict) domain.AnswerValidation {
	switch v {
	case domain.VerdictCorrect:
		return domain.AnswerValidation{IsCorrect: true, Similarity: 0.9, Feedback: "Great job!"}
	case domain.VerdictClose:
		return domain.AnswerValidation{IsCorrect: false, Similarity: 0.7, Feedback: "You're very close! Try again."}
	}
	return domain.AnswerValidation{IsCorrect: false, Similarity: 0.3, Feedback: "Not quite right. Keep thinking!"}
}

// HintConfidence scores a generated hint: base 0.7, length 20..100 +0.15,
// under 10 or over 200 -0.1, plus 0.05 per earlier hint up to 0.15.
func HintConfidence(hint string, previous int) float64 {
	confidence := 0.7
	n := len([]rune(hint))
	switch {
	case n >= 20 && n <= 100:
		confidence += 0.15
	case n < 10 || n > 200:
		confidence -= 0.1
	}
	confidence += min(float64(previous)*0.05, 0.15)
	return max(0, min(1, confidence))
}

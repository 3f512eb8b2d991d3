package ai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riddle-backend/internal/domain"
	"github.com/riddle-backend/internal/logging"
)

type stubGenerator struct {
	reply   string
	err     error
	prompts []string
}

func (s *stubGenerator) Generate(_ context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	return s.reply, s.err
}

const wellFormed = `RIDDLE: I have keys but open no locks.
ANSWER: Keyboard
HINT1: You use me every day.
HINT2: I sit in front of a screen.
HINT3: QWERTY.
CATEGORY: Objects`

func TestParseRiddle(t *testing.T) {
	g, err := ParseRiddle(wellFormed, "")
	require.NoError(t, err)

	assert.Equal(t, "I have keys but open no locks.", g.Question)
	assert.Equal(t, "Keyboard", g.Answer)
	assert.Equal(t, []string{"You use me every day.", "I sit in front of a screen.", "QWERTY."}, g.Hints)
	assert.Equal(t, "Objects", g.Category)
}

func TestParseRiddleMultilineAndMarkdown(t *testing.T) {
	text := "Sure!\n**RIDDLE:** I speak without a mouth\nand hear without ears.\n**ANSWER:** An echo\nHINT1: a\nHINT2: b\nHINT3: c\n"
	g, err := ParseRiddle(text, "Nature")
	require.NoError(t, err)

	assert.Equal(t, "I speak without a mouth\nand hear without ears.", g.Question)
	assert.Equal(t, "An echo", g.Answer)
	assert.Equal(t, "Nature", g.Category)
}

func TestParseRiddleMissingField(t *testing.T) {
	text := strings.Replace(wellFormed, "HINT2: I sit in front of a screen.\n", "", 1)
	_, err := ParseRiddle(text, "")
	assert.ErrorIs(t, err, ErrMalformedRiddle)
}

func TestParseRiddleDefaultsCategory(t *testing.T) {
	text := strings.Replace(wellFormed, "\nCATEGORY: Objects", "", 1)
	g, err := ParseRiddle(text, "")
	require.NoError(t, err)
	assert.Equal(t, "General", g.Category)
}

func TestParseVerdict(t *testing.T) {
	assert.Equal(t, domain.VerdictCorrect, ParseVerdict("correct"))
	assert.Equal(t, domain.VerdictClose, ParseVerdict(" CLOSE."))
	assert.Equal(t, domain.VerdictWrong, ParseVerdict("WRONG"))
	assert.Equal(t, domain.VerdictWrong, ParseVerdict("incorrect"))
	assert.Equal(t, domain.VerdictWrong, ParseVerdict("no idea"))
}

func TestHintConfidence(t *testing.T) {
	assert.InDelta(t, 0.85, HintConfidence("a hint of medium length here", 0), 1e-9)
	assert.InDelta(t, 0.6, HintConfidence("short", 0), 1e-9)
	assert.InDelta(t, 0.7, HintConfidence("twelve chars", 0), 1e-9)
	assert.InDelta(t, 1.0, HintConfidence("a hint of medium length here", 10), 1e-9)
}

func TestGenerateRiddleUsesCustomAnswer(t *testing.T) {
	gen := &stubGenerator{reply: wellFormed}
	a := NewAssistant(gen, logging.Discard())

	g, err := a.GenerateRiddle(context.Background(), RiddleRequest{Difficulty: domain.DifficultyEasy, Answer: " piano "})
	require.NoError(t, err)

	assert.Equal(t, "piano", g.Answer)
	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "EASY")
	assert.Contains(t, gen.prompts[0], "piano")
}

func TestGenerateHintIncludesPreviousHints(t *testing.T) {
	gen := &stubGenerator{reply: "Think about what you type on."}
	a := NewAssistant(gen, logging.Discard())
	r := &domain.Riddle{Question: "q", Answer: "keyboard", Difficulty: domain.DifficultyMedium}

	res, err := a.GenerateHint(context.Background(), r, []string{"first clue"})
	require.NoError(t, err)

	assert.Equal(t, "Think about what you type on.", res.Hint)
	assert.Equal(t, 1, res.HintNumber)
	assert.Contains(t, gen.prompts[0], "1. first clue")
}

func TestGeneratorErrorsPropagate(t *testing.T) {
	a := NewAssistant(&stubGenerator{err: errors.New("boom")}, logging.Discard())
	_, err := a.ValidateAnswer(context.Background(), "a", "b")
	require.Error(t, err)
}

package ai

import (
	"fmt"
	"strings"

	"github.com/riddle-backend/internal/domain"
)

var difficultyDescriptions = map[domain.Difficulty]string{
	domain.DifficultyEasy:   "simple and straightforward, suitable for beginners",
	domain.DifficultyMedium: "moderately challenging, requires some thinking",
	domain.DifficultyHard:   "very challenging and cryptic, for experienced players",
	domain.DifficultyExpert: "extremely difficult, requires deep lateral thinking",
}

var variationGuidance = map[domain.Difficulty]string{
	domain.DifficultyEasy:   "Make it simpler and more straightforward.",
	domain.DifficultyMedium: "Keep it moderately challenging.",
	domain.DifficultyHard:   "Make it more cryptic and thought-provoking.",
	domain.DifficultyExpert: "Make it extremely challenging with deep lateral thinking required.",
}

func hintPrompt(r *domain.Riddle, previous []string) string {
	var b strings.Builder
	b.WriteString("You are helping a player solve a riddle. Write a hint that moves them toward the answer without stating it.\n\n")
	fmt.Fprintf(&b, "Riddle: %q\nAnswer: %q\nDifficulty: %s\n", r.Question, r.Answer, r.Difficulty)

	if len(previous) > 0 {
		b.WriteString("\nHints the player has already seen:\n")
		for i, h := range previous {
			fmt.Fprintf(&b, "%d. %s\n", i+1, h)
		}
		b.WriteString("\nWrite the next hint. It should reveal a little more than those, but still require thought.")
	} else {
		b.WriteString("\nThis is the first hint. Keep it subtle.")
	}

	b.WriteString("\n\nReply with the hint text only, in one or two sentences.")
	return b.String()
}

func riddlePrompt(difficulty domain.Difficulty, category, answer string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Create a new riddle with %s difficulty (%s).", difficulty, difficultyDescriptions[difficulty])
	if category != "" {
		fmt.Fprintf(&b, "\nCategory: %s", category)
	}
	if answer != "" {
		fmt.Fprintf(&b, "\nThe answer must be exactly: %s", answer)
	}
	b.WriteString(`

Use exactly this format:
RIDDLE: [the riddle text]
ANSWER: [the answer]
HINT1: [a subtle first hint]
HINT2: [a more revealing second hint]
HINT3: [the most revealing hint, still without the answer]
CATEGORY: [one word such as Nature, Logic or WordPlay]

Make it creative and fun, with hints that reveal progressively more.`)
	return b.String()
}

func validationPrompt(correct, given string) string {
	return fmt.Sprintf(`You are checking an answer to a riddle.

Correct answer: %q
Player's answer: %q

Allow spelling variations, synonyms and small wording differences.

Reply with exactly one word:
CORRECT if the answer is right or practically right
CLOSE if it shows understanding but is not right
WRONG otherwise`, correct, given)
}

func variationPrompt(r *domain.Riddle) string {
	return fmt.Sprintf(`Rewrite this riddle at %s difficulty.

Original riddle: %q

- %s
- Keep the same answer but rephrase the clues
- Keep it in riddle form and make it fun

Reply with the new riddle text only.`, r.Difficulty, r.Question, variationGuidance[r.Difficulty])
}

package postgres

import "github.com/riddle-backend/internal/domain"

// StarterRiddles is loaded into an empty database on startup
var StarterRiddles = []domain.Riddle{
	{
		Question:   "I have keys but open no locks. I have space but no room. You can enter, but can't go outside. What am I?",
		Answer:     "keyboard",
		Difficulty: domain.DifficultyEasy,
		Category:   "Objects",
		Hints:      []string{"You probably touched me today.", "I sit in front of a screen.", "QWERTY is how many of me begin."},
	},
	{
		Question:   "What has to be broken before you can use it?",
		Answer:     "egg",
		Difficulty: domain.DifficultyEasy,
		Category:   "Food",
		Hints:      []string{"You might find me at breakfast.", "I come with a shell.", "Chickens make me."},
	},
	{
		Question:   "I speak without a mouth and hear without ears. I have no body, but I come alive with wind. What am I?",
		Answer:     "echo",
		Difficulty: domain.DifficultyMedium,
		Category:   "Nature",
		Hints:      []string{"Mountains and canyons are my favourite places.", "I repeat what you say.", "Shout hello into a valley."},
	},
	{
		Question:   "The more of this there is, the less you see. What is it?",
		Answer:     "darkness",
		Difficulty: domain.DifficultyMedium,
		Category:   "Logic",
		Hints:      []string{"It arrives every night.", "A lamp chases it away.", "The opposite of light."},
	},
	{
		Question:   "What can travel around the world while staying in a corner?",
		Answer:     "stamp",
		Difficulty: domain.DifficultyMedium,
		Category:   "Objects",
		Hints:      []string{"Think about letters.", "I am usually stuck somewhere.", "The post office sells me."},
	},
	{
		Question:   "I am not alive, but I grow; I don't have lungs, but I need air; I don't have a mouth, but water kills me. What am I?",
		Answer:     "fire",
		Difficulty: domain.DifficultyHard,
		Category:   "Nature",
		Hints:      []string{"I am hot to the touch.", "Campers gather around me.", "Firefighters fight me."},
	},
	{
		Question:   "What word becomes shorter when you add two letters to it?",
		Answer:     "short",
		Difficulty: domain.DifficultyHard,
		Category:   "WordPlay",
		Hints:      []string{"Read the question literally.", "The two letters are E and R.", "The answer is in the question."},
	},
	{
		Question:   "A man pushes his car to a hotel and tells the owner he is bankrupt. Why?",
		Answer:     "monopoly",
		Difficulty: domain.DifficultyExpert,
		Category:   "Logic",
		Hints:      []string{"Nobody is really driving.", "It involves a board.", "Think of a property trading game."},
	},
}

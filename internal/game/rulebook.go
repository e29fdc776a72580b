package game

// Rulebook is the player-facing rules card shown during the learning phase.
// The orchestrator serves it verbatim to the API layer.
type Rulebook struct {
	Name       string   `json:"name"`
	Tagline    string   `json:"tagline"`
	HowToPlay  []string `json:"howToPlay"`
	Tips       []string `json:"tips"`
	Rounds     int      `json:"rounds"`
	MinPlayers int      `json:"minPlayers"`
	MaxPlayers int      `json:"maxPlayers"`
	Learning   string   `json:"learning"`
}

var rulebooks = map[Type]Rulebook{
	TypeClaw: {
		Name:    "Claw",
		Tagline: "Grab the richest prizes before the field empties.",
		HowToPlay: []string{
			"A dozen prizes are scattered on the grid with hidden rarities.",
			"You get 5 grabs; aim by coordinates.",
			"A grab lands on the nearest prize within the claw's reach and banks its value.",
		},
		Tips: []string{
			"Golden prizes are rare but worth ten commons.",
			"Grabbed prizes are gone for everyone, so speed matters.",
		},
		Rounds:     1,
		MinPlayers: 2,
		MaxPlayers: 64,
		Learning:   "Study the prize field; grabs open when the round starts.",
	},
	TypePrediction: {
		Name:    "Prediction",
		Tagline: "Closest guess takes the round.",
		HowToPlay: []string{
			"Three rounds, one numeric question each.",
			"The target is fixed when the round opens; closeness scores up to 100.",
		},
		Tips: []string{
			"A wild guess still beats no guess: absent players are auto-played.",
		},
		Rounds:     predictionRounds,
		MinPlayers: 2,
		MaxPlayers: 64,
		Learning:   "Read the question format; ranges are shown with each round.",
	},
	TypeSpeed: {
		Name:    "Speed",
		Tagline: "Ten rounds, answer fast or score nothing.",
		HowToPlay: []string{
			"Each round is quick math, a pattern, or a pure reaction test.",
			"Correct answers score more the faster they arrive.",
		},
		Tips: []string{
			"On reaction rounds, jumping the gun scores zero and ends your round.",
		},
		Rounds:     speedRounds,
		MinPlayers: 2,
		MaxPlayers: 64,
		Learning:   "Warm up: you have ten seconds per round once play begins.",
	},
	TypeBlackjack: {
		Name:    "Blackjack",
		Tagline: "Five hands against the house.",
		HowToPlay: []string{
			"Hit to draw, stand to lock your hand; the dealer draws to 17.",
			"Win +20, tie +5, bust -10, natural blackjack +30.",
		},
		Tips: []string{
			"Standing on a weak hand beats busting: a bust costs you points.",
		},
		Rounds:     blackjackHands,
		MinPlayers: 2,
		MaxPlayers: 64,
		Learning:   "Hands are dealt fresh each round from your own shuffled deck.",
	},
}

// RulebookFor returns the rules card for a game type.
func RulebookFor(t Type) (Rulebook, bool) {
	rb, ok := rulebooks[t]
	return rb, ok
}

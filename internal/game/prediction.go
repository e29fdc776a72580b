package game

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Prediction: three rounds of numeric guessing. The hidden target is drawn
// uniformly from the question's range at round start; closeness scores up to
// 100 per round.
const predictionRounds = 3

type predictionQuestion struct {
	prompt   string
	min, max int
}

var predictionQuestions = []predictionQuestion{
	{"How many tokens will the claw machine swallow this hour?", 0, 1000},
	{"Guess the mystery number.", 1, 100},
	{"How many grabs until the golden prize drops?", 1, 50},
	{"Pick the crowd's lucky number.", 1, 500},
	{"How many spectators are watching right now?", 10, 2000},
}

type PredictionChallenge struct {
	Question string `json:"question"`
	Min      int    `json:"min"`
	Max      int    `json:"max"`
	// Target stays server-side until the round resolves; the outer API
	// layer must strip it from player-facing views.
	Target int `json:"target"`
}

type PredictionMove struct {
	Guess int `json:"guess"`
}

type predictionRules struct{}

func (predictionRules) maxRounds() int { return predictionRounds }

func (predictionRules) roundTimeout(base time.Duration) time.Duration { return base }

func (predictionRules) newChallenge(g *Game, round int) *Challenge {
	st := deriveStream(g.Seed, label("prediction"), u64bytes(uint64(round)))
	q := predictionQuestions[st.intn(len(predictionQuestions))]
	return &Challenge{
		Round: round,
		Prediction: &PredictionChallenge{
			Question: q.prompt,
			Min:      q.min,
			Max:      q.max,
			Target:   st.intRange(q.min, q.max),
		},
	}
}

func (predictionRules) applyMove(g *Game, ps *PlayerState, mv Move) (int64, error) {
	ch := g.Challenge.Prediction
	m := mv.Prediction
	if ps.Submitted {
		return 0, ErrAlreadySubmitted
	}
	if m.Guess < ch.Min || m.Guess > ch.Max {
		return 0, fmt.Errorf("%w: guess %d outside [%d,%d]", ErrInvalidMove, m.Guess, ch.Min, ch.Max)
	}
	ps.Submitted = true
	delta := predictionScore(m.Guess, ch.Target, ch.Min, ch.Max)
	ps.Score += delta
	return delta, nil
}

// predictionScore is max(0, 100 - round(|guess-target| / (max-min) * 100)),
// computed in integers with half-up rounding.
func predictionScore(guess, target, min, max int) int64 {
	span := max - min
	if span <= 0 {
		return 0
	}
	diff := guess - target
	if diff < 0 {
		diff = -diff
	}
	miss := (200*diff + span) / (2 * span)
	if miss >= 100 {
		return 0
	}
	return int64(100 - miss)
}

func (predictionRules) autoMove(g *Game, ps *PlayerState) Move {
	ch := g.Challenge.Prediction
	st := deriveStream(g.Seed, label("prediction-auto"), u64bytes(uint64(g.Round)), ps.Address.Bytes())
	return Move{Prediction: &PredictionMove{Guess: st.intRange(ch.Min, ch.Max)}}
}

func (predictionRules) playerDone(_ *Game, ps *PlayerState) bool { return ps.Submitted }

func (predictionRules) resolveRound(*Game) {}

func (predictionRules) rank(g *Game) []common.Address {
	return rankByScore(g, nil)
}

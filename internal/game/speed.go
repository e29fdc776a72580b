package game

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Speed: ten rapid-fire rounds mixing arithmetic, pattern completion and
// raw reaction. Correct answers score by response time; wrong, late or
// jump-the-gun answers score zero.
const (
	speedRounds             = 10
	speedDefaultTimeLimitMs = 10_000
)

const (
	SpeedKindMath     = "math"
	SpeedKindPattern  = "pattern"
	SpeedKindReaction = "reaction"
)

type SpeedChallenge struct {
	Kind        string `json:"kind"`
	Prompt      string `json:"prompt"`
	Answer      string `json:"answer"` // server-side; stripped by the API layer
	TimeLimitMs int    `json:"timeLimitMs"`
	// SignalAfterMs is reaction-only: the go signal delay from round start.
	SignalAfterMs int `json:"signalAfterMs,omitempty"`
}

type SpeedMove struct {
	Answer     string `json:"answer"`
	ResponseMs int64  `json:"responseMs"`
	// TooEarly marks a reaction answer sent before the go signal; it
	// scores zero but still counts as this round's submission.
	TooEarly bool `json:"tooEarly,omitempty"`
}

type speedRules struct{}

func (speedRules) maxRounds() int { return speedRounds }

func (speedRules) roundTimeout(base time.Duration) time.Duration { return base }

func (speedRules) newChallenge(g *Game, round int) *Challenge {
	st := deriveStream(g.Seed, label("speed"), u64bytes(uint64(round)))
	ch := &SpeedChallenge{TimeLimitMs: speedDefaultTimeLimitMs}
	switch st.intn(3) {
	case 0:
		ch.Kind = SpeedKindMath
		a, b := st.intRange(2, 20), st.intRange(2, 20)
		switch st.pick([]string{"+", "-", "x"}) {
		case "+":
			ch.Prompt = fmt.Sprintf("%d + %d = ?", a, b)
			ch.Answer = strconv.Itoa(a + b)
		case "-":
			if a < b {
				a, b = b, a
			}
			ch.Prompt = fmt.Sprintf("%d - %d = ?", a, b)
			ch.Answer = strconv.Itoa(a - b)
		default:
			ch.Prompt = fmt.Sprintf("%d x %d = ?", a, b)
			ch.Answer = strconv.Itoa(a * b)
		}
	case 1:
		ch.Kind = SpeedKindPattern
		start, step := st.intRange(1, 9), st.intRange(2, 9)
		terms := make([]string, 4)
		for i := range terms {
			terms[i] = strconv.Itoa(start + i*step)
		}
		ch.Prompt = fmt.Sprintf("What comes next: %s, ...?", strings.Join(terms, ", "))
		ch.Answer = strconv.Itoa(start + 4*step)
	default:
		ch.Kind = SpeedKindReaction
		ch.Prompt = "Tap the moment you see GO"
		ch.Answer = "go"
		ch.SignalAfterMs = st.intRange(1000, 4000)
	}
	return &Challenge{Round: round, Speed: ch}
}

func (speedRules) applyMove(g *Game, ps *PlayerState, mv Move) (int64, error) {
	ch := g.Challenge.Speed
	m := mv.Speed
	if ps.Submitted {
		return 0, ErrAlreadySubmitted
	}
	if m.ResponseMs < 0 {
		return 0, fmt.Errorf("%w: negative response time", ErrInvalidMove)
	}
	ps.Submitted = true

	if m.TooEarly && ch.Kind == SpeedKindReaction {
		return 0, nil
	}
	if m.ResponseMs > int64(ch.TimeLimitMs) {
		return 0, nil
	}
	if !strings.EqualFold(strings.TrimSpace(m.Answer), ch.Answer) {
		return 0, nil
	}
	delta := speedScore(m.ResponseMs)
	ps.Score += delta
	return delta, nil
}

// speedScore is max(10, 100 - floor(ms/50)) for a correct answer.
func speedScore(responseMs int64) int64 {
	s := 100 - responseMs/50
	if s < 10 {
		s = 10
	}
	return s
}

func (speedRules) autoMove(g *Game, ps *PlayerState) Move {
	ch := g.Challenge.Speed
	st := deriveStream(g.Seed, label("speed-auto"), u64bytes(uint64(g.Round)), ps.Address.Bytes())
	return Move{Speed: &SpeedMove{
		Answer:     ch.Answer,
		ResponseMs: int64(st.intRange(400, 3000)),
	}}
}

func (speedRules) playerDone(_ *Game, ps *PlayerState) bool { return ps.Submitted }

func (speedRules) resolveRound(*Game) {}

func (speedRules) rank(g *Game) []common.Address {
	return rankByScore(g, nil)
}

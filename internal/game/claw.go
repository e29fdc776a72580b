package game

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Claw: one long round. A field of prizes is scattered on a 100x100 percent
// grid; each player has a fixed number of grab attempts. A grab lands if the
// nearest remaining prize is within the grab radius and awards that prize's
// value.
const (
	ClawPrizeCount   = 12
	ClawAttempts     = 5
	ClawGrabRadius   = 15
	clawRoundSeconds = 60
)

type ClawPrize struct {
	ID     int    `json:"id"`
	X      int    `json:"x"` // 10..90
	Y      int    `json:"y"` // 20..80
	Value  int64  `json:"value"`
	Rarity string `json:"rarity"`
	Taken  bool   `json:"taken,omitempty"`
}

type ClawChallenge struct {
	Prizes            []ClawPrize `json:"prizes"`
	AttemptsPerPlayer int         `json:"attemptsPerPlayer"`
	GrabRadius        int         `json:"grabRadius"`
}

type ClawMove struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type ClawPlayerState struct {
	Attempts int   `json:"attempts"`
	Grabbed  []int `json:"grabbed,omitempty"` // prize ids in grab order
	// LastGrabSeq is the global move sequence of the latest successful
	// grab; the earlier last grab wins score ties.
	LastGrabSeq uint64 `json:"lastGrabSeq,omitempty"`
}

type clawRules struct{}

func (clawRules) maxRounds() int { return 1 }

func (clawRules) roundTimeout(time.Duration) time.Duration {
	return clawRoundSeconds * time.Second
}

func (clawRules) newChallenge(g *Game, round int) *Challenge {
	st := deriveStream(g.Seed, label("claw"), u64bytes(uint64(round)))
	prizes := make([]ClawPrize, ClawPrizeCount)
	for i := range prizes {
		roll := st.intn(100)
		var rarity string
		var value int64
		switch {
		case roll < 50:
			rarity, value = "common", 10
		case roll < 80:
			rarity, value = "uncommon", 25
		case roll < 95:
			rarity, value = "rare", 50
		default:
			rarity, value = "golden", 100
		}
		prizes[i] = ClawPrize{
			ID:     i,
			X:      st.intRange(10, 90),
			Y:      st.intRange(20, 80),
			Value:  value,
			Rarity: rarity,
		}
	}
	for _, ps := range g.Players {
		ps.Claw = &ClawPlayerState{}
	}
	return &Challenge{
		Round: round,
		Claw: &ClawChallenge{
			Prizes:            prizes,
			AttemptsPerPlayer: ClawAttempts,
			GrabRadius:        ClawGrabRadius,
		},
	}
}

func (clawRules) applyMove(g *Game, ps *PlayerState, mv Move) (int64, error) {
	ch := g.Challenge.Claw
	m := mv.Claw
	if m.X < 0 || m.X > 100 || m.Y < 0 || m.Y > 100 {
		return 0, fmt.Errorf("%w: claw position (%d,%d) outside grid", ErrInvalidMove, m.X, m.Y)
	}
	if ps.Claw == nil {
		ps.Claw = &ClawPlayerState{}
	}
	if ps.Claw.Attempts >= ch.AttemptsPerPlayer {
		return 0, ErrNoAttemptsLeft
	}
	ps.Claw.Attempts++

	// Nearest remaining prize within the grab radius; squared distances
	// keep this in integers.
	best := -1
	bestDist := ch.GrabRadius*ch.GrabRadius + 1
	for i := range ch.Prizes {
		p := &ch.Prizes[i]
		if p.Taken {
			continue
		}
		dx, dy := p.X-m.X, p.Y-m.Y
		d := dx*dx + dy*dy
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	if best < 0 {
		return 0, nil // miss still consumes the attempt
	}
	prize := &ch.Prizes[best]
	prize.Taken = true
	ps.Claw.Grabbed = append(ps.Claw.Grabbed, prize.ID)
	ps.Claw.LastGrabSeq = g.MoveSeq + 1
	ps.Score += prize.Value
	return prize.Value, nil
}

func (clawRules) autoMove(g *Game, ps *PlayerState) Move {
	attempts := 0
	if ps.Claw != nil {
		attempts = ps.Claw.Attempts
	}
	st := deriveStream(g.Seed, label("claw-auto"), u64bytes(uint64(g.Round)),
		ps.Address.Bytes(), u64bytes(uint64(attempts)))

	var open []int
	for i, p := range g.Challenge.Claw.Prizes {
		if !p.Taken {
			open = append(open, i)
		}
	}
	if len(open) == 0 {
		return Move{Claw: &ClawMove{X: 0, Y: 0}} // nothing left, burn the attempt
	}
	target := g.Challenge.Claw.Prizes[open[st.intn(len(open))]]
	return Move{Claw: &ClawMove{X: target.X, Y: target.Y}}
}

func (clawRules) playerDone(g *Game, ps *PlayerState) bool {
	return ps.Claw != nil && ps.Claw.Attempts >= g.Challenge.Claw.AttemptsPerPlayer
}

func (clawRules) resolveRound(*Game) {}

func (clawRules) rank(g *Game) []common.Address {
	return rankByScore(g, func(a, b *PlayerState) bool {
		var sa, sb uint64
		if a.Claw != nil {
			sa = a.Claw.LastGrabSeq
		}
		if b.Claw != nil {
			sb = b.Claw.LastGrabSeq
		}
		return sa < sb
	})
}

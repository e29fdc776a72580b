package game

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Blackjack: five hands against the house. Each hand deals player and
// dealer from a fresh seeded 52-card deck per player; the dealer draws to
// 17. Scoring per hand: natural blackjack +30, win +20, tie +5, loss 0,
// bust -10.
const (
	blackjackHands = 5

	blackjackNatural = 30
	blackjackWin     = 20
	blackjackTie     = 5
	blackjackBust    = -10
)

const (
	BlackjackHit   = "hit"
	BlackjackStand = "stand"
)

const (
	OutcomeBlackjack = "blackjack"
	OutcomeBust      = "bust"
	OutcomeWin       = "win"
	OutcomeTie       = "tie"
	OutcomeLoss      = "loss"
)

type BlackjackChallenge struct {
	Hand int `json:"hand"` // 1..5, mirrors the round number
}

type BlackjackMove struct {
	Action string `json:"action"` // hit | stand
}

// BlackjackHandState is one player's in-progress hand for the current
// round. The deck is per (player, hand) and fully seed-derived.
type BlackjackHandState struct {
	Deck     []Card `json:"deck"`
	Cursor   int    `json:"cursor"`
	Player   []Card `json:"player"`
	Dealer   []Card `json:"dealer"`
	Resolved bool   `json:"resolved"`
	Outcome  string `json:"outcome,omitempty"`
	Delta    int64  `json:"delta,omitempty"`
}

func (h *BlackjackHandState) draw() Card {
	c := h.Deck[h.Cursor]
	h.Cursor++
	return c
}

type blackjackRules struct{}

func (blackjackRules) maxRounds() int { return blackjackHands }

func (blackjackRules) roundTimeout(base time.Duration) time.Duration { return base }

func (blackjackRules) newChallenge(g *Game, round int) *Challenge {
	for _, addr := range g.Order {
		ps := g.Players[addr]
		st := deriveStream(g.Seed, label("blackjack"), u64bytes(uint64(round)), addr.Bytes())
		h := &BlackjackHandState{Deck: shuffledDeck(st)}
		h.Player = append(h.Player, h.draw(), h.draw())
		h.Dealer = append(h.Dealer, h.draw(), h.draw())
		ps.Blackjack = h
		// A natural resolves immediately.
		if handValue(h.Player) == 21 {
			h.Resolved = true
			h.Outcome = OutcomeBlackjack
			h.Delta = blackjackNatural
			ps.Score += blackjackNatural
		}
	}
	return &Challenge{Round: round, Blackjack: &BlackjackChallenge{Hand: round}}
}

func (blackjackRules) applyMove(g *Game, ps *PlayerState, mv Move) (int64, error) {
	h := ps.Blackjack
	if h == nil {
		return 0, fmt.Errorf("%w: no hand dealt", ErrInvalidMove)
	}
	if h.Resolved {
		return 0, ErrHandResolved
	}
	switch mv.Blackjack.Action {
	case BlackjackHit:
		h.Player = append(h.Player, h.draw())
		if handValue(h.Player) > 21 {
			h.Resolved = true
			h.Outcome = OutcomeBust
			h.Delta = blackjackBust
			ps.Score += blackjackBust
			return blackjackBust, nil
		}
		return 0, nil
	case BlackjackStand:
		delta := settleAgainstDealer(h)
		ps.Score += delta
		return delta, nil
	default:
		return 0, fmt.Errorf("%w: unknown blackjack action %q", ErrInvalidMove, mv.Blackjack.Action)
	}
}

// settleAgainstDealer plays the dealer out (draw to 17) and scores the
// stand.
func settleAgainstDealer(h *BlackjackHandState) int64 {
	for handValue(h.Dealer) < 17 {
		h.Dealer = append(h.Dealer, h.draw())
	}
	player, dealer := handValue(h.Player), handValue(h.Dealer)

	h.Resolved = true
	switch {
	case dealer > 21 || player > dealer:
		h.Outcome = OutcomeWin
		h.Delta = blackjackWin
	case player == dealer:
		h.Outcome = OutcomeTie
		h.Delta = blackjackTie
	default:
		h.Outcome = OutcomeLoss
		h.Delta = 0
	}
	return h.Delta
}

// autoMove plays house strategy for absent players: hit below 17, stand
// otherwise. Fully determined by the dealt hand, so replay is exact.
func (blackjackRules) autoMove(_ *Game, ps *PlayerState) Move {
	action := BlackjackStand
	if h := ps.Blackjack; h != nil && !h.Resolved && handValue(h.Player) < 17 {
		action = BlackjackHit
	}
	return Move{Blackjack: &BlackjackMove{Action: action}}
}

func (blackjackRules) playerDone(_ *Game, ps *PlayerState) bool {
	return ps.Blackjack != nil && ps.Blackjack.Resolved
}

func (blackjackRules) resolveRound(*Game) {}

func (blackjackRules) rank(g *Game) []common.Address {
	return rankByScore(g, nil)
}

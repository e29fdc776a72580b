// Package game hosts the four tournament mini-games behind a shared phase
// machine: waiting -> learning -> active -> finished. Each game type plugs
// in through the rules interface; all randomness derives from the game seed
// so a run can be replayed move for move.
package game

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type Type string

const (
	TypeClaw       Type = "claw"
	TypePrediction Type = "prediction"
	TypeSpeed      Type = "speed"
	TypeBlackjack  Type = "blackjack"
)

// ValidType reports whether t names a hosted game type.
func ValidType(t Type) bool {
	switch t {
	case TypeClaw, TypePrediction, TypeSpeed, TypeBlackjack:
		return true
	}
	return false
}

type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusLearning Status = "learning"
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
)

// autoMoveBound caps the auto-move loop per player per round. No variant
// needs more than a full blackjack hand's worth of draws.
const autoMoveBound = 32

// PlayerState is the per-player book-keeping inside one game.
type PlayerState struct {
	Address common.Address `json:"address"`
	Score   int64          `json:"score"`
	// Submitted marks this round's move as in. Claw and blackjack track
	// completion in their own payloads instead.
	Submitted bool `json:"submitted,omitempty"`

	Claw      *ClawPlayerState    `json:"clawState,omitempty"`
	Blackjack *BlackjackHandState `json:"blackjackState,omitempty"`
}

// RoundResult is one row of the game history: total scores after a round.
type RoundResult struct {
	Round  int              `json:"round"`
	Scores map[string]int64 `json:"scores"`
}

// ScoreRow is one line of the live leaderboard.
type ScoreRow struct {
	Address common.Address `json:"address"`
	Score   int64          `json:"score"`
}

// MoveResult reports the outcome of an accepted move.
type MoveResult struct {
	Player common.Address `json:"player"`
	Delta  int64          `json:"delta"`
	Score  int64          `json:"score"`
	// RoundResolved means every player is done for this round; the caller
	// should advance the round without waiting for the deadline.
	RoundResolved bool `json:"roundResolved"`
}

// Game is the per-arena child aggregate, created when the lobby closes and
// driven through rounds until winners are ranked.
type Game struct {
	ID        string `json:"id"`
	Type      Type   `json:"type"`
	Status    Status `json:"status"`
	Round     int    `json:"round"` // 1-based; 0 until activation
	MaxRounds int    `json:"maxRounds"`
	Seed      []byte `json:"seed"`

	RoundDeadline time.Time  `json:"roundDeadline"`
	Challenge     *Challenge `json:"challenge,omitempty"`

	Players map[common.Address]*PlayerState `json:"players"`
	// Order preserves first-join order for deterministic tie-breaks.
	Order []common.Address `json:"order"`

	// MoveSeq counts accepted moves; claw uses it to order last-grab
	// tie-breaks.
	MoveSeq uint64 `json:"moveSeq,omitempty"`

	History []RoundResult    `json:"history,omitempty"`
	Ranking []common.Address `json:"ranking,omitempty"` // full final order
	Winners []common.Address `json:"winners,omitempty"` // top ranks only
}

// rules is the per-game-type contract. Implementations are pure over the
// game state and the seed-derived streams.
type rules interface {
	maxRounds() int
	roundTimeout(base time.Duration) time.Duration
	newChallenge(g *Game, round int) *Challenge
	applyMove(g *Game, ps *PlayerState, mv Move) (int64, error)
	autoMove(g *Game, ps *PlayerState) Move
	playerDone(g *Game, ps *PlayerState) bool
	resolveRound(g *Game)
	rank(g *Game) []common.Address
}

func rulesFor(t Type) (rules, error) {
	switch t {
	case TypeClaw:
		return clawRules{}, nil
	case TypePrediction:
		return predictionRules{}, nil
	case TypeSpeed:
		return speedRules{}, nil
	case TypeBlackjack:
		return blackjackRules{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
}

func mustRules(t Type) rules {
	r, err := rulesFor(t)
	if err != nil {
		panic(err)
	}
	return r
}

// DeriveSeed computes the game seed from the arena address and the arena's
// creation instant. Documented so replays and external verifiers can
// reproduce it.
func DeriveSeed(arena common.Address, createdAt time.Time) []byte {
	buf := append(arena.Bytes(), u64bytes(uint64(createdAt.UnixNano()))...)
	sum := sha256.Sum256(buf)
	return sum[:]
}

// New creates a game in the waiting phase. players must be the arena's
// join-ordered participant list.
func New(id string, t Type, seed []byte, players []common.Address) (*Game, error) {
	r, err := rulesFor(t)
	if err != nil {
		return nil, err
	}
	if len(players) < 2 {
		return nil, fmt.Errorf("need at least 2 players, got %d", len(players))
	}
	g := &Game{
		ID:        id,
		Type:      t,
		Status:    StatusWaiting,
		MaxRounds: r.maxRounds(),
		Seed:      append([]byte(nil), seed...),
		Players:   make(map[common.Address]*PlayerState, len(players)),
		Order:     append([]common.Address(nil), players...),
	}
	for _, p := range players {
		if _, dup := g.Players[p]; dup {
			return nil, fmt.Errorf("duplicate player %s", p.Hex())
		}
		g.Players[p] = &PlayerState{Address: p}
	}
	return g, nil
}

// StartLearning enters the fixed learning phase; no moves are accepted.
func (g *Game) StartLearning() error {
	if g.Status != StatusWaiting {
		return fmt.Errorf("cannot start learning from %q", g.Status)
	}
	g.Status = StatusLearning
	return nil
}

// Activate ends learning: builds the first round's challenge and arms its
// deadline.
func (g *Game) Activate(now time.Time, baseTimeout time.Duration) error {
	if g.Status != StatusLearning {
		return fmt.Errorf("cannot activate from %q", g.Status)
	}
	r := mustRules(g.Type)
	g.Status = StatusActive
	g.Round = 1
	g.Challenge = r.newChallenge(g, 1)
	g.RoundDeadline = now.Add(r.roundTimeout(baseTimeout))
	return nil
}

// Submit applies one player move to the current round. The variant payload
// is validated here, once; per-type rules decide duplicates, attempts and
// scoring.
func (g *Game) Submit(player common.Address, mv Move, now time.Time) (*MoveResult, error) {
	if g.Status != StatusActive {
		return nil, ErrNotActive
	}
	ps, ok := g.Players[player]
	if !ok {
		return nil, ErrNotParticipant
	}
	if !mv.matches(g.Type) {
		return nil, fmt.Errorf("%w: payload does not match game type %q", ErrInvalidMove, g.Type)
	}
	if now.After(g.RoundDeadline) {
		return nil, ErrRoundExpired
	}
	r := mustRules(g.Type)
	delta, err := r.applyMove(g, ps, mv)
	if err != nil {
		return nil, err
	}
	g.MoveSeq++
	res := &MoveResult{Player: player, Delta: delta, Score: ps.Score}
	res.RoundResolved = g.roundComplete(r)
	return res, nil
}

func (g *Game) roundComplete(r rules) bool {
	for _, addr := range g.Order {
		if !r.playerDone(g, g.Players[addr]) {
			return false
		}
	}
	return true
}

// AdvanceRound closes the current round: absent players receive seeded
// auto-moves so state is deterministic regardless of tardiness, the round
// resolves, and either the next challenge is armed or the game finishes.
// Returns true once the game is finished.
func (g *Game) AdvanceRound(now time.Time, baseTimeout time.Duration) bool {
	if g.Status != StatusActive {
		return g.Status == StatusFinished
	}
	r := mustRules(g.Type)

	for _, addr := range g.Order {
		ps := g.Players[addr]
		for i := 0; i < autoMoveBound && !r.playerDone(g, ps); i++ {
			mv := r.autoMove(g, ps)
			if _, err := r.applyMove(g, ps, mv); err != nil {
				break
			}
			g.MoveSeq++
		}
	}
	r.resolveRound(g)
	g.recordHistory()

	if g.Round >= g.MaxRounds {
		g.finish(r)
		return true
	}

	g.Round++
	for _, ps := range g.Players {
		ps.Submitted = false
	}
	g.Challenge = r.newChallenge(g, g.Round)
	g.RoundDeadline = now.Add(r.roundTimeout(baseTimeout))
	return false
}

func (g *Game) recordHistory() {
	scores := make(map[string]int64, len(g.Order))
	for _, addr := range g.Order {
		scores[addr.Hex()] = g.Players[addr].Score
	}
	g.History = append(g.History, RoundResult{Round: g.Round, Scores: scores})
}

func (g *Game) finish(r rules) {
	g.Status = StatusFinished
	g.Challenge = nil
	g.Ranking = r.rank(g)
	g.Winners = append([]common.Address(nil), g.Ranking[:WinnersCount(len(g.Order))]...)
}

// WinnersCount is the paid-rank count for a field of n players: top 2 for
// small fields, top 3 above 8 players.
func WinnersCount(n int) int {
	k := 2
	if n > 8 {
		k = 3
	}
	if k > n {
		k = n
	}
	return k
}

// Leaderboard returns live standings, best first, join order breaking ties.
func (g *Game) Leaderboard() []ScoreRow {
	order := rankByScore(g, nil)
	rows := make([]ScoreRow, len(order))
	for i, addr := range order {
		rows[i] = ScoreRow{Address: addr, Score: g.Players[addr].Score}
	}
	return rows
}

// rankByScore orders players by score descending. tie, when non-nil, breaks
// equal scores; join order breaks whatever remains (stable sort over Order).
func rankByScore(g *Game, tie func(a, b *PlayerState) bool) []common.Address {
	out := append([]common.Address(nil), g.Order...)
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := g.Players[out[i]], g.Players[out[j]]
		if pi.Score != pj.Score {
			return pi.Score > pj.Score
		}
		if tie != nil {
			return tie(pi, pj)
		}
		return false
	})
	return out
}

// Package arena holds the tournament root aggregate and the orchestrator
// that drives every arena through its lifecycle: lobby fill, countdown,
// learning, rounds, winner ranking, payout and finalize authorization.
package arena

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	"clawarena/internal/game"
	"clawarena/internal/payout"
)

// Lifecycle constants.
const (
	CountdownSeconds = 10
	LearningSeconds  = 60
	IdleReapSeconds  = 20

	MinPlayers = 2
	MaxPlayers = 64
)

type Network string

const (
	NetworkTestnet Network = "testnet"
	NetworkMainnet Network = "mainnet"
)

type Origin string

const (
	OriginAdmin Origin = "admin"
	OriginAgent Origin = "agent"
)

// Status tracks the arena's game lifecycle. "waiting" covers the whole
// lobby phase, open or closed.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusLearning  Status = "learning"
	StatusActive    Status = "active"
	StatusFinished  Status = "finished"
	StatusCancelled Status = "cancelled"
)

// Params is the immutable arena configuration fixed at creation.
type Params struct {
	Address              common.Address `json:"address,omitempty"` // synthesized when zero
	Name                 string         `json:"name"`
	EntryFee             *uint256.Int   `json:"entryFee"`
	MaxPlayers           uint32         `json:"maxPlayers"`
	ProtocolFeeBps       uint16         `json:"protocolFeeBps"`
	Treasury             common.Address `json:"treasury"`
	RegistrationDeadline *time.Time     `json:"registrationDeadline,omitempty"`
	GameType             game.Type      `json:"gameType"`
	Network              Network        `json:"network"`
	CreatedBy            Origin         `json:"createdBy"`
	CreationReason       string         `json:"creationReason,omitempty"`
	PayoutScheme         payout.Scheme  `json:"payoutScheme,omitempty"` // default equal
}

func (p Params) validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidParams)
	}
	if p.EntryFee == nil || p.EntryFee.IsZero() {
		return fmt.Errorf("%w: entry fee must be positive", ErrInvalidParams)
	}
	if p.MaxPlayers < MinPlayers || p.MaxPlayers > MaxPlayers {
		return fmt.Errorf("%w: maxPlayers %d outside %d..%d", ErrInvalidParams, p.MaxPlayers, MinPlayers, MaxPlayers)
	}
	if p.ProtocolFeeBps > payout.MaxFeeBps {
		return fmt.Errorf("%w: protocolFeeBps %d above cap %d", ErrInvalidParams, p.ProtocolFeeBps, payout.MaxFeeBps)
	}
	if !game.ValidType(p.GameType) {
		return fmt.Errorf("%w: unknown game type %q", ErrInvalidParams, p.GameType)
	}
	if p.Network != NetworkTestnet && p.Network != NetworkMainnet {
		return fmt.Errorf("%w: unknown network %q", ErrInvalidParams, p.Network)
	}
	if p.CreatedBy != OriginAdmin && p.CreatedBy != OriginAgent {
		return fmt.Errorf("%w: unknown origin %q", ErrInvalidParams, p.CreatedBy)
	}
	if p.PayoutScheme != "" && !payout.ValidScheme(p.PayoutScheme) {
		return fmt.Errorf("%w: unknown payout scheme %q", ErrInvalidParams, p.PayoutScheme)
	}
	return nil
}

// Arena is the root aggregate. It is mutated only through the orchestrator's
// per-arena actor; every mutation goes through the store's CAS update.
type Arena struct {
	Address              common.Address `json:"address"`
	Name                 string         `json:"name"`
	EntryFee             *uint256.Int   `json:"entryFee"`
	MaxPlayers           uint32         `json:"maxPlayers"`
	ProtocolFeeBps       uint16         `json:"protocolFeeBps"`
	Treasury             common.Address `json:"treasury"`
	RegistrationDeadline *time.Time     `json:"registrationDeadline,omitempty"`
	GameType             game.Type      `json:"gameType"`
	Network              Network        `json:"network"`
	CreatedBy            Origin         `json:"createdBy"`
	CreationReason       string         `json:"creationReason,omitempty"`
	PayoutScheme         payout.Scheme  `json:"payoutScheme,omitempty"`

	Players []common.Address `json:"players"`

	IsClosed    bool   `json:"isClosed"`
	IsFinalized bool   `json:"isFinalized"`
	GameStatus  Status `json:"gameStatus"`

	CreatedAt         time.Time  `json:"createdAt"`
	ClosedAt          *time.Time `json:"closedAt,omitempty"`
	LearningStartedAt *time.Time `json:"learningStartedAt,omitempty"`
	ActiveStartedAt   *time.Time `json:"activeStartedAt,omitempty"`
	FinishedAt        *time.Time `json:"finishedAt,omitempty"`
	FinalizedAt       *time.Time `json:"finalizedAt,omitempty"`

	Game *game.Game `json:"game,omitempty"`

	Winners []common.Address `json:"winners,omitempty"`
	Payouts []*uint256.Int   `json:"payouts,omitempty"`

	UsedNonce         uint64        `json:"usedNonce"`
	FinalizeSignature hexutil.Bytes `json:"finalizeSignature,omitempty"`

	// Frozen marks an arena hit by an invariant violation: no further
	// mutations are accepted and the diagnostic stays persisted.
	Frozen       bool   `json:"frozen,omitempty"`
	FrozenReason string `json:"frozenReason,omitempty"`
}

// New builds an arena in the open-lobby state.
func New(p Params, now time.Time) (*Arena, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	scheme := p.PayoutScheme
	if scheme == "" {
		scheme = payout.SchemeEqual
	}
	return &Arena{
		Address:              p.Address,
		Name:                 p.Name,
		EntryFee:             new(uint256.Int).Set(p.EntryFee),
		MaxPlayers:           p.MaxPlayers,
		ProtocolFeeBps:       p.ProtocolFeeBps,
		Treasury:             p.Treasury,
		RegistrationDeadline: p.RegistrationDeadline,
		GameType:             p.GameType,
		Network:              p.Network,
		CreatedBy:            p.CreatedBy,
		CreationReason:       p.CreationReason,
		PayoutScheme:         scheme,
		GameStatus:           StatusWaiting,
		CreatedAt:            now,
	}, nil
}

// Terminal reports whether the arena can never change again.
func (a *Arena) Terminal() bool {
	return a.IsFinalized || a.GameStatus == StatusCancelled
}

// HasPlayer reports membership in the join list.
func (a *Arena) HasPlayer(p common.Address) bool {
	for _, q := range a.Players {
		if q == p {
			return true
		}
	}
	return false
}

// Join appends a player to the lobby. Guards are strict: any violation is
// rejected with a structured error, no silent normalization. Join at
// exactly the registration deadline is accepted.
func (a *Arena) Join(p common.Address, now time.Time) error {
	if a.Frozen {
		return ErrFrozen
	}
	if a.Terminal() {
		return ErrTerminal
	}
	if a.IsClosed {
		return ErrArenaClosed
	}
	if a.HasPlayer(p) {
		return ErrAlreadyJoined
	}
	if uint32(len(a.Players)) >= a.MaxPlayers {
		return ErrArenaFull
	}
	if d := a.RegistrationDeadline; d != nil && now.After(*d) {
		return ErrRegistrationClosed
	}
	a.Players = append(a.Players, p)
	return nil
}

// Close shuts the lobby; the player list is fixed from here on.
func (a *Arena) Close(now time.Time) error {
	if a.Frozen {
		return ErrFrozen
	}
	if a.Terminal() {
		return ErrTerminal
	}
	if a.IsClosed {
		return ErrArenaClosed
	}
	a.IsClosed = true
	t := now
	a.ClosedAt = &t
	return nil
}

// Cancel terminates the arena without play.
func (a *Arena) Cancel(now time.Time) error {
	if a.Frozen {
		return ErrFrozen
	}
	if a.Terminal() {
		return ErrTerminal
	}
	if a.GameStatus != StatusWaiting {
		return fmt.Errorf("cannot cancel from %q", a.GameStatus)
	}
	a.GameStatus = StatusCancelled
	if !a.IsClosed {
		a.IsClosed = true
		t := now
		a.ClosedAt = &t
	}
	return nil
}

// BeginLearning attaches the freshly created game and enters the learning
// phase.
func (a *Arena) BeginLearning(g *game.Game, now time.Time) error {
	if a.Frozen {
		return ErrFrozen
	}
	if !a.IsClosed || a.GameStatus != StatusWaiting {
		return fmt.Errorf("cannot begin learning: closed=%t status=%q", a.IsClosed, a.GameStatus)
	}
	if err := g.StartLearning(); err != nil {
		return err
	}
	a.Game = g
	a.GameStatus = StatusLearning
	t := now
	a.LearningStartedAt = &t
	return nil
}

// BeginActive ends the learning phase and opens round one.
func (a *Arena) BeginActive(now time.Time, baseTimeout time.Duration) error {
	if a.Frozen {
		return ErrFrozen
	}
	if a.GameStatus != StatusLearning || a.Game == nil {
		return fmt.Errorf("cannot activate: status=%q", a.GameStatus)
	}
	if err := a.Game.Activate(now, baseTimeout); err != nil {
		return err
	}
	a.GameStatus = StatusActive
	t := now
	a.ActiveStartedAt = &t
	return nil
}

// FinishGame records the engine's final ranking on the aggregate.
func (a *Arena) FinishGame(now time.Time) error {
	if a.Frozen {
		return ErrFrozen
	}
	if a.GameStatus != StatusActive || a.Game == nil || a.Game.Status != game.StatusFinished {
		return fmt.Errorf("cannot finish: status=%q", a.GameStatus)
	}
	a.GameStatus = StatusFinished
	a.Winners = append([]common.Address(nil), a.Game.Winners...)
	t := now
	a.FinishedAt = &t
	return nil
}

// ApplyFinalization records a signed distribution. The nonce must be the
// one the signature covers.
func (a *Arena) ApplyFinalization(sig []byte, payouts []*uint256.Int, nonce uint64, now time.Time) error {
	if a.Frozen {
		return ErrFrozen
	}
	if a.IsFinalized {
		return ErrAlreadyFinalized
	}
	if a.GameStatus != StatusFinished {
		return ErrNotFinished
	}
	if nonce != a.UsedNonce+1 {
		return fmt.Errorf("finalize nonce %d does not follow %d", nonce, a.UsedNonce)
	}
	a.IsFinalized = true
	a.UsedNonce = nonce
	a.Payouts = payouts
	a.FinalizeSignature = append(hexutil.Bytes(nil), sig...)
	t := now
	a.FinalizedAt = &t
	return nil
}

// CheckInvariants verifies the always-hold properties. A failure here is an
// internal bug and freezes the arena.
func (a *Arena) CheckInvariants() error {
	seen := make(map[common.Address]struct{}, len(a.Players))
	for _, p := range a.Players {
		if _, dup := seen[p]; dup {
			return fmt.Errorf("duplicate player %s", p.Hex())
		}
		seen[p] = struct{}{}
	}
	if uint32(len(a.Players)) > a.MaxPlayers {
		return fmt.Errorf("players %d exceed max %d", len(a.Players), a.MaxPlayers)
	}
	if len(a.Winners) != len(a.Payouts) && a.IsFinalized {
		return fmt.Errorf("winners %d != payouts %d", len(a.Winners), len(a.Payouts))
	}
	wseen := make(map[common.Address]struct{}, len(a.Winners))
	for _, w := range a.Winners {
		if _, ok := seen[w]; !ok {
			return fmt.Errorf("winner %s is not a player", w.Hex())
		}
		if _, dup := wseen[w]; dup {
			return fmt.Errorf("winner %s ranked twice", w.Hex())
		}
		wseen[w] = struct{}{}
	}
	return nil
}

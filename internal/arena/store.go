package arena

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Store is the persistence boundary the orchestrator writes through. Arena
// updates are CAS-style: UpdateArena loads the document, applies mutate to
// a private copy, and commits only if the version still matches; otherwise
// it returns ErrConflict and the caller retries with a fresh version.
//
// Implementations live in internal/store (in-memory with snapshot
// persistence, MongoDB).
type Store interface {
	InsertArena(ctx context.Context, a *Arena) error
	LoadArena(ctx context.Context, addr common.Address) (*Arena, uint64, error)
	ListArenas(ctx context.Context) ([]*Arena, error)
	UpdateArena(ctx context.Context, addr common.Address, expectedVersion uint64, mutate func(*Arena) error) (uint64, error)

	AppendPayoutRecord(ctx context.Context, rec PayoutRecord) error
	AppendRefundIntent(ctx context.Context, rec RefundIntent) error
	UpdateLeaderboard(ctx context.Context, player common.Address, delta LeaderboardDelta) error
	Leaderboard(ctx context.Context, limit int) ([]LeaderboardRow, error)
}

// Chain is the thin on-chain adapter boundary. The orchestrator never
// executes transactions; it only reads escrow state and hands off refund
// intents.
type Chain interface {
	// HasPlayerJoined is an optional pre-join sanity check against the
	// escrow contract.
	HasPlayerJoined(ctx context.Context, arena, player common.Address) (bool, error)
	// ObserveFinalization polls for the externally-submitted finalize
	// transaction. A nil receipt means not yet observed.
	ObserveFinalization(ctx context.Context, arena common.Address) (*FinalizationReceipt, error)
	// RequestRefund hands a refund intent to the escrow side.
	RequestRefund(ctx context.Context, arena, player common.Address, amount *uint256.Int) error
}

type FinalizationReceipt struct {
	TxHash  common.Hash `json:"txHash"`
	Success bool        `json:"success"`
}

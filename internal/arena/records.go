package arena

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// PayoutRecord is the write-through row persisted per winner at finalize.
type PayoutRecord struct {
	Arena     common.Address `json:"arena"`
	Winner    common.Address `json:"winner"`
	Amount    *uint256.Int   `json:"amount"`
	Rank      int            `json:"rank"`
	Nonce     uint64         `json:"nonce"`
	CreatedAt time.Time      `json:"createdAt"`
}

// RefundIntent records that a cancelled arena owes its sole paid player a
// refund. Executing the refund on-chain is the escrow's responsibility.
type RefundIntent struct {
	ID        string         `json:"id"`
	Arena     common.Address `json:"arena"`
	Player    common.Address `json:"player"`
	Amount    *uint256.Int   `json:"amount"`
	Reason    string         `json:"reason"`
	CreatedAt time.Time      `json:"createdAt"`
}

// LeaderboardRow is a player's all-time aggregate.
type LeaderboardRow struct {
	Player            common.Address `json:"player"`
	Wins              uint64         `json:"wins"`
	TournamentsPlayed uint64         `json:"tournamentsPlayed"`
	TotalPayouts      *uint256.Int   `json:"totalPayouts"`
	UpdatedAt         time.Time      `json:"updatedAt"`
}

// LeaderboardDelta is one increment applied to a player's row.
type LeaderboardDelta struct {
	Wins   uint64
	Played uint64
	Payout *uint256.Int // nil for no payout change
}

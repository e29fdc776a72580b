// Package chain adapts the on-chain escrow contract for the orchestrator.
// The daemon never sends transactions; it reads escrow membership and
// watches for the externally-submitted finalize call.
package chain

import (
	"context"
	"fmt"
	"log/slog"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/holiman/uint256"

	"clawarena/internal/arena"
)

var (
	hasJoinedSelector = crypto.Keccak256([]byte("hasJoined(address,address)"))[:4]
	finalizedTopic    = common.BytesToHash(crypto.Keccak256([]byte("Finalized(address,bytes32,uint256)")))
)

// Eth implements arena.Chain against a JSON-RPC endpoint and the escrow
// contract address.
type Eth struct {
	client *ethclient.Client
	escrow common.Address
	log    *slog.Logger
}

func Dial(ctx context.Context, rpcURL string, escrow common.Address, log *slog.Logger) (*Eth, error) {
	if log == nil {
		log = slog.Default()
	}
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}
	return &Eth{client: client, escrow: escrow, log: log}, nil
}

func (e *Eth) Close() { e.client.Close() }

// HasPlayerJoined calls hasJoined(arena, player) on the escrow contract.
func (e *Eth) HasPlayerJoined(ctx context.Context, arenaAddr, player common.Address) (bool, error) {
	data := make([]byte, 0, 4+64)
	data = append(data, hasJoinedSelector...)
	data = append(data, common.LeftPadBytes(arenaAddr.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(player.Bytes(), 32)...)

	out, err := e.client.CallContract(ctx, ethereum.CallMsg{To: &e.escrow, Data: data}, nil)
	if err != nil {
		return false, fmt.Errorf("hasJoined call: %w", err)
	}
	if len(out) < 32 {
		return false, fmt.Errorf("hasJoined: short return (%d bytes)", len(out))
	}
	return out[31] == 1, nil
}

// ObserveFinalization scans for the escrow's Finalized event for the arena.
// No event yet is not an error.
func (e *Eth) ObserveFinalization(ctx context.Context, arenaAddr common.Address) (*arena.FinalizationReceipt, error) {
	logs, err := e.client.FilterLogs(ctx, ethereum.FilterQuery{
		Addresses: []common.Address{e.escrow},
		Topics: [][]common.Hash{
			{finalizedTopic},
			{common.BytesToHash(arenaAddr.Bytes())},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("filter Finalized logs: %w", err)
	}
	if len(logs) == 0 {
		return nil, nil
	}
	last := logs[len(logs)-1]
	return &arena.FinalizationReceipt{TxHash: last.TxHash, Success: !last.Removed}, nil
}

// RequestRefund records the intent; refunds are executed by the escrow
// operator's own tooling, not by this daemon's key.
func (e *Eth) RequestRefund(_ context.Context, arenaAddr, player common.Address, amount *uint256.Int) error {
	e.log.Info("refund requested",
		"arena", arenaAddr.Hex(),
		"player", player.Hex(),
		"amount", amount.Dec(),
	)
	return nil
}

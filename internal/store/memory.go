// Package store provides the arena persistence backends: an in-memory store
// with JSON snapshot persistence for tests and single-node deployments, and
// a MongoDB store for production. Both speak the same CAS contract: arena
// documents carry a version, and updates commit only against the expected
// version.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"clawarena/internal/arena"
)

type memDoc struct {
	raw     []byte
	version uint64
}

// Memory is the in-process arena.Store. Documents are held as canonical
// JSON so every load round-trips through the same codec the durable
// backends use; nothing escapes by pointer.
type Memory struct {
	clk clock.Clock

	mu      sync.Mutex
	arenas  map[common.Address]*memDoc
	payouts []arena.PayoutRecord
	refunds []arena.RefundIntent
	board   map[common.Address]*arena.LeaderboardRow
}

func NewMemory(clk clock.Clock) *Memory {
	return &Memory{
		clk:    clk,
		arenas: map[common.Address]*memDoc{},
		board:  map[common.Address]*arena.LeaderboardRow{},
	}
}

func encodeArena(a *arena.Arena) ([]byte, error) {
	raw, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("encode arena %s: %w", a.Address.Hex(), err)
	}
	return raw, nil
}

func decodeArena(raw []byte) (*arena.Arena, error) {
	var a arena.Arena
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("decode arena: %w", err)
	}
	return &a, nil
}

func (m *Memory) InsertArena(ctx context.Context, a *arena.Arena) error {
	raw, err := encodeArena(a)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.arenas[a.Address]; ok {
		return fmt.Errorf("%w: %s", arena.ErrAlreadyExists, a.Address.Hex())
	}
	m.arenas[a.Address] = &memDoc{raw: raw, version: 1}
	return nil
}

func (m *Memory) LoadArena(ctx context.Context, addr common.Address) (*arena.Arena, uint64, error) {
	m.mu.Lock()
	doc, ok := m.arenas[addr]
	m.mu.Unlock()
	if !ok {
		return nil, 0, fmt.Errorf("%w: %s", arena.ErrNotFound, addr.Hex())
	}
	a, err := decodeArena(doc.raw)
	if err != nil {
		return nil, 0, err
	}
	return a, doc.version, nil
}

func (m *Memory) ListArenas(ctx context.Context) ([]*arena.Arena, error) {
	m.mu.Lock()
	raws := make([][]byte, 0, len(m.arenas))
	for _, doc := range m.arenas {
		raws = append(raws, doc.raw)
	}
	m.mu.Unlock()

	out := make([]*arena.Arena, 0, len(raws))
	for _, raw := range raws {
		a, err := decodeArena(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return bytes.Compare(out[i].Address.Bytes(), out[j].Address.Bytes()) < 0
	})
	return out, nil
}

// UpdateArena applies mutate against a private decoded copy and commits the
// re-encoded document only if the version still matches expectedVersion.
func (m *Memory) UpdateArena(ctx context.Context, addr common.Address, expectedVersion uint64, mutate func(*arena.Arena) error) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.arenas[addr]
	if !ok {
		return 0, fmt.Errorf("%w: %s", arena.ErrNotFound, addr.Hex())
	}
	if doc.version != expectedVersion {
		return 0, fmt.Errorf("%w: have %d, expected %d", arena.ErrConflict, doc.version, expectedVersion)
	}
	a, err := decodeArena(doc.raw)
	if err != nil {
		return 0, err
	}
	if err := mutate(a); err != nil {
		return 0, err
	}
	raw, err := encodeArena(a)
	if err != nil {
		return 0, err
	}
	doc.raw = raw
	doc.version++
	return doc.version, nil
}

func (m *Memory) AppendPayoutRecord(ctx context.Context, rec arena.PayoutRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payouts = append(m.payouts, rec)
	return nil
}

func (m *Memory) AppendRefundIntent(ctx context.Context, rec arena.RefundIntent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refunds = append(m.refunds, rec)
	return nil
}

func (m *Memory) UpdateLeaderboard(ctx context.Context, player common.Address, delta arena.LeaderboardDelta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.board[player]
	if !ok {
		row = &arena.LeaderboardRow{Player: player, TotalPayouts: uint256.NewInt(0)}
		m.board[player] = row
	}
	row.Wins += delta.Wins
	row.TournamentsPlayed += delta.Played
	if delta.Payout != nil {
		row.TotalPayouts = new(uint256.Int).Add(row.TotalPayouts, delta.Payout)
	}
	row.UpdatedAt = m.clk.Now()
	return nil
}

// Leaderboard returns rows ordered by wins, then total payouts, then
// address for a stable tail.
func (m *Memory) Leaderboard(ctx context.Context, limit int) ([]arena.LeaderboardRow, error) {
	m.mu.Lock()
	rows := make([]arena.LeaderboardRow, 0, len(m.board))
	for _, row := range m.board {
		cp := *row
		cp.TotalPayouts = new(uint256.Int).Set(row.TotalPayouts)
		rows = append(rows, cp)
	}
	m.mu.Unlock()

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Wins != rows[j].Wins {
			return rows[i].Wins > rows[j].Wins
		}
		if !rows[i].TotalPayouts.Eq(rows[j].TotalPayouts) {
			return rows[i].TotalPayouts.Gt(rows[j].TotalPayouts)
		}
		return bytes.Compare(rows[i].Player.Bytes(), rows[j].Player.Bytes()) < 0
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// PayoutRecords returns a copy of the appended payout rows, oldest first.
func (m *Memory) PayoutRecords() []arena.PayoutRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]arena.PayoutRecord(nil), m.payouts...)
}

// RefundIntents returns a copy of the appended refund intents, oldest first.
func (m *Memory) RefundIntents() []arena.RefundIntent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]arena.RefundIntent(nil), m.refunds...)
}

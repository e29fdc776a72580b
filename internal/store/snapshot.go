package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"clawarena/internal/arena"
)

const snapshotFile = "arenas.json"

type arenaEntry struct {
	Address string          `json:"address"`
	Version uint64          `json:"version"`
	Doc     json.RawMessage `json:"doc"`
}

// snapshot is the durable form of the in-memory store. Entries are
// normalized into address-sorted slices so the checksum is stable across
// map iteration order.
type snapshot struct {
	SavedAt     time.Time              `json:"savedAt"`
	Arenas      []arenaEntry           `json:"arenas"`
	Payouts     []arena.PayoutRecord   `json:"payouts,omitempty"`
	Refunds     []arena.RefundIntent   `json:"refunds,omitempty"`
	Leaderboard []arena.LeaderboardRow `json:"leaderboard,omitempty"`
	Checksum    string                 `json:"checksum"`
}

func (s *snapshot) computeChecksum() (string, error) {
	cp := *s
	cp.Checksum = ""
	b, err := json.Marshal(&cp)
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Save writes the store's full contents to home/arenas.json with an
// integrity checksum.
func (m *Memory) Save(home string) error {
	if err := os.MkdirAll(home, 0o755); err != nil {
		return fmt.Errorf("mkdir home: %w", err)
	}

	m.mu.Lock()
	snap := snapshot{SavedAt: m.clk.Now()}
	for addr, doc := range m.arenas {
		snap.Arenas = append(snap.Arenas, arenaEntry{
			Address: addr.Hex(),
			Version: doc.version,
			Doc:     json.RawMessage(append([]byte(nil), doc.raw...)),
		})
	}
	snap.Payouts = append([]arena.PayoutRecord(nil), m.payouts...)
	snap.Refunds = append([]arena.RefundIntent(nil), m.refunds...)
	for _, row := range m.board {
		snap.Leaderboard = append(snap.Leaderboard, *row)
	}
	m.mu.Unlock()

	sort.Slice(snap.Arenas, func(i, j int) bool { return snap.Arenas[i].Address < snap.Arenas[j].Address })
	sort.Slice(snap.Leaderboard, func(i, j int) bool {
		return snap.Leaderboard[i].Player.Hex() < snap.Leaderboard[j].Player.Hex()
	})

	sum, err := snap.computeChecksum()
	if err != nil {
		return err
	}
	snap.Checksum = sum

	b, err := json.MarshalIndent(&snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	path := filepath.Join(home, snapshotFile)
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// Restore replaces the store's contents from home/arenas.json. A missing
// file leaves the store empty; a checksum mismatch is an error.
func (m *Memory) Restore(home string) error {
	path := filepath.Join(home, snapshotFile)
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read snapshot: %w", err)
	}
	var snap snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}

	want := snap.Checksum
	got, err := snap.computeChecksum()
	if err != nil {
		return err
	}
	if want == "" || got != want {
		return fmt.Errorf("snapshot checksum mismatch: have %s, computed %s", want, got)
	}

	arenas := make(map[common.Address]*memDoc, len(snap.Arenas))
	for _, entry := range snap.Arenas {
		if !common.IsHexAddress(entry.Address) {
			return fmt.Errorf("snapshot arena address %q is not an address", entry.Address)
		}
		if _, err := decodeArena(entry.Doc); err != nil {
			return fmt.Errorf("snapshot arena %s: %w", entry.Address, err)
		}
		arenas[common.HexToAddress(entry.Address)] = &memDoc{
			raw:     append([]byte(nil), entry.Doc...),
			version: entry.Version,
		}
	}
	board := make(map[common.Address]*arena.LeaderboardRow, len(snap.Leaderboard))
	for i := range snap.Leaderboard {
		row := snap.Leaderboard[i]
		board[row.Player] = &row
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.arenas = arenas
	m.payouts = append([]arena.PayoutRecord(nil), snap.Payouts...)
	m.refunds = append([]arena.RefundIntent(nil), snap.Refunds...)
	m.board = board
	return nil
}

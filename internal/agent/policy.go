// Package agent hosts the autonomous tournament host: a periodic cycle
// that watches fleet occupancy and demand, then creates arenas from a
// tiered stake policy table.
package agent

import (
	"math/rand"

	"github.com/holiman/uint256"
)

type Tier string

const (
	TierMicro  Tier = "MICRO"
	TierSmall  Tier = "SMALL"
	TierMedium Tier = "MEDIUM"
	TierLarge  Tier = "LARGE"
	TierWhale  Tier = "WHALE"
)

// Policy is one row of the stake tier table. Entry fees are sampled
// uniformly from [MinEntry, MaxEntry); conditions gate when the tier is
// eligible at all.
type Policy struct {
	Tier       Tier
	MinEntry   *uint256.Int
	MaxEntry   *uint256.Int
	MaxPlayers []uint32
	FeeBps     uint16

	PeakOnly    bool
	WeekendOnly bool
	// MinFill gates on the 24h fill rate of FillRef's lobbies; zero means
	// no demand gate.
	MinFill float64
	FillRef Tier

	// Weight drives the weighted random tier pick among eligible rows.
	Weight int
}

func wei(mantissa uint64, exp int) *uint256.Int {
	v := uint256.NewInt(mantissa)
	ten := uint256.NewInt(10)
	for i := 0; i < exp; i++ {
		v.Mul(v, ten)
	}
	return v
}

// Policies returns the stake tier table, cheapest first.
func Policies() []Policy {
	return []Policy{
		{
			Tier:       TierMicro,
			MinEntry:   wei(1, 15), // 0.001 ETH
			MaxEntry:   wei(1, 16),
			MaxPlayers: []uint32{4, 8, 16},
			FeeBps:     200,
			Weight:     40,
		},
		{
			Tier:       TierSmall,
			MinEntry:   wei(1, 16),
			MaxEntry:   wei(1, 17),
			MaxPlayers: []uint32{4, 8, 16},
			FeeBps:     250,
			Weight:     30,
		},
		{
			Tier:       TierMedium,
			MinEntry:   wei(1, 17),
			MaxEntry:   wei(1, 18),
			MaxPlayers: []uint32{4, 8},
			FeeBps:     250,
			PeakOnly:   true,
			Weight:     15,
		},
		{
			Tier:       TierLarge,
			MinEntry:   wei(1, 18),
			MaxEntry:   wei(1, 19),
			MaxPlayers: []uint32{4, 8},
			FeeBps:     300,
			PeakOnly:   true,
			MinFill:    0.5,
			FillRef:    TierSmall,
			Weight:     10,
		},
		{
			Tier:        TierWhale,
			MinEntry:    wei(1, 19),
			MaxEntry:    wei(1, 20),
			MaxPlayers:  []uint32{4},
			FeeBps:      300,
			PeakOnly:    true,
			WeekendOnly: true,
			MinFill:     0.7,
			FillRef:     TierLarge,
			Weight:      5,
		},
	}
}

// TierFor classifies an entry fee into its stake tier. Fees above the
// whale ceiling still count as whale; fees below the micro floor have no
// tier.
func TierFor(entry *uint256.Int) (Tier, bool) {
	table := Policies()
	if entry == nil || entry.Lt(table[0].MinEntry) {
		return "", false
	}
	for i := len(table) - 1; i >= 0; i-- {
		if !entry.Lt(table[i].MinEntry) {
			return table[i].Tier, true
		}
	}
	return "", false
}

// sampleEntry draws a uniform fee from [min, max) using the 64-bit
// multiply-shift trick; spans here are far below 2^192 so the product
// cannot wrap.
func sampleEntry(rng *rand.Rand, p Policy) *uint256.Int {
	span := new(uint256.Int).Sub(p.MaxEntry, p.MinEntry)
	x := new(uint256.Int).SetUint64(rng.Uint64())
	x.Mul(x, span)
	x.Rsh(x, 64)
	return x.Add(x, p.MinEntry)
}

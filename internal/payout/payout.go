// Package payout implements the prize-pool arithmetic: fee deduction in
// basis points, winner splits, and the remainder policy. All amounts are
// 256-bit unsigned integers in the chain's smallest unit; nothing here ever
// touches floating point.
package payout

import (
	"fmt"

	"github.com/holiman/uint256"
)

// BpsDenominator is the basis-point scale: 10000 bps = 100%.
const BpsDenominator = 10_000

// MaxFeeBps caps the protocol fee at 10%.
const MaxFeeBps = 1_000

// Scheme selects how the net pool is divided among ranked winners.
type Scheme string

const (
	// SchemeEqual splits the net pool evenly, front-loading the remainder
	// one unit per winner starting from rank 0.
	SchemeEqual Scheme = "equal"
	// SchemeWeighted splits by rank weight: 60/40 for two winners,
	// 70/20/10 for three. Other winner counts fall back to the equal
	// split. The rounding remainder goes to rank 0.
	SchemeWeighted Scheme = "weighted"
)

// ValidScheme reports whether s names a known split scheme.
func ValidScheme(s Scheme) bool {
	return s == SchemeEqual || s == SchemeWeighted
}

// Split is the fully-resolved division of one arena's pool.
type Split struct {
	Pool      *uint256.Int   `json:"pool"`
	Fee       *uint256.Int   `json:"fee"`
	Available *uint256.Int   `json:"available"`
	Payouts   []*uint256.Int `json:"payouts"`
}

// weights per winner count, in basis points, rank order. Missing counts use
// the equal split.
var rankWeights = map[int][]uint64{
	2: {6000, 4000},
	3: {7000, 2000, 1000},
}

// Compute derives the pool, protocol fee and per-winner payouts for an
// arena. nPlayers is the number of paid entries and k the number of ranked
// winners. It guarantees fee + sum(payouts) == pool and that payouts are
// non-increasing in rank order; any violation of those would be an internal
// arithmetic bug and is returned as an error.
func Compute(scheme Scheme, entryFee *uint256.Int, nPlayers uint32, feeBps uint16, k int) (*Split, error) {
	if entryFee == nil || entryFee.IsZero() {
		return nil, fmt.Errorf("entry fee must be positive")
	}
	if nPlayers == 0 {
		return nil, fmt.Errorf("no paid players")
	}
	if feeBps > MaxFeeBps {
		return nil, fmt.Errorf("protocol fee %d bps exceeds cap %d", feeBps, MaxFeeBps)
	}
	if k < 1 || k > int(nPlayers) {
		return nil, fmt.Errorf("winner count %d out of range 1..%d", k, nPlayers)
	}

	pool, overflow := new(uint256.Int).MulOverflow(entryFee, uint256.NewInt(uint64(nPlayers)))
	if overflow {
		return nil, fmt.Errorf("pool overflow: entryFee=%s players=%d", entryFee, nPlayers)
	}

	scaled, overflow := new(uint256.Int).MulOverflow(pool, uint256.NewInt(uint64(feeBps)))
	if overflow {
		return nil, fmt.Errorf("fee overflow: pool=%s bps=%d", pool, feeBps)
	}
	fee := new(uint256.Int).Div(scaled, uint256.NewInt(BpsDenominator))
	available := new(uint256.Int).Sub(pool, fee)

	var payouts []*uint256.Int
	switch scheme {
	case "", SchemeEqual:
		payouts = equalSplit(available, k)
	case SchemeWeighted:
		var err error
		payouts, err = weightedSplit(available, k)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown payout scheme %q", scheme)
	}

	sum := new(uint256.Int)
	for i, p := range payouts {
		sum.Add(sum, p)
		if i > 0 && p.Gt(payouts[i-1]) {
			return nil, fmt.Errorf("payout rank order violated at rank %d", i)
		}
	}
	if !sum.Eq(available) {
		return nil, fmt.Errorf("payout sum %s != available %s", sum, available)
	}

	return &Split{Pool: pool, Fee: fee, Available: available, Payouts: payouts}, nil
}

// equalSplit divides available into k parts; the remainder (always < k) is
// distributed one unit each to the highest ranks.
func equalSplit(available *uint256.Int, k int) []*uint256.Int {
	kk := uint256.NewInt(uint64(k))
	per := new(uint256.Int).Div(available, kk)
	rem := new(uint256.Int).Mod(available, kk)

	one := uint256.NewInt(1)
	out := make([]*uint256.Int, k)
	for i := 0; i < k; i++ {
		p := new(uint256.Int).Set(per)
		if uint64(i) < rem.Uint64() {
			p.Add(p, one)
		}
		out[i] = p
	}
	return out
}

// weightedSplit divides available by rank weight; the rounding remainder is
// credited to rank 0 so the split always sums to available exactly.
func weightedSplit(available *uint256.Int, k int) ([]*uint256.Int, error) {
	weights, ok := rankWeights[k]
	if !ok {
		return equalSplit(available, k), nil
	}

	denom := uint256.NewInt(BpsDenominator)
	out := make([]*uint256.Int, k)
	sum := new(uint256.Int)
	for i, w := range weights {
		p, overflow := new(uint256.Int).MulOverflow(available, uint256.NewInt(w))
		if overflow {
			return nil, fmt.Errorf("weighted payout overflow: available=%s weight=%d", available, w)
		}
		p.Div(p, denom)
		out[i] = p
		sum.Add(sum, p)
	}
	rem := new(uint256.Int).Sub(available, sum)
	out[0] = new(uint256.Int).Add(out[0], rem)
	return out, nil
}

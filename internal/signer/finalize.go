package signer

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ArenaView is the slice of arena state the signer validates against. The
// orchestrator maps its aggregate into this view; the signer has no other
// window into arena state.
type ArenaView struct {
	Address        common.Address
	Players        []common.Address
	EntryFee       *uint256.Int
	ProtocolFeeBps uint16
	Closed         bool
	Finished       bool
	Finalized      bool
	UsedNonce      uint64
}

// Authorization is a successful finalize signature plus the digest it
// covers.
type Authorization struct {
	Digest    [32]byte
	Signature []byte
	Nonce     uint64
}

// Finalizer checks the finalize preconditions and obtains the operator
// signature over the canonical digest.
type Finalizer struct {
	chainID uint64
	svc     Service
}

func NewFinalizer(chainID uint64, svc Service) *Finalizer {
	return &Finalizer{chainID: chainID, svc: svc}
}

// Authorize validates the proposed distribution against the arena view and,
// if every precondition holds, signs the finalize digest. Validation
// failures never reach the signing service.
func (f *Finalizer) Authorize(ctx context.Context, v ArenaView, winners []common.Address, amounts []*uint256.Int, nonce uint64) (*Authorization, error) {
	if err := Validate(v, winners, amounts, nonce); err != nil {
		return nil, err
	}
	digest := FinalizeDigest(f.chainID, v.Address, winners, amounts, nonce)
	sig, err := f.svc.Sign(ctx, digest)
	if err != nil {
		return nil, err
	}
	return &Authorization{Digest: digest, Signature: sig, Nonce: nonce}, nil
}

// Validate enforces the finalize preconditions without signing anything.
func Validate(v ArenaView, winners []common.Address, amounts []*uint256.Int, nonce uint64) error {
	if v.Finalized {
		return ErrAlreadyFinalized
	}
	if !v.Closed || !v.Finished {
		return ErrArenaNotClosed
	}

	if len(winners) < 1 {
		return fmt.Errorf("%w: empty winner list", ErrInvalidWinner)
	}
	if len(winners) != len(amounts) {
		return fmt.Errorf("%w: %d winners but %d amounts", ErrInvalidWinner, len(winners), len(amounts))
	}
	players := make(map[common.Address]struct{}, len(v.Players))
	for _, p := range v.Players {
		players[p] = struct{}{}
	}
	seen := make(map[common.Address]struct{}, len(winners))
	for _, w := range winners {
		if _, ok := players[w]; !ok {
			return fmt.Errorf("%w: %s is not a participant", ErrInvalidWinner, w.Hex())
		}
		if _, dup := seen[w]; dup {
			return fmt.Errorf("%w: %s ranked twice", ErrInvalidWinner, w.Hex())
		}
		seen[w] = struct{}{}
	}

	if err := checkEscrowCeiling(v, amounts); err != nil {
		return err
	}

	if nonce != v.UsedNonce+1 {
		return fmt.Errorf("%w: proposed %d, last consumed %d", ErrNonceReused, nonce, v.UsedNonce)
	}
	return nil
}

// checkEscrowCeiling verifies sum(amounts) <= pool - floor(pool*bps/10000).
func checkEscrowCeiling(v ArenaView, amounts []*uint256.Int) error {
	if v.EntryFee == nil {
		return fmt.Errorf("%w: arena has no entry fee", ErrPayoutExceedsEscrow)
	}
	pool, overflow := new(uint256.Int).MulOverflow(v.EntryFee, uint256.NewInt(uint64(len(v.Players))))
	if overflow {
		return fmt.Errorf("%w: pool overflow", ErrPayoutExceedsEscrow)
	}
	scaled, overflow := new(uint256.Int).MulOverflow(pool, uint256.NewInt(uint64(v.ProtocolFeeBps)))
	if overflow {
		return fmt.Errorf("%w: fee overflow", ErrPayoutExceedsEscrow)
	}
	fee := scaled.Div(scaled, uint256.NewInt(10_000))
	available := new(uint256.Int).Sub(pool, fee)

	sum := new(uint256.Int)
	for _, a := range amounts {
		if a == nil {
			return fmt.Errorf("%w: nil amount", ErrPayoutExceedsEscrow)
		}
		var carry bool
		sum, carry = sum.AddOverflow(sum, a)
		if carry {
			return fmt.Errorf("%w: amount sum overflow", ErrPayoutExceedsEscrow)
		}
	}
	if sum.Gt(available) {
		return fmt.Errorf("%w: sum %s > available %s", ErrPayoutExceedsEscrow, sum, available)
	}
	return nil
}

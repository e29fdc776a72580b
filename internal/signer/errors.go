package signer

import "errors"

// The finalize error taxonomy. The string codes are the wire-level names
// surfaced to operators and external callers.
var (
	ErrArenaNotClosed      = errors.New("arena_not_closed")
	ErrAlreadyFinalized    = errors.New("already_finalized")
	ErrInvalidWinner       = errors.New("invalid_winner")
	ErrPayoutExceedsEscrow = errors.New("payout_exceeds_escrow")
	ErrNonceReused         = errors.New("nonce_reused")
	ErrServiceUnavailable  = errors.New("signing_service_unavailable")
)

// Code maps err to its taxonomy code, or "" if err is outside the taxonomy.
func Code(err error) string {
	for _, e := range []error{
		ErrArenaNotClosed,
		ErrAlreadyFinalized,
		ErrInvalidWinner,
		ErrPayoutExceedsEscrow,
		ErrNonceReused,
		ErrServiceUnavailable,
	} {
		if errors.Is(err, e) {
			return e.Error()
		}
	}
	return ""
}

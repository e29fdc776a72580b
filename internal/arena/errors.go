package arena

import "errors"

// Validation errors: rejected caller preconditions, no state change.
var (
	ErrInvalidParams      = errors.New("invalid arena parameters")
	ErrArenaClosed        = errors.New("arena is closed")
	ErrArenaFull          = errors.New("arena is full")
	ErrAlreadyJoined      = errors.New("player already joined")
	ErrRegistrationClosed = errors.New("registration deadline passed")
	ErrEntryNotEscrowed   = errors.New("entry fee not observed on-chain")
	ErrNotFinished        = errors.New("game is not finished")
	ErrAlreadyFinalized   = errors.New("arena already finalized")
	ErrTerminal           = errors.New("arena is in a terminal state")
)

// Infrastructure and fleet errors.
var (
	ErrNotFound         = errors.New("arena not found")
	ErrAlreadyExists    = errors.New("arena already exists")
	ErrConflict         = errors.New("arena version conflict")
	ErrFrozen           = errors.New("arena is frozen")
	ErrShuttingDown     = errors.New("orchestrator is shutting down")
	ErrDeadlineExceeded = errors.New("event wait deadline exceeded")
)

package game

import "errors"

var (
	ErrUnknownType      = errors.New("unknown game type")
	ErrNotActive        = errors.New("game is not active")
	ErrNotParticipant   = errors.New("player is not a participant")
	ErrAlreadySubmitted = errors.New("move already submitted for this round")
	ErrNoAttemptsLeft   = errors.New("no attempts left")
	ErrHandResolved     = errors.New("hand already resolved")
	ErrInvalidMove      = errors.New("invalid move payload")
	ErrRoundExpired     = errors.New("round deadline passed")
)

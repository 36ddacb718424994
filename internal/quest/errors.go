package quest

import "errors"

var (
	// ErrCodeNotFound means the submitted code matches nothing in the level.
	// It is an expected outcome, not a fault.
	ErrCodeNotFound = errors.New("code not found")

	ErrNoActiveGame    = errors.New("no running game")
	ErrAmbiguousGame   = errors.New("more than one running game")
	ErrNoActiveLevel   = errors.New("no level is open at this time")
	ErrAlreadyRedeemed = errors.New("code already redeemed")
	ErrDuplicateCode   = errors.New("duplicate code in level")
	ErrGameNotFound    = errors.New("game not found")
	ErrNotOwner        = errors.New("chat does not own the game")
	ErrNotPending      = errors.New("game is not pending")
	ErrInvalidGame     = errors.New("invalid game definition")
)

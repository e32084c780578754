package booking

import "errors"

var (
	// ErrInvalidTransition means the requested edge is not legal from the
	// booking's current status. Local and final: never retried, no side
	// effects were taken.
	ErrInvalidTransition = errors.New("invalid booking transition")

	// ErrAlreadyAssigned means another provider won the accept race. A
	// specific "someone else took this" signal, not a generic failure.
	ErrAlreadyAssigned = errors.New("booking already assigned")

	// ErrBookingNotFound means the referenced booking does not exist.
	ErrBookingNotFound = errors.New("booking not found")
)

package sla

import "errors"

var (
	// ErrTimerNotFound is returned when no timer exists for the claim.
	ErrTimerNotFound = errors.New("sla timer not found")

	// ErrInvalidTimerState is returned when an operation does not apply to
	// the timer's current state, e.g. freezing an already-frozen timer.
	ErrInvalidTimerState = errors.New("invalid sla timer state")
)

package claim

import "errors"

var (
	// ErrInvalidTransition is returned when the requested edge is not in
	// the adjacency table for the claim's current state.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrPreconditionNotMet is returned when the edge exists but a guard
	// rejects it (e.g. batch not yet acknowledged).
	ErrPreconditionNotMet = errors.New("transition precondition not met")

	// ErrConcurrentModification is returned when an optimistic write lost
	// against a newer version and retries were exhausted.
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrNotFound is returned when a claim does not exist.
	ErrNotFound = errors.New("claim not found")
)

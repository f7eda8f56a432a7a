package batch

import (
	"errors"
	"fmt"
)

var (
	// ErrBatchNotFound is returned when no batch exists with the given id.
	ErrBatchNotFound = errors.New("batch not found")

	// ErrInvalidBatchState is returned when an operation does not apply to
	// the batch's current status, e.g. submitting a rejected batch.
	ErrInvalidBatchState = errors.New("invalid batch state")

	// ErrBatchInvalid is returned by Submit when validation failures remain.
	ErrBatchInvalid = errors.New("batch failed validation")
)

// ValidationFailedError carries the field-level problems that blocked a
// submit. It unwraps to ErrBatchInvalid so callers can match the sentinel.
type ValidationFailedError struct {
	Errors []ValidationError
}

func (e *ValidationFailedError) Error() string {
	return fmt.Sprintf("batch failed validation: %d problems", len(e.Errors))
}

func (e *ValidationFailedError) Unwrap() error { return ErrBatchInvalid }

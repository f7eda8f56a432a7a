package qa

import "errors"

var (
	// ErrAuditNotFound is returned when no audit record matches.
	ErrAuditNotFound = errors.New("audit record not found")

	// ErrAuditCompleted is returned when writing to a completed record.
	// Completed audits are immutable; a correction opens a new cycle.
	ErrAuditCompleted = errors.New("audit record already completed")

	// ErrNoOpenAudit is returned when scoring a claim with no open audit.
	ErrNoOpenAudit = errors.New("claim has no open audit")
)

package qa

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, r *AuditRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*AuditRecord, error)

	// GetOpenByClaim returns the claim's open (uncompleted) audit record.
	GetOpenByClaim(ctx context.Context, claimID uuid.UUID) (*AuditRecord, error)

	// Complete writes the verdict fields iff the record is still open.
	// Returns ErrAuditCompleted when a verdict already landed.
	Complete(ctx context.Context, r *AuditRecord) error

	// SetReviewer assigns a reviewer to an open record.
	SetReviewer(ctx context.Context, id uuid.UUID, reviewer string) error

	ListByClaim(ctx context.Context, claimID uuid.UUID) ([]*AuditRecord, error)
	List(ctx context.Context, limit, offset int) ([]*AuditRecord, int, error)
}

package batch

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	// Create persists the batch and its ordered claim membership.
	Create(ctx context.Context, b *ClaimBatch) error
	GetByID(ctx context.Context, id uuid.UUID) (*ClaimBatch, error)

	// SetStatus atomically moves the batch from any of the listed statuses
	// to the target, recording at and the optional reject reason. Returns
	// false when the current status is not in from, which makes
	// acknowledge/reject callbacks idempotent.
	SetStatus(ctx context.Context, id uuid.UUID, from []Status, to Status, at time.Time, reason *string) (bool, error)

	// RecordValidationErrors attaches the problems that blocked a submit
	// attempt to the batch.
	RecordValidationErrors(ctx context.Context, id uuid.UUID, errs []ValidationError) error

	// GetLatestByClaim returns the most recently created batch containing
	// the claim.
	GetLatestByClaim(ctx context.Context, claimID uuid.UUID) (*ClaimBatch, error)

	ListByStatus(ctx context.Context, status Status, limit, offset int) ([]*ClaimBatch, int, error)
	List(ctx context.Context, limit, offset int) ([]*ClaimBatch, int, error)
}

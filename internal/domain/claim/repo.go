package claim

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, c *Claim) error
	GetByID(ctx context.Context, id uuid.UUID) (*Claim, error)

	// Update writes the claim iff the stored version matches c.VersionID,
	// then increments it. Returns ErrConcurrentModification on mismatch.
	Update(ctx context.Context, c *Claim) error

	// CompareAndSwapAuditState atomically moves the audit state from any of
	// the listed states to the target. Returns false when the current audit
	// state is not in from.
	CompareAndSwapAuditState(ctx context.Context, id uuid.UUID, from []AuditState, to AuditState) (bool, error)

	ListByState(ctx context.Context, state State, limit, offset int) ([]*Claim, int, error)
	ListByAssignee(ctx context.Context, assignee string, limit, offset int) ([]*Claim, int, error)
	List(ctx context.Context, limit, offset int) ([]*Claim, int, error)
}

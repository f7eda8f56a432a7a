package sla

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, t *Timer) error
	GetByClaimID(ctx context.Context, claimID uuid.UUID) (*Timer, error)
	Update(ctx context.Context, t *Timer) error

	// MarkBreached atomically moves a running timer to breached. Returns
	// false when the timer was no longer running, so that concurrent sweeps
	// report each breach exactly once.
	MarkBreached(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)

	// ListDue returns running timers whose effective deadline is at or
	// before now.
	ListDue(ctx context.Context, now time.Time, limit int) ([]*Timer, error)

	ListByState(ctx context.Context, state TimerState, limit, offset int) ([]*Timer, int, error)
}

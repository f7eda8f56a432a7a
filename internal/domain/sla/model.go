package sla

import (
	"time"

	"github.com/google/uuid"
)

// TimerState is the lifecycle of an SLA timer.
type TimerState string

const (
	TimerRunning  TimerState = "running"
	TimerFrozen   TimerState = "frozen"
	TimerBreached TimerState = "breached"
	TimerResolved TimerState = "resolved"
)

// Timer maps to the sla_timer table. A claim has at most one timer; it starts
// when the claim first enters a timed working state and resolves when the
// claim reaches a terminal state.
//
// Freezing shifts the effective deadline instead of rewriting the stored one:
// every frozen span is added to AccumulatedFrozen on resume, so a timer frozen
// for a total of F behaves exactly like one that was never frozen but started
// F later.
type Timer struct {
	ID      uuid.UUID `db:"id" json:"id"`
	ClaimID uuid.UUID `db:"claim_id" json:"claim_id"`

	TaskType   string     `db:"task_type" json:"task_type"`
	State      TimerState `db:"state" json:"state"`
	StartedAt  time.Time  `db:"started_at" json:"started_at"`
	DeadlineAt time.Time  `db:"deadline_at" json:"deadline_at"`

	FrozenSince       *time.Time    `db:"frozen_since" json:"frozen_since,omitempty"`
	AccumulatedFrozen time.Duration `db:"accumulated_frozen" json:"accumulated_frozen"`

	BreachedAt *time.Time `db:"breached_at" json:"breached_at,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// EffectiveDeadline is the stored deadline pushed out by every frozen span,
// including the one still open at now.
func (t *Timer) EffectiveDeadline(now time.Time) time.Time {
	d := t.DeadlineAt.Add(t.AccumulatedFrozen)
	if t.State == TimerFrozen && t.FrozenSince != nil {
		d = d.Add(now.Sub(*t.FrozenSince))
	}
	return d
}

// Remaining is the time left until the effective deadline; negative once
// overdue.
func (t *Timer) Remaining(now time.Time) time.Duration {
	return t.EffectiveDeadline(now).Sub(now)
}

// IsOverdue reports whether a running timer has crossed its effective
// deadline. Frozen timers are never overdue.
func (t *Timer) IsOverdue(now time.Time) bool {
	return t.State == TimerRunning && !now.Before(t.EffectiveDeadline(now))
}

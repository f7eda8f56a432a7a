package sla

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rcm/rcm/internal/domain/claim"
	"github.com/rcm/rcm/internal/platform/events"
)

// sweepBatchSize bounds how many due timers a single Evaluate pass loads.
const sweepBatchSize = 500

// Clock starts, freezes, resolves, and breach-checks SLA timers. It listens
// to claim transitions on the bus: the first entry into a timed working state
// starts the claim's timer, and any terminal state resolves it. Breach
// evaluation is lazy (the Evaluate sweep), so a timer may sit past its
// deadline until the next sweep runs.
type Clock struct {
	timers Repository
	bus    *events.Bus
	log    zerolog.Logger

	defaultWindow time.Duration
	taskWindows   map[string]time.Duration
}

func NewClock(timers Repository, bus *events.Bus, defaultWindow time.Duration, logger zerolog.Logger) *Clock {
	if defaultWindow <= 0 {
		defaultWindow = 48 * time.Hour
	}
	return &Clock{
		timers:        timers,
		bus:           bus,
		log:           logger,
		defaultWindow: defaultWindow,
		taskWindows:   make(map[string]time.Duration),
	}
}

// SetTaskWindow overrides the SLA window for one task type.
func (k *Clock) SetTaskWindow(taskType string, d time.Duration) {
	if d > 0 {
		k.taskWindows[taskType] = d
	}
}

// Window returns the SLA window for the task type.
func (k *Clock) Window(taskType string) time.Duration {
	if d, ok := k.taskWindows[taskType]; ok {
		return d
	}
	return k.defaultWindow
}

// Wire subscribes the clock to claim transition events.
func (k *Clock) Wire() {
	k.bus.SubscribeTransitions(func(ev events.ClaimTransitioned) {
		if err := k.OnTransition(context.Background(), ev); err != nil {
			k.log.Error().Err(err).
				Str("claim_id", ev.ClaimID.String()).
				Str("to", ev.To).
				Msg("sla clock transition hook failed")
		}
	})
}

// OnTransition reacts to a claim state change: it starts the timer on the
// first timed state and resolves it on any terminal state. Entering a timed
// state when a timer already exists is a no-op; the timer spans the whole
// working phase, not a single state.
func (k *Clock) OnTransition(ctx context.Context, ev events.ClaimTransitioned) error {
	to := claim.State(ev.To)
	switch {
	case to.IsTimed():
		_, err := k.timers.GetByClaimID(ctx, ev.ClaimID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrTimerNotFound) {
			return err
		}
		_, err = k.Start(ctx, ev.ClaimID, ev.TaskType, ev.At)
		return err
	case to.IsTerminal():
		err := k.Resolve(ctx, ev.ClaimID, ev.At)
		if errors.Is(err, ErrTimerNotFound) {
			return nil
		}
		return err
	}
	return nil
}

// Start creates a running timer for the claim with a deadline one SLA window
// from at.
func (k *Clock) Start(ctx context.Context, claimID uuid.UUID, taskType string, at time.Time) (*Timer, error) {
	t := &Timer{
		ClaimID:    claimID,
		TaskType:   taskType,
		State:      TimerRunning,
		StartedAt:  at,
		DeadlineAt: at.Add(k.Window(taskType)),
	}
	if err := k.timers.Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Get returns the claim's timer.
func (k *Clock) Get(ctx context.Context, claimID uuid.UUID) (*Timer, error) {
	return k.timers.GetByClaimID(ctx, claimID)
}

// Freeze pauses a running timer at the given instant. Time spent frozen does
// not count against the SLA window.
func (k *Clock) Freeze(ctx context.Context, claimID uuid.UUID, at time.Time) (*Timer, error) {
	t, err := k.timers.GetByClaimID(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if t.State != TimerRunning {
		return nil, fmt.Errorf("%w: cannot freeze a %s timer", ErrInvalidTimerState, t.State)
	}
	t.State = TimerFrozen
	t.FrozenSince = &at
	if err := k.timers.Update(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Resume unfreezes the timer, folding the closed span into AccumulatedFrozen.
func (k *Clock) Resume(ctx context.Context, claimID uuid.UUID, at time.Time) (*Timer, error) {
	t, err := k.timers.GetByClaimID(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if t.State != TimerFrozen || t.FrozenSince == nil {
		return nil, fmt.Errorf("%w: cannot resume a %s timer", ErrInvalidTimerState, t.State)
	}
	if span := at.Sub(*t.FrozenSince); span > 0 {
		t.AccumulatedFrozen += span
	}
	t.State = TimerRunning
	t.FrozenSince = nil
	if err := k.timers.Update(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Resolve closes the timer when its claim reaches a terminal state. A frozen
// timer is resolved as-is; a breached timer stays breached in history but
// stops being swept.
func (k *Clock) Resolve(ctx context.Context, claimID uuid.UUID, at time.Time) error {
	t, err := k.timers.GetByClaimID(ctx, claimID)
	if err != nil {
		return err
	}
	if t.State == TimerResolved {
		return nil
	}
	if t.State == TimerFrozen && t.FrozenSince != nil {
		if span := at.Sub(*t.FrozenSince); span > 0 {
			t.AccumulatedFrozen += span
		}
		t.FrozenSince = nil
	}
	t.State = TimerResolved
	return k.timers.Update(ctx, t)
}

// Evaluate sweeps running timers whose effective deadline has passed, marks
// each breached, and publishes one SLABreached event per breach. The
// compare-and-swap in MarkBreached makes concurrent sweeps safe: only the
// sweep that wins the swap publishes.
func (k *Clock) Evaluate(ctx context.Context, now time.Time) (int, error) {
	due, err := k.timers.ListDue(ctx, now, sweepBatchSize)
	if err != nil {
		return 0, err
	}
	breached := 0
	for _, t := range due {
		if !t.IsOverdue(now) {
			continue
		}
		swapped, err := k.timers.MarkBreached(ctx, t.ID, now)
		if err != nil {
			return breached, err
		}
		if !swapped {
			continue
		}
		breached++
		k.bus.PublishBreach(events.SLABreached{
			ClaimID:    t.ClaimID,
			DeadlineAt: t.EffectiveDeadline(now),
			At:         now,
		})
	}
	return breached, nil
}

// ListByState pages timers in the given state, most recent first.
func (k *Clock) ListByState(ctx context.Context, state TimerState, limit, offset int) ([]*Timer, int, error) {
	return k.timers.ListByState(ctx, state, limit, offset)
}

package sla

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rcm/rcm/internal/platform/events"
)

type mockTimerRepo struct {
	timers map[uuid.UUID]*Timer // keyed by timer ID
}

func newMockTimerRepo() *mockTimerRepo {
	return &mockTimerRepo{timers: make(map[uuid.UUID]*Timer)}
}

func (m *mockTimerRepo) Create(_ context.Context, t *Timer) error {
	t.ID = uuid.New()
	cp := *t
	m.timers[t.ID] = &cp
	return nil
}

func (m *mockTimerRepo) GetByClaimID(_ context.Context, claimID uuid.UUID) (*Timer, error) {
	for _, t := range m.timers {
		if t.ClaimID == claimID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ErrTimerNotFound
}

func (m *mockTimerRepo) Update(_ context.Context, t *Timer) error {
	if _, ok := m.timers[t.ID]; !ok {
		return ErrTimerNotFound
	}
	cp := *t
	m.timers[t.ID] = &cp
	return nil
}

func (m *mockTimerRepo) MarkBreached(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	t, ok := m.timers[id]
	if !ok {
		return false, ErrTimerNotFound
	}
	if t.State != TimerRunning {
		return false, nil
	}
	t.State = TimerBreached
	t.BreachedAt = &at
	return true, nil
}

func (m *mockTimerRepo) ListDue(_ context.Context, now time.Time, _ int) ([]*Timer, error) {
	var out []*Timer
	for _, t := range m.timers {
		if t.IsOverdue(now) {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockTimerRepo) ListByState(_ context.Context, state TimerState, _, _ int) ([]*Timer, int, error) {
	var out []*Timer
	for _, t := range m.timers {
		if t.State == state {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

func newTestClock() (*Clock, *mockTimerRepo, *events.Bus) {
	repo := newMockTimerRepo()
	bus := events.NewBus()
	return NewClock(repo, bus, 48*time.Hour, zerolog.Nop()), repo, bus
}

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestStartSetsDeadline(t *testing.T) {
	clock, _, _ := newTestClock()
	claimID := uuid.New()

	tm, err := clock.Start(context.Background(), claimID, "charge_entry", t0)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if tm.State != TimerRunning {
		t.Errorf("state = %s, want running", tm.State)
	}
	if want := t0.Add(48 * time.Hour); !tm.DeadlineAt.Equal(want) {
		t.Errorf("deadline = %v, want %v", tm.DeadlineAt, want)
	}
}

func TestTaskWindowOverride(t *testing.T) {
	clock, _, _ := newTestClock()
	clock.SetTaskWindow("denial_followup", 24*time.Hour)

	tm, err := clock.Start(context.Background(), uuid.New(), "denial_followup", t0)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if want := t0.Add(24 * time.Hour); !tm.DeadlineAt.Equal(want) {
		t.Errorf("deadline = %v, want %v", tm.DeadlineAt, want)
	}
}

func TestFreezeShiftsEffectiveDeadline(t *testing.T) {
	// A timer frozen for F must behave exactly like one that started F
	// later and was never frozen.
	clock, _, _ := newTestClock()
	claimID := uuid.New()
	ctx := context.Background()

	if _, err := clock.Start(ctx, claimID, "", t0); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := clock.Freeze(ctx, claimID, t0.Add(10*time.Hour)); err != nil {
		t.Fatalf("freeze: %v", err)
	}
	tm, err := clock.Resume(ctx, claimID, t0.Add(16*time.Hour)) // frozen 6h
	if err != nil {
		t.Fatalf("resume: %v", err)
	}

	want := t0.Add(48*time.Hour + 6*time.Hour)
	if got := tm.EffectiveDeadline(t0.Add(20 * time.Hour)); !got.Equal(want) {
		t.Errorf("effective deadline = %v, want %v", got, want)
	}
	if tm.AccumulatedFrozen != 6*time.Hour {
		t.Errorf("accumulated frozen = %v, want 6h", tm.AccumulatedFrozen)
	}
}

func TestFrozenTimerNeverOverdue(t *testing.T) {
	clock, _, _ := newTestClock()
	claimID := uuid.New()
	ctx := context.Background()

	if _, err := clock.Start(ctx, claimID, "", t0); err != nil {
		t.Fatalf("start: %v", err)
	}
	tm, err := clock.Freeze(ctx, claimID, t0.Add(time.Hour))
	if err != nil {
		t.Fatalf("freeze: %v", err)
	}
	if tm.IsOverdue(t0.Add(1000 * time.Hour)) {
		t.Error("frozen timer must never be overdue")
	}
}

func TestFreezeResumeStateErrors(t *testing.T) {
	clock, _, _ := newTestClock()
	claimID := uuid.New()
	ctx := context.Background()

	if _, err := clock.Resume(ctx, claimID, t0); !errors.Is(err, ErrTimerNotFound) {
		t.Errorf("resume without timer: err = %v, want ErrTimerNotFound", err)
	}

	if _, err := clock.Start(ctx, claimID, "", t0); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := clock.Resume(ctx, claimID, t0.Add(time.Hour)); !errors.Is(err, ErrInvalidTimerState) {
		t.Errorf("resume running: err = %v, want ErrInvalidTimerState", err)
	}
	if _, err := clock.Freeze(ctx, claimID, t0.Add(time.Hour)); err != nil {
		t.Fatalf("freeze: %v", err)
	}
	if _, err := clock.Freeze(ctx, claimID, t0.Add(2*time.Hour)); !errors.Is(err, ErrInvalidTimerState) {
		t.Errorf("double freeze: err = %v, want ErrInvalidTimerState", err)
	}
}

func TestEvaluateBreachesOnce(t *testing.T) {
	clock, _, bus := newTestClock()
	claimID := uuid.New()
	ctx := context.Background()

	var breaches []events.SLABreached
	bus.SubscribeBreaches(func(ev events.SLABreached) {
		breaches = append(breaches, ev)
	})

	if _, err := clock.Start(ctx, claimID, "", t0); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Before the deadline nothing breaches.
	n, err := clock.Evaluate(ctx, t0.Add(47*time.Hour))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if n != 0 || len(breaches) != 0 {
		t.Fatalf("premature breach: n=%d events=%d", n, len(breaches))
	}

	after := t0.Add(49 * time.Hour)
	n, err = clock.Evaluate(ctx, after)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if n != 1 || len(breaches) != 1 {
		t.Fatalf("breach not reported: n=%d events=%d", n, len(breaches))
	}
	if breaches[0].ClaimID != claimID {
		t.Error("breach event carries wrong claim")
	}

	// A second sweep reports nothing new.
	n, err = clock.Evaluate(ctx, after.Add(time.Hour))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if n != 0 || len(breaches) != 1 {
		t.Fatalf("breach reported twice: n=%d events=%d", n, len(breaches))
	}
}

func TestFrozenSpanDefersBreach(t *testing.T) {
	clock, _, bus := newTestClock()
	claimID := uuid.New()
	ctx := context.Background()

	breaches := 0
	bus.SubscribeBreaches(func(events.SLABreached) { breaches++ })

	if _, err := clock.Start(ctx, claimID, "", t0); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := clock.Freeze(ctx, claimID, t0.Add(24*time.Hour)); err != nil {
		t.Fatalf("freeze: %v", err)
	}
	if _, err := clock.Resume(ctx, claimID, t0.Add(34*time.Hour)); err != nil { // frozen 10h
		t.Fatalf("resume: %v", err)
	}

	// 50h elapsed wall clock, but only 40h counted: no breach yet.
	if n, _ := clock.Evaluate(ctx, t0.Add(50*time.Hour)); n != 0 || breaches != 0 {
		t.Fatalf("breached during credit window: n=%d", n)
	}
	// 59h elapsed, 49h counted: breach.
	if n, _ := clock.Evaluate(ctx, t0.Add(59*time.Hour)); n != 1 || breaches != 1 {
		t.Fatalf("breach missing after credit exhausted: n=%d breaches=%d", n, breaches)
	}
}

func TestOnTransitionAppliesTaskWindow(t *testing.T) {
	clock, _, _ := newTestClock()
	clock.SetTaskWindow("denial_followup", 24*time.Hour)
	claimID := uuid.New()

	ev := events.ClaimTransitioned{ClaimID: claimID, TaskType: "denial_followup", From: "new", To: "assigned", At: t0}
	if err := clock.OnTransition(context.Background(), ev); err != nil {
		t.Fatalf("on transition: %v", err)
	}
	tm, err := clock.Get(context.Background(), claimID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if tm.TaskType != "denial_followup" {
		t.Errorf("task type = %q, want denial_followup", tm.TaskType)
	}
	if want := t0.Add(24 * time.Hour); !tm.DeadlineAt.Equal(want) {
		t.Errorf("deadline = %v, want %v (24h task window)", tm.DeadlineAt, want)
	}
}

func TestOnTransitionStartsOnce(t *testing.T) {
	clock, repo, _ := newTestClock()
	claimID := uuid.New()
	ctx := context.Background()

	ev := events.ClaimTransitioned{ClaimID: claimID, From: "new", To: "assigned", At: t0}
	if err := clock.OnTransition(ctx, ev); err != nil {
		t.Fatalf("on transition: %v", err)
	}
	if len(repo.timers) != 1 {
		t.Fatalf("timers = %d, want 1", len(repo.timers))
	}

	// Moving deeper into the working phase keeps the original timer.
	ev = events.ClaimTransitioned{ClaimID: claimID, From: "assigned", To: "initial_review", At: t0.Add(time.Hour)}
	if err := clock.OnTransition(ctx, ev); err != nil {
		t.Fatalf("on transition: %v", err)
	}
	if len(repo.timers) != 1 {
		t.Fatalf("timers = %d, want 1 (no restart)", len(repo.timers))
	}
}

func TestOnTransitionResolvesOnTerminal(t *testing.T) {
	clock, _, _ := newTestClock()
	claimID := uuid.New()
	ctx := context.Background()

	if _, err := clock.Start(ctx, claimID, "", t0); err != nil {
		t.Fatalf("start: %v", err)
	}
	ev := events.ClaimTransitioned{ClaimID: claimID, From: "payment_posted", To: "closed", At: t0.Add(30 * time.Hour)}
	if err := clock.OnTransition(ctx, ev); err != nil {
		t.Fatalf("on transition: %v", err)
	}
	tm, err := clock.Get(ctx, claimID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if tm.State != TimerResolved {
		t.Errorf("state = %s, want resolved", tm.State)
	}

	// Terminal transition without a timer is a no-op, not an error.
	other := events.ClaimTransitioned{ClaimID: uuid.New(), From: "write_off", To: "closed", At: t0}
	if err := clock.OnTransition(ctx, other); err != nil {
		t.Errorf("terminal without timer: %v", err)
	}
}

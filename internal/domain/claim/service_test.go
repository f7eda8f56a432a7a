package claim

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/rcm/rcm/internal/domain/priority"
	"github.com/rcm/rcm/internal/platform/events"
)

type mockRepo struct {
	claims map[uuid.UUID]*Claim

	// failUpdates makes the next n Update calls lose the version race.
	failUpdates int
	updateCalls int
}

func newMockRepo() *mockRepo {
	return &mockRepo{claims: make(map[uuid.UUID]*Claim)}
}

func (m *mockRepo) Create(_ context.Context, c *Claim) error {
	c.ID = uuid.New()
	cp := *c
	cp.VersionID = 1
	m.claims[c.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Claim, error) {
	c, ok := m.claims[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *mockRepo) Update(_ context.Context, c *Claim) error {
	m.updateCalls++
	if m.failUpdates > 0 {
		m.failUpdates--
		return ErrConcurrentModification
	}
	stored, ok := m.claims[c.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.VersionID != c.VersionID {
		return ErrConcurrentModification
	}
	cp := *c
	cp.VersionID++
	m.claims[c.ID] = &cp
	c.VersionID = cp.VersionID
	return nil
}

func (m *mockRepo) CompareAndSwapAuditState(_ context.Context, id uuid.UUID, from []AuditState, to AuditState) (bool, error) {
	c, ok := m.claims[id]
	if !ok {
		return false, ErrNotFound
	}
	for _, st := range from {
		if c.AuditState == st {
			c.AuditState = to
			return true, nil
		}
	}
	return false, nil
}

func (m *mockRepo) ListByState(_ context.Context, state State, _, _ int) ([]*Claim, int, error) {
	var out []*Claim
	for _, c := range m.claims {
		if c.State == state {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

func (m *mockRepo) ListByAssignee(_ context.Context, assignee string, _, _ int) ([]*Claim, int, error) {
	var out []*Claim
	for _, c := range m.claims {
		if c.AssignedTo != nil && *c.AssignedTo == assignee {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

func (m *mockRepo) List(_ context.Context, _, _ int) ([]*Claim, int, error) {
	var out []*Claim
	for _, c := range m.claims {
		cp := *c
		out = append(out, &cp)
	}
	return out, len(out), nil
}

func newTestService() (*Service, *mockRepo, *events.Bus) {
	repo := newMockRepo()
	bus := events.NewBus()
	svc := NewService(repo, bus, priority.NewScorer(0))
	return svc, repo, bus
}

func seedClaim(t *testing.T, svc *Service, state State) *Claim {
	t.Helper()
	c := &Claim{
		ClientRef:  "client-1",
		SOWRef:     "sow-1",
		PatientRef: "patient-1",
		Payer:      "acme-health",
		PayerScore: 60,
	}
	if err := svc.Create(context.Background(), c); err != nil {
		t.Fatalf("create: %v", err)
	}
	if state != StateNew {
		stored := svc.claims.(*mockRepo).claims[c.ID]
		stored.State = state
		c.State = state
	}
	return c
}

func TestCreateValidates(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	cases := []Claim{
		{SOWRef: "s", PatientRef: "p"},
		{ClientRef: "c", PatientRef: "p"},
		{ClientRef: "c", SOWRef: "s"},
		{ClientRef: "c", SOWRef: "s", PatientRef: "p", AmountCents: -1},
		{ClientRef: "c", SOWRef: "s", PatientRef: "p", PayerScore: 101},
	}
	for i, c := range cases {
		if err := svc.Create(ctx, &c); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
}

func TestCreateSetsInitialState(t *testing.T) {
	svc, _, _ := newTestService()
	c := seedClaim(t, svc, StateNew)
	if c.State != StateNew {
		t.Errorf("state = %s, want new", c.State)
	}
	if c.AuditState != AuditNone {
		t.Errorf("audit state = %s, want none", c.AuditState)
	}
	if c.VersionID != 1 {
		t.Errorf("version = %d, want 1", c.VersionID)
	}
	if c.PriorityScore <= 0 {
		t.Errorf("priority score = %d, want > 0", c.PriorityScore)
	}
}

func TestTransitionLegalEdge(t *testing.T) {
	svc, _, bus := newTestService()
	c := seedClaim(t, svc, StateNew)

	var got []events.ClaimTransitioned
	bus.SubscribeTransitions(func(ev events.ClaimTransitioned) {
		got = append(got, ev)
	})

	out, err := svc.Transition(context.Background(), c.ID, StateFloatingPool, TransitionOptions{})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if out.State != StateFloatingPool {
		t.Errorf("state = %s, want floating_pool", out.State)
	}
	if len(got) != 1 {
		t.Fatalf("events = %d, want 1", len(got))
	}
	if got[0].From != "new" || got[0].To != "floating_pool" {
		t.Errorf("event = %s -> %s", got[0].From, got[0].To)
	}
}

func TestTransitionIllegalEdge(t *testing.T) {
	svc, _, bus := newTestService()
	c := seedClaim(t, svc, StateNew)

	emitted := 0
	bus.SubscribeTransitions(func(events.ClaimTransitioned) { emitted++ })

	_, err := svc.Transition(context.Background(), c.ID, StateClosed, TransitionOptions{})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
	if emitted != 0 {
		t.Error("illegal transition must not emit events")
	}
}

func TestTransitionUnknownState(t *testing.T) {
	svc, _, _ := newTestService()
	c := seedClaim(t, svc, StateNew)

	_, err := svc.Transition(context.Background(), c.ID, State("bogus"), TransitionOptions{})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestTransitionFromClosedRejected(t *testing.T) {
	svc, _, _ := newTestService()
	c := seedClaim(t, svc, StateClosed)

	for _, to := range []State{StateNew, StateAssigned, StatePaid, StateWriteOff} {
		_, err := svc.Transition(context.Background(), c.ID, to, TransitionOptions{})
		if !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("closed -> %s: err = %v, want ErrInvalidTransition", to, err)
		}
	}
}

func TestTransitionGuardVeto(t *testing.T) {
	svc, _, _ := newTestService()
	c := seedClaim(t, svc, StateSubmittedToClearinghouse)

	svc.AddGuard(GuardFunc(func(_ context.Context, _ *Claim, to State) error {
		if to == StateSentToPayer {
			return errors.New("batch not acknowledged")
		}
		return nil
	}))

	_, err := svc.Transition(context.Background(), c.ID, StateSentToPayer, TransitionOptions{})
	if !errors.Is(err, ErrPreconditionNotMet) {
		t.Fatalf("err = %v, want ErrPreconditionNotMet", err)
	}

	// The guard does not block the fallback edge.
	if _, err := svc.Transition(context.Background(), c.ID, StateReadyForSubmission, TransitionOptions{}); err != nil {
		t.Fatalf("fallback transition: %v", err)
	}
}

func TestTransitionRetriesOnVersionConflict(t *testing.T) {
	svc, repo, _ := newTestService()
	c := seedClaim(t, svc, StateNew)

	repo.failUpdates = 2
	out, err := svc.Transition(context.Background(), c.ID, StateAssigned, TransitionOptions{})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if out.State != StateAssigned {
		t.Errorf("state = %s, want assigned", out.State)
	}
	if repo.updateCalls != 3 {
		t.Errorf("update calls = %d, want 3", repo.updateCalls)
	}
}

func TestTransitionGivesUpAfterRetries(t *testing.T) {
	svc, repo, _ := newTestService()
	c := seedClaim(t, svc, StateNew)

	repo.failUpdates = transitionRetries
	_, err := svc.Transition(context.Background(), c.ID, StateAssigned, TransitionOptions{})
	if !errors.Is(err, ErrConcurrentModification) {
		t.Fatalf("err = %v, want ErrConcurrentModification", err)
	}
}

func TestTransitionRecomputesScore(t *testing.T) {
	svc, _, _ := newTestService()
	c := seedClaim(t, svc, StateUnderPayerReview)
	before := c.PriorityScore

	out, err := svc.Transition(context.Background(), c.ID, StateDenied, TransitionOptions{SetDenialFlag: true})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if !out.DenialFlag {
		t.Error("denial flag should be set")
	}
	if out.PriorityScore <= before {
		t.Errorf("denial must raise priority: %d -> %d", before, out.PriorityScore)
	}
}

func TestAssign(t *testing.T) {
	svc, _, _ := newTestService()
	c := seedClaim(t, svc, StateFloatingPool)

	out, err := svc.Assign(context.Background(), c.ID, "operator-7")
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if out.State != StateAssigned {
		t.Errorf("state = %s, want assigned", out.State)
	}
	if out.AssignedTo == nil || *out.AssignedTo != "operator-7" {
		t.Error("assignee not recorded")
	}
	if out.AssignedAt == nil {
		t.Error("assigned_at not recorded")
	}

	if _, err := svc.Assign(context.Background(), c.ID, ""); err == nil {
		t.Error("empty assignee must be rejected")
	}
}

func TestApplyScoreUpdate(t *testing.T) {
	svc, _, _ := newTestService()
	c := seedClaim(t, svc, StateAssigned)
	before := c.PriorityScore

	aging := 60
	amount := int64(250000)
	out, err := svc.ApplyScoreUpdate(context.Background(), c.ID, ScoreFields{
		AgingDays:   &aging,
		AmountCents: &amount,
	})
	if err != nil {
		t.Fatalf("score update: %v", err)
	}
	if out.AgingDays != 60 || out.AmountCents != 250000 {
		t.Error("fields not applied")
	}
	if out.PriorityScore <= before {
		t.Errorf("aging and amount must raise priority: %d -> %d", before, out.PriorityScore)
	}
	if out.State != StateAssigned {
		t.Error("score update must not change state")
	}

	bad := -1
	if _, err := svc.ApplyScoreUpdate(context.Background(), c.ID, ScoreFields{AgingDays: &bad}); err == nil {
		t.Error("negative aging must be rejected")
	}
}

func TestTransitionNotFound(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.Transition(context.Background(), uuid.New(), StateAssigned, TransitionOptions{})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

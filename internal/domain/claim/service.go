package claim

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rcm/rcm/internal/domain/priority"
	"github.com/rcm/rcm/internal/platform/events"
)

// transitionRetries bounds the optimistic-concurrency retry loop. A writer
// that loses this many times in a row surfaces ErrConcurrentModification.
const transitionRetries = 3

// Guard vetoes an otherwise legal transition. Guards are consulted after the
// adjacency check; a non-nil error is wrapped in ErrPreconditionNotMet.
type Guard interface {
	Check(ctx context.Context, c *Claim, to State) error
}

// GuardFunc adapts a function to the Guard interface.
type GuardFunc func(ctx context.Context, c *Claim, to State) error

func (f GuardFunc) Check(ctx context.Context, c *Claim, to State) error {
	return f(ctx, c, to)
}

// MultiplierFunc supplies the contextual scoring multipliers for a claim
// (client weight, workflow weight, SOW priority). The zero multipliers
// behave as 1.0.
type MultiplierFunc func(ctx context.Context, c *Claim) priority.Multipliers

type Service struct {
	claims      Repository
	bus         *events.Bus
	scorer      *priority.Scorer
	multipliers MultiplierFunc
	guards      []Guard
}

func NewService(claims Repository, bus *events.Bus, scorer *priority.Scorer) *Service {
	return &Service{
		claims: claims,
		bus:    bus,
		scorer: scorer,
		multipliers: func(context.Context, *Claim) priority.Multipliers {
			return priority.Multipliers{}
		},
	}
}

// SetMultiplierSource overrides the default all-1.0 multiplier lookup.
func (s *Service) SetMultiplierSource(f MultiplierFunc) {
	if f != nil {
		s.multipliers = f
	}
}

// AddGuard registers a transition guard.
func (s *Service) AddGuard(g Guard) {
	s.guards = append(s.guards, g)
}

// Create validates and persists a new claim in StateNew with its initial
// priority score.
func (s *Service) Create(ctx context.Context, c *Claim) error {
	if c.ClientRef == "" {
		return fmt.Errorf("client_ref is required")
	}
	if c.SOWRef == "" {
		return fmt.Errorf("sow_ref is required")
	}
	if c.PatientRef == "" {
		return fmt.Errorf("patient_ref is required")
	}
	if c.AmountCents < 0 {
		return fmt.Errorf("amount_cents must not be negative")
	}
	if c.PayerScore < 0 || c.PayerScore > 100 {
		return fmt.Errorf("payer_score must be in [0,100], got %d", c.PayerScore)
	}
	c.State = StateNew
	c.AuditState = AuditNone
	c.PriorityScore = s.score(ctx, c)
	if err := s.claims.Create(ctx, c); err != nil {
		return err
	}
	c.VersionID = 1
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Claim, error) {
	return s.claims.GetByID(ctx, id)
}

func (s *Service) ListByState(ctx context.Context, state State, limit, offset int) ([]*Claim, int, error) {
	return s.claims.ListByState(ctx, state, limit, offset)
}

func (s *Service) ListByAssignee(ctx context.Context, assignee string, limit, offset int) ([]*Claim, int, error) {
	return s.claims.ListByAssignee(ctx, assignee, limit, offset)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Claim, int, error) {
	return s.claims.List(ctx, limit, offset)
}

// TransitionOptions carries optional side effects applied together with a
// transition.
type TransitionOptions struct {
	// AssignTo sets the claim's assignee (used with StateAssigned).
	AssignTo *string
	// SetDenialFlag raises the denial flag (used with StateDenied).
	SetDenialFlag bool
}

// Transition moves the claim along one edge of the adjacency table. The
// write is optimistic: on version conflict the claim is re-read and the
// transition re-validated against the fresh state, up to transitionRetries
// times. Every committed transition recomputes the priority score and emits
// a ClaimTransitioned event.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, to State, opts TransitionOptions) (*Claim, error) {
	if !to.IsValid() {
		return nil, fmt.Errorf("%w: unknown state %q", ErrInvalidTransition, to)
	}

	for attempt := 0; attempt < transitionRetries; attempt++ {
		c, err := s.claims.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if !CanTransition(c.State, to) {
			return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.State, to)
		}
		for _, g := range s.guards {
			if err := g.Check(ctx, c, to); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrPreconditionNotMet, err)
			}
		}

		from := c.State
		now := time.Now().UTC()
		c.State = to
		if opts.AssignTo != nil {
			c.AssignedTo = opts.AssignTo
			c.AssignedAt = &now
		}
		if opts.SetDenialFlag {
			c.DenialFlag = true
		}
		c.PriorityScore = s.score(ctx, c)

		if err := s.claims.Update(ctx, c); err != nil {
			if errors.Is(err, ErrConcurrentModification) {
				continue
			}
			return nil, err
		}

		s.bus.PublishTransition(events.ClaimTransitioned{
			ClaimID:  c.ID,
			TaskType: c.TaskType,
			From:     string(from),
			To:       string(to),
			At:       now,
		})
		return c, nil
	}
	return nil, ErrConcurrentModification
}

// Assign moves a claim out of the floating pool (or straight from intake) to
// the given operator.
func (s *Service) Assign(ctx context.Context, id uuid.UUID, assignee string) (*Claim, error) {
	if assignee == "" {
		return nil, fmt.Errorf("assignee is required")
	}
	return s.Transition(ctx, id, StateAssigned, TransitionOptions{AssignTo: &assignee})
}

// ScoreFields are the claim fields whose change triggers a score
// recomputation.
type ScoreFields struct {
	AgingDays   *int
	AmountCents *int64
	PayerScore  *int
	DenialFlag  *bool
}

// ApplyScoreUpdate patches the scoring inputs and recomputes the priority
// score under the same optimistic-concurrency discipline as Transition.
// The claim's state is never touched here.
func (s *Service) ApplyScoreUpdate(ctx context.Context, id uuid.UUID, fields ScoreFields) (*Claim, error) {
	for attempt := 0; attempt < transitionRetries; attempt++ {
		c, err := s.claims.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if fields.AgingDays != nil {
			if *fields.AgingDays < 0 {
				return nil, fmt.Errorf("aging_days must not be negative")
			}
			c.AgingDays = *fields.AgingDays
		}
		if fields.AmountCents != nil {
			if *fields.AmountCents < 0 {
				return nil, fmt.Errorf("amount_cents must not be negative")
			}
			c.AmountCents = *fields.AmountCents
		}
		if fields.PayerScore != nil {
			if *fields.PayerScore < 0 || *fields.PayerScore > 100 {
				return nil, fmt.Errorf("payer_score must be in [0,100], got %d", *fields.PayerScore)
			}
			c.PayerScore = *fields.PayerScore
		}
		if fields.DenialFlag != nil {
			c.DenialFlag = *fields.DenialFlag
		}
		c.PriorityScore = s.score(ctx, c)

		if err := s.claims.Update(ctx, c); err != nil {
			if errors.Is(err, ErrConcurrentModification) {
				continue
			}
			return nil, err
		}
		return c, nil
	}
	return nil, ErrConcurrentModification
}

// ClaimAudit opens the claim for audit: audit state none/audit_resolved
// becomes pending_audit. Returns false when an audit is already open.
func (s *Service) ClaimAudit(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.claims.CompareAndSwapAuditState(ctx, id, []AuditState{AuditNone, AuditResolved}, AuditPending)
}

// StartAudit moves a pending audit under review. Returns false when the
// claim is not pending audit.
func (s *Service) StartAudit(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.claims.CompareAndSwapAuditState(ctx, id, []AuditState{AuditPending}, AuditUnder)
}

// ResolveAudit closes the audit cycle on the claim.
func (s *Service) ResolveAudit(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.claims.CompareAndSwapAuditState(ctx, id, []AuditState{AuditPending, AuditUnder}, AuditResolved)
}

func (s *Service) score(ctx context.Context, c *Claim) int {
	return s.scorer.Score(priority.Input{
		AgingDays:     c.AgingDays,
		AmountCents:   c.AmountCents,
		PayerScore:    c.PayerScore,
		StatusUrgency: c.State.Urgency(),
		DenialFlag:    c.DenialFlag,
		Multipliers:   s.multipliers(ctx, c),
	})
}

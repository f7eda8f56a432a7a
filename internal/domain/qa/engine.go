package qa

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rcm/rcm/internal/domain/claim"
	"github.com/rcm/rcm/internal/platform/events"
)

// Rules are the engine's selection thresholds.
type Rules struct {
	// HighValueCents selects every claim at or above this amount.
	HighValueCents int64
	// GracePeriod selects all work done by assignees newer than this.
	GracePeriod time.Duration
	// SampleRate is the random-sampling fraction in [0,1].
	SampleRate float64
}

// AssigneeSinceFunc reports when an assignee started working claims. Used by
// the new-assignee grace rule; a false second return skips the rule.
type AssigneeSinceFunc func(assignee string) (time.Time, bool)

// Engine selects claims for quality audit and runs the audit cycle. Selection
// is deterministic: the same claim under the same rules always gets the same
// answer, including the random-sampling draw.
type Engine struct {
	records Repository
	claims  *claim.Service
	log     zerolog.Logger
	rules   Rules

	mu               sync.RWMutex
	errorPronePayers map[string]bool
	auditedClients   map[string]bool
	assigneeSince    AssigneeSinceFunc

	escalations atomic.Int64
}

func NewEngine(records Repository, claims *claim.Service, rules Rules, logger zerolog.Logger) *Engine {
	if rules.SampleRate < 0 {
		rules.SampleRate = 0
	}
	if rules.SampleRate > 1 {
		rules.SampleRate = 1
	}
	return &Engine{
		records:          records,
		claims:           claims,
		log:              logger,
		rules:            rules,
		errorPronePayers: make(map[string]bool),
		auditedClients:   make(map[string]bool),
	}
}

// MarkErrorPronePayer adds a payer whose claims are always rule-selected.
func (e *Engine) MarkErrorPronePayer(payer string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errorPronePayers[payer] = true
}

// MarkAuditedClient adds a client whose contract mandates audit of every
// claim.
func (e *Engine) MarkAuditedClient(clientRef string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.auditedClients[clientRef] = true
}

// SetAssigneeSince installs the lookup for the new-assignee grace rule.
func (e *Engine) SetAssigneeSince(f AssigneeSinceFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.assigneeSince = f
}

// Escalations returns the number of failed audits so far.
func (e *Engine) Escalations() int64 {
	return e.escalations.Load()
}

// ShouldSelect applies the selection criteria in priority order and returns
// the first match: manual flag, high value, new-assignee grace, error-prone
// payer, client contract, then random sampling.
func (e *Engine) ShouldSelect(c *claim.Claim, manual bool, now time.Time) (TriggerReason, bool) {
	if manual {
		return TriggerManual, true
	}
	if e.rules.HighValueCents > 0 && c.AmountCents >= e.rules.HighValueCents {
		return TriggerRuleBased, true
	}

	e.mu.RLock()
	since := e.assigneeSince
	payerHit := e.errorPronePayers[c.Payer]
	clientHit := e.auditedClients[c.ClientRef]
	e.mu.RUnlock()

	if since != nil && c.AssignedTo != nil && e.rules.GracePeriod > 0 {
		if started, ok := since(*c.AssignedTo); ok && now.Sub(started) < e.rules.GracePeriod {
			return TriggerRuleBased, true
		}
	}
	if payerHit || clientHit {
		return TriggerRuleBased, true
	}
	if e.sampled(c.ID) {
		return TriggerRandom, true
	}
	return "", false
}

// sampled draws the claim's random-sampling ticket from a hash of its ID, so
// the draw is stable across processes and retries.
func (e *Engine) sampled(id uuid.UUID) bool {
	if e.rules.SampleRate <= 0 {
		return false
	}
	if e.rules.SampleRate >= 1 {
		return true
	}
	h := fnv.New32a()
	h.Write(id[:])
	ticket := float64(h.Sum32()) / float64(math.MaxUint32)
	return ticket < e.rules.SampleRate
}

// ClaimForAudit opens an audit cycle on the claim. The claim's audit state is
// swapped from none/audit_resolved to pending_audit; if another audit is
// already open the call is a no-op and returns the open record.
func (e *Engine) ClaimForAudit(ctx context.Context, claimID uuid.UUID, trigger TriggerReason) (*AuditRecord, error) {
	swapped, err := e.claims.ClaimAudit(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if !swapped {
		return e.records.GetOpenByClaim(ctx, claimID)
	}
	rec := &AuditRecord{ClaimID: claimID, Trigger: trigger}
	if err := e.records.Create(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// StartReview moves the claim's open audit under review by the given
// reviewer.
func (e *Engine) StartReview(ctx context.Context, claimID uuid.UUID, reviewer string) (*AuditRecord, error) {
	if reviewer == "" {
		return nil, fmt.Errorf("reviewer is required")
	}
	rec, err := e.records.GetOpenByClaim(ctx, claimID)
	if err != nil {
		return nil, err
	}
	swapped, err := e.claims.StartAudit(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if !swapped {
		return nil, fmt.Errorf("claim %s is not pending audit", claimID)
	}
	if err := e.records.SetReviewer(ctx, rec.ID, reviewer); err != nil {
		return nil, err
	}
	rec.ReviewerRef = &reviewer
	return rec, nil
}

// SubmitAudit scores the claim's open audit and closes the cycle. A Fail
// verdict sends the claim back to the floating pool for reassignment and
// bumps the escalation counter.
func (e *Engine) SubmitAudit(ctx context.Context, claimID uuid.UUID, score int, remarks, reviewer string) (*AuditRecord, error) {
	if score < 0 || score > 100 {
		return nil, fmt.Errorf("score must be in [0,100], got %d", score)
	}
	rec, err := e.records.GetOpenByClaim(ctx, claimID)
	if err != nil {
		return nil, err
	}

	verdict := ScoreVerdict(score)
	now := time.Now().UTC()
	rec.Score = &score
	rec.Verdict = &verdict
	rec.CompletedAt = &now
	if remarks != "" {
		rec.Remarks = &remarks
	}
	if reviewer != "" {
		rec.ReviewerRef = &reviewer
	}
	if err := e.records.Complete(ctx, rec); err != nil {
		return nil, err
	}
	if _, err := e.claims.ResolveAudit(ctx, claimID); err != nil {
		return nil, err
	}

	if verdict == VerdictFail {
		e.escalations.Add(1)
		e.log.Warn().
			Str("claim_id", claimID.String()).
			Int("score", score).
			Int64("escalations", e.escalations.Load()).
			Msg("audit failed, claim escalated for reassignment")
		if _, err := e.claims.Transition(ctx, claimID, claim.StateFloatingPool, claim.TransitionOptions{}); err != nil {
			// The claim may sit in a state with no pool edge; the
			// escalation still counts and the verdict stands.
			e.log.Debug().Err(err).Str("claim_id", claimID.String()).Msg("failed-audit claim not returned to pool")
		}
	}
	return rec, nil
}

// History returns every audit cycle for a claim, newest first.
func (e *Engine) History(ctx context.Context, claimID uuid.UUID) ([]*AuditRecord, error) {
	return e.records.ListByClaim(ctx, claimID)
}

func (e *Engine) Get(ctx context.Context, id uuid.UUID) (*AuditRecord, error) {
	return e.records.GetByID(ctx, id)
}

func (e *Engine) List(ctx context.Context, limit, offset int) ([]*AuditRecord, int, error) {
	return e.records.List(ctx, limit, offset)
}

// Wire subscribes the engine to claim transitions: when a claim finishes its
// working phase (enters ready_for_submission) the selection rules run and a
// hit opens an audit cycle.
func (e *Engine) Wire(bus *events.Bus) {
	bus.SubscribeTransitions(func(ev events.ClaimTransitioned) {
		if claim.State(ev.To) != claim.StateReadyForSubmission {
			return
		}
		ctx := context.Background()
		c, err := e.claims.Get(ctx, ev.ClaimID)
		if err != nil {
			e.log.Error().Err(err).Str("claim_id", ev.ClaimID.String()).Msg("qa selection load failed")
			return
		}
		trigger, hit := e.ShouldSelect(c, false, ev.At)
		if !hit {
			return
		}
		if _, err := e.ClaimForAudit(ctx, c.ID, trigger); err != nil {
			e.log.Error().Err(err).Str("claim_id", c.ID.String()).Msg("qa selection failed to open audit")
		}
	})
}

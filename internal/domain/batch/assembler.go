package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rcm/rcm/internal/domain/claim"
)

// candidateLimit bounds how many ready claims one assembly pass considers.
const candidateLimit = 1000

// ValidationError describes one reason a claim cannot be submitted with its
// batch.
type ValidationError struct {
	ClaimID uuid.UUID `json:"claim_id"`
	Field   string    `json:"field"`
	Reason  string    `json:"reason"`
}

// Assembler groups submission-ready claims into batches, submits them to the
// clearinghouse, and applies acknowledge/reject callbacks. All claim movement
// goes through the claim service so the adjacency rules and guards stay in
// force.
type Assembler struct {
	batches Repository
	claims  *claim.Service
	gateway Clearinghouse
	log     zerolog.Logger

	maxSize int
}

func NewAssembler(batches Repository, claims *claim.Service, gateway Clearinghouse, maxSize int, logger zerolog.Logger) *Assembler {
	if maxSize < 1 {
		maxSize = 100
	}
	return &Assembler{
		batches: batches,
		claims:  claims,
		gateway: gateway,
		log:     logger,
		maxSize: maxSize,
	}
}

// TransitionGuard vetoes moving a claim to sent_to_payer unless its batch has
// been acknowledged by the clearinghouse. Registered on the claim service at
// startup.
func (a *Assembler) TransitionGuard() claim.Guard {
	return claim.GuardFunc(func(ctx context.Context, c *claim.Claim, to claim.State) error {
		if to != claim.StateSentToPayer {
			return nil
		}
		b, err := a.batches.GetLatestByClaim(ctx, c.ID)
		if err != nil {
			return fmt.Errorf("claim %s has no batch", c.ID)
		}
		if b.Status != StatusAcknowledged {
			return fmt.Errorf("batch %s is %s, not acknowledged", b.ID, b.Status)
		}
		return nil
	})
}

// AssembleCandidates sweeps claims in ready_for_submission, groups them by
// grouping key in priority order, and cuts batches of at most maxSize. Each
// claimed member is moved to batch_created; claims lost to a concurrent
// writer are simply left for the next pass.
func (a *Assembler) AssembleCandidates(ctx context.Context) ([]*ClaimBatch, error) {
	ready, _, err := a.claims.ListByState(ctx, claim.StateReadyForSubmission, candidateLimit, 0)
	if err != nil {
		return nil, err
	}

	// Group in encounter order so priority ordering survives the cut.
	groups := make(map[string][]*claim.Claim)
	var keys []string
	for _, c := range ready {
		k := c.GroupingKey()
		if _, seen := groups[k]; !seen {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], c)
	}

	var out []*ClaimBatch
	for _, k := range keys {
		members := groups[k]
		for start := 0; start < len(members); start += a.maxSize {
			end := start + a.maxSize
			if end > len(members) {
				end = len(members)
			}
			b, err := a.cutBatch(ctx, members[start:end])
			if err != nil {
				return out, err
			}
			if b != nil {
				out = append(out, b)
			}
		}
	}
	return out, nil
}

func (a *Assembler) cutBatch(ctx context.Context, members []*claim.Claim) (*ClaimBatch, error) {
	var claimed []uuid.UUID
	for _, c := range members {
		_, err := a.claims.Transition(ctx, c.ID, claim.StateBatchCreated, claim.TransitionOptions{})
		if err != nil {
			// Someone else moved it first; it will batch on a later pass
			// if it comes back to ready_for_submission.
			a.log.Debug().Err(err).Str("claim_id", c.ID.String()).Msg("claim skipped during batch cut")
			continue
		}
		claimed = append(claimed, c.ID)
	}
	if len(claimed) == 0 {
		return nil, nil
	}

	first := members[0]
	b := &ClaimBatch{
		GroupingKey:  first.GroupingKey(),
		SOWRef:       first.SOWRef,
		ClaimFormat:  first.ClaimFormat,
		ContractType: first.ContractType,
		Status:       StatusAssembling,
		ClaimIDs:     claimed,
	}
	if err := a.batches.Create(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// Get returns a batch with its membership.
func (a *Assembler) Get(ctx context.Context, id uuid.UUID) (*ClaimBatch, error) {
	return a.batches.GetByID(ctx, id)
}

func (a *Assembler) ListByStatus(ctx context.Context, status Status, limit, offset int) ([]*ClaimBatch, int, error) {
	return a.batches.ListByStatus(ctx, status, limit, offset)
}

func (a *Assembler) List(ctx context.Context, limit, offset int) ([]*ClaimBatch, int, error) {
	return a.batches.List(ctx, limit, offset)
}

// Validate checks every member against the submission rules. An empty result
// means the batch may be submitted.
func (a *Assembler) Validate(ctx context.Context, id uuid.UUID) ([]ValidationError, error) {
	b, err := a.batches.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return a.validate(ctx, b)
}

func (a *Assembler) validate(ctx context.Context, b *ClaimBatch) ([]ValidationError, error) {
	var errs []ValidationError
	if len(b.ClaimIDs) == 0 {
		errs = append(errs, ValidationError{Field: "claims", Reason: "batch has no claims"})
		return errs, nil
	}
	for _, id := range b.ClaimIDs {
		c, err := a.claims.Get(ctx, id)
		if err != nil {
			errs = append(errs, ValidationError{ClaimID: id, Field: "claim", Reason: "claim not found"})
			continue
		}
		if c.State != claim.StateBatchCreated {
			errs = append(errs, ValidationError{ClaimID: id, Field: "state",
				Reason: fmt.Sprintf("claim is %s, not batch_created", c.State)})
		}
		if c.GroupingKey() != b.GroupingKey {
			errs = append(errs, ValidationError{ClaimID: id, Field: "grouping_key",
				Reason: "claim does not match batch grouping"})
		}
		if c.Payer == "" {
			errs = append(errs, ValidationError{ClaimID: id, Field: "payer", Reason: "payer is required"})
		}
		if c.PatientRef == "" {
			errs = append(errs, ValidationError{ClaimID: id, Field: "patient_ref", Reason: "patient reference is required"})
		}
		if c.AmountCents <= 0 {
			errs = append(errs, ValidationError{ClaimID: id, Field: "amount_cents", Reason: "amount must be positive"})
		}
	}
	return errs, nil
}

// Submit validates the batch, hands it to the clearinghouse, and moves its
// claims to submitted_to_clearinghouse. The status swap claims the batch
// before the gateway call so two submitters cannot both send it. A batch that
// fails validation is closed out with the errors recorded and its members
// returned to ready_for_submission for rework.
func (a *Assembler) Submit(ctx context.Context, id uuid.UUID) (*ClaimBatch, error) {
	b, err := a.batches.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	verrs, err := a.validate(ctx, b)
	if err != nil {
		return nil, err
	}
	if len(verrs) > 0 {
		return nil, a.refuseSubmit(ctx, b, verrs)
	}

	now := time.Now().UTC()
	swapped, err := a.batches.SetStatus(ctx, id, []Status{StatusAssembling}, StatusSubmitted, now, nil)
	if err != nil {
		return nil, err
	}
	if !swapped {
		return nil, fmt.Errorf("%w: batch is %s, not assembling", ErrInvalidBatchState, b.Status)
	}

	if err := a.gateway.Submit(ctx, b); err != nil {
		// Hand the batch back so it can be retried.
		if _, rerr := a.batches.SetStatus(ctx, id, []Status{StatusSubmitted}, StatusAssembling, now, nil); rerr != nil {
			a.log.Error().Err(rerr).Str("batch_id", id.String()).Msg("failed to revert batch after gateway error")
		}
		return nil, fmt.Errorf("clearinghouse submit: %w", err)
	}

	a.moveMembers(ctx, b, claim.StateSubmittedToClearinghouse)
	return a.batches.GetByID(ctx, id)
}

// refuseSubmit records the validation problems on the batch, closes it out,
// and hands the member claims back for rework. The claims re-batch on the
// next assembly pass once corrected.
func (a *Assembler) refuseSubmit(ctx context.Context, b *ClaimBatch, verrs []ValidationError) error {
	if err := a.batches.RecordValidationErrors(ctx, b.ID, verrs); err != nil {
		return err
	}
	reason := "failed validation"
	if _, err := a.batches.SetStatus(ctx, b.ID, []Status{StatusAssembling}, StatusRejected, time.Now().UTC(), &reason); err != nil {
		return err
	}
	a.moveMembers(ctx, b, claim.StateReadyForSubmission)
	a.log.Warn().
		Str("batch_id", b.ID.String()).
		Int("problems", len(verrs)).
		Msg("batch refused at submit, members returned for rework")
	return &ValidationFailedError{Errors: verrs}
}

// OnAcknowledge applies a clearinghouse acceptance. Repeated deliveries of
// the same acknowledgement are no-ops, even when two deliveries race: the
// idempotency check re-reads the batch after a lost swap rather than trusting
// the snapshot taken before it.
func (a *Assembler) OnAcknowledge(ctx context.Context, id uuid.UUID) (*ClaimBatch, error) {
	b, err := a.batches.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	swapped, err := a.batches.SetStatus(ctx, id, []Status{StatusSubmitted}, StatusAcknowledged, now, nil)
	if err != nil {
		return nil, err
	}
	if !swapped {
		if b, err = a.batches.GetByID(ctx, id); err != nil {
			return nil, err
		}
		if b.Status == StatusAcknowledged {
			return b, nil
		}
		return nil, fmt.Errorf("%w: batch is %s, not submitted", ErrInvalidBatchState, b.Status)
	}

	a.moveMembers(ctx, b, claim.StateSentToPayer)
	return a.batches.GetByID(ctx, id)
}

// OnReject applies a clearinghouse rejection: the batch is closed out and
// every member returns to ready_for_submission for rework. Idempotent under
// redelivery.
func (a *Assembler) OnReject(ctx context.Context, id uuid.UUID, reason string) (*ClaimBatch, error) {
	b, err := a.batches.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	swapped, err := a.batches.SetStatus(ctx, id, []Status{StatusSubmitted}, StatusRejected, now, &reason)
	if err != nil {
		return nil, err
	}
	if !swapped {
		if b, err = a.batches.GetByID(ctx, id); err != nil {
			return nil, err
		}
		if b.Status == StatusRejected {
			return b, nil
		}
		return nil, fmt.Errorf("%w: batch is %s, not submitted", ErrInvalidBatchState, b.Status)
	}

	a.moveMembers(ctx, b, claim.StateReadyForSubmission)
	return a.batches.GetByID(ctx, id)
}

// moveMembers pushes every member claim along the given edge. A member that
// cannot make the move (already moved, or changed concurrently) is logged and
// skipped rather than failing the whole callback.
func (a *Assembler) moveMembers(ctx context.Context, b *ClaimBatch, to claim.State) {
	for _, cid := range b.ClaimIDs {
		if _, err := a.claims.Transition(ctx, cid, to, claim.TransitionOptions{}); err != nil {
			if errors.Is(err, claim.ErrInvalidTransition) {
				continue
			}
			a.log.Error().Err(err).
				Str("batch_id", b.ID.String()).
				Str("claim_id", cid.String()).
				Str("to", string(to)).
				Msg("batch member transition failed")
		}
	}
}

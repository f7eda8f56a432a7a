package claim

import (
	"time"

	"github.com/google/uuid"
)

// State is a claim's lifecycle stage. Transitions between states are
// restricted to the edges in the adjacency table below.
type State string

const (
	StateNew                      State = "new"
	StateFloatingPool             State = "floating_pool"
	StateAssigned                 State = "assigned"
	StateInitialReview            State = "initial_review"
	StateCodingReview             State = "coding_review"
	StateBillingReview            State = "billing_review"
	StateReadyForSubmission       State = "ready_for_submission"
	StateBatchCreated             State = "batch_created"
	StateSubmittedToClearinghouse State = "submitted_to_clearinghouse"
	StateSentToPayer              State = "sent_to_payer"
	StateUnderPayerReview         State = "under_payer_review"
	StatePaid                     State = "paid"
	StateDenied                   State = "denied"
	StatePartiallyPaid            State = "partially_paid"
	StateSuspended                State = "suspended"
	StateAppealRequired           State = "appeal_required"
	StateAppealSubmitted          State = "appeal_submitted"
	StateAppealUnderReview        State = "appeal_under_review"
	StateFinalDenied              State = "final_denied"
	StatePaymentPosted            State = "payment_posted"
	StateWriteOff                 State = "write_off"
	StateClosed                   State = "closed"
)

// AuditState tracks the quality-audit status of a claim. At most one audit
// may be open (pending or under audit) at a time.
type AuditState string

const (
	AuditNone     AuditState = "none"
	AuditPending  AuditState = "pending_audit"
	AuditUnder    AuditState = "under_audit"
	AuditResolved AuditState = "audit_resolved"
)

// Claim maps to the claim table. State, PriorityScore, and AuditState are
// owned by the engine: they change only through Service.Transition, scorer
// recomputation, and the audit CAS, never by direct field writes from
// callers.
type Claim struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	State        State      `db:"state" json:"state"`
	ClientRef    string     `db:"client_ref" json:"client_ref"`
	SOWRef       string     `db:"sow_ref" json:"sow_ref"`
	PatientRef   string     `db:"patient_ref" json:"patient_ref"`
	Payer        string     `db:"payer" json:"payer"`
	TaskType     string     `db:"task_type" json:"task_type"`
	ClaimFormat  string     `db:"claim_format" json:"claim_format"`
	ContractType string     `db:"contract_type" json:"contract_type"`
	IntakeSource string     `db:"intake_source" json:"intake_source"`
	AmountCents  int64      `db:"amount_cents" json:"amount_cents"`
	AgingDays    int        `db:"aging_days" json:"aging_days"`
	PayerScore   int        `db:"payer_score" json:"payer_score"`
	DenialFlag   bool       `db:"denial_flag" json:"denial_flag"`
	DueDate      *time.Time `db:"due_date" json:"due_date,omitempty"`
	AssignedTo   *string    `db:"assigned_to" json:"assigned_to,omitempty"`
	AssignedAt   *time.Time `db:"assigned_at" json:"assigned_at,omitempty"`

	PriorityScore int        `db:"priority_score" json:"priority_score"`
	AuditState    AuditState `db:"audit_state" json:"audit_state"`

	VersionID int       `db:"version_id" json:"version_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// GetVersionID returns the current version.
func (c *Claim) GetVersionID() int { return c.VersionID }

// SetVersionID sets the current version.
func (c *Claim) SetVersionID(v int) { c.VersionID = v }

// GroupingKey identifies the submission batch bucket a claim belongs to:
// claims batch together only when SOW, claim format, and contract type all
// match.
func (c *Claim) GroupingKey() string {
	return c.SOWRef + "|" + c.ClaimFormat + "|" + c.ContractType
}

// adjacency is the fixed transition table. A transition is legal iff the
// target appears in the source's edge list.
var adjacency = map[State][]State{
	StateNew:                      {StateFloatingPool, StateAssigned},
	StateFloatingPool:             {StateAssigned},
	StateAssigned:                 {StateInitialReview, StateFloatingPool},
	StateInitialReview:            {StateCodingReview},
	StateCodingReview:             {StateBillingReview},
	StateBillingReview:            {StateReadyForSubmission},
	StateReadyForSubmission:       {StateBatchCreated},
	StateBatchCreated:             {StateSubmittedToClearinghouse, StateReadyForSubmission},
	StateSubmittedToClearinghouse: {StateSentToPayer, StateReadyForSubmission},
	StateSentToPayer:              {StateUnderPayerReview},
	StateUnderPayerReview:         {StatePaid, StateDenied, StatePartiallyPaid, StateSuspended},
	StatePaid:                     {StatePaymentPosted},
	StateDenied:                   {StateAppealRequired, StateWriteOff},
	StatePartiallyPaid:            {StatePaymentPosted, StateWriteOff},
	StateSuspended:                {StateUnderPayerReview, StateWriteOff},
	StateAppealRequired:           {StateAppealSubmitted},
	StateAppealSubmitted:          {StateAppealUnderReview},
	StateAppealUnderReview:        {StatePaid, StateFinalDenied},
	StateFinalDenied:              {StateWriteOff},
	StatePaymentPosted:            {StateClosed},
	StateWriteOff:                 {StateClosed},
	StateClosed:                   {},
}

// CanTransition reports whether the edge from -> to is in the adjacency
// table.
func CanTransition(from, to State) bool {
	for _, next := range adjacency[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NextStates returns the legal targets from the given state.
func NextStates(from State) []State {
	edges := adjacency[from]
	out := make([]State, len(edges))
	copy(out, edges)
	return out
}

// IsTerminal reports whether no transitions leave the state.
func (s State) IsTerminal() bool {
	return len(adjacency[s]) == 0
}

// IsValid reports whether s names a known lifecycle state.
func (s State) IsValid() bool {
	_, ok := adjacency[s]
	return ok
}

// timedStates are the states during which an SLA timer accrues. The timer
// starts on first entry into any of them and resolves on the terminal state.
var timedStates = map[State]bool{
	StateAssigned:           true,
	StateInitialReview:      true,
	StateCodingReview:       true,
	StateBillingReview:      true,
	StateReadyForSubmission: true,
}

// IsTimed reports whether an SLA timer runs while a claim sits in s.
func (s State) IsTimed() bool {
	return timedStates[s]
}

// Urgency maps a state to its 0-100 contribution to the priority score.
// Denial and appeal stages outrank routine review work.
func (s State) Urgency() int {
	switch s {
	case StateDenied, StateAppealRequired, StateFinalDenied:
		return 90
	case StateAppealSubmitted, StateAppealUnderReview, StateSuspended:
		return 80
	case StateReadyForSubmission, StateBatchCreated, StateSubmittedToClearinghouse:
		return 70
	case StateInitialReview, StateCodingReview, StateBillingReview:
		return 50
	case StateAssigned, StateSentToPayer, StateUnderPayerReview:
		return 40
	case StateNew, StateFloatingPool:
		return 30
	default: // payment posted, write-off, closed, paid
		return 0
	}
}

package qa

import (
	"time"

	"github.com/google/uuid"
)

// TriggerReason records why a claim was pulled for audit. Manual requests
// outrank rule hits, which outrank random sampling.
type TriggerReason string

const (
	TriggerManual    TriggerReason = "manual"
	TriggerRuleBased TriggerReason = "rule_based"
	TriggerRandom    TriggerReason = "random"
)

// Verdict is the outcome band of a scored audit.
type Verdict string

const (
	VerdictPass            Verdict = "pass"
	VerdictPassWithNotes   Verdict = "pass_with_notes"
	VerdictNeedsCorrection Verdict = "needs_correction"
	VerdictFail            Verdict = "fail"
)

// ScoreVerdict maps an audit score to its verdict band.
func ScoreVerdict(score int) Verdict {
	switch {
	case score >= 90:
		return VerdictPass
	case score >= 70:
		return VerdictPassWithNotes
	case score >= 50:
		return VerdictNeedsCorrection
	default:
		return VerdictFail
	}
}

// AuditRecord maps to the qa_audit table. A record is open until CompletedAt
// is set; once completed it never changes. Corrections open a fresh record
// instead of editing the old one.
type AuditRecord struct {
	ID      uuid.UUID `db:"id" json:"id"`
	ClaimID uuid.UUID `db:"claim_id" json:"claim_id"`

	Trigger     TriggerReason `db:"trigger_reason" json:"trigger_reason"`
	ReviewerRef *string       `db:"reviewer_ref" json:"reviewer_ref,omitempty"`
	Score       *int          `db:"score" json:"score,omitempty"`
	Verdict     *Verdict      `db:"verdict" json:"verdict,omitempty"`
	Remarks     *string       `db:"remarks" json:"remarks,omitempty"`

	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// IsOpen reports whether the audit is still awaiting a verdict.
func (r *AuditRecord) IsOpen() bool { return r.CompletedAt == nil }

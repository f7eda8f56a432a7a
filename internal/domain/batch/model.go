package batch

import (
	"time"

	"github.com/google/uuid"
)

// Status is a batch's submission lifecycle.
type Status string

const (
	StatusAssembling   Status = "assembling"
	StatusSubmitted    Status = "submitted"
	StatusAcknowledged Status = "acknowledged"
	StatusRejected     Status = "rejected"
)

// ClaimBatch maps to the claim_batch table. Claims batch together only when
// they share a grouping key (SOW, claim format, contract type); ClaimIDs
// preserves the priority order the claims held when the batch was assembled.
type ClaimBatch struct {
	ID          uuid.UUID `db:"id" json:"id"`
	GroupingKey string    `db:"grouping_key" json:"grouping_key"`

	SOWRef       string `db:"sow_ref" json:"sow_ref"`
	ClaimFormat  string `db:"claim_format" json:"claim_format"`
	ContractType string `db:"contract_type" json:"contract_type"`

	Status       Status  `db:"status" json:"status"`
	RejectReason *string `db:"reject_reason" json:"reject_reason,omitempty"`

	// ValidationErrors records why the last submit attempt was refused.
	ValidationErrors []ValidationError `db:"validation_errors" json:"validation_errors,omitempty"`

	ClaimIDs []uuid.UUID `db:"-" json:"claim_ids"`

	SubmittedAt    *time.Time `db:"submitted_at" json:"submitted_at,omitempty"`
	AcknowledgedAt *time.Time `db:"acknowledged_at" json:"acknowledged_at,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Size returns the number of claims in the batch.
func (b *ClaimBatch) Size() int { return len(b.ClaimIDs) }

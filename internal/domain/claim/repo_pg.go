package claim

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rcm/rcm/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type claimRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &claimRepoPG{pool: pool}
}

func (r *claimRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const claimCols = `id, state, client_ref, sow_ref, patient_ref, payer,
	task_type, claim_format, contract_type, intake_source,
	amount_cents, aging_days, payer_score, denial_flag, due_date,
	assigned_to, assigned_at, priority_score, audit_state,
	version_id, created_at, updated_at`

func (r *claimRepoPG) scanClaim(row pgx.Row) (*Claim, error) {
	var c Claim
	err := row.Scan(&c.ID, &c.State, &c.ClientRef, &c.SOWRef, &c.PatientRef, &c.Payer,
		&c.TaskType, &c.ClaimFormat, &c.ContractType, &c.IntakeSource,
		&c.AmountCents, &c.AgingDays, &c.PayerScore, &c.DenialFlag, &c.DueDate,
		&c.AssignedTo, &c.AssignedAt, &c.PriorityScore, &c.AuditState,
		&c.VersionID, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &c, err
}

func (r *claimRepoPG) Create(ctx context.Context, c *Claim) error {
	c.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO claim (id, state, client_ref, sow_ref, patient_ref, payer,
			task_type, claim_format, contract_type, intake_source,
			amount_cents, aging_days, payer_score, denial_flag, due_date,
			assigned_to, assigned_at, priority_score, audit_state, version_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,1)`,
		c.ID, c.State, c.ClientRef, c.SOWRef, c.PatientRef, c.Payer,
		c.TaskType, c.ClaimFormat, c.ContractType, c.IntakeSource,
		c.AmountCents, c.AgingDays, c.PayerScore, c.DenialFlag, c.DueDate,
		c.AssignedTo, c.AssignedAt, c.PriorityScore, c.AuditState)
	return err
}

func (r *claimRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Claim, error) {
	return r.scanClaim(r.conn(ctx).QueryRow(ctx, `SELECT `+claimCols+` FROM claim WHERE id = $1`, id))
}

// Update writes state, scoring fields, and assignment, guarded by the
// version the caller read. Zero rows affected means a concurrent writer won.
func (r *claimRepoPG) Update(ctx context.Context, c *Claim) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE claim SET state=$2, aging_days=$3, amount_cents=$4, payer_score=$5,
			denial_flag=$6, assigned_to=$7, assigned_at=$8, priority_score=$9,
			version_id=version_id+1, updated_at=NOW()
		WHERE id = $1 AND version_id = $10`,
		c.ID, c.State, c.AgingDays, c.AmountCents, c.PayerScore,
		c.DenialFlag, c.AssignedTo, c.AssignedAt, c.PriorityScore,
		c.VersionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConcurrentModification
	}
	c.VersionID++
	return nil
}

func (r *claimRepoPG) CompareAndSwapAuditState(ctx context.Context, id uuid.UUID, from []AuditState, to AuditState) (bool, error) {
	states := make([]string, len(from))
	for i, st := range from {
		states[i] = string(st)
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE claim SET audit_state=$2, updated_at=NOW()
		WHERE id = $1 AND audit_state = ANY($3)`,
		id, to, states)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *claimRepoPG) ListByState(ctx context.Context, state State, limit, offset int) ([]*Claim, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM claim WHERE state = $1`, state).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+claimCols+` FROM claim WHERE state = $1
		ORDER BY priority_score DESC, due_date ASC NULLS LAST LIMIT $2 OFFSET $3`, state, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return r.collect(rows, total)
}

func (r *claimRepoPG) ListByAssignee(ctx context.Context, assignee string, limit, offset int) ([]*Claim, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM claim WHERE assigned_to = $1`, assignee).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+claimCols+` FROM claim WHERE assigned_to = $1
		ORDER BY priority_score DESC, due_date ASC NULLS LAST LIMIT $2 OFFSET $3`, assignee, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return r.collect(rows, total)
}

func (r *claimRepoPG) List(ctx context.Context, limit, offset int) ([]*Claim, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM claim`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+claimCols+` FROM claim
		ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return r.collect(rows, total)
}

func (r *claimRepoPG) collect(rows pgx.Rows, total int) ([]*Claim, int, error) {
	var items []*Claim
	for rows.Next() {
		c, err := r.scanClaim(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, c)
	}
	return items, total, nil
}

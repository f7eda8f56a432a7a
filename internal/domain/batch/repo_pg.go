package batch

import (
	"context"
	"errors"
	"time"

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

type batchRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &batchRepoPG{pool: pool}
}

func (r *batchRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

// batchCols selects the batch row plus its ordered membership as an array.
const batchCols = `b.id, b.grouping_key, b.sow_ref, b.claim_format, b.contract_type,
	b.status, b.reject_reason, COALESCE(b.validation_errors, '[]'::jsonb),
	b.submitted_at, b.acknowledged_at, b.created_at, b.updated_at,
	COALESCE(array_agg(bc.claim_id ORDER BY bc.position) FILTER (WHERE bc.claim_id IS NOT NULL), '{}')`

const batchJoin = ` FROM claim_batch b
	LEFT JOIN batch_claim bc ON bc.batch_id = b.id`

const batchGroup = ` GROUP BY b.id`

func (r *batchRepoPG) scanBatch(row pgx.Row) (*ClaimBatch, error) {
	var b ClaimBatch
	err := row.Scan(&b.ID, &b.GroupingKey, &b.SOWRef, &b.ClaimFormat, &b.ContractType,
		&b.Status, &b.RejectReason, &b.ValidationErrors,
		&b.SubmittedAt, &b.AcknowledgedAt, &b.CreatedAt, &b.UpdatedAt,
		&b.ClaimIDs)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrBatchNotFound
	}
	return &b, err
}

func (r *batchRepoPG) Create(ctx context.Context, b *ClaimBatch) error {
	b.ID = uuid.New()
	q := r.conn(ctx)
	_, err := q.Exec(ctx, `
		INSERT INTO claim_batch (id, grouping_key, sow_ref, claim_format, contract_type, status, reject_reason)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		b.ID, b.GroupingKey, b.SOWRef, b.ClaimFormat, b.ContractType, b.Status, b.RejectReason)
	if err != nil {
		return err
	}
	for i, cid := range b.ClaimIDs {
		if _, err := q.Exec(ctx, `
			INSERT INTO batch_claim (batch_id, claim_id, position) VALUES ($1,$2,$3)`,
			b.ID, cid, i); err != nil {
			return err
		}
	}
	return nil
}

func (r *batchRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*ClaimBatch, error) {
	return r.scanBatch(r.conn(ctx).QueryRow(ctx,
		`SELECT `+batchCols+batchJoin+` WHERE b.id = $1`+batchGroup, id))
}

func (r *batchRepoPG) SetStatus(ctx context.Context, id uuid.UUID, from []Status, to Status, at time.Time, reason *string) (bool, error) {
	statuses := make([]string, len(from))
	for i, s := range from {
		statuses[i] = string(s)
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE claim_batch SET status=$2,
			reject_reason = COALESCE($3, reject_reason),
			submitted_at = CASE WHEN $2 = 'submitted' THEN $4 ELSE submitted_at END,
			acknowledged_at = CASE WHEN $2 = 'acknowledged' THEN $4 ELSE acknowledged_at END,
			updated_at = NOW()
		WHERE id = $1 AND status = ANY($5)`,
		id, to, reason, at, statuses)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *batchRepoPG) RecordValidationErrors(ctx context.Context, id uuid.UUID, errs []ValidationError) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE claim_batch SET validation_errors = $2, updated_at = NOW()
		WHERE id = $1`,
		id, errs)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBatchNotFound
	}
	return nil
}

func (r *batchRepoPG) GetLatestByClaim(ctx context.Context, claimID uuid.UUID) (*ClaimBatch, error) {
	return r.scanBatch(r.conn(ctx).QueryRow(ctx, `
		SELECT `+batchCols+batchJoin+`
		WHERE b.id = (
			SELECT m.batch_id FROM batch_claim m
			JOIN claim_batch cb ON cb.id = m.batch_id
			WHERE m.claim_id = $1
			ORDER BY cb.created_at DESC
			LIMIT 1
		)`+batchGroup, claimID))
}

func (r *batchRepoPG) ListByStatus(ctx context.Context, status Status, limit, offset int) ([]*ClaimBatch, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM claim_batch WHERE status = $1`, status).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+batchCols+batchJoin+`
		WHERE b.status = $1`+batchGroup+`
		ORDER BY b.created_at DESC LIMIT $2 OFFSET $3`,
		status, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return r.collect(rows, total)
}

func (r *batchRepoPG) List(ctx context.Context, limit, offset int) ([]*ClaimBatch, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM claim_batch`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+batchCols+batchJoin+batchGroup+`
		ORDER BY b.created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return r.collect(rows, total)
}

func (r *batchRepoPG) collect(rows pgx.Rows, total int) ([]*ClaimBatch, int, error) {
	var items []*ClaimBatch
	for rows.Next() {
		b, err := r.scanBatch(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, b)
	}
	return items, total, nil
}

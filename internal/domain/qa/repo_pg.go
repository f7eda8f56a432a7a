package qa

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

type auditRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &auditRepoPG{pool: pool}
}

func (r *auditRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const auditCols = `id, claim_id, trigger_reason, reviewer_ref, score, verdict,
	remarks, created_at, completed_at`

func (r *auditRepoPG) scanAudit(row pgx.Row) (*AuditRecord, error) {
	var a AuditRecord
	err := row.Scan(&a.ID, &a.ClaimID, &a.Trigger, &a.ReviewerRef, &a.Score, &a.Verdict,
		&a.Remarks, &a.CreatedAt, &a.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAuditNotFound
	}
	return &a, err
}

func (r *auditRepoPG) Create(ctx context.Context, a *AuditRecord) error {
	a.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO qa_audit (id, claim_id, trigger_reason, reviewer_ref)
		VALUES ($1,$2,$3,$4)`,
		a.ID, a.ClaimID, a.Trigger, a.ReviewerRef)
	return err
}

func (r *auditRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*AuditRecord, error) {
	return r.scanAudit(r.conn(ctx).QueryRow(ctx,
		`SELECT `+auditCols+` FROM qa_audit WHERE id = $1`, id))
}

func (r *auditRepoPG) GetOpenByClaim(ctx context.Context, claimID uuid.UUID) (*AuditRecord, error) {
	rec, err := r.scanAudit(r.conn(ctx).QueryRow(ctx, `
		SELECT `+auditCols+` FROM qa_audit
		WHERE claim_id = $1 AND completed_at IS NULL
		ORDER BY created_at DESC LIMIT 1`, claimID))
	if errors.Is(err, ErrAuditNotFound) {
		return nil, ErrNoOpenAudit
	}
	return rec, err
}

func (r *auditRepoPG) Complete(ctx context.Context, a *AuditRecord) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE qa_audit SET score=$2, verdict=$3, remarks=$4, reviewer_ref=$5, completed_at=$6
		WHERE id = $1 AND completed_at IS NULL`,
		a.ID, a.Score, a.Verdict, a.Remarks, a.ReviewerRef, a.CompletedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAuditCompleted
	}
	return nil
}

func (r *auditRepoPG) SetReviewer(ctx context.Context, id uuid.UUID, reviewer string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE qa_audit SET reviewer_ref=$2
		WHERE id = $1 AND completed_at IS NULL`, id, reviewer)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAuditCompleted
	}
	return nil
}

func (r *auditRepoPG) ListByClaim(ctx context.Context, claimID uuid.UUID) ([]*AuditRecord, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+auditCols+` FROM qa_audit WHERE claim_id = $1
		ORDER BY created_at DESC`, claimID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*AuditRecord
	for rows.Next() {
		a, err := r.scanAudit(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, nil
}

func (r *auditRepoPG) List(ctx context.Context, limit, offset int) ([]*AuditRecord, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM qa_audit`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+auditCols+` FROM qa_audit
		ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*AuditRecord
	for rows.Next() {
		a, err := r.scanAudit(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, nil
}

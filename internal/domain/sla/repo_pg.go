package sla

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

type timerRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &timerRepoPG{pool: pool}
}

func (r *timerRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

// accumulated_frozen_ms stores the frozen total as integer milliseconds.
const timerCols = `id, claim_id, task_type, state, started_at, deadline_at,
	frozen_since, accumulated_frozen_ms, breached_at, created_at, updated_at`

func (r *timerRepoPG) scanTimer(row pgx.Row) (*Timer, error) {
	var t Timer
	var frozenMS int64
	err := row.Scan(&t.ID, &t.ClaimID, &t.TaskType, &t.State, &t.StartedAt, &t.DeadlineAt,
		&t.FrozenSince, &frozenMS, &t.BreachedAt, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTimerNotFound
	}
	t.AccumulatedFrozen = time.Duration(frozenMS) * time.Millisecond
	return &t, err
}

func (r *timerRepoPG) Create(ctx context.Context, t *Timer) error {
	t.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO sla_timer (id, claim_id, task_type, state, started_at, deadline_at,
			frozen_since, accumulated_frozen_ms, breached_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		t.ID, t.ClaimID, t.TaskType, t.State, t.StartedAt, t.DeadlineAt,
		t.FrozenSince, t.AccumulatedFrozen.Milliseconds(), t.BreachedAt)
	return err
}

func (r *timerRepoPG) GetByClaimID(ctx context.Context, claimID uuid.UUID) (*Timer, error) {
	return r.scanTimer(r.conn(ctx).QueryRow(ctx,
		`SELECT `+timerCols+` FROM sla_timer WHERE claim_id = $1`, claimID))
}

func (r *timerRepoPG) Update(ctx context.Context, t *Timer) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE sla_timer SET state=$2, frozen_since=$3, accumulated_frozen_ms=$4,
			breached_at=$5, updated_at=NOW()
		WHERE id = $1`,
		t.ID, t.State, t.FrozenSince, t.AccumulatedFrozen.Milliseconds(), t.BreachedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTimerNotFound
	}
	return nil
}

func (r *timerRepoPG) MarkBreached(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE sla_timer SET state=$2, breached_at=$3, updated_at=NOW()
		WHERE id = $1 AND state = $4`,
		id, TimerBreached, at, TimerRunning)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *timerRepoPG) ListDue(ctx context.Context, now time.Time, limit int) ([]*Timer, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+timerCols+` FROM sla_timer
		WHERE state = $1
		  AND deadline_at + (accumulated_frozen_ms * interval '1 millisecond') <= $2
		ORDER BY deadline_at ASC
		LIMIT $3`,
		TimerRunning, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Timer
	for rows.Next() {
		t, err := r.scanTimer(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, nil
}

func (r *timerRepoPG) ListByState(ctx context.Context, state TimerState, limit, offset int) ([]*Timer, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM sla_timer WHERE state = $1`, state).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+timerCols+` FROM sla_timer WHERE state = $1
		ORDER BY deadline_at ASC LIMIT $2 OFFSET $3`,
		state, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Timer
	for rows.Next() {
		t, err := r.scanTimer(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, t)
	}
	return items, total, nil
}

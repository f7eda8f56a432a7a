package role

import (
	"context"

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

type overrideRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) OverrideRepository {
	return &overrideRepoPG{pool: pool}
}

func (r *overrideRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func (r *overrideRepoPG) GetForActor(ctx context.Context, actorRef string) (Overrides, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT category, action, allowed FROM role_override WHERE actor_ref = $1`, actorRef)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(Overrides)
	for rows.Next() {
		var category, action string
		var allowed bool
		if err := rows.Scan(&category, &action, &allowed); err != nil {
			return nil, err
		}
		if out[category] == nil {
			out[category] = make(map[string]bool)
		}
		out[category][action] = allowed
	}
	return out, rows.Err()
}

func (r *overrideRepoPG) Set(ctx context.Context, actorRef, category, action string, allowed bool) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO role_override (actor_ref, category, action, allowed)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (actor_ref, category, action) DO UPDATE SET allowed = EXCLUDED.allowed`,
		actorRef, category, action, allowed)
	return err
}

func (r *overrideRepoPG) Clear(ctx context.Context, actorRef, category, action string) error {
	_, err := r.conn(ctx).Exec(ctx, `
		DELETE FROM role_override WHERE actor_ref = $1 AND category = $2 AND action = $3`,
		actorRef, category, action)
	return err
}

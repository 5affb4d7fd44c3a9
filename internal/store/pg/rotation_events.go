package pg

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/fleetsign/internal/domain/repository"
)

type eventRepo struct {
	pool *pgxpool.Pool
}

// Insert: append-only, nunca se actualiza ni borra.
func (r *eventRepo) Insert(ctx context.Context, e *repository.RotationEvent) error {
	const q = `
INSERT INTO rotation_events (rotation_id, current_kid, old_kid, ts, targeted_tenants)
VALUES ($1, $2, NULLIF($3, ''), $4, $5)`
	_, err := r.pool.Exec(ctx, q, e.RotationID, e.CurrentKID, e.OldKID, e.Timestamp, e.TargetedTenants)
	return err
}

func (r *eventRepo) ListRecent(ctx context.Context, limit int) ([]*repository.RotationEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
SELECT rotation_id, current_kid, COALESCE(old_kid, ''), ts, targeted_tenants
FROM rotation_events ORDER BY ts DESC LIMIT $1`
	rows, err := r.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*repository.RotationEvent
	for rows.Next() {
		var e repository.RotationEvent
		if err := rows.Scan(&e.RotationID, &e.CurrentKID, &e.OldKID, &e.Timestamp, &e.TargetedTenants); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

package pg

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/fleetsign/internal/domain/repository"
)

type artifactRepo struct {
	pool *pgxpool.Pool
}

const uniqueViolation = "23505"

func (r *artifactRepo) Create(ctx context.Context, a *repository.SignedArtifact) error {
	const q = `
INSERT INTO artifacts (id, tenant_id, payload, signature, kid, signed_at, created_at)
VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7)`
	_, err := r.pool.Exec(ctx, q, a.ID, a.TenantID, a.Payload, a.Signature, a.KID, a.SignedAt, a.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return repository.ErrConflict
	}
	return err
}

func (r *artifactRepo) GetByID(ctx context.Context, id string) (*repository.SignedArtifact, error) {
	const q = `
SELECT id, COALESCE(tenant_id::text, ''), payload, signature, kid, signed_at, created_at
FROM artifacts WHERE id = $1`
	var a repository.SignedArtifact
	err := r.pool.QueryRow(ctx, q, id).Scan(&a.ID, &a.TenantID, &a.Payload, &a.Signature, &a.KID, &a.SignedAt, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *artifactRepo) ListAll(ctx context.Context) ([]*repository.SignedArtifact, error) {
	const q = `
SELECT id, COALESCE(tenant_id::text, ''), payload, signature, kid, signed_at, created_at
FROM artifacts ORDER BY created_at`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*repository.SignedArtifact
	for rows.Next() {
		var a repository.SignedArtifact
		if err := rows.Scan(&a.ID, &a.TenantID, &a.Payload, &a.Signature, &a.KID, &a.SignedAt, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// UpdateSignature: la re-firma reemplaza firma, kid y signed_at in place.
func (r *artifactRepo) UpdateSignature(ctx context.Context, id string, signature []byte, kid string, signedAt time.Time) error {
	const q = `UPDATE artifacts SET signature = $2, kid = $3, signed_at = $4 WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q, id, signature, kid, signedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *artifactRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM artifacts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/fleetsign/internal/domain/repository"
)

type keyRepo struct {
	pool *pgxpool.Pool
}

// GetPair: la clave current y, si existe, la old.
func (r *keyRepo) GetPair(ctx context.Context) (*repository.SigningKey, *repository.SigningKey, error) {
	const q = `
SELECT kid, public_key_pem, generation, created_at, retired_at
FROM signing_keys
WHERE generation IN ('current','old')`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var current, old *repository.SigningKey
	for rows.Next() {
		var k repository.SigningKey
		if err := rows.Scan(&k.KID, &k.PublicKeyPEM, &k.Generation, &k.CreatedAt, &k.RetiredAt); err != nil {
			return nil, nil, err
		}
		switch k.Generation {
		case repository.GenerationCurrent:
			current = &k
		case repository.GenerationOld:
			old = &k
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	if current == nil {
		return nil, nil, repository.ErrNoCurrentKey
	}
	return current, old, nil
}

func (r *keyRepo) GetByKID(ctx context.Context, kid string) (*repository.SigningKey, error) {
	const q = `
SELECT kid, public_key_pem, generation, created_at, retired_at
FROM signing_keys WHERE kid = $1`
	var k repository.SigningKey
	err := r.pool.QueryRow(ctx, q, kid).Scan(&k.KID, &k.PublicKeyPEM, &k.Generation, &k.CreatedAt, &k.RetiredAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &k, nil
}

// Promote: en una tx, descarta la old previa, degrada la current a old e
// inserta la nueva current. Nunca quedan tres generaciones.
func (r *keyRepo) Promote(ctx context.Context, newKey *repository.SigningKey) error {
	if newKey == nil || newKey.KID == "" || newKey.PublicKeyPEM == "" {
		return repository.ErrInvalidInput
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM signing_keys WHERE generation = 'old'`); err != nil {
		return fmt.Errorf("drop old key: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE signing_keys SET generation = 'old', retired_at = now() WHERE generation = 'current'`); err != nil {
		return fmt.Errorf("demote current key: %w", err)
	}
	if _, err := tx.Exec(ctx, `
INSERT INTO signing_keys (kid, public_key_pem, generation, created_at)
VALUES ($1, $2, 'current', COALESCE($3, now()))`,
		newKey.KID, newKey.PublicKeyPEM, newKey.CreatedAt); err != nil {
		return fmt.Errorf("insert current key: %w", err)
	}

	return tx.Commit(ctx)
}

func (r *keyRepo) DeleteExpiredOld(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM signing_keys WHERE generation = 'old' AND retired_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

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

// ─── Tenants ───

type tenantRepo struct {
	pool *pgxpool.Pool
}

func (r *tenantRepo) Create(ctx context.Context, t *repository.Tenant) error {
	const q = `
INSERT INTO tenants (id, name, subject_prefix, bus_credentials, created_at)
VALUES ($1, $2, $3, $4, $5)`
	_, err := r.pool.Exec(ctx, q, t.ID, t.Name, t.SubjectPrefix, t.BusCredentials, t.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return repository.ErrConflict
	}
	return err
}

func (r *tenantRepo) GetByID(ctx context.Context, id string) (*repository.Tenant, error) {
	const q = `
SELECT id, name, subject_prefix, bus_credentials, created_at FROM tenants WHERE id = $1`
	var t repository.Tenant
	err := r.pool.QueryRow(ctx, q, id).Scan(&t.ID, &t.Name, &t.SubjectPrefix, &t.BusCredentials, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *tenantRepo) ListAll(ctx context.Context) ([]*repository.Tenant, error) {
	const q = `
SELECT id, name, subject_prefix, bus_credentials, created_at FROM tenants ORDER BY created_at`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*repository.Tenant
	for rows.Next() {
		var t repository.Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.SubjectPrefix, &t.BusCredentials, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (r *tenantRepo) UpdateBusCredentials(ctx context.Context, id, credentials string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE tenants SET bus_credentials = $2 WHERE id = $1`, id, credentials)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ─── Agents ───

type agentRepo struct {
	pool *pgxpool.Pool
}

func (r *agentRepo) Create(ctx context.Context, a *repository.Agent) error {
	const q = `
INSERT INTO agents (id, tenant_id, name, connectivity_mode, credential_hash, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.pool.Exec(ctx, q, a.ID, a.TenantID, a.Name, a.ConnectivityMode, a.CredentialHash, a.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation:
			return repository.ErrConflict
		case "23503": // fk: tenant inexistente
			return repository.ErrInvalidInput
		}
	}
	return err
}

func (r *agentRepo) GetByID(ctx context.Context, id string) (*repository.Agent, error) {
	const q = `
SELECT id, tenant_id, name, connectivity_mode, credential_hash, created_at, last_seen
FROM agents WHERE id = $1`
	var a repository.Agent
	err := r.pool.QueryRow(ctx, q, id).Scan(&a.ID, &a.TenantID, &a.Name, &a.ConnectivityMode, &a.CredentialHash, &a.CreatedAt, &a.LastSeen)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *agentRepo) ListByTenant(ctx context.Context, tenantID string) ([]*repository.Agent, error) {
	const q = `
SELECT id, tenant_id, name, connectivity_mode, credential_hash, created_at, last_seen
FROM agents WHERE tenant_id = $1 ORDER BY created_at`
	return r.list(ctx, q, tenantID)
}

func (r *agentRepo) ListAll(ctx context.Context) ([]*repository.Agent, error) {
	const q = `
SELECT id, tenant_id, name, connectivity_mode, credential_hash, created_at, last_seen
FROM agents ORDER BY created_at`
	return r.list(ctx, q)
}

func (r *agentRepo) list(ctx context.Context, q string, args ...any) ([]*repository.Agent, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*repository.Agent
	for rows.Next() {
		var a repository.Agent
		if err := rows.Scan(&a.ID, &a.TenantID, &a.Name, &a.ConnectivityMode, &a.CredentialHash, &a.CreatedAt, &a.LastSeen); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (r *agentRepo) UpdateLastSeen(ctx context.Context, id string, t time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE agents SET last_seen = $2 WHERE id = $1`, id, t)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *agentRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM agents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

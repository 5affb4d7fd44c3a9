// Package pg implementa el Store sobre Postgres con pgx. El esquema vive en
// migrations/postgres y se aplica con cmd/migrate.
package pg

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/fleetsign/internal/domain/repository"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, repository.ErrNoDatabase
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pg: pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg: ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Keys() repository.KeyRepository                     { return &keyRepo{pool: s.pool} }
func (s *Store) Artifacts() repository.ArtifactRepository           { return &artifactRepo{pool: s.pool} }
func (s *Store) Tenants() repository.TenantRepository               { return &tenantRepo{pool: s.pool} }
func (s *Store) Agents() repository.AgentRepository                 { return &agentRepo{pool: s.pool} }
func (s *Store) RotationEvents() repository.RotationEventRepository { return &eventRepo{pool: s.pool} }

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Package store expone el data access layer de fleetsign y la factory por
// driver. Los repositorios concretos viven en los subpaquetes pg y memory;
// los servicios dependen solo de las interfaces de domain/repository.
package store

import (
	"context"
	"fmt"

	"github.com/dropDatabas3/fleetsign/internal/domain/repository"
	"github.com/dropDatabas3/fleetsign/internal/store/memory"
	"github.com/dropDatabas3/fleetsign/internal/store/pg"
)

// Store agrupa los repositorios de dominio.
type Store interface {
	Keys() repository.KeyRepository
	Artifacts() repository.ArtifactRepository
	Tenants() repository.TenantRepository
	Agents() repository.AgentRepository
	RotationEvents() repository.RotationEventRepository

	// Ping verifica la conexión al backend.
	Ping(ctx context.Context) error
	Close() error
}

// Config selecciona e inicializa un driver.
type Config struct {
	Driver string // "postgres" | "memory"
	DSN    string // solo postgres
}

// Open crea el Store según la configuración.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "postgres":
		return pg.New(ctx, cfg.DSN)
	case "memory", "":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

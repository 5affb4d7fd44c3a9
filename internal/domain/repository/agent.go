package repository

import (
	"context"
	"time"
)

// ConnectivityMode indica cómo descubre rotaciones un agente.
type ConnectivityMode string

const (
	// ModePersistent mantiene conexión continua al bus y recibe
	// RotationEvents por push.
	ModePersistent ConnectivityMode = "persistent"

	// ModePolling se conecta intermitentemente y detecta rotaciones
	// comparando el hash de clave en cada heartbeat.
	ModePolling ConnectivityMode = "polling"
)

// Agent es un endpoint remoto registrado bajo un tenant.
type Agent struct {
	ID               string // UUID
	TenantID         string
	Name             string
	ConnectivityMode ConnectivityMode
	CredentialHash   string // bcrypt de la credencial de enrolamiento
	CreatedAt        time.Time
	LastSeen         *time.Time
}

// AgentRepository define la persistencia de agentes.
type AgentRepository interface {
	Create(ctx context.Context, a *Agent) error
	GetByID(ctx context.Context, id string) (*Agent, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*Agent, error)
	ListAll(ctx context.Context) ([]*Agent, error)

	// UpdateLastSeen registra la última señal de vida (heartbeat).
	UpdateLastSeen(ctx context.Context, id string, t time.Time) error

	Delete(ctx context.Context, id string) error
}

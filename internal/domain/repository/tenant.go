package repository

import (
	"context"
	"time"
)

// Tenant es un namespace aislado de cliente/organización. SubjectPrefix se
// deriva determinísticamente del TenantID y es el único namespace del bus en
// el que sus credenciales pueden publicar o suscribirse.
type Tenant struct {
	ID             string // UUID
	Name           string
	SubjectPrefix  string
	BusCredentials string // opaco; rotarlo produce un valor nuevo con el mismo prefix
	CreatedAt      time.Time
}

// TenantRepository define la persistencia de tenants.
// Los tenants son inmutables tras el onboarding (salvo BusCredentials).
type TenantRepository interface {
	Create(ctx context.Context, t *Tenant) error
	GetByID(ctx context.Context, id string) (*Tenant, error)
	ListAll(ctx context.Context) ([]*Tenant, error)

	// UpdateBusCredentials reemplaza el valor opaco de credenciales.
	// El SubjectPrefix nunca cambia.
	UpdateBusCredentials(ctx context.Context, id, credentials string) error
}

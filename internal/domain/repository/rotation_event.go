package repository

import (
	"context"
	"time"
)

// RotationEvent es el registro de auditoría de una rotación. Se crea una vez
// por invocación del coordinator y nunca se muta (append-only).
type RotationEvent struct {
	RotationID      string // UUID
	CurrentKID      string
	OldKID          string // "" si no había clave anterior
	Timestamp       time.Time
	TargetedTenants int
}

// RotationEventRepository define el audit trail de rotaciones.
type RotationEventRepository interface {
	Insert(ctx context.Context, e *RotationEvent) error

	// ListRecent devuelve los eventos más recientes, del más nuevo al más
	// viejo. limit <= 0 usa un tope por defecto del driver.
	ListRecent(ctx context.Context, limit int) ([]*RotationEvent, error)
}

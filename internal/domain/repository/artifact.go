package repository

import (
	"context"
	"time"
)

// SignedArtifact es una unidad de contenido distribuible firmada por el
// servidor. Entre firmas es inmutable: re-firmar reemplaza Signature y
// SignedAt, identificado por ID.
type SignedArtifact struct {
	ID        string
	TenantID  string // "" = global
	Payload   []byte
	Signature []byte
	KID       string // clave con la que se firmó por última vez
	SignedAt  time.Time
	CreatedAt time.Time
}

// ArtifactRepository define la persistencia de artefactos firmados.
type ArtifactRepository interface {
	Create(ctx context.Context, a *SignedArtifact) error
	GetByID(ctx context.Context, id string) (*SignedArtifact, error)

	// ListAll devuelve todos los artefactos vigentes (para re-firma).
	ListAll(ctx context.Context) ([]*SignedArtifact, error)

	// UpdateSignature reemplaza firma, KID y signed_at de un artefacto.
	UpdateSignature(ctx context.Context, id string, signature []byte, kid string, signedAt time.Time) error

	Delete(ctx context.Context, id string) error
}

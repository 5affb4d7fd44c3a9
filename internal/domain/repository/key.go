package repository

import (
	"context"
	"time"
)

// KeyGeneration indica la generación de una clave de firma.
// Solo existen dos generaciones vivas a la vez: current y old.
type KeyGeneration string

const (
	GenerationCurrent KeyGeneration = "current"
	GenerationOld     KeyGeneration = "old"
)

// SigningKey representa una clave pública de verificación, identificada por KID.
// El material privado vive en el custodio externo (internal/signing.Custodian);
// acá solo se persiste la parte pública en PEM.
type SigningKey struct {
	KID          string
	PublicKeyPEM string
	Generation   KeyGeneration
	CreatedAt    time.Time
	RetiredAt    *time.Time // solo para Generation == old
}

// KeyRepository define operaciones sobre el par de claves del sistema.
//
// Invariante: existe a lo sumo UNA clave current y UNA old.
// Promote inserta la nueva current, degrada la current anterior a old y
// descarta cualquier old previa (nunca se conservan tres generaciones).
type KeyRepository interface {
	// GetPair devuelve (current, old). old puede ser nil.
	// Si no hay clave current devuelve ErrNoCurrentKey.
	GetPair(ctx context.Context) (current *SigningKey, old *SigningKey, err error)

	// GetByKID busca una clave por su Key ID (current u old).
	GetByKID(ctx context.Context, kid string) (*SigningKey, error)

	// Promote instala newKey como current aplicando la disciplina de
	// degradación descrita arriba. Es la única mutación del par.
	Promote(ctx context.Context, newKey *SigningKey) error

	// DeleteExpiredOld elimina la clave old si fue retirada antes de cutoff.
	// Devuelve cuántas claves se eliminaron (0 o 1).
	DeleteExpiredOld(ctx context.Context, cutoff time.Time) (int, error)
}

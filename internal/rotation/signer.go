package rotation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/fleetsign/internal/domain/repository"
	"github.com/dropDatabas3/fleetsign/internal/signing"
)

// ArtifactSigner crea artefactos firmados con la clave vigente del custodio.
// Es el punto de entrada de contenido nuevo al sistema; la re-firma posterior
// queda a cargo del Coordinator.
type ArtifactSigner struct {
	custodian signing.Custodian
	artifacts repository.ArtifactRepository
}

func NewArtifactSigner(custodian signing.Custodian, artifacts repository.ArtifactRepository) *ArtifactSigner {
	return &ArtifactSigner{custodian: custodian, artifacts: artifacts}
}

// SignAndStore firma payload y persiste el artefacto. id vacío genera uno.
func (s *ArtifactSigner) SignAndStore(ctx context.Context, id, tenantID string, payload []byte) (*repository.SignedArtifact, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", repository.ErrInvalidInput)
	}
	if id == "" {
		id = uuid.NewString()
	}

	sig, err := s.custodian.Sign(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("signer: sign artifact: %w", err)
	}
	pubPEM, err := s.custodian.PublicKeyPEM(ctx)
	if err != nil {
		return nil, fmt.Errorf("signer: custodian public key: %w", err)
	}

	now := time.Now().UTC()
	art := &repository.SignedArtifact{
		ID:        id,
		TenantID:  tenantID,
		Payload:   payload,
		Signature: sig,
		KID:       signing.KIDFor(pubPEM),
		SignedAt:  now,
		CreatedAt: now,
	}
	if err := s.artifacts.Create(ctx, art); err != nil {
		return nil, fmt.Errorf("signer: persist artifact: %w", err)
	}
	return art, nil
}

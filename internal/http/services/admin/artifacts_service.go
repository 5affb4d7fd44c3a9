package admin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/fleetsign/internal/domain/repository"
	dto "github.com/dropDatabas3/fleetsign/internal/http/dto/admin"
	"github.com/dropDatabas3/fleetsign/internal/observability/logger"
	"github.com/dropDatabas3/fleetsign/internal/rotation"
)

// ArtifactsService crea y consulta artefactos firmados. La firma la hace
// siempre el custodio vía rotation.ArtifactSigner; acá nunca se toca material
// de clave.
type ArtifactsService interface {
	Create(ctx context.Context, req dto.CreateArtifactRequest) (*dto.Artifact, error)
	Get(ctx context.Context, id string) (*dto.Artifact, error)
	List(ctx context.Context) ([]dto.Artifact, error)
	Delete(ctx context.Context, id string) error
}

type artifactsService struct {
	signer    *rotation.ArtifactSigner
	artifacts repository.ArtifactRepository
}

func NewArtifactsService(signer *rotation.ArtifactSigner, artifacts repository.ArtifactRepository) ArtifactsService {
	return &artifactsService{signer: signer, artifacts: artifacts}
}

func (s *artifactsService) Create(ctx context.Context, req dto.CreateArtifactRequest) (*dto.Artifact, error) {
	if len(req.Payload) == 0 {
		return nil, fmt.Errorf("%w: payload is required", repository.ErrInvalidInput)
	}
	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = uuid.NewString()
	}

	a, err := s.signer.SignAndStore(ctx, id, req.TenantID, req.Payload)
	if err != nil {
		return nil, err
	}

	logger.From(ctx).Info("artifact signed",
		logger.Component("admin.artifacts"),
		logger.ArtifactID(a.ID),
		logger.KID(a.KID),
		logger.Int("size", len(a.Payload)),
	)

	d := toArtifactDTO(a)
	return &d, nil
}

func (s *artifactsService) Get(ctx context.Context, id string) (*dto.Artifact, error) {
	a, err := s.artifacts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	d := toArtifactDTO(a)
	return &d, nil
}

func (s *artifactsService) List(ctx context.Context) ([]dto.Artifact, error) {
	as, err := s.artifacts.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]dto.Artifact, 0, len(as))
	for _, a := range as {
		out = append(out, toArtifactDTO(a))
	}
	return out, nil
}

func (s *artifactsService) Delete(ctx context.Context, id string) error {
	return s.artifacts.Delete(ctx, id)
}

func toArtifactDTO(a *repository.SignedArtifact) dto.Artifact {
	return dto.Artifact{
		ID:        a.ID,
		TenantID:  a.TenantID,
		KID:       a.KID,
		SignedAt:  a.SignedAt.UTC().Format(time.RFC3339),
		CreatedAt: a.CreatedAt.UTC().Format(time.RFC3339),
		Size:      len(a.Payload),
	}
}

package admin

import (
	"context"
	"time"

	"github.com/dropDatabas3/fleetsign/internal/domain/repository"
	dto "github.com/dropDatabas3/fleetsign/internal/http/dto/admin"
	"github.com/dropDatabas3/fleetsign/internal/signing"
)

// KeysService expone el par de claves vigente y el audit trail de rotaciones.
type KeysService interface {
	ListKeys(ctx context.Context) ([]dto.Key, error)
	ListRotationEvents(ctx context.Context, limit int) ([]dto.RotationEvent, error)
}

type keysService struct {
	keys   repository.KeyRepository
	events repository.RotationEventRepository
}

func NewKeysService(keys repository.KeyRepository, events repository.RotationEventRepository) KeysService {
	return &keysService{keys: keys, events: events}
}

func (s *keysService) ListKeys(ctx context.Context) ([]dto.Key, error) {
	current, old, err := s.keys.GetPair(ctx)
	if err != nil {
		return nil, err
	}
	out := []dto.Key{toKeyDTO(current)}
	if old != nil {
		out = append(out, toKeyDTO(old))
	}
	return out, nil
}

func (s *keysService) ListRotationEvents(ctx context.Context, limit int) ([]dto.RotationEvent, error) {
	events, err := s.events.ListRecent(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]dto.RotationEvent, 0, len(events))
	for _, e := range events {
		d := dto.RotationEvent{
			RotationID:      e.RotationID,
			CurrentKID:      e.CurrentKID,
			Timestamp:       e.Timestamp.UTC().Format(time.RFC3339),
			TargetedTenants: e.TargetedTenants,
		}
		if e.OldKID != "" {
			old := e.OldKID
			d.OldKID = &old
		}
		out = append(out, d)
	}
	return out, nil
}

func toKeyDTO(k *repository.SigningKey) dto.Key {
	d := dto.Key{
		KID:        k.KID,
		Generation: string(k.Generation),
		KeyHash:    signing.KeyHash(k.PublicKeyPEM),
		CreatedAt:  k.CreatedAt.UTC().Format(time.RFC3339),
	}
	if k.RetiredAt != nil {
		r := k.RetiredAt.UTC().Format(time.RFC3339)
		d.RetiredAt = &r
	}
	return d
}

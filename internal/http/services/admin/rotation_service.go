// Package admin provee los servicios de la API administrativa.
package admin

import (
	"context"
	"fmt"

	dto "github.com/dropDatabas3/fleetsign/internal/http/dto/admin"
	"github.com/dropDatabas3/fleetsign/internal/observability/logger"
	"github.com/dropDatabas3/fleetsign/internal/rotation"
)

// RotationService dispara un ciclo completo de rotación: coordinator →
// invalidación de cache del provider → distribución por bus.
type RotationService interface {
	Rotate(ctx context.Context) (*dto.RotateResult, error)
}

type rotationService struct {
	coordinator *rotation.Coordinator
	distributor *rotation.Distributor
	provider    *rotation.Provider
}

func NewRotationService(c *rotation.Coordinator, d *rotation.Distributor, p *rotation.Provider) RotationService {
	return &rotationService{coordinator: c, distributor: d, provider: p}
}

func (s *rotationService) Rotate(ctx context.Context) (*dto.RotateResult, error) {
	log := logger.From(ctx).With(
		logger.Component("admin.rotation"),
		logger.Op("Rotate"),
	)

	sum, err := s.coordinator.Run(ctx)
	if err != nil {
		log.Error("rotation run failed", logger.Err(err))
		return nil, fmt.Errorf("rotation run: %w", err)
	}

	// El camino de polling debe ver el hash nuevo de inmediato, sin
	// esperar el TTL del cache.
	s.provider.Invalidate()

	rep, err := s.distributor.Distribute(ctx, sum)
	if err != nil {
		// La rotación ya está persistida; la distribución fallida se
		// reporta pero no revierte nada.
		log.Error("distribution failed", logger.RotationID(sum.RotationID), logger.Err(err))
		return nil, fmt.Errorf("distribute rotation %s: %w", sum.RotationID, err)
	}

	status := "rotated"
	if !sum.KeyChanged {
		status = "unchanged"
	}

	log.Info("rotation completed",
		logger.RotationID(sum.RotationID),
		logger.KID(sum.CurrentKID),
		logger.String("status", status),
		logger.Int("resigned", sum.ResignedCount),
		logger.Int("published", rep.Published),
		logger.Int("publish_failed", rep.Failed),
	)

	return &dto.RotateResult{
		Status:            status,
		ResignedCount:     sum.ResignedCount,
		ResignFailedCount: sum.ResignFailedCount,
		TenantsTargeted:   sum.TenantsTargeted,
		Published:         rep.Published,
		Failed:            rep.Failed,
		RotationID:        sum.RotationID,
	}, nil
}

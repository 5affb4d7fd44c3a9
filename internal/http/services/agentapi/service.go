// Package agentapi provee los servicios de la API que consumen los agentes.
package agentapi

import (
	"context"
	"time"

	"github.com/dropDatabas3/fleetsign/internal/domain/repository"
	"github.com/dropDatabas3/fleetsign/internal/metrics"
	"github.com/dropDatabas3/fleetsign/internal/observability/logger"
	"github.com/dropDatabas3/fleetsign/internal/protocol"
	"github.com/dropDatabas3/fleetsign/internal/rotation"
)

// Service atiende el camino de polling de los agentes: key-fetch y heartbeat.
type Service interface {
	FetchKeys(ctx context.Context) (*protocol.KeyFetchResponse, error)
	Heartbeat(ctx context.Context, agentID string, req protocol.HeartbeatRequest) (*protocol.HeartbeatAck, error)
}

type service struct {
	provider *rotation.Provider
	agents   repository.AgentRepository
}

func New(provider *rotation.Provider, agents repository.AgentRepository) Service {
	return &service{provider: provider, agents: agents}
}

func (s *service) FetchKeys(ctx context.Context) (*protocol.KeyFetchResponse, error) {
	resp, err := s.provider.KeyPair(ctx)
	if err != nil {
		return nil, err
	}
	metrics.KeyFetchesTotal.Inc()
	return resp, nil
}

// Heartbeat registra la señal de vida y devuelve el hash de la clave current
// para que los agentes polling detecten rotaciones.
func (s *service) Heartbeat(ctx context.Context, agentID string, req protocol.HeartbeatRequest) (*protocol.HeartbeatAck, error) {
	now := time.Now().UTC()
	if err := s.agents.UpdateLastSeen(ctx, agentID, now); err != nil {
		// El last_seen es best-effort: un agente con heartbeat válido no
		// se queda sin su hash por una falla de persistencia.
		logger.From(ctx).Warn("update last_seen failed",
			logger.Component("agentapi"),
			logger.AgentID(agentID),
			logger.Err(err),
		)
	}

	hash, err := s.provider.CurrentKeyHash(ctx)
	if err != nil {
		return nil, err
	}
	metrics.HeartbeatsTotal.Inc()

	return &protocol.HeartbeatAck{
		Status:         "ok",
		ServerTime:     now,
		CurrentKeyHash: hash,
	}, nil
}

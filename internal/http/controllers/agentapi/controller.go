// Package agentapi contiene los controllers de /v1/agent/*.
package agentapi

import (
	"errors"
	"net/http"

	"github.com/dropDatabas3/fleetsign/internal/domain/repository"
	httpx "github.com/dropDatabas3/fleetsign/internal/http/httpx"
	svc "github.com/dropDatabas3/fleetsign/internal/http/services/agentapi"
	"github.com/dropDatabas3/fleetsign/internal/observability/logger"
	"github.com/dropDatabas3/fleetsign/internal/protocol"
)

// Controller atiende key-fetch y heartbeat. Ambas rutas exigen un bearer de
// agente válido (middleware AgentAuth).
type Controller struct {
	service svc.Service
}

func NewController(service svc.Service) *Controller {
	return &Controller{service: service}
}

// FetchKeys maneja GET /v1/agent/keys
func (c *Controller) FetchKeys(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Component("controller.agentapi"), logger.Op("FetchKeys"))

	resp, err := c.service.FetchKeys(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrNoCurrentKey) {
			// Todavía no se instaló ninguna clave; el agente debe
			// reintentar más tarde.
			httpx.WriteError(w, http.StatusServiceUnavailable, "no_current_key", "no signing key installed yet")
			return
		}
		log.Error("key fetch failed", logger.Err(err))
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "could not fetch keys")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// Heartbeat maneja POST /v1/agent/heartbeat
func (c *Controller) Heartbeat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Component("controller.agentapi"), logger.Op("Heartbeat"))

	claims, ok := httpx.AgentFromContext(ctx)
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "missing agent identity")
		return
	}

	var req protocol.HeartbeatRequest
	if !httpx.ReadJSON(w, r, &req) {
		return
	}

	ack, err := c.service.Heartbeat(ctx, claims.Subject, req)
	if err != nil {
		if errors.Is(err, repository.ErrNoCurrentKey) {
			httpx.WriteError(w, http.StatusServiceUnavailable, "no_current_key", "no signing key installed yet")
			return
		}
		log.Error("heartbeat failed", logger.AgentID(claims.Subject), logger.Err(err))
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "heartbeat failed")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, ack)
}

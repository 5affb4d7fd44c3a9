package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	httpx "github.com/dropDatabas3/fleetsign/internal/http/httpx"
	dto "github.com/dropDatabas3/fleetsign/internal/http/dto/admin"
	svc "github.com/dropDatabas3/fleetsign/internal/http/services/admin"
	"github.com/dropDatabas3/fleetsign/internal/observability/logger"
)

// AgentsController maneja /v1/admin/agents.
type AgentsController struct {
	service svc.AgentsService
}

func NewAgentsController(service svc.AgentsService) *AgentsController {
	return &AgentsController{service: service}
}

// Create maneja POST /v1/admin/agents
func (c *AgentsController) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Component("controller.agents"), logger.Op("Create"))

	var req dto.CreateAgentRequest
	if !httpx.ReadJSON(w, r, &req) {
		return
	}

	created, err := c.service.Create(ctx, req)
	if err != nil {
		log.Error("create failed", logger.TenantID(req.TenantID), logger.Err(err))
		status, code := mapError(err)
		httpx.WriteError(w, status, code, "could not register agent")
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, created)
}

// List maneja GET /v1/admin/agents?tenant_id=...
func (c *AgentsController) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var (
		agents []dto.Agent
		err    error
	)
	if tenantID := r.URL.Query().Get("tenant_id"); tenantID != "" {
		agents, err = c.service.ListByTenant(ctx, tenantID)
	} else {
		agents, err = c.service.List(ctx)
	}
	if err != nil {
		logger.From(ctx).Error("list agents failed", logger.Err(err))
		status, code := mapError(err)
		httpx.WriteError(w, status, code, "could not list agents")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, agents)
}

// Get maneja GET /v1/admin/agents/{agentID}
func (c *AgentsController) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "agentID")

	a, err := c.service.Get(ctx, id)
	if err != nil {
		status, code := mapError(err)
		httpx.WriteError(w, status, code, "agent not available")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, a)
}

// Delete maneja DELETE /v1/admin/agents/{agentID}
func (c *AgentsController) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "agentID")

	if err := c.service.Delete(ctx, id); err != nil {
		status, code := mapError(err)
		httpx.WriteError(w, status, code, "could not delete agent")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

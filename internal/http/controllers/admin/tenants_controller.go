package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	httpx "github.com/dropDatabas3/fleetsign/internal/http/httpx"
	dto "github.com/dropDatabas3/fleetsign/internal/http/dto/admin"
	svc "github.com/dropDatabas3/fleetsign/internal/http/services/admin"
	"github.com/dropDatabas3/fleetsign/internal/observability/logger"
)

// TenantsController maneja /v1/admin/tenants.
type TenantsController struct {
	service svc.TenantsService
}

func NewTenantsController(service svc.TenantsService) *TenantsController {
	return &TenantsController{service: service}
}

// Create maneja POST /v1/admin/tenants
func (c *TenantsController) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Component("controller.tenants"), logger.Op("Create"))

	var req dto.CreateTenantRequest
	if !httpx.ReadJSON(w, r, &req) {
		return
	}

	created, err := c.service.Create(ctx, req)
	if err != nil {
		log.Error("create failed", logger.Err(err))
		status, code := mapError(err)
		httpx.WriteError(w, status, code, "could not create tenant")
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, created)
}

// List maneja GET /v1/admin/tenants
func (c *TenantsController) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenants, err := c.service.List(ctx)
	if err != nil {
		logger.From(ctx).Error("list tenants failed", logger.Err(err))
		status, code := mapError(err)
		httpx.WriteError(w, status, code, "could not list tenants")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, tenants)
}

// Get maneja GET /v1/admin/tenants/{tenantID}
func (c *TenantsController) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "tenantID")

	t, err := c.service.Get(ctx, id)
	if err != nil {
		status, code := mapError(err)
		httpx.WriteError(w, status, code, "tenant not available")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, t)
}

// RotateCredentials maneja POST /v1/admin/tenants/{tenantID}/bus-credentials
func (c *TenantsController) RotateCredentials(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "tenantID")
	log := logger.From(ctx).With(logger.Component("controller.tenants"), logger.Op("RotateCredentials"))

	out, err := c.service.RotateBusCredentials(ctx, id)
	if err != nil {
		log.Error("rotate bus credentials failed", logger.TenantID(id), logger.Err(err))
		status, code := mapError(err)
		httpx.WriteError(w, status, code, "could not rotate bus credentials")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	httpx "github.com/dropDatabas3/fleetsign/internal/http/httpx"
	dto "github.com/dropDatabas3/fleetsign/internal/http/dto/admin"
	svc "github.com/dropDatabas3/fleetsign/internal/http/services/admin"
	"github.com/dropDatabas3/fleetsign/internal/observability/logger"
)

// ArtifactsController maneja /v1/admin/artifacts.
type ArtifactsController struct {
	service svc.ArtifactsService
}

func NewArtifactsController(service svc.ArtifactsService) *ArtifactsController {
	return &ArtifactsController{service: service}
}

// Create maneja POST /v1/admin/artifacts
func (c *ArtifactsController) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Component("controller.artifacts"), logger.Op("Create"))

	var req dto.CreateArtifactRequest
	if !httpx.ReadJSON(w, r, &req) {
		return
	}

	created, err := c.service.Create(ctx, req)
	if err != nil {
		log.Error("create failed", logger.Err(err))
		status, code := mapError(err)
		httpx.WriteError(w, status, code, "could not sign artifact")
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, created)
}

// List maneja GET /v1/admin/artifacts
func (c *ArtifactsController) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	artifacts, err := c.service.List(ctx)
	if err != nil {
		logger.From(ctx).Error("list artifacts failed", logger.Err(err))
		status, code := mapError(err)
		httpx.WriteError(w, status, code, "could not list artifacts")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, artifacts)
}

// Get maneja GET /v1/admin/artifacts/{artifactID}
func (c *ArtifactsController) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "artifactID")

	a, err := c.service.Get(ctx, id)
	if err != nil {
		status, code := mapError(err)
		httpx.WriteError(w, status, code, "artifact not available")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, a)
}

// Delete maneja DELETE /v1/admin/artifacts/{artifactID}
func (c *ArtifactsController) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "artifactID")

	if err := c.service.Delete(ctx, id); err != nil {
		status, code := mapError(err)
		httpx.WriteError(w, status, code, "could not delete artifact")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

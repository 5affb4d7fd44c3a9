package admin

import (
	"net/http"
	"strconv"

	httpx "github.com/dropDatabas3/fleetsign/internal/http/httpx"
	svc "github.com/dropDatabas3/fleetsign/internal/http/services/admin"
	"github.com/dropDatabas3/fleetsign/internal/observability/logger"
)

// KeysController maneja /v1/admin/keys y /v1/admin/rotation-events.
type KeysController struct {
	service svc.KeysService
}

func NewKeysController(service svc.KeysService) *KeysController {
	return &KeysController{service: service}
}

// ListKeys maneja GET /v1/admin/keys
func (c *KeysController) ListKeys(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	keys, err := c.service.ListKeys(ctx)
	if err != nil {
		logger.From(ctx).Error("list keys failed", logger.Err(err))
		status, code := mapError(err)
		httpx.WriteError(w, status, code, "could not list keys")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, keys)
}

// ListRotationEvents maneja GET /v1/admin/rotation-events?limit=N
func (c *KeysController) ListRotationEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_input", "limit debe ser un entero >= 0")
			return
		}
		limit = n
	}

	events, err := c.service.ListRotationEvents(ctx, limit)
	if err != nil {
		logger.From(ctx).Error("list rotation events failed", logger.Err(err))
		status, code := mapError(err)
		httpx.WriteError(w, status, code, "could not list rotation events")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, events)
}

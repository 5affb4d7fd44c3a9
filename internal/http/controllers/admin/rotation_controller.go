package admin

import (
	"net/http"

	httpx "github.com/dropDatabas3/fleetsign/internal/http/httpx"
	svc "github.com/dropDatabas3/fleetsign/internal/http/services/admin"
	"github.com/dropDatabas3/fleetsign/internal/observability/logger"
)

// RotationController maneja POST /v1/admin/rotation.
type RotationController struct {
	service svc.RotationService
}

func NewRotationController(service svc.RotationService) *RotationController {
	return &RotationController{service: service}
}

// Rotate dispara un ciclo de rotación completo y devuelve el resumen.
// Idempotente: sin cambio de clave responde status "unchanged".
func (c *RotationController) Rotate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Component("controller.rotation"), logger.Op("Rotate"))

	result, err := c.service.Rotate(ctx)
	if err != nil {
		log.Error("rotation failed", logger.Err(err))
		status, code := mapError(err)
		httpx.WriteError(w, status, code, "rotation failed")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, result)
}

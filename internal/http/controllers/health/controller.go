// Package health contiene los controllers de health check.
package health

import (
	"context"
	"net/http"
	"time"

	httpx "github.com/dropDatabas3/fleetsign/internal/http/httpx"
	"github.com/dropDatabas3/fleetsign/internal/observability/logger"
)

// Pinger verifica la conexión al backend de persistencia.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Controller maneja /healthz y /readyz.
type Controller struct {
	store Pinger
}

func NewController(store Pinger) *Controller {
	return &Controller{store: store}
}

type healthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

// Healthz maneja GET /healthz: liveness, no toca dependencias.
func (c *Controller) Healthz(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

// Readyz maneja GET /readyz: readiness, verifica el store con timeout corto.
func (c *Controller) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	components := map[string]string{"store": "ok"}
	status := "ready"
	code := http.StatusOK

	if err := c.store.Ping(ctx); err != nil {
		logger.From(r.Context()).Warn("store ping failed",
			logger.Component("controller.health"),
			logger.Err(err),
		)
		components["store"] = "unavailable"
		status = "unavailable"
		code = http.StatusServiceUnavailable
	}

	httpx.WriteJSON(w, code, healthResponse{Status: status, Components: components})
}

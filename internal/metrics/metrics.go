// Package metrics define los collectors Prometheus de fleetsign.
// Los collectors existen desde el init del paquete (usables en tests sin
// registry); cada binario los registra vía Register() y expone /metrics con
// Handler().
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ─── Rotación (service) ───

	RotationRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetsign_rotation_runs_total",
		Help: "Corridas del rotation coordinator por resultado",
	}, []string{"result"}) // ok|partial|error

	RotationResignedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fleetsign_rotation_resigned_total",
		Help: "Artefactos re-firmados exitosamente",
	})

	RotationResignFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fleetsign_rotation_resign_failed_total",
		Help: "Artefactos que fallaron la re-firma",
	})

	RotationPublishTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetsign_rotation_publish_total",
		Help: "Publicaciones de RotationEvent por tenant y resultado",
	}, []string{"result"}) // ok|failed

	RotationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "fleetsign_rotation_duration_seconds",
		Help:    "Duración de una corrida completa de rotación",
		Buckets: []float64{0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0},
	})

	RetentionEvictionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fleetsign_retention_evictions_total",
		Help: "Claves old eliminadas por vencimiento de la ventana de retención",
	})

	// ─── API de agentes (service) ───

	HeartbeatsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fleetsign_heartbeats_total",
		Help: "Heartbeats de agentes procesados",
	})

	KeyFetchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fleetsign_key_fetches_total",
		Help: "Key-fetches servidos a agentes",
	})

	// ─── HTTP (service) ───

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetsign_http_requests_total",
		Help: "Requests HTTP procesadas",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fleetsign_http_request_duration_seconds",
		Help:    "Latencia de requests HTTP",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	// ─── Verificación (agente) ───

	VerificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetsign_verifications_total",
		Help: "Verificaciones de artefactos por estado terminal",
	}, []string{"status"}) // VERIFIED|VERIFIED_LEGACY|VERIFIED_REFRESHED|REJECTED
)

var once sync.Once

// Register registra todos los collectors. Idempotente.
// registry == nil usa el DefaultRegisterer.
func Register(registry prometheus.Registerer) {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	once.Do(func() {
		registry.MustRegister(
			RotationRunsTotal,
			RotationResignedTotal,
			RotationResignFailed,
			RotationPublishTotal,
			RotationDuration,
			RetentionEvictionsTotal,
			HeartbeatsTotal,
			KeyFetchesTotal,
			HTTPRequestsTotal,
			HTTPRequestDuration,
			VerificationsTotal,
		)
	})
}

// Handler devuelve el handler de /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

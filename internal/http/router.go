package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/fleetsign/internal/auth"
	adminctl "github.com/dropDatabas3/fleetsign/internal/http/controllers/admin"
	agentctl "github.com/dropDatabas3/fleetsign/internal/http/controllers/agentapi"
	healthctl "github.com/dropDatabas3/fleetsign/internal/http/controllers/health"
	"github.com/dropDatabas3/fleetsign/internal/metrics"
	"github.com/dropDatabas3/fleetsign/internal/rate"
)

// RouterDeps agrupa todo lo que el router necesita ya construido.
type RouterDeps struct {
	AdminAPIKey string
	Tokens      *auth.TokenManager
	// AgentLimiter limita la API de agentes por agent_id. nil = sin límite.
	AgentLimiter rate.Limiter

	Rotation  *adminctl.RotationController
	Tenants   *adminctl.TenantsController
	Agents    *adminctl.AgentsController
	Keys      *adminctl.KeysController
	Artifacts *adminctl.ArtifactsController

	Agent  *agentctl.Controller
	Health *healthctl.Controller
}

// NewRouter arma el árbol de rutas completo:
//
//	/healthz, /readyz, /metrics        sin auth
//	/v1/admin/*                        X-Admin-API-Key
//	/v1/agent/*                        bearer de agente
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Observe)

	r.Get("/healthz", deps.Health.Healthz)
	r.Get("/readyz", deps.Health.Readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1/admin", func(r chi.Router) {
		r.Use(AdminAuth(deps.AdminAPIKey))

		r.Post("/rotation", deps.Rotation.Rotate)

		r.Get("/keys", deps.Keys.ListKeys)
		r.Get("/rotation-events", deps.Keys.ListRotationEvents)

		r.Route("/tenants", func(r chi.Router) {
			r.Post("/", deps.Tenants.Create)
			r.Get("/", deps.Tenants.List)
			r.Get("/{tenantID}", deps.Tenants.Get)
			r.Post("/{tenantID}/bus-credentials", deps.Tenants.RotateCredentials)
		})

		r.Route("/agents", func(r chi.Router) {
			r.Post("/", deps.Agents.Create)
			r.Get("/", deps.Agents.List)
			r.Get("/{agentID}", deps.Agents.Get)
			r.Delete("/{agentID}", deps.Agents.Delete)
		})

		r.Route("/artifacts", func(r chi.Router) {
			r.Post("/", deps.Artifacts.Create)
			r.Get("/", deps.Artifacts.List)
			r.Get("/{artifactID}", deps.Artifacts.Get)
			r.Delete("/{artifactID}", deps.Artifacts.Delete)
		})
	})

	r.Route("/v1/agent", func(r chi.Router) {
		r.Use(AgentAuth(deps.Tokens))
		r.Use(AgentRateLimit(deps.AgentLimiter))

		r.Get("/keys", deps.Agent.FetchKeys)
		r.Post("/heartbeat", deps.Agent.Heartbeat)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		WriteError(w, http.StatusNotFound, "route_not_found", "ruta no encontrada")
	})

	return r
}

package http

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dropDatabas3/fleetsign/internal/auth"
	"github.com/dropDatabas3/fleetsign/internal/http/httpx"
	"github.com/dropDatabas3/fleetsign/internal/metrics"
	"github.com/dropDatabas3/fleetsign/internal/observability/logger"
	"github.com/dropDatabas3/fleetsign/internal/rate"
)

// AgentFromContext devuelve los claims del agente autenticado, si los hay.
func AgentFromContext(ctx context.Context) (*auth.AgentClaims, bool) {
	return httpx.AgentFromContext(ctx)
}

// RequestID asigna X-Request-ID y scopea el logger del request.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get("X-Request-ID")
		if rid == "" {
			rid = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", rid)
		ctx := logger.ToContext(r.Context(), logger.With(logger.RequestID(rid)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// statusRecorder captura el status para logging y métricas.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

// Observe loguea cada request y alimenta las métricas HTTP. El label de ruta
// es el patrón de chi ({tenantID} literal), no el path crudo: un path con
// UUIDs adentro generaría una serie por request.
func Observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}

		elapsed := time.Since(start)
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())

		logger.From(r.Context()).Debug("http request",
			logger.Method(r.Method), logger.Path(r.URL.Path),
			logger.Status(rec.status), logger.Duration(elapsed))
	})
}

// AdminAuth exige la API key de admin en X-Admin-API-Key.
func AdminAuth(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !auth.CheckAdminKey(apiKey, r.Header.Get("X-Admin-API-Key")) {
				WriteError(w, http.StatusUnauthorized, "unauthorized", "API key inválida o ausente")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AgentAuth valida el bearer token del agente y deja los claims en contexto.
func AgentAuth(tm *auth.TokenManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if raw == "" || raw == r.Header.Get("Authorization") {
				WriteError(w, http.StatusUnauthorized, "unauthorized", "bearer token requerido")
				return
			}
			claims, err := tm.VerifyAgentToken(raw)
			if err != nil {
				WriteError(w, http.StatusUnauthorized, "unauthorized", "token inválido o expirado")
				return
			}
			ctx := httpx.ContextWithAgent(r.Context(), claims)
			ctx = logger.ToContext(ctx, logger.From(ctx).With(
				logger.AgentID(claims.Subject), logger.TenantID(claims.TenantID)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AgentRateLimit limita los endpoints de agente por agent_id. Corre después
// de AgentAuth (necesita los claims). Un limiter nil desactiva el límite.
// Si el limiter falla (ej: Redis caído) el request pasa: el rate limit
// protege al service, no es una barrera de seguridad.
func AgentRateLimit(limiter rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil {
				next.ServeHTTP(w, r)
				return
			}
			claims, ok := AgentFromContext(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			res, err := limiter.Allow(r.Context(), claims.Subject)
			if err != nil {
				logger.From(r.Context()).Warn("rate limiter unavailable", logger.Err(err))
				next.ServeHTTP(w, r)
				return
			}
			if !res.Allowed {
				retry := int(res.RetryAfter.Seconds())
				if retry < 1 {
					retry = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				WriteError(w, http.StatusTooManyRequests, "rate_limited", "demasiados requests, reintentar más tarde")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

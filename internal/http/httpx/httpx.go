// Package httpx contiene los helpers de respuesta/request compartidos entre
// el router y los controllers. Vive en un paquete hoja para que los
// controllers no tengan que importar internal/http (ciclo de imports).
package httpx

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/dropDatabas3/fleetsign/internal/auth"
)

type apiError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
	RequestID        string `json:"request_id,omitempty"`
}

// WriteError escribe el envelope de error estándar.
func WriteError(w http.ResponseWriter, status int, code, desc string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	rid := w.Header().Get("X-Request-ID")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiError{
		Error:            code,
		ErrorDescription: desc,
		RequestID:        rid,
	})
}

// WriteJSON: respuesta JSON estándar
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ReadJSON decodifica JSON de forma tolerante (NO falla por campos
// desconocidos). Valida Content-Type y limita el body a 1MB.
func ReadJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	if !strings.Contains(ct, "application/json") {
		WriteError(w, http.StatusBadRequest, "invalid_json", "Content-Type debe ser application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil && err != io.EOF {
		WriteError(w, http.StatusBadRequest, "invalid_json", "json inválido")
		return false
	}
	return true
}

type agentClaimsKey struct{}

// AgentFromContext devuelve los claims del agente autenticado, si los hay.
func AgentFromContext(ctx context.Context) (*auth.AgentClaims, bool) {
	c, ok := ctx.Value(agentClaimsKey{}).(*auth.AgentClaims)
	return c, ok
}

// ContextWithAgent deja los claims del agente en el contexto (lo usa el
// middleware AgentAuth).
func ContextWithAgent(ctx context.Context, c *auth.AgentClaims) context.Context {
	return context.WithValue(ctx, agentClaimsKey{}, c)
}

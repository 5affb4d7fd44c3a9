// Package http arma el router del service, los middlewares y los helpers de
// respuesta. Los controllers viven en subpaquetes (admin, agentapi, health) y
// hablan con la capa de services.
package http

import (
	"net/http"

	"github.com/dropDatabas3/fleetsign/internal/http/httpx"
)

// WriteError escribe el envelope de error estándar.
func WriteError(w http.ResponseWriter, status int, code, desc string) {
	httpx.WriteError(w, status, code, desc)
}

// WriteJSON: respuesta JSON estándar
func WriteJSON(w http.ResponseWriter, status int, v any) {
	httpx.WriteJSON(w, status, v)
}

// ReadJSON decodifica JSON de forma tolerante (NO falla por campos
// desconocidos). Valida Content-Type y limita el body a 1MB.
func ReadJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	return httpx.ReadJSON(w, r, v)
}

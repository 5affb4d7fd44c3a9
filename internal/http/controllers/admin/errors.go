// Package admin contiene los controllers de /v1/admin/*.
package admin

import (
	"errors"
	"net/http"

	"github.com/dropDatabas3/fleetsign/internal/domain/repository"
)

// mapError traduce errores de dominio a (status, code) del envelope.
func mapError(err error) (int, string) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, repository.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, repository.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, repository.ErrNoCurrentKey):
		return http.StatusConflict, "no_current_key"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// Package verifier implementa la máquina de estados de verificación de
// artefactos del agente:
//
//	START → TRY_CURRENT → TRY_OLD → FETCH_KEYS → RETRY_CURRENT
//	      → {VERIFIED | VERIFIED_LEGACY | VERIFIED_REFRESHED | REJECTED}
//
// Cada llamada termina en exactamente uno de los cuatro estados terminales y
// hace a lo sumo UN fetch de claves. REJECTED es fail-closed: el artefacto no
// se ejecuta; el caller puede reintentar la verificación más adelante (ej: en
// el próximo ciclo), nunca en loop.
package verifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/dropDatabas3/fleetsign/internal/agent/keycache"
	"github.com/dropDatabas3/fleetsign/internal/metrics"
	"github.com/dropDatabas3/fleetsign/internal/observability/logger"
	"github.com/dropDatabas3/fleetsign/internal/signing"
)

// Status es el estado terminal de una verificación.
type Status string

const (
	// StatusVerified: la firma matchea la clave current cacheada.
	StatusVerified Status = "VERIFIED"

	// StatusVerifiedLegacy: la firma matchea la clave old. El artefacto es
	// auténtico pero fue firmado antes de la última rotación; sigue siendo
	// válido durante la ventana de retención.
	StatusVerifiedLegacy Status = "VERIFIED_LEGACY"

	// StatusVerifiedRefreshed: ninguna clave cacheada matcheó, pero la
	// current recién fetcheada sí. El cache quedó actualizado.
	StatusVerifiedRefreshed Status = "VERIFIED_REFRESHED"

	// StatusRejected: fail-closed. El artefacto NO debe ejecutarse.
	StatusRejected Status = "REJECTED"
)

// Executable indica si el estado permite ejecutar el artefacto.
func (s Status) Executable() bool {
	return s == StatusVerified || s == StatusVerifiedLegacy || s == StatusVerifiedRefreshed
}

// ErrRejected es la señal distinguible que acompaña a todo StatusRejected.
// Equivale a "signature failure" para la capa de ejecución, incluso cuando la
// causa raíz fue de transporte (fetch caído): ante la duda, no se ejecuta.
var ErrRejected = errors.New("verifier: artifact rejected")

// KeyFetcher obtiene el par (current, old) vigente del server, scoped al
// tenant del agente. old puede ser nil. Debe usar timeout acotado.
type KeyFetcher interface {
	FetchKeys(ctx context.Context) (current, old *keycache.KeyPair, err error)
}

// Verifier valida artefactos contra el key cache del agente.
type Verifier struct {
	cache   *keycache.Cache
	fetcher KeyFetcher
}

func New(cache *keycache.Cache, fetcher KeyFetcher) *Verifier {
	return &Verifier{cache: cache, fetcher: fetcher}
}

// Verify recorre la máquina de estados para (payload, sig).
// El error es no-nil si y solo si el estado es StatusRejected, y siempre
// envuelve ErrRejected.
func (v *Verifier) Verify(ctx context.Context, payload, sig []byte) (status Status, err error) {
	defer func() { metrics.VerificationsTotal.WithLabelValues(string(status)).Inc() }()

	// La criptografía corre contra un snapshot local: el lock del cache se
	// sostiene solo durante el swap, nunca durante la verificación.
	current, old := v.cache.Snapshot()

	// TRY_CURRENT
	if current != nil && signing.Verify(payload, sig, current.PublicKeyPEM) == nil {
		return StatusVerified, nil
	}

	// TRY_OLD
	if old != nil && signing.Verify(payload, sig, old.PublicKeyPEM) == nil {
		return StatusVerifiedLegacy, nil
	}

	// FETCH_KEYS: exactamente un intento. Falla de transporte ⇒ REJECTED
	// directo; el caller re-invoca más tarde si quiere.
	fresh, freshOld, err := v.fetcher.FetchKeys(ctx)
	if err != nil {
		return StatusRejected, fmt.Errorf("%w: key fetch failed: %v", ErrRejected, err)
	}

	if err := v.cache.Apply(fresh, freshOld); err != nil {
		if errors.Is(err, keycache.ErrCorrupted) {
			// estado inválido: vaciar y forzar re-fetch desde cero
			_ = v.cache.Clear()
		}
		return StatusRejected, fmt.Errorf("%w: cache update failed: %v", ErrRejected, err)
	}

	// RETRY_CURRENT: solo contra la current recién fetcheada. Si el
	// artefacto estaba firmado con la old del server, la próxima invocación
	// lo resuelve como VERIFIED_LEGACY porque el cache ya quedó fresco.
	if fresh != nil && signing.Verify(payload, sig, fresh.PublicKeyPEM) == nil {
		logger.From(ctx).Info("artifact verified with refreshed key",
			logger.KID(fresh.KID))
		return StatusVerifiedRefreshed, nil
	}

	return StatusRejected, fmt.Errorf("%w: signature matches no trusted key", ErrRejected)
}

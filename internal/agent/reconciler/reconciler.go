// Package reconciler implementa el camino de descubrimiento por polling:
// en cada heartbeat el server devuelve current_key_hash; si difiere del hash
// local, el agente fetchea claves una sola vez y actualiza el cache.
//
//	SEND_HEARTBEAT → RECEIVE_HASH → COMPARE → {NOOP | FETCH_KEYS → UPDATE_CACHE}
package reconciler

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/dropDatabas3/fleetsign/internal/agent/keycache"
	"github.com/dropDatabas3/fleetsign/internal/agent/verifier"
	"github.com/dropDatabas3/fleetsign/internal/observability/logger"
)

// Reconciler compara el hash de clave del server contra el cache local y
// dispara el fetch cuando difieren. El fetch es single-flight: N observadores
// concurrentes del mismo mismatch producen exactamente UN fetch y UN update.
type Reconciler struct {
	cache   *keycache.Cache
	fetcher verifier.KeyFetcher
	sf      singleflight.Group
}

func New(cache *keycache.Cache, fetcher verifier.KeyFetcher) *Reconciler {
	return &Reconciler{cache: cache, fetcher: fetcher}
}

// Reconcile procesa el current_key_hash recibido en un heartbeat ack.
// Devuelve true si el cache fue actualizado.
//
// Un error de fetch es recuperable: el cache queda intacto (sigue siendo
// válido durante la ventana de retención de la clave old) y se reintenta en
// el próximo heartbeat.
func (r *Reconciler) Reconcile(ctx context.Context, serverHash string) (bool, error) {
	if serverHash == "" {
		// server sin clave publicada; nada que comparar
		return false, nil
	}
	if r.cache.Hash() == serverHash {
		return false, nil // NOOP
	}

	// La key del grupo es el hash destino: mismatches concurrentes hacia el
	// mismo hash colapsan en una sola llamada.
	_, err, _ := r.sf.Do(serverHash, func() (any, error) {
		// re-chequear: otro vuelo pudo haber actualizado ya
		if r.cache.Hash() == serverHash {
			return nil, nil
		}
		current, old, err := r.fetcher.FetchKeys(ctx)
		if err != nil {
			return nil, fmt.Errorf("reconciler: key fetch: %w", err)
		}
		if err := r.cache.Apply(current, old); err != nil {
			return nil, fmt.Errorf("reconciler: cache update: %w", err)
		}
		logger.From(ctx).Info("key cache refreshed from heartbeat mismatch",
			logger.KID(current.KID), logger.KeyHash(serverHash))
		return nil, nil
	})
	if err != nil {
		return false, err
	}
	return r.cache.Hash() == serverHash, nil
}

// Package listener implementa el camino event-push: los agentes persistentes
// se suscriben al subject de rotación de su tenant y aplican los
// RotationEvents al key cache apenas llegan.
//
// El listener y el reconciler son dos productores de la misma operación:
// ambos terminan en keycache.Apply. No hay dos caminos de update divergentes.
package listener

import (
	"context"
	"encoding/json"

	"github.com/dropDatabas3/fleetsign/internal/agent/keycache"
	"github.com/dropDatabas3/fleetsign/internal/bus"
	"github.com/dropDatabas3/fleetsign/internal/observability/logger"
	"github.com/dropDatabas3/fleetsign/internal/protocol"
	"github.com/dropDatabas3/fleetsign/internal/signing"
)

// Listener consume RotationEvents del bus para un tenant.
type Listener struct {
	scoped   *bus.Scoped
	cache    *keycache.Cache
	tenantID string
}

// New crea un listener sobre un handle del bus ya scoped al tenant.
func New(scoped *bus.Scoped, cache *keycache.Cache, tenantID string) *Listener {
	return &Listener{scoped: scoped, cache: cache, tenantID: tenantID}
}

// Run se suscribe y procesa eventos hasta que ctx se cancela o la
// suscripción se cierra. Bloqueante; correr en su propia goroutine.
func (l *Listener) Run(ctx context.Context) error {
	subject, err := bus.RotationSubject(l.tenantID)
	if err != nil {
		return err
	}
	sub, err := l.scoped.Subscribe(ctx, subject)
	if err != nil {
		return err
	}
	defer func() { _ = sub.Unsubscribe() }()

	log := logger.From(ctx).With(logger.TenantID(l.tenantID), logger.Subject(subject))
	log.Info("rotation listener started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-sub.C():
			if !ok {
				return bus.ErrClosed
			}
			l.handle(ctx, msg.Payload)
		}
	}
}

// handle decodifica y aplica un evento. La entrega es at-least-once: aplicar
// dos veces el mismo par es inocuo porque Apply con la misma current conserva
// la old existente.
func (l *Listener) handle(ctx context.Context, payload []byte) {
	log := logger.From(ctx)

	var ev protocol.RotationEventMessage
	if err := json.Unmarshal(payload, &ev); err != nil {
		log.Warn("discarding malformed rotation event", logger.Err(err))
		return
	}
	if ev.Event != protocol.EventKeyRotation || ev.Keys.Current == "" {
		log.Warn("discarding rotation event with unexpected shape",
			logger.String("event", ev.Event))
		return
	}

	current := &keycache.KeyPair{
		KID:          signing.KIDFor(ev.Keys.Current),
		PublicKeyPEM: ev.Keys.Current,
		CreatedAt:    ev.Timestamp,
	}
	var old *keycache.KeyPair
	if ev.Keys.Old != nil && *ev.Keys.Old != "" {
		// la old se demovió en esta rotación: su edad corre desde el evento
		old = &keycache.KeyPair{
			KID:          signing.KIDFor(*ev.Keys.Old),
			PublicKeyPEM: *ev.Keys.Old,
			CreatedAt:    ev.Timestamp,
		}
	}

	if err := l.cache.Apply(current, old); err != nil {
		log.Error("failed to apply rotation event", logger.Err(err),
			logger.RotationID(ev.RotationID))
		return
	}
	log.Info("rotation event applied",
		logger.RotationID(ev.RotationID), logger.KID(current.KID))
}

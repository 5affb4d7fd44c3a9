// Package rotation implementa el lado server del protocolo de confianza:
// el Coordinator que re-firma artefactos y promueve claves, el Distributor
// que empuja RotationEvents por el bus, y el Provider que sirve el camino de
// polling (key-fetch + current_key_hash).
package rotation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/fleetsign/internal/domain/repository"
	"github.com/dropDatabas3/fleetsign/internal/metrics"
	"github.com/dropDatabas3/fleetsign/internal/observability/logger"
	"github.com/dropDatabas3/fleetsign/internal/signing"
)

// Summary es el resultado de una corrida del coordinator.
type Summary struct {
	RotationID        string
	KeyChanged        bool
	CurrentKID        string
	OldKID            string // "" si no hay clave old
	CurrentPEM        string
	OldPEM            string // "" si no hay clave old
	ResignedCount     int
	ResignFailedCount int
	TenantsTargeted   int
	Timestamp         time.Time
}

// Coordinator orquesta un ciclo de rotación: detecta si el custodio cambió de
// clave, promueve/degrada el par persistido, re-firma todos los artefactos
// vigentes y deja un RotationEvent en el audit trail.
//
// Es idempotente: invocarlo con la clave sin cambios re-firma los mismos
// payloads con la misma clave y reproduce firmas idénticas (determinístico
// con PKCS#1 v1.5); solo cambian rotation_id y signed_at. Las invocaciones
// concurrentes se serializan.
type Coordinator struct {
	mu sync.Mutex // corridas no solapadas

	custodian signing.Custodian
	keys      repository.KeyRepository
	artifacts repository.ArtifactRepository
	tenants   repository.TenantRepository
	events    repository.RotationEventRepository

	resignConcurrency int
}

const defaultResignConcurrency = 8

func NewCoordinator(
	custodian signing.Custodian,
	keys repository.KeyRepository,
	artifacts repository.ArtifactRepository,
	tenants repository.TenantRepository,
	events repository.RotationEventRepository,
) *Coordinator {
	return &Coordinator{
		custodian:         custodian,
		keys:              keys,
		artifacts:         artifacts,
		tenants:           tenants,
		events:            events,
		resignConcurrency: defaultResignConcurrency,
	}
}

// Run ejecuta un ciclo completo. La falla de re-firma de un artefacto no
// bloquea a los demás ni aborta la rotación: los agentes que ya tienen firmas
// de la clave old siguen pudiendo verificarlos durante la retención.
func (c *Coordinator) Run(ctx context.Context) (*Summary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	started := time.Now()
	log := logger.From(ctx).With(logger.Component("rotation.coordinator"))

	current, old, changed, err := c.promoteIfChanged(ctx)
	if err != nil {
		metrics.RotationRunsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	resigned, failed, err := c.resignAll(ctx, current.KID)
	if err != nil {
		metrics.RotationRunsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	tenants, err := c.tenants.ListAll(ctx)
	if err != nil {
		metrics.RotationRunsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("rotation: list tenants: %w", err)
	}

	sum := &Summary{
		RotationID:        uuid.NewString(),
		KeyChanged:        changed,
		CurrentKID:        current.KID,
		CurrentPEM:        current.PublicKeyPEM,
		ResignedCount:     resigned,
		ResignFailedCount: failed,
		TenantsTargeted:   len(tenants),
		Timestamp:         time.Now().UTC(),
	}
	if old != nil {
		sum.OldKID = old.KID
		sum.OldPEM = old.PublicKeyPEM
	}

	if err := c.events.Insert(ctx, &repository.RotationEvent{
		RotationID:      sum.RotationID,
		CurrentKID:      sum.CurrentKID,
		OldKID:          sum.OldKID,
		Timestamp:       sum.Timestamp,
		TargetedTenants: sum.TenantsTargeted,
	}); err != nil {
		metrics.RotationRunsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("rotation: insert event: %w", err)
	}

	metrics.RotationResignedTotal.Add(float64(resigned))
	metrics.RotationResignFailed.Add(float64(failed))
	metrics.RotationDuration.Observe(time.Since(started).Seconds())
	if failed > 0 {
		metrics.RotationRunsTotal.WithLabelValues("partial").Inc()
	} else {
		metrics.RotationRunsTotal.WithLabelValues("ok").Inc()
	}

	log.Info("rotation run finished",
		logger.RotationID(sum.RotationID),
		logger.KID(sum.CurrentKID),
		logger.Int("resigned", resigned),
		logger.Int("resign_failed", failed),
		logger.Int("tenants_targeted", sum.TenantsTargeted),
		logger.Duration(time.Since(started)))

	return sum, nil
}

// promoteIfChanged compara la clave del custodio contra la current
// persistida. Si difieren, la nueva pasa a current y la anterior a old
// (descartando la old previa). Devuelve el par resultante.
func (c *Coordinator) promoteIfChanged(ctx context.Context) (current, old *repository.SigningKey, changed bool, err error) {
	pubPEM, err := c.custodian.PublicKeyPEM(ctx)
	if err != nil {
		return nil, nil, false, fmt.Errorf("rotation: custodian public key: %w", err)
	}
	kid := signing.KIDFor(pubPEM)
	if kid == "" {
		return nil, nil, false, fmt.Errorf("rotation: custodian returned invalid public key")
	}

	current, old, err = c.keys.GetPair(ctx)
	if err != nil && !errors.Is(err, repository.ErrNoCurrentKey) {
		return nil, nil, false, fmt.Errorf("rotation: get key pair: %w", err)
	}
	if err == nil && current.KID == kid {
		return current, old, false, nil
	}

	newKey := &repository.SigningKey{
		KID:          kid,
		PublicKeyPEM: pubPEM,
		Generation:   repository.GenerationCurrent,
		CreatedAt:    time.Now().UTC(),
	}
	if err := c.keys.Promote(ctx, newKey); err != nil {
		return nil, nil, false, fmt.Errorf("rotation: promote key: %w", err)
	}

	current, old, err = c.keys.GetPair(ctx)
	if err != nil {
		return nil, nil, false, fmt.Errorf("rotation: reload key pair: %w", err)
	}
	logger.From(ctx).Info("signing key promoted", logger.KID(current.KID))
	return current, old, true, nil
}

// resignAll re-firma cada artefacto con la clave vigente del custodio, en
// paralelo acotado. Cada artefacto es independiente: los errores se cuentan,
// no abortan.
func (c *Coordinator) resignAll(ctx context.Context, kid string) (resigned, failed int, err error) {
	arts, err := c.artifacts.ListAll(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("rotation: list artifacts: %w", err)
	}

	var okCount, failCount atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.resignConcurrency)

	for _, a := range arts {
		a := a
		g.Go(func() error {
			sig, err := c.custodian.Sign(gctx, a.Payload)
			if err != nil {
				failCount.Add(1)
				logger.From(gctx).Warn("artifact re-sign failed",
					logger.ArtifactID(a.ID), logger.Err(err))
				return nil
			}
			if err := c.artifacts.UpdateSignature(gctx, a.ID, sig, kid, time.Now().UTC()); err != nil {
				failCount.Add(1)
				logger.From(gctx).Warn("artifact signature persist failed",
					logger.ArtifactID(a.ID), logger.Err(err))
				return nil
			}
			okCount.Add(1)
			return nil
		})
	}
	_ = g.Wait() // los workers nunca devuelven error

	return int(okCount.Load()), int(failCount.Load()), nil
}

package rotation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/fleetsign/internal/bus"
	"github.com/dropDatabas3/fleetsign/internal/domain/repository"
	"github.com/dropDatabas3/fleetsign/internal/metrics"
	"github.com/dropDatabas3/fleetsign/internal/observability/logger"
	"github.com/dropDatabas3/fleetsign/internal/protocol"
)

// Notifier recibe el aviso de que la distribución agotó los reintentos para
// algunos tenants y requiere seguimiento manual. Best-effort: un error del
// notifier se loguea y nada más. internal/alert provee la implementación por
// e-mail.
type Notifier interface {
	NotifyPublishFailures(ctx context.Context, rotationID string, failedTenants []string) error
}

// DistributeReport resume una pasada de distribución.
type DistributeReport struct {
	Published     int
	Failed        int
	FailedTenants []string
}

// Distributor empuja un RotationEvent a cada tenant por su subject dedicado
// (camino event-push). Los publishes son concurrentes y las fallas quedan
// aisladas por tenant: que el tenant X falle jamás bloquea al tenant Y.
type Distributor struct {
	bus      bus.Bus
	tenants  repository.TenantRepository
	notifier Notifier // opcional

	publishRetries     uint64
	publishConcurrency int
}

const (
	defaultPublishRetries     = 3
	defaultPublishConcurrency = 16
)

func NewDistributor(b bus.Bus, tenants repository.TenantRepository, notifier Notifier) *Distributor {
	return &Distributor{
		bus:                b,
		tenants:            tenants,
		notifier:           notifier,
		publishRetries:     defaultPublishRetries,
		publishConcurrency: defaultPublishConcurrency,
	}
}

// Distribute publica el evento de la corrida sum a todos los tenants.
// Devuelve siempre un reporte; el error es solo para fallas estructurales
// (no poder listar tenants), nunca por publishes individuales.
func (d *Distributor) Distribute(ctx context.Context, sum *Summary) (*DistributeReport, error) {
	tenants, err := d.tenants.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("distributor: list tenants: %w", err)
	}

	msg := protocol.RotationEventMessage{
		Event:      protocol.EventKeyRotation,
		Keys:       protocol.KeyPairPEM{Current: sum.CurrentPEM},
		Timestamp:  sum.Timestamp,
		RotationID: sum.RotationID,
	}
	if sum.OldPEM != "" {
		old := sum.OldPEM
		msg.Keys.Old = &old
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("distributor: marshal event: %w", err)
	}

	var (
		published atomic.Int64
		mu        sync.Mutex
		failedIDs []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.publishConcurrency)
	for _, t := range tenants {
		t := t
		g.Go(func() error {
			if err := d.publishTenant(gctx, t.ID, payload); err != nil {
				logger.From(gctx).Error("rotation publish exhausted retries, needs manual follow-up",
					logger.TenantID(t.ID), logger.RotationID(sum.RotationID), logger.Err(err))
				metrics.RotationPublishTotal.WithLabelValues("failed").Inc()
				mu.Lock()
				failedIDs = append(failedIDs, t.ID)
				mu.Unlock()
				return nil
			}
			metrics.RotationPublishTotal.WithLabelValues("ok").Inc()
			published.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	report := &DistributeReport{
		Published:     int(published.Load()),
		Failed:        len(failedIDs),
		FailedTenants: failedIDs,
	}

	if report.Failed > 0 && d.notifier != nil {
		if err := d.notifier.NotifyPublishFailures(ctx, sum.RotationID, failedIDs); err != nil {
			logger.From(ctx).Warn("publish-failure notification failed", logger.Err(err))
		}
	}

	logger.From(ctx).Info("rotation distributed",
		logger.RotationID(sum.RotationID),
		logger.Int("published", report.Published),
		logger.Int("failed", report.Failed))

	return report, nil
}

// publishTenant intenta el publish con reintentos acotados y backoff
// exponencial; después de agotarlos devuelve el último error.
func (d *Distributor) publishTenant(ctx context.Context, tenantID string, payload []byte) error {
	subject, err := bus.RotationSubject(tenantID)
	if err != nil {
		// tenant con ID malformado: no hay subject posible, no se reintenta
		return err
	}

	op := func() error {
		return d.bus.Publish(ctx, subject, payload)
	}
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = 200 * time.Millisecond
	exp.MaxInterval = 2 * time.Second
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(exp, d.publishRetries), ctx))
}

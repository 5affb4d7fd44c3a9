package rotation

import (
	"context"
	"time"

	"github.com/dropDatabas3/fleetsign/internal/domain/repository"
	"github.com/dropDatabas3/fleetsign/internal/metrics"
	"github.com/dropDatabas3/fleetsign/internal/observability/logger"
)

// Janitor elimina la clave old cuando su retiro supera la ventana de
// retención. Pasada esa ventana, los artefactos que todavía lleven firmas de
// esa clave dejan de verificar (fail-closed); la ventana default de 7 días da
// margen de sobra para que el Coordinator los haya re-firmado.
type Janitor struct {
	keys     repository.KeyRepository
	window   time.Duration
	interval time.Duration
}

const (
	// DefaultRetentionWindow es cuánto se conserva la clave old.
	DefaultRetentionWindow = 7 * 24 * time.Hour

	defaultSweepInterval = time.Hour
)

func NewJanitor(keys repository.KeyRepository, window time.Duration) *Janitor {
	if window <= 0 {
		window = DefaultRetentionWindow
	}
	return &Janitor{keys: keys, window: window, interval: defaultSweepInterval}
}

// SweepOnce elimina claves old vencidas. Devuelve cuántas se eliminaron.
func (j *Janitor) SweepOnce(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-j.window)
	n, err := j.keys.DeleteExpiredOld(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.RetentionEvictionsTotal.Add(float64(n))
		logger.From(ctx).Info("expired old signing keys evicted", logger.Count(n))
	}
	return n, nil
}

// Run barre periódicamente hasta que ctx se cancela. Bloqueante.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := j.SweepOnce(ctx); err != nil {
				logger.From(ctx).Warn("retention sweep failed", logger.Err(err))
			}
		}
	}
}

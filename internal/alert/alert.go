// Package alert notifica al operador por e-mail cuando una rotación queda en
// estado parcial: tenants cuyos publishes agotaron los reintentos y requieren
// seguimiento manual. Best-effort y rate-limited; no es una incidencia de
// seguridad (los agentes afectados siguen verificando con la clave old
// durante la ventana de retención), solo un aviso operativo.
package alert

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	mail "github.com/go-mail/mail"

	"github.com/dropDatabas3/fleetsign/internal/observability/logger"
)

// SMTPConfig son los parámetros del servidor saliente.
type SMTPConfig struct {
	Host string
	Port int
	User string
	Pass string
	From string
	To   string // destinatario operativo
}

// Mailer implementa rotation.Notifier sobre SMTP.
type Mailer struct {
	cfg SMTPConfig

	mu       sync.Mutex
	lastSent time.Time
}

// minInterval evita inundar al operador si varias rotaciones seguidas fallan.
const minInterval = 10 * time.Minute

func NewMailer(cfg SMTPConfig) *Mailer {
	return &Mailer{cfg: cfg}
}

// NotifyPublishFailures envía el digest de tenants fallidos de una rotación.
func (m *Mailer) NotifyPublishFailures(ctx context.Context, rotationID string, failedTenants []string) error {
	m.mu.Lock()
	if time.Since(m.lastSent) < minInterval {
		m.mu.Unlock()
		logger.From(ctx).Debug("alert suppressed by rate limit",
			logger.RotationID(rotationID))
		return nil
	}
	m.lastSent = time.Now()
	m.mu.Unlock()

	msg := mail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", m.cfg.To)
	msg.SetHeader("Subject", fmt.Sprintf("[fleetsign] rotation %s: %d tenant(s) sin RotationEvent", rotationID, len(failedTenants)))
	msg.SetBody("text/plain", body(rotationID, failedTenants))

	d := mail.NewDialer(m.cfg.Host, m.cfg.Port, m.cfg.User, m.cfg.Pass)
	if err := d.DialAndSend(msg); err != nil {
		return fmt.Errorf("alert: send mail: %w", err)
	}
	return nil
}

func body(rotationID string, failedTenants []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "La rotación %s no pudo publicar su RotationEvent a los siguientes tenants\n", rotationID)
	b.WriteString("(reintentos agotados; los agentes polling la descubrirán vía heartbeat):\n\n")
	for _, t := range failedTenants {
		fmt.Fprintf(&b, "  - %s\n", t)
	}
	b.WriteString("\nVerificar conectividad del bus y re-disparar la rotación si corresponde.\n")
	return b.String()
}

package bus

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrSubjectOutOfScope is returned when a scoped bus is asked to touch a
// subject outside its tenant prefix.
var ErrSubjectOutOfScope = errors.New("bus: subject outside tenant scope")

// Scoped wraps a Bus so that every publish and subscribe is checked against a
// single tenant prefix. This is belt-and-suspenders on top of the bus-side
// ACLs: even with an application bug, a scoped handle structurally cannot
// name another tenant's subjects.
type Scoped struct {
	inner  Bus
	prefix string
}

// NewScoped builds a tenant-scoped handle. Fails on a malformed tenant id.
func NewScoped(inner Bus, tenantID string) (*Scoped, error) {
	prefix, err := TenantPrefix(tenantID)
	if err != nil {
		return nil, err
	}
	return &Scoped{inner: inner, prefix: prefix}, nil
}

// Prefix returns the namespace this handle is confined to.
func (s *Scoped) Prefix() string { return s.prefix }

func (s *Scoped) check(subject string) error {
	if !strings.HasPrefix(subject, s.prefix) {
		return fmt.Errorf("%w: %q not under %q", ErrSubjectOutOfScope, subject, s.prefix)
	}
	return nil
}

func (s *Scoped) Publish(ctx context.Context, subject string, payload []byte) error {
	if err := s.check(subject); err != nil {
		return err
	}
	return s.inner.Publish(ctx, subject, payload)
}

func (s *Scoped) Subscribe(ctx context.Context, subject string) (Subscription, error) {
	if err := s.check(subject); err != nil {
		return nil, err
	}
	return s.inner.Subscribe(ctx, subject)
}

// Close closes the underlying bus connection.
func (s *Scoped) Close() error { return s.inner.Close() }

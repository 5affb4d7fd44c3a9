// Package memory implementa el Store en memoria, para desarrollo y tests.
// Thread-safe; sin persistencia.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dropDatabas3/fleetsign/internal/domain/repository"
)

// Store implementa store.Store y los cinco repositorios sobre maps.
type Store struct {
	mu sync.RWMutex

	current *repository.SigningKey
	old     *repository.SigningKey

	artifacts map[string]*repository.SignedArtifact
	tenants   map[string]*repository.Tenant
	agents    map[string]*repository.Agent
	events    []*repository.RotationEvent
}

func New() *Store {
	return &Store{
		artifacts: make(map[string]*repository.SignedArtifact),
		tenants:   make(map[string]*repository.Tenant),
		agents:    make(map[string]*repository.Agent),
	}
}

func (s *Store) Keys() repository.KeyRepository                     { return (*keyRepo)(s) }
func (s *Store) Artifacts() repository.ArtifactRepository           { return (*artifactRepo)(s) }
func (s *Store) Tenants() repository.TenantRepository               { return (*tenantRepo)(s) }
func (s *Store) Agents() repository.AgentRepository                 { return (*agentRepo)(s) }
func (s *Store) RotationEvents() repository.RotationEventRepository { return (*eventRepo)(s) }

func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close() error               { return nil }

// ─── Keys ───

type keyRepo Store

func (r *keyRepo) GetPair(context.Context) (*repository.SigningKey, *repository.SigningKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.current == nil {
		return nil, nil, repository.ErrNoCurrentKey
	}
	return copyKey(r.current), copyKey(r.old), nil
}

func (r *keyRepo) GetByKID(_ context.Context, kid string) (*repository.SigningKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.current != nil && r.current.KID == kid {
		return copyKey(r.current), nil
	}
	if r.old != nil && r.old.KID == kid {
		return copyKey(r.old), nil
	}
	return nil, repository.ErrNotFound
}

func (r *keyRepo) Promote(_ context.Context, newKey *repository.SigningKey) error {
	if newKey == nil || newKey.KID == "" || newKey.PublicKeyPEM == "" {
		return repository.ErrInvalidInput
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	k := copyKey(newKey)
	k.Generation = repository.GenerationCurrent

	if r.current != nil && r.current.KID != k.KID {
		retired := time.Now().UTC()
		demoted := copyKey(r.current)
		demoted.Generation = repository.GenerationOld
		demoted.RetiredAt = &retired
		r.old = demoted // descarta cualquier old previa
	}
	r.current = k
	return nil
}

func (r *keyRepo) DeleteExpiredOld(_ context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.old != nil && r.old.RetiredAt != nil && r.old.RetiredAt.Before(cutoff) {
		r.old = nil
		return 1, nil
	}
	return 0, nil
}

// ─── Artifacts ───

type artifactRepo Store

func (r *artifactRepo) Create(_ context.Context, a *repository.SignedArtifact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.artifacts[a.ID]; exists {
		return repository.ErrConflict
	}
	r.artifacts[a.ID] = copyArtifact(a)
	return nil
}

func (r *artifactRepo) GetByID(_ context.Context, id string) (*repository.SignedArtifact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.artifacts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyArtifact(a), nil
}

func (r *artifactRepo) ListAll(context.Context) ([]*repository.SignedArtifact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*repository.SignedArtifact, 0, len(r.artifacts))
	for _, a := range r.artifacts {
		out = append(out, copyArtifact(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *artifactRepo) UpdateSignature(_ context.Context, id string, signature []byte, kid string, signedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.artifacts[id]
	if !ok {
		return repository.ErrNotFound
	}
	a.Signature = append([]byte(nil), signature...)
	a.KID = kid
	a.SignedAt = signedAt
	return nil
}

func (r *artifactRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.artifacts[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.artifacts, id)
	return nil
}

// ─── Tenants ───

type tenantRepo Store

func (r *tenantRepo) Create(_ context.Context, t *repository.Tenant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tenants[t.ID]; exists {
		return repository.ErrConflict
	}
	cp := *t
	r.tenants[t.ID] = &cp
	return nil
}

func (r *tenantRepo) GetByID(_ context.Context, id string) (*repository.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tenants[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *tenantRepo) ListAll(context.Context) ([]*repository.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*repository.Tenant, 0, len(r.tenants))
	for _, t := range r.tenants {
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *tenantRepo) UpdateBusCredentials(_ context.Context, id, credentials string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tenants[id]
	if !ok {
		return repository.ErrNotFound
	}
	t.BusCredentials = credentials
	return nil
}

// ─── Agents ───

type agentRepo Store

func (r *agentRepo) Create(_ context.Context, a *repository.Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.agents[a.ID]; exists {
		return repository.ErrConflict
	}
	if _, ok := r.tenants[a.TenantID]; !ok {
		return repository.ErrInvalidInput
	}
	cp := *a
	r.agents[a.ID] = &cp
	return nil
}

func (r *agentRepo) GetByID(_ context.Context, id string) (*repository.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *agentRepo) ListByTenant(_ context.Context, tenantID string) ([]*repository.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*repository.Agent
	for _, a := range r.agents {
		if a.TenantID == tenantID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *agentRepo) ListAll(context.Context) ([]*repository.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*repository.Agent, 0, len(r.agents))
	for _, a := range r.agents {
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *agentRepo) UpdateLastSeen(_ context.Context, id string, t time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	if !ok {
		return repository.ErrNotFound
	}
	a.LastSeen = &t
	return nil
}

func (r *agentRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.agents[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.agents, id)
	return nil
}

// ─── Rotation events ───

type eventRepo Store

func (r *eventRepo) Insert(_ context.Context, e *repository.RotationEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *e
	r.events = append(r.events, &cp)
	return nil
}

func (r *eventRepo) ListRecent(_ context.Context, limit int) ([]*repository.RotationEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if limit <= 0 || limit > len(r.events) {
		limit = len(r.events)
	}
	out := make([]*repository.RotationEvent, 0, limit)
	for i := len(r.events) - 1; i >= 0 && len(out) < limit; i-- {
		cp := *r.events[i]
		out = append(out, &cp)
	}
	return out, nil
}

// ─── helpers ───

func copyKey(k *repository.SigningKey) *repository.SigningKey {
	if k == nil {
		return nil
	}
	cp := *k
	if k.RetiredAt != nil {
		t := *k.RetiredAt
		cp.RetiredAt = &t
	}
	return &cp
}

func copyArtifact(a *repository.SignedArtifact) *repository.SignedArtifact {
	cp := *a
	cp.Payload = append([]byte(nil), a.Payload...)
	cp.Signature = append([]byte(nil), a.Signature...)
	return &cp
}

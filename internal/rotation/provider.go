package rotation

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/dropDatabas3/fleetsign/internal/domain/repository"
	"github.com/dropDatabas3/fleetsign/internal/protocol"
	"github.com/dropDatabas3/fleetsign/internal/signing"
)

// Provider sirve el camino de polling: el par de claves para key-fetch y el
// current_key_hash que viaja en cada heartbeat ack. Ambos salen de un cache
// corto en memoria para que el hot path de heartbeats no toque la base en
// cada request.
type Provider struct {
	keys  repository.KeyRepository
	cache *gocache.Cache
}

const (
	cacheKeyPair = "keypair"
	cacheKeyHash = "keyhash"

	providerTTL = 15 * time.Second
)

func NewProvider(keys repository.KeyRepository) *Provider {
	return &Provider{
		keys:  keys,
		cache: gocache.New(providerTTL, time.Minute),
	}
}

// KeyPair devuelve el par {current, old} en PEM para un agente.
func (p *Provider) KeyPair(ctx context.Context) (*protocol.KeyFetchResponse, error) {
	if v, ok := p.cache.Get(cacheKeyPair); ok {
		resp := v.(protocol.KeyFetchResponse)
		return &resp, nil
	}

	current, old, err := p.keys.GetPair(ctx)
	if err != nil {
		return nil, fmt.Errorf("provider: get key pair: %w", err)
	}
	resp := protocol.KeyFetchResponse{Current: current.PublicKeyPEM}
	if old != nil {
		pem := old.PublicKeyPEM
		resp.Old = &pem
	}
	p.cache.SetDefault(cacheKeyPair, resp)
	return &resp, nil
}

// CurrentKeyHash devuelve el hash de contenido de la clave current.
// Cacheado: se computa una vez por TTL, no una vez por heartbeat.
func (p *Provider) CurrentKeyHash(ctx context.Context) (string, error) {
	if v, ok := p.cache.Get(cacheKeyHash); ok {
		return v.(string), nil
	}
	current, _, err := p.keys.GetPair(ctx)
	if err != nil {
		return "", fmt.Errorf("provider: get current key: %w", err)
	}
	h := signing.KeyHash(current.PublicKeyPEM)
	p.cache.SetDefault(cacheKeyHash, h)
	return h, nil
}

// Invalidate tira el cache. Llamar inmediatamente después de una rotación
// para que heartbeats y fetches vean la clave nueva sin esperar el TTL.
func (p *Provider) Invalidate() {
	p.cache.Delete(cacheKeyPair)
	p.cache.Delete(cacheKeyHash)
}

// Package keycache mantiene las dos claves públicas que un agente confía:
// current y old. Nunca hay una tercera generación. El cache se persiste en
// disco (JSON + escritura atómica) para que un restart no fuerce re-fetch.
//
// Hay exactamente dos escritores: el listener de RotationEvents y el fetch
// del reconciler/verifier. Ambos terminan en Apply, la única mutación, que
// swapea el par completo bajo lock. Los lectores usan Snapshot y verifican
// contra la copia, sin sostener el lock durante la criptografía.
package keycache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dropDatabas3/fleetsign/internal/signing"
	"github.com/dropDatabas3/fleetsign/internal/util/atomicwrite"
)

// ErrCorrupted indica un estado inválido del cache (current nulo tras un
// update, o más de dos generaciones en el archivo persistido). Es fatal para
// la verificación de ese agente: hay que forzar un re-fetch desde cero.
var ErrCorrupted = errors.New("keycache: corrupted state")

// KeyPair es una clave pública cacheada.
type KeyPair struct {
	KID          string    `json:"kid"`
	PublicKeyPEM string    `json:"public_key_pem"`
	CreatedAt    time.Time `json:"created_at"`
}

// Cache es el par (current, old) con swap atómico y persistencia opcional.
type Cache struct {
	mu      sync.RWMutex
	current *KeyPair
	old     *KeyPair
	path    string // "" = sin persistencia (tests)

	// oldMaxAge acota cuánto se confía la old sin noticias del server: pasada
	// la ventana de retención el server ya la venció, y un agente que no
	// volvió a fetchear no debe seguir aceptando firmas legacy. 0 desactiva.
	oldMaxAge time.Duration
}

type persisted struct {
	Current *KeyPair `json:"current"`
	Old     *KeyPair `json:"old"`
}

// New crea un cache persistido en path. Si el archivo existe, lo carga;
// si está corrupto lo descarta y arranca vacío (el primer fetch lo repone).
func New(path string) (*Cache, error) {
	c := &Cache{path: path}
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("keycache: read %s: %w", path, err)
	}
	var p persisted
	if err := json.Unmarshal(data, &p); err != nil || (p.Current == nil && p.Old != nil) {
		// archivo ilegible o con old huérfana: arrancar vacío
		return c, nil
	}
	c.current = p.Current
	c.old = p.Old
	return c, nil
}

// NewMemory crea un cache sin persistencia.
func NewMemory() *Cache {
	return &Cache{}
}

// SetOldMaxAge fija la edad máxima de la clave old (la ventana de retención
// del server). Llamar una vez, al armar el cache, antes de usarlo.
func (c *Cache) SetOldMaxAge(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.oldMaxAge = d
}

// Snapshot devuelve copias de (current, old). Cualquiera puede ser nil.
// Una old más vieja que oldMaxAge se reporta como nil: para el verificador
// es como si el server ya la hubiera vencido.
// Los verificadores trabajan sobre este snapshot, nunca sobre el cache vivo.
func (c *Cache) Snapshot() (current *KeyPair, old *KeyPair) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	old = c.old
	if old != nil && c.oldMaxAge > 0 && !old.CreatedAt.IsZero() &&
		time.Since(old.CreatedAt) > c.oldMaxAge {
		old = nil
	}
	return copyPair(c.current), copyPair(old)
}

// Current devuelve una copia de la clave current (nil si no hay).
func (c *Cache) Current() *KeyPair {
	cur, _ := c.Snapshot()
	return cur
}

// Hash devuelve el hash de contenido de la clave current, o "" si el cache
// está vacío. Comparable contra el current_key_hash del heartbeat.
func (c *Cache) Hash() string {
	cur := c.Current()
	if cur == nil {
		return ""
	}
	return signing.KeyHash(cur.PublicKeyPEM)
}

// Apply instala el par (current, old) de forma atómica, tal cual llega.
// El par viene siempre del server (RotationEvent o key-fetch) y es
// autoritativo: old == nil significa que NO hay clave old vigente — en
// particular, que el server ya la venció por retención — y cualquier old
// cacheada se descarta. current nil es ErrCorrupted: el cache nunca queda
// sin clave vigente por un update.
//
// Un lector concurrente ve siempre el par viejo completo o el nuevo completo.
func (c *Cache) Apply(current, old *KeyPair) error {
	if current == nil || current.PublicKeyPEM == "" {
		return ErrCorrupted
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.current = copyPair(current)
	c.old = copyPair(old)
	return c.persistLocked()
}

// Clear vacía el cache (recuperación ante corrupción: fuerza re-fetch).
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = nil
	c.old = nil
	if c.path == "" {
		return nil
	}
	if err := os.Remove(c.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("keycache: remove %s: %w", c.path, err)
	}
	return nil
}

func (c *Cache) persistLocked() error {
	if c.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(persisted{Current: c.current, Old: c.old}, "", "  ")
	if err != nil {
		return fmt.Errorf("keycache: marshal: %w", err)
	}
	if err := atomicwrite.AtomicWriteFile(c.path, data, 0600); err != nil {
		return fmt.Errorf("keycache: persist: %w", err)
	}
	return nil
}

func copyPair(p *KeyPair) *KeyPair {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}

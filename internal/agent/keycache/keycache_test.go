package keycache

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func pair(kid string) *KeyPair {
	return &KeyPair{
		KID:          kid,
		PublicKeyPEM: "-----BEGIN PUBLIC KEY-----\n" + kid + "\n-----END PUBLIC KEY-----\n",
		CreatedAt:    time.Now().UTC(),
	}
}

func TestApply_MirrorsServerPair(t *testing.T) {
	t.Parallel()

	c := NewMemory()
	if err := c.Apply(pair("k1"), nil); err != nil {
		t.Fatalf("Apply k1 err: %v", err)
	}
	cur, old := c.Snapshot()
	if cur.KID != "k1" || old != nil {
		t.Fatalf("got current=%v old=%v, want k1/nil", cur, old)
	}

	// Rotación: el server manda el par completo.
	if err := c.Apply(pair("k2"), pair("k1")); err != nil {
		t.Fatalf("Apply k2/k1 err: %v", err)
	}
	cur, old = c.Snapshot()
	if cur.KID != "k2" || old == nil || old.KID != "k1" {
		t.Fatalf("got current=%v old=%v, want k2/k1", cur, old)
	}

	// Tercera generación: k1 desaparece, nunca se acumulan tres.
	if err := c.Apply(pair("k3"), pair("k2")); err != nil {
		t.Fatalf("Apply k3/k2 err: %v", err)
	}
	cur, old = c.Snapshot()
	if cur.KID != "k3" || old.KID != "k2" {
		t.Fatalf("got current=%s old=%s, want k3/k2", cur.KID, old.KID)
	}
}

func TestApply_NilOldDropsCachedOld(t *testing.T) {
	t.Parallel()

	c := NewMemory()
	_ = c.Apply(pair("k2"), pair("k1"))

	// El server venció k1 por retención: el próximo fetch trae (k2, nil) y
	// el cache debe dejar de confiar en k1, no conservarla.
	if err := c.Apply(pair("k2"), nil); err != nil {
		t.Fatalf("Apply err: %v", err)
	}
	cur, old := c.Snapshot()
	if cur.KID != "k2" || old != nil {
		t.Fatalf("evicted old must be dropped, got current=%v old=%v", cur, old)
	}
}

func TestSnapshot_ExpiredOldIsDropped(t *testing.T) {
	t.Parallel()

	c := NewMemory()
	c.SetOldMaxAge(time.Hour)

	stale := pair("k1")
	stale.CreatedAt = time.Now().UTC().Add(-2 * time.Hour)
	_ = c.Apply(pair("k2"), stale)

	// Pasada la ventana de retención, la old no se reporta aunque nunca
	// haya llegado un fetch que la borre.
	cur, old := c.Snapshot()
	if cur.KID != "k2" || old != nil {
		t.Fatalf("expired old must not be trusted, got current=%v old=%v", cur, old)
	}

	// Una old fresca sí se reporta.
	_ = c.Apply(pair("k2"), pair("k1"))
	if _, old := c.Snapshot(); old == nil || old.KID != "k1" {
		t.Fatalf("fresh old must survive, got %v", old)
	}
}

func TestApply_ExplicitPairWins(t *testing.T) {
	t.Parallel()

	c := NewMemory()
	_ = c.Apply(pair("k1"), nil)

	// Par explícito del server: se instala tal cual.
	if err := c.Apply(pair("k3"), pair("k2")); err != nil {
		t.Fatalf("Apply err: %v", err)
	}
	cur, old := c.Snapshot()
	if cur.KID != "k3" || old.KID != "k2" {
		t.Fatalf("got current=%s old=%s, want k3/k2", cur.KID, old.KID)
	}
}

func TestApply_NilCurrentIsCorruption(t *testing.T) {
	t.Parallel()

	c := NewMemory()
	_ = c.Apply(pair("k1"), nil)

	if err := c.Apply(nil, pair("k0")); !errors.Is(err, ErrCorrupted) {
		t.Fatalf("Apply(nil) err = %v, want ErrCorrupted", err)
	}
	// El cache no se tocó.
	if cur := c.Current(); cur == nil || cur.KID != "k1" {
		t.Fatalf("cache must be untouched after rejected apply, got %v", cur)
	}
}

func TestPersistence_RoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "keys.json")
	c, err := New(path)
	if err != nil {
		t.Fatalf("New err: %v", err)
	}
	_ = c.Apply(pair("k2"), pair("k1"))

	// restart
	c2, err := New(path)
	if err != nil {
		t.Fatalf("New (reload) err: %v", err)
	}
	cur, old := c2.Snapshot()
	if cur == nil || cur.KID != "k2" || old == nil || old.KID != "k1" {
		t.Fatalf("reloaded cache mismatch: current=%v old=%v", cur, old)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat err: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Fatalf("cache file perm = %o, want 0600", perm)
	}
}

func TestNew_ToleratesCorruptFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "keys.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatalf("seed corrupt file: %v", err)
	}

	c, err := New(path)
	if err != nil {
		t.Fatalf("New err: %v", err)
	}
	if c.Current() != nil {
		t.Fatal("corrupt file must yield an empty cache")
	}
}

func TestClear_RemovesStateAndFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "keys.json")
	c, _ := New(path)
	_ = c.Apply(pair("k1"), nil)

	if err := c.Clear(); err != nil {
		t.Fatalf("Clear err: %v", err)
	}
	if c.Current() != nil || c.Hash() != "" {
		t.Fatal("cache must be empty after Clear")
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("cache file must be removed, stat err = %v", err)
	}
}

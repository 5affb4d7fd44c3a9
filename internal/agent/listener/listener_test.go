package listener

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/fleetsign/internal/agent/keycache"
	"github.com/dropDatabas3/fleetsign/internal/bus"
	"github.com/dropDatabas3/fleetsign/internal/bus/membus"
	"github.com/dropDatabas3/fleetsign/internal/protocol"
	"github.com/dropDatabas3/fleetsign/internal/signing"
)

func newPEM(t *testing.T) string {
	t.Helper()
	c, err := signing.NewLocalCustodian()
	require.NoError(t, err)
	pem, err := c.PublicKeyPEM(context.Background())
	require.NoError(t, err)
	return pem
}

func publishEvent(t *testing.T, b *membus.Bus, tenantID string, ev protocol.RotationEventMessage) {
	t.Helper()
	subject, err := bus.RotationSubject(tenantID)
	require.NoError(t, err)
	payload, err := json.Marshal(ev)
	require.NoError(t, err)
	require.NoError(t, b.Publish(context.Background(), subject, payload))
}

func waitForKID(t *testing.T, cache *keycache.Cache, kid string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if cur := cache.Current(); cur != nil && cur.KID == kid {
			return
		}
		select {
		case <-deadline:
			t.Fatal("cache never saw expected current key")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestRun_AppliesRotationEvent(t *testing.T) {
	t.Parallel()

	tenantID := uuid.NewString()
	b := membus.New()
	scoped, err := bus.NewScoped(b, tenantID)
	require.NoError(t, err)

	cache := keycache.NewMemory()
	l := New(scoped, cache, tenantID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	// dejar que la suscripción quede instalada
	time.Sleep(20 * time.Millisecond)

	k1 := newPEM(t)
	publishEvent(t, b, tenantID, protocol.RotationEventMessage{
		Event:      protocol.EventKeyRotation,
		Keys:       protocol.KeyPairPEM{Current: k1},
		Timestamp:  time.Now().UTC(),
		RotationID: uuid.NewString(),
	})
	waitForKID(t, cache, signing.KIDFor(k1))
	_, cachedOld := cache.Snapshot()
	require.Nil(t, cachedOld)

	// segunda rotación: la current anterior queda demovida a old
	k2 := newPEM(t)
	old := k1
	publishEvent(t, b, tenantID, protocol.RotationEventMessage{
		Event:      protocol.EventKeyRotation,
		Keys:       protocol.KeyPairPEM{Current: k2, Old: &old},
		Timestamp:  time.Now().UTC(),
		RotationID: uuid.NewString(),
	})
	waitForKID(t, cache, signing.KIDFor(k2))
	_, cachedOld = cache.Snapshot()
	require.NotNil(t, cachedOld)
	require.Equal(t, signing.KIDFor(k1), cachedOld.KID)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestRun_DiscardsMalformedEvents(t *testing.T) {
	t.Parallel()

	tenantID := uuid.NewString()
	b := membus.New()
	scoped, err := bus.NewScoped(b, tenantID)
	require.NoError(t, err)

	cache := keycache.NewMemory()
	l := New(scoped, cache, tenantID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = l.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)

	subject, err := bus.RotationSubject(tenantID)
	require.NoError(t, err)
	require.NoError(t, b.Publish(ctx, subject, []byte("not json")))

	// evento bien formado pero de otro tipo
	payload, err := json.Marshal(protocol.RotationEventMessage{Event: "SOMETHING_ELSE"})
	require.NoError(t, err)
	require.NoError(t, b.Publish(ctx, subject, payload))

	// un evento válido después de la basura sigue aplicándose
	k1 := newPEM(t)
	publishEvent(t, b, tenantID, protocol.RotationEventMessage{
		Event:      protocol.EventKeyRotation,
		Keys:       protocol.KeyPairPEM{Current: k1},
		Timestamp:  time.Now().UTC(),
		RotationID: uuid.NewString(),
	})
	waitForKID(t, cache, signing.KIDFor(k1))
}

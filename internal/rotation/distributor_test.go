package rotation

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/fleetsign/internal/bus"
	"github.com/dropDatabas3/fleetsign/internal/bus/membus"
	"github.com/dropDatabas3/fleetsign/internal/protocol"
	"github.com/dropDatabas3/fleetsign/internal/store/memory"
)

// flakyBus falla todos los publishes a los subjects marcados.
type flakyBus struct {
	inner bus.Bus

	mu   sync.Mutex
	fail map[string]bool
}

func (f *flakyBus) Publish(ctx context.Context, subject string, payload []byte) error {
	f.mu.Lock()
	bad := f.fail[subject]
	f.mu.Unlock()
	if bad {
		return errors.New("connection reset")
	}
	return f.inner.Publish(ctx, subject, payload)
}

func (f *flakyBus) Subscribe(ctx context.Context, subject string) (bus.Subscription, error) {
	return f.inner.Subscribe(ctx, subject)
}

func (f *flakyBus) Close() error { return f.inner.Close() }

type recordingNotifier struct {
	mu         sync.Mutex
	rotationID string
	tenants    []string
	calls      int
}

func (n *recordingNotifier) NotifyPublishFailures(_ context.Context, rotationID string, failed []string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	n.rotationID = rotationID
	n.tenants = append([]string(nil), failed...)
	return nil
}

func testSummary() *Summary {
	return &Summary{
		RotationID: "rot-123",
		KeyChanged: true,
		CurrentKID: "kid-abc",
		CurrentPEM: "-----BEGIN PUBLIC KEY-----\nabc\n-----END PUBLIC KEY-----\n",
		OldKID:     "kid-old",
		OldPEM:     "-----BEGIN PUBLIC KEY-----\nold\n-----END PUBLIC KEY-----\n",
		Timestamp:  time.Now().UTC(),
	}
}

func TestDistribute_PublishesPerTenantSubject(t *testing.T) {
	t.Parallel()

	st := memory.New()
	b := membus.New()
	defer b.Close()
	ctx := context.Background()

	t1 := seedTenant(t, st, "t1")
	t2 := seedTenant(t, st, "t2")

	s1, _ := bus.RotationSubject(t1.ID)
	s2, _ := bus.RotationSubject(t2.ID)
	sub1, err := b.Subscribe(ctx, s1)
	require.NoError(t, err)
	sub2, err := b.Subscribe(ctx, s2)
	require.NoError(t, err)

	d := NewDistributor(b, st.Tenants(), nil)
	sum := testSummary()

	report, err := d.Distribute(ctx, sum)
	require.NoError(t, err)
	require.Equal(t, 2, report.Published)
	require.Zero(t, report.Failed)

	for _, sub := range []bus.Subscription{sub1, sub2} {
		select {
		case m := <-sub.C():
			var ev protocol.RotationEventMessage
			require.NoError(t, json.Unmarshal(m.Payload, &ev))
			require.Equal(t, protocol.EventKeyRotation, ev.Event)
			require.Equal(t, sum.RotationID, ev.RotationID)
			require.Equal(t, sum.CurrentPEM, ev.Keys.Current)
			require.NotNil(t, ev.Keys.Old)
			require.Equal(t, sum.OldPEM, *ev.Keys.Old)
		case <-time.After(time.Second):
			t.Fatal("tenant did not receive its rotation event")
		}
	}
}

func TestDistribute_FirstRotationOmitsOldKey(t *testing.T) {
	t.Parallel()

	st := memory.New()
	b := membus.New()
	defer b.Close()
	ctx := context.Background()

	tn := seedTenant(t, st, "t1")
	subject, _ := bus.RotationSubject(tn.ID)
	sub, _ := b.Subscribe(ctx, subject)

	sum := testSummary()
	sum.OldKID, sum.OldPEM = "", ""

	_, err := NewDistributor(b, st.Tenants(), nil).Distribute(ctx, sum)
	require.NoError(t, err)

	m := <-sub.C()
	var ev protocol.RotationEventMessage
	require.NoError(t, json.Unmarshal(m.Payload, &ev))
	require.Nil(t, ev.Keys.Old)
}

func TestDistribute_TenantFailureIsIsolated(t *testing.T) {
	t.Parallel()

	st := memory.New()
	inner := membus.New()
	defer inner.Close()
	ctx := context.Background()

	good := seedTenant(t, st, "good")
	bad := seedTenant(t, st, "bad")

	badSubject, _ := bus.RotationSubject(bad.ID)
	fb := &flakyBus{inner: inner, fail: map[string]bool{badSubject: true}}

	goodSubject, _ := bus.RotationSubject(good.ID)
	sub, _ := inner.Subscribe(ctx, goodSubject)

	notifier := &recordingNotifier{}
	d := NewDistributor(fb, st.Tenants(), notifier)
	sum := testSummary()

	report, err := d.Distribute(ctx, sum)
	require.NoError(t, err, "individual publish failures must not fail the run")
	require.Equal(t, 1, report.Published)
	require.Equal(t, 1, report.Failed)
	require.Equal(t, []string{bad.ID}, report.FailedTenants)

	select {
	case <-sub.C():
	case <-time.After(time.Second):
		t.Fatal("healthy tenant must receive the event despite the failing one")
	}

	require.Equal(t, 1, notifier.calls)
	require.Equal(t, sum.RotationID, notifier.rotationID)
	require.Equal(t, []string{bad.ID}, notifier.tenants)
}

package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/fleetsign/internal/domain/repository"
)

func key(kid string) *repository.SigningKey {
	return &repository.SigningKey{
		KID:          kid,
		PublicKeyPEM: "pem-" + kid,
		Generation:   repository.GenerationCurrent,
		CreatedAt:    time.Now().UTC(),
	}
}

func TestKeys_PromoteDiscipline(t *testing.T) {
	t.Parallel()

	st := New()
	ctx := context.Background()

	_, _, err := st.Keys().GetPair(ctx)
	require.ErrorIs(t, err, repository.ErrNoCurrentKey)

	require.NoError(t, st.Keys().Promote(ctx, key("k1")))
	cur, old, err := st.Keys().GetPair(ctx)
	require.NoError(t, err)
	require.Equal(t, "k1", cur.KID)
	require.Nil(t, old)

	require.NoError(t, st.Keys().Promote(ctx, key("k2")))
	cur, old, err = st.Keys().GetPair(ctx)
	require.NoError(t, err)
	require.Equal(t, "k2", cur.KID)
	require.Equal(t, "k1", old.KID)
	require.Equal(t, repository.GenerationOld, old.Generation)
	require.NotNil(t, old.RetiredAt)

	// Promover la misma current es no-op sobre la old.
	require.NoError(t, st.Keys().Promote(ctx, key("k2")))
	_, old, _ = st.Keys().GetPair(ctx)
	require.Equal(t, "k1", old.KID)

	// Tercera generación: k1 desaparece.
	require.NoError(t, st.Keys().Promote(ctx, key("k3")))
	cur, old, _ = st.Keys().GetPair(ctx)
	require.Equal(t, "k3", cur.KID)
	require.Equal(t, "k2", old.KID)
	_, err = st.Keys().GetByKID(ctx, "k1")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestArtifacts_CRUD(t *testing.T) {
	t.Parallel()

	st := New()
	ctx := context.Background()
	now := time.Now().UTC()

	a := &repository.SignedArtifact{
		ID:        "a1",
		Payload:   []byte("p"),
		Signature: []byte("s"),
		KID:       "k1",
		SignedAt:  now,
		CreatedAt: now,
	}
	require.NoError(t, st.Artifacts().Create(ctx, a))
	require.ErrorIs(t, st.Artifacts().Create(ctx, a), repository.ErrConflict)

	require.NoError(t, st.Artifacts().UpdateSignature(ctx, "a1", []byte("s2"), "k2", now.Add(time.Minute)))
	got, err := st.Artifacts().GetByID(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, []byte("s2"), got.Signature)
	require.Equal(t, "k2", got.KID)

	require.ErrorIs(t, st.Artifacts().UpdateSignature(ctx, "nope", nil, "", now), repository.ErrNotFound)

	all, err := st.Artifacts().ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)

	require.NoError(t, st.Artifacts().Delete(ctx, "a1"))
	_, err = st.Artifacts().GetByID(ctx, "a1")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestTenantsAndAgents(t *testing.T) {
	t.Parallel()

	st := New()
	ctx := context.Background()
	now := time.Now().UTC()

	tn := &repository.Tenant{ID: "t1", Name: "acme", SubjectPrefix: "tenant.t1.", CreatedAt: now}
	require.NoError(t, st.Tenants().Create(ctx, tn))
	require.ErrorIs(t, st.Tenants().Create(ctx, tn), repository.ErrConflict)

	require.NoError(t, st.Tenants().UpdateBusCredentials(ctx, "t1", "new-creds"))
	got, err := st.Tenants().GetByID(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, "new-creds", got.BusCredentials)

	a := &repository.Agent{
		ID:               "ag1",
		TenantID:         "t1",
		Name:             "edge-1",
		ConnectivityMode: repository.ModePolling,
		CreatedAt:        now,
	}
	require.NoError(t, st.Agents().Create(ctx, a))

	seen := now.Add(time.Minute)
	require.NoError(t, st.Agents().UpdateLastSeen(ctx, "ag1", seen))
	gotAgent, err := st.Agents().GetByID(ctx, "ag1")
	require.NoError(t, err)
	require.NotNil(t, gotAgent.LastSeen)
	require.True(t, gotAgent.LastSeen.Equal(seen))

	byTenant, err := st.Agents().ListByTenant(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, byTenant, 1)
	byTenant, err = st.Agents().ListByTenant(ctx, "t2")
	require.NoError(t, err)
	require.Empty(t, byTenant)

	require.NoError(t, st.Agents().Delete(ctx, "ag1"))
	require.ErrorIs(t, st.Agents().Delete(ctx, "ag1"), repository.ErrNotFound)
}

func TestRotationEvents_RecentFirst(t *testing.T) {
	t.Parallel()

	st := New()
	ctx := context.Background()
	base := time.Now().UTC()

	for i, id := range []string{"r1", "r2", "r3"} {
		require.NoError(t, st.RotationEvents().Insert(ctx, &repository.RotationEvent{
			RotationID: id,
			CurrentKID: "k",
			Timestamp:  base.Add(time.Duration(i) * time.Minute),
		}))
	}

	events, err := st.RotationEvents().ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, "r3", events[0].RotationID)
	require.Equal(t, "r2", events[1].RotationID)

	all, err := st.RotationEvents().ListRecent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
}

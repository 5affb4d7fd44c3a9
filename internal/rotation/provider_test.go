package rotation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/fleetsign/internal/domain/repository"
	"github.com/dropDatabas3/fleetsign/internal/signing"
	"github.com/dropDatabas3/fleetsign/internal/store/memory"
)

func promoteKey(t *testing.T, st *memory.Store, pem string) {
	t.Helper()
	require.NoError(t, st.Keys().Promote(context.Background(), &repository.SigningKey{
		KID:          signing.KIDFor(pem),
		PublicKeyPEM: pem,
		Generation:   repository.GenerationCurrent,
		CreatedAt:    time.Now().UTC(),
	}))
}

func newPEM(t *testing.T) string {
	t.Helper()
	c, err := signing.NewLocalCustodian()
	require.NoError(t, err)
	pem, err := c.PublicKeyPEM(context.Background())
	require.NoError(t, err)
	return pem
}

func TestProvider_NoCurrentKey(t *testing.T) {
	t.Parallel()

	p := NewProvider(memory.New().Keys())

	_, err := p.KeyPair(context.Background())
	require.ErrorIs(t, err, repository.ErrNoCurrentKey)
	_, err = p.CurrentKeyHash(context.Background())
	require.ErrorIs(t, err, repository.ErrNoCurrentKey)
}

func TestProvider_ServesPairAndHash(t *testing.T) {
	t.Parallel()

	st := memory.New()
	pemOld := newPEM(t)
	pemNew := newPEM(t)
	promoteKey(t, st, pemOld)
	promoteKey(t, st, pemNew) // pemOld pasa a old

	p := NewProvider(st.Keys())
	ctx := context.Background()

	resp, err := p.KeyPair(ctx)
	require.NoError(t, err)
	require.Equal(t, pemNew, resp.Current)
	require.NotNil(t, resp.Old)
	require.Equal(t, pemOld, *resp.Old)

	hash, err := p.CurrentKeyHash(ctx)
	require.NoError(t, err)
	require.Equal(t, signing.KeyHash(pemNew), hash)
}

func TestProvider_InvalidateBustsCache(t *testing.T) {
	t.Parallel()

	st := memory.New()
	pem1 := newPEM(t)
	promoteKey(t, st, pem1)

	p := NewProvider(st.Keys())
	ctx := context.Background()

	hash1, err := p.CurrentKeyHash(ctx)
	require.NoError(t, err)

	// Rotación: sin Invalidate el hash viejo seguiría cacheado.
	pem2 := newPEM(t)
	promoteKey(t, st, pem2)

	cached, err := p.CurrentKeyHash(ctx)
	require.NoError(t, err)
	require.Equal(t, hash1, cached, "TTL cache still serves the old hash")

	p.Invalidate()
	fresh, err := p.CurrentKeyHash(ctx)
	require.NoError(t, err)
	require.Equal(t, signing.KeyHash(pem2), fresh)
}

func TestJanitor_EvictsExpiredOldKey(t *testing.T) {
	t.Parallel()

	st := memory.New()
	ctx := context.Background()

	pem1 := newPEM(t)
	pem2 := newPEM(t)
	promoteKey(t, st, pem1)
	promoteKey(t, st, pem2) // pem1 retirada ahora

	// Ventana generosa: la clave recién retirada sobrevive.
	j := NewJanitor(st.Keys(), time.Hour)
	n, err := j.SweepOnce(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	// Ventana negativa diminuta ⇒ el cutoff queda en el futuro y la old
	// retirada "hace instantes" ya venció.
	j = &Janitor{keys: st.Keys(), window: -time.Minute, interval: time.Hour}
	n, err = j.SweepOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, old, err := st.Keys().GetPair(ctx)
	require.NoError(t, err)
	require.Nil(t, old)

	_, err = st.Keys().GetByKID(ctx, signing.KIDFor(pem1))
	require.ErrorIs(t, err, repository.ErrNotFound)
}

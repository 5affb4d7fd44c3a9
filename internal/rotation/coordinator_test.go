package rotation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/fleetsign/internal/domain/repository"
	"github.com/dropDatabas3/fleetsign/internal/signing"
	"github.com/dropDatabas3/fleetsign/internal/store/memory"
)

func seedTenant(t *testing.T, st *memory.Store, name string) *repository.Tenant {
	t.Helper()
	id := uuid.NewString()
	tn := &repository.Tenant{
		ID:            id,
		Name:          name,
		SubjectPrefix: "tenant." + id + ".",
		CreatedAt:     time.Now().UTC(),
	}
	require.NoError(t, st.Tenants().Create(context.Background(), tn))
	return tn
}

func seedArtifact(t *testing.T, st *memory.Store, signer *ArtifactSigner, id string) *repository.SignedArtifact {
	t.Helper()
	a, err := signer.SignAndStore(context.Background(), id, "", []byte("payload-"+id))
	require.NoError(t, err)
	return a
}

func TestRun_FirstRotationInstallsCurrent(t *testing.T) {
	t.Parallel()

	st := memory.New()
	custodian, err := signing.NewLocalCustodian()
	require.NoError(t, err)
	coord := NewCoordinator(custodian, st.Keys(), st.Artifacts(), st.Tenants(), st.RotationEvents())

	seedTenant(t, st, "acme")
	ctx := context.Background()

	sum, err := coord.Run(ctx)
	require.NoError(t, err)
	require.True(t, sum.KeyChanged)
	require.Empty(t, sum.OldKID, "first rotation has no old key")
	require.Equal(t, 1, sum.TenantsTargeted)
	require.NotEmpty(t, sum.RotationID)

	current, old, err := st.Keys().GetPair(ctx)
	require.NoError(t, err)
	require.Nil(t, old)
	pub, _ := custodian.PublicKeyPEM(ctx)
	require.Equal(t, signing.KIDFor(pub), current.KID)

	events, err := st.RotationEvents().ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, sum.RotationID, events[0].RotationID)
}

func TestRun_UnchangedKeyIsIdempotent(t *testing.T) {
	t.Parallel()

	st := memory.New()
	custodian, _ := signing.NewLocalCustodian()
	coord := NewCoordinator(custodian, st.Keys(), st.Artifacts(), st.Tenants(), st.RotationEvents())
	signer := NewArtifactSigner(custodian, st.Artifacts())
	ctx := context.Background()

	_, err := coord.Run(ctx)
	require.NoError(t, err)

	art := seedArtifact(t, st, signer, "a1")
	origSig := append([]byte(nil), art.Signature...)

	sum, err := coord.Run(ctx)
	require.NoError(t, err)
	require.False(t, sum.KeyChanged)
	require.Equal(t, 1, sum.ResignedCount)
	require.Zero(t, sum.ResignFailedCount)

	// Misma clave ⇒ firma idéntica (PKCS#1 v1.5 determinístico); solo
	// signed_at se refresca.
	got, err := st.Artifacts().GetByID(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, origSig, got.Signature)

	_, old, err := st.Keys().GetPair(ctx)
	require.NoError(t, err)
	require.Nil(t, old, "unchanged run must not demote anything")
}

func TestRun_RotationPromotesAndResigns(t *testing.T) {
	t.Parallel()

	st := memory.New()
	custodian, _ := signing.NewLocalCustodian()
	coord := NewCoordinator(custodian, st.Keys(), st.Artifacts(), st.Tenants(), st.RotationEvents())
	signer := NewArtifactSigner(custodian, st.Artifacts())
	ctx := context.Background()

	_, err := coord.Run(ctx)
	require.NoError(t, err)
	firstPub, _ := custodian.PublicKeyPEM(ctx)
	firstKID := signing.KIDFor(firstPub)

	seedArtifact(t, st, signer, "a1")
	seedArtifact(t, st, signer, "a2")

	require.NoError(t, custodian.Rotate())

	sum, err := coord.Run(ctx)
	require.NoError(t, err)
	require.True(t, sum.KeyChanged)
	require.Equal(t, firstKID, sum.OldKID)
	require.Equal(t, 2, sum.ResignedCount)

	current, old, err := st.Keys().GetPair(ctx)
	require.NoError(t, err)
	require.Equal(t, sum.CurrentKID, current.KID)
	require.NotNil(t, old)
	require.Equal(t, firstKID, old.KID)
	require.NotNil(t, old.RetiredAt)

	// Todos los artefactos verifican contra la clave nueva.
	newPub, _ := custodian.PublicKeyPEM(ctx)
	for _, id := range []string{"a1", "a2"} {
		a, err := st.Artifacts().GetByID(ctx, id)
		require.NoError(t, err)
		require.Equal(t, sum.CurrentKID, a.KID)
		require.NoError(t, signing.Verify(a.Payload, a.Signature, newPub))
	}
}

func TestRun_ThirdRotationDiscardsOldestKey(t *testing.T) {
	t.Parallel()

	st := memory.New()
	custodian, _ := signing.NewLocalCustodian()
	coord := NewCoordinator(custodian, st.Keys(), st.Artifacts(), st.Tenants(), st.RotationEvents())
	ctx := context.Background()

	_, err := coord.Run(ctx)
	require.NoError(t, err)
	require.NoError(t, custodian.Rotate())
	sum2, err := coord.Run(ctx)
	require.NoError(t, err)
	require.NoError(t, custodian.Rotate())
	sum3, err := coord.Run(ctx)
	require.NoError(t, err)

	current, old, err := st.Keys().GetPair(ctx)
	require.NoError(t, err)
	require.Equal(t, sum3.CurrentKID, current.KID)
	require.Equal(t, sum2.CurrentKID, old.KID)

	// La primera clave ya no existe en ninguna generación.
	_, err = st.Keys().GetByKID(ctx, sum2.OldKID)
	require.ErrorIs(t, err, repository.ErrNotFound)
}

// failingArtifacts envuelve el repo real y hace fallar UpdateSignature para
// un id puntual.
type failingArtifacts struct {
	repository.ArtifactRepository
	failID string
}

func (f *failingArtifacts) UpdateSignature(ctx context.Context, id string, sig []byte, kid string, signedAt time.Time) error {
	if id == f.failID {
		return errors.New("disk full")
	}
	return f.ArtifactRepository.UpdateSignature(ctx, id, sig, kid, signedAt)
}

func TestRun_PartialResignFailureDoesNotAbort(t *testing.T) {
	t.Parallel()

	st := memory.New()
	custodian, _ := signing.NewLocalCustodian()
	signer := NewArtifactSigner(custodian, st.Artifacts())
	ctx := context.Background()

	wrapped := &failingArtifacts{ArtifactRepository: st.Artifacts(), failID: "bad"}
	coord := NewCoordinator(custodian, st.Keys(), wrapped, st.Tenants(), st.RotationEvents())

	_, err := coord.Run(ctx)
	require.NoError(t, err)

	seedArtifact(t, st, signer, "good")
	seedArtifact(t, st, signer, "bad")

	require.NoError(t, custodian.Rotate())
	sum, err := coord.Run(ctx)
	require.NoError(t, err, "a failed artifact must not abort the rotation")
	require.Equal(t, 1, sum.ResignedCount)
	require.Equal(t, 1, sum.ResignFailedCount)

	good, err := st.Artifacts().GetByID(ctx, "good")
	require.NoError(t, err)
	require.Equal(t, sum.CurrentKID, good.KID)

	bad, err := st.Artifacts().GetByID(ctx, "bad")
	require.NoError(t, err)
	require.Equal(t, sum.OldKID, bad.KID, "failed artifact keeps its previous signature")
}

package signing

import (
	"context"
	"testing"
)

func TestSignVerify_RoundTrip(t *testing.T) {
	t.Parallel()

	c, err := NewLocalCustodian()
	if err != nil {
		t.Fatalf("NewLocalCustodian err: %v", err)
	}
	ctx := context.Background()

	payload := []byte(`{"cmd":"deploy","version":"1.2.3"}`)
	sig, err := c.Sign(ctx, payload)
	if err != nil {
		t.Fatalf("Sign err: %v", err)
	}
	pub, err := c.PublicKeyPEM(ctx)
	if err != nil {
		t.Fatalf("PublicKeyPEM err: %v", err)
	}

	if err := Verify(payload, sig, pub); err != nil {
		t.Fatalf("Verify err: %v", err)
	}
}

func TestVerify_RejectsTamperAndWrongKey(t *testing.T) {
	t.Parallel()

	c, _ := NewLocalCustodian()
	ctx := context.Background()

	payload := []byte("artifact payload")
	sig, err := c.Sign(ctx, payload)
	if err != nil {
		t.Fatalf("Sign err: %v", err)
	}
	pub, _ := c.PublicKeyPEM(ctx)

	// payload alterado
	if err := Verify([]byte("artifact payloaD"), sig, pub); err == nil {
		t.Fatal("expected tampered payload to fail verification")
	}

	// otra clave
	other, _ := NewLocalCustodian()
	otherPub, _ := other.PublicKeyPEM(ctx)
	if err := Verify(payload, sig, otherPub); err == nil {
		t.Fatal("expected wrong key to fail verification")
	}
}

func TestSign_Deterministic(t *testing.T) {
	t.Parallel()

	// PKCS#1 v1.5 es determinístico: re-firmar el mismo payload con la
	// misma clave reproduce bytes idénticos.
	c, _ := NewLocalCustodian()
	ctx := context.Background()
	payload := []byte("same payload")

	s1, err := c.Sign(ctx, payload)
	if err != nil {
		t.Fatalf("Sign err: %v", err)
	}
	s2, err := c.Sign(ctx, payload)
	if err != nil {
		t.Fatalf("Sign err: %v", err)
	}
	if string(s1) != string(s2) {
		t.Fatal("expected identical signatures for identical payload+key")
	}
}

func TestKIDFor_DerivedFromContent(t *testing.T) {
	t.Parallel()

	c, _ := NewLocalCustodian()
	ctx := context.Background()
	pub, _ := c.PublicKeyPEM(ctx)

	kid1 := KIDFor(pub)
	kid2 := KIDFor(pub)
	if kid1 == "" || kid1 != kid2 {
		t.Fatalf("KID must be deterministic, got %q / %q", kid1, kid2)
	}

	if err := c.Rotate(); err != nil {
		t.Fatalf("Rotate err: %v", err)
	}
	pub2, _ := c.PublicKeyPEM(ctx)
	if KIDFor(pub2) == kid1 {
		t.Fatal("rotated key must produce a different KID")
	}
	if KeyHash(pub) == KeyHash(pub2) {
		t.Fatal("rotated key must produce a different hash")
	}
}

func TestCustodian_PEMRoundTrip(t *testing.T) {
	t.Parallel()

	c, _ := NewLocalCustodian()
	ctx := context.Background()

	privPEM, err := c.ExportPrivatePEM()
	if err != nil {
		t.Fatalf("ExportPrivatePEM err: %v", err)
	}
	restored, err := NewLocalCustodianFromPEM(privPEM)
	if err != nil {
		t.Fatalf("NewLocalCustodianFromPEM err: %v", err)
	}

	p1, _ := c.PublicKeyPEM(ctx)
	p2, _ := restored.PublicKeyPEM(ctx)
	if KIDFor(p1) != KIDFor(p2) {
		t.Fatal("restored custodian must hold the same key")
	}
}

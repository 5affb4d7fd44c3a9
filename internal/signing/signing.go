// Package signing implementa la criptografía de artefactos: firma y
// verificación RSA PKCS#1 v1.5 / SHA-256, codificación PEM de claves públicas
// y el hash de clave que viaja en los heartbeats.
//
// El material privado vive detrás de la interfaz Custodian; el resto del
// sistema solo ve claves públicas en PEM.
package signing

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
)

var (
	// ErrBadSignature indica que la firma no corresponde al payload bajo la
	// clave dada. No distingue firma corrupta de clave equivocada.
	ErrBadSignature = errors.New("signature verification failed")

	// ErrInvalidPublicKey indica un PEM inválido o que no contiene RSA.
	ErrInvalidPublicKey = errors.New("invalid public key")
)

// Verify chequea que sig sea una firma PKCS#1 v1.5 / SHA-256 de payload bajo
// la clave pública pubPEM. Devuelve ErrBadSignature si no verifica.
//
// La comparación no necesita ser constant-time: lo que se compara es una
// firma sobre contenido público, no un secreto.
func Verify(payload, sig []byte, pubPEM string) error {
	pub, err := ParsePublicKeyPEM(pubPEM)
	if err != nil {
		return err
	}
	digest := sha256.Sum256(payload)
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig); err != nil {
		return ErrBadSignature
	}
	return nil
}

// ParsePublicKeyPEM decodifica una clave pública RSA en formato PKIX/PEM.
func ParsePublicKeyPEM(pubPEM string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pubPEM))
	if block == nil {
		return nil, ErrInvalidPublicKey
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	rsaPub, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, ErrInvalidPublicKey
	}
	return rsaPub, nil
}

// EncodePublicKeyPEM codifica una clave pública RSA como PKIX/PEM.
func EncodePublicKeyPEM(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("marshal public key: %w", err)
	}
	block := &pem.Block{Type: "PUBLIC KEY", Bytes: der}
	return string(pem.EncodeToMemory(block)), nil
}

// KeyHash calcula el hash de contenido de una clave pública PEM: sha256 del
// DER, en hex. Se computa sobre el DER (no sobre el texto PEM) para que
// diferencias de formato no cambien el hash. Devuelve "" si el PEM es
// inválido.
//
// Es lo bastante barato para computarlo en cada heartbeat, pero el server lo
// cachea igual (ver rotation.Distributor).
func KeyHash(pubPEM string) string {
	block, _ := pem.Decode([]byte(pubPEM))
	if block == nil {
		return ""
	}
	sum := sha256.Sum256(block.Bytes)
	return hex.EncodeToString(sum[:])
}

// KIDFor deriva el Key ID de una clave pública PEM. Es determinístico: el
// mismo material produce siempre el mismo KID, lo que hace idempotente la
// detección de rotación en el coordinator.
func KIDFor(pubPEM string) string {
	h := KeyHash(pubPEM)
	if h == "" {
		return ""
	}
	return "kid-" + h[:16]
}

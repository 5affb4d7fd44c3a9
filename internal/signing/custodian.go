package signing

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"sync"
)

// Custodian es el custodio externo de la clave privada de firma (HSM, KMS o
// equivalente). Fleetsign nunca ve el material privado: solo pide firmas y la
// clave pública vigente. La generación y protección de claves queda fuera de
// este módulo.
type Custodian interface {
	// Sign firma payload con la clave privada vigente del custodio.
	Sign(ctx context.Context, payload []byte) ([]byte, error)

	// PublicKeyPEM devuelve la clave pública vigente en PKIX/PEM.
	PublicKeyPEM(ctx context.Context) (string, error)
}

// LocalCustodian es un custodio en memoria para desarrollo y tests. Soporta
// Rotate() para simular que el operador rotó la clave del lado del custodio.
type LocalCustodian struct {
	mu   sync.RWMutex
	priv *rsa.PrivateKey
}

const localKeyBits = 2048

// NewLocalCustodian genera un custodio con una clave RSA-2048 fresca.
func NewLocalCustodian() (*LocalCustodian, error) {
	priv, err := rsa.GenerateKey(rand.Reader, localKeyBits)
	if err != nil {
		return nil, fmt.Errorf("generate rsa key: %w", err)
	}
	return &LocalCustodian{priv: priv}, nil
}

// NewLocalCustodianFromPEM carga un custodio desde una clave privada
// PKCS#8/PEM (o PKCS#1 como fallback).
func NewLocalCustodianFromPEM(privPEM []byte) (*LocalCustodian, error) {
	block, _ := pem.Decode(privPEM)
	if block == nil {
		return nil, fmt.Errorf("invalid private key pem")
	}
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		if rsaKey, ok := key.(*rsa.PrivateKey); ok {
			return &LocalCustodian{priv: rsaKey}, nil
		}
		return nil, fmt.Errorf("private key is not rsa")
	}
	rsaKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return &LocalCustodian{priv: rsaKey}, nil
}

func (c *LocalCustodian) Sign(_ context.Context, payload []byte) ([]byte, error) {
	c.mu.RLock()
	priv := c.priv
	c.mu.RUnlock()

	digest := sha256.Sum256(payload)
	sig, err := rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA256, digest[:])
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	return sig, nil
}

func (c *LocalCustodian) PublicKeyPEM(_ context.Context) (string, error) {
	c.mu.RLock()
	pub := &c.priv.PublicKey
	c.mu.RUnlock()
	return EncodePublicKeyPEM(pub)
}

// Rotate reemplaza la clave privada por una fresca. A partir de acá el
// coordinator detecta el cambio en su próxima corrida.
func (c *LocalCustodian) Rotate() error {
	priv, err := rsa.GenerateKey(rand.Reader, localKeyBits)
	if err != nil {
		return fmt.Errorf("generate rsa key: %w", err)
	}
	c.mu.Lock()
	c.priv = priv
	c.mu.Unlock()
	return nil
}

// ExportPrivatePEM serializa la clave privada vigente en PKCS#8/PEM.
// Solo para persistir el custodio local entre corridas de desarrollo.
func (c *LocalCustodian) ExportPrivatePEM() ([]byte, error) {
	c.mu.RLock()
	priv := c.priv
	c.mu.RUnlock()

	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("marshal private key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// NewEnrollmentCredential genera la credencial opaca que se entrega una sola
// vez al registrar un agente. Solo se persiste su hash.
func NewEnrollmentCredential() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("auth: generate credential: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashCredential hashea una credencial de enrolamiento con bcrypt.
func HashCredential(plain string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("auth: hash credential: %w", err)
	}
	return string(h), nil
}

// VerifyCredential compara una credencial contra su hash almacenado.
func VerifyCredential(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

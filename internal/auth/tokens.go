// Package auth emite y valida los bearer tokens de agentes (HS256) y la API
// key de admin. Los tokens de agente viajan en los endpoints de key-fetch y
// heartbeat; llevan el tenant en los claims, que es lo que scopea la
// respuesta de key-fetch.
//
// Ojo: estos tokens autentican el canal HTTP agente↔service; NO participan de
// la verificación de artefactos, que es puramente RSA contra el key cache.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	"github.com/dropDatabas3/fleetsign/internal/domain/repository"
)

var (
	ErrInvalidToken = errors.New("auth: invalid token")
	ErrExpiredToken = errors.New("auth: expired token")
)

// AgentClaims son los claims de un token de agente.
type AgentClaims struct {
	jwtv5.RegisteredClaims
	TenantID string `json:"tid"`
	Mode     string `json:"mode"` // persistent|polling
}

// TokenManager firma y valida tokens de agente con un secreto compartido.
type TokenManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// DefaultAgentTokenTTL: los agentes renuevan credenciales con el
// re-enrolamiento, no hace falta un TTL corto.
const DefaultAgentTokenTTL = 90 * 24 * time.Hour

func NewTokenManager(secret, issuer string, ttl time.Duration) (*TokenManager, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("auth: agent token secret must be at least 32 bytes")
	}
	if ttl <= 0 {
		ttl = DefaultAgentTokenTTL
	}
	if issuer == "" {
		issuer = "fleetsign"
	}
	return &TokenManager{secret: []byte(secret), issuer: issuer, ttl: ttl}, nil
}

// IssueAgentToken emite el bearer para un agente registrado.
func (m *TokenManager) IssueAgentToken(agent *repository.Agent) (string, error) {
	now := time.Now().UTC()
	claims := AgentClaims{
		RegisteredClaims: jwtv5.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   agent.ID,
			IssuedAt:  jwtv5.NewNumericDate(now),
			ExpiresAt: jwtv5.NewNumericDate(now.Add(m.ttl)),
		},
		TenantID: agent.TenantID,
		Mode:     string(agent.ConnectivityMode),
	}
	tok := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims)
	signed, err := tok.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign agent token: %w", err)
	}
	return signed, nil
}

// VerifyAgentToken valida firma, emisor y expiración, y devuelve los claims.
func (m *TokenManager) VerifyAgentToken(raw string) (*AgentClaims, error) {
	claims := &AgentClaims{}
	tok, err := jwtv5.ParseWithClaims(raw, claims, func(t *jwtv5.Token) (any, error) {
		return m.secret, nil
	}, jwtv5.WithValidMethods([]string{"HS256"}), jwtv5.WithIssuer(m.issuer))
	if err != nil {
		if errors.Is(err, jwtv5.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !tok.Valid || claims.Subject == "" || claims.TenantID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// CheckAdminKey compara la API key presentada contra la configurada.
func CheckAdminKey(configured, presented string) bool {
	if configured == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(configured), []byte(presented)) == 1
}

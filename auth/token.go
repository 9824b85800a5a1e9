// Package auth verifies the short-lived bearer tokens presented at the
// websocket handshake. Tokens are minted by the external REST surface
// with the shared symmetric secret; the realtime core only consumes
// them (Mint exists for the dev CLI and tests).
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenExpired      = errors.New("token expired")
	ErrInvalidSignature  = errors.New("invalid token signature")
	ErrMalformedToken    = errors.New("malformed token")
	ErrInvalidSigningAlg = errors.New("unexpected token signing method")
)

// Identity is the verified content of a token.
type Identity struct {
	AgentId   string
	Name      string
	BodyColor string
}

type agentClaims struct {
	Name      string `json:"name"`
	BodyColor string `json:"bodyColor"`
	jwt.RegisteredClaims
}

// TokenManager mints and verifies HS256 tokens against the shared
// secret.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	return &TokenManager{secret: []byte(secret), ttl: ttl}
}

// Mint signs a token for the given identity, valid for the configured
// TTL from now.
func (m *TokenManager) Mint(id Identity, now time.Time) (string, error) {
	claims := agentClaims{
		Name:      id.Name,
		BodyColor: id.BodyColor,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.AgentId,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("could not sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and expiry and returns the embedded
// identity.
func (m *TokenManager) Verify(tokenString string) (*Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &agentClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidSigningAlg
		}
		return m.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidSigningAlg):
			return nil, ErrInvalidSigningAlg
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrSignatureInvalid):
			return nil, ErrInvalidSignature
		default:
			return nil, fmt.Errorf("%w: %w", ErrMalformedToken, err)
		}
	}
	claims, ok := token.Claims.(*agentClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrMalformedToken
	}
	return &Identity{
		AgentId:   claims.Subject,
		Name:      claims.Name,
		BodyColor: claims.BodyColor,
	}, nil
}

// Package wsauth gates the BotEvent WebSocket upgrade (spec.md §6): a
// single operator presents an admin secret once to mint a short-lived JWT
// bearer token, which is then required as a query-string parameter on
// every `GET /ws/events` upgrade (close code 4001 on rejection).
package wsauth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidToken    = errors.New("invalid or expired token")
	ErrInvalidSecret   = errors.New("invalid admin secret")
	ErrSecretTooLong   = errors.New("admin secret exceeds maximum length")
)

// MaxSecretLength mirrors bcrypt's 72-byte input limit.
const MaxSecretLength = 72

// claims is the token payload minted for the WS bearer token. There is a
// single operator, so the subject is fixed rather than a user ID.
type claims struct {
	jwt.RegisteredClaims
}

// Manager mints and verifies WS bearer tokens and verifies the admin secret
// used to obtain one.
type Manager struct {
	jwtSecret     []byte
	tokenTTL      time.Duration
	adminHash     string // bcrypt hash of the configured admin secret
}

// NewManager creates a Manager. adminSecret is hashed once at construction;
// jwtSecret signs every minted token.
func NewManager(jwtSecret, adminSecret string, tokenTTL time.Duration) (*Manager, error) {
	if len(adminSecret) > MaxSecretLength {
		return nil, ErrSecretTooLong
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(adminSecret), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash admin secret: %w", err)
	}

	return &Manager{
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  tokenTTL,
		adminHash: string(hash),
	}, nil
}

// VerifyAdminSecret checks a presented secret against the configured admin
// secret's bcrypt hash.
func (m *Manager) VerifyAdminSecret(secret string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(m.adminHash), []byte(secret)); err != nil {
		return ErrInvalidSecret
	}
	return nil
}

// MintToken issues a new bearer token for the WS upgrade, valid for
// tokenTTL from now.
func (m *Manager) MintToken() (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(m.tokenTTL)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "operator",
			Issuer:    "kraken-autotrade",
			Audience:  []string{"ws-events"},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})

	signed, err := token.SignedString(m.jwtSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, expiresAt, nil
}

// VerifyToken validates a bearer token presented on the WS upgrade.
func (m *Manager) VerifyToken(tokenString string) error {
	token, err := jwt.ParseWithClaims(tokenString, &claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.jwtSecret, nil
	})

	if err != nil || !token.Valid {
		return ErrInvalidToken
	}

	if _, ok := token.Claims.(*claims); !ok {
		return ErrInvalidToken
	}

	return nil
}

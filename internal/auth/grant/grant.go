// Package grant mints and verifies the signed token a bound session hands
// back to the engine. The grant proves the address/slot pairing came from
// the auth service and not from a spoofed status response.
package grant

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/mandelmonkey/goldenpie/internal/errors"
)

// DefaultTTL bounds how long a minted grant stays verifiable.
const DefaultTTL = time.Hour

// Claims is the verified content of a grant token.
type Claims struct {
	Slot    int
	Address string
}

// Signer mints and verifies HMAC-signed grant tokens.
type Signer struct {
	secret []byte
	ttl    time.Duration
	clock  func() time.Time
}

// NewSigner builds a signer from a shared secret. An empty secret is
// rejected so a misconfigured deployment cannot mint trivially forgeable
// grants.
func NewSigner(secret string, ttl time.Duration) (*Signer, error) {
	if secret == "" {
		return nil, fmt.Errorf("grant secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Signer{secret: []byte(secret), ttl: ttl, clock: time.Now}, nil
}

// Mint signs a grant binding address to slot.
func (s *Signer) Mint(slot int, address string) (string, error) {
	now := s.clock()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  address,
		"slot": slot,
		"iat":  now.Unix(),
		"exp":  now.Add(s.ttl).Unix(),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign grant: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and expiry and returns the bound claims.
func (s *Signer) Verify(token string) (Claims, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.clock), jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return Claims{}, apperrors.Wrap(apperrors.CodeAuthInvalidGrant, "grant verification failed", err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return Claims{}, apperrors.New(apperrors.CodeAuthInvalidGrant, "grant claims missing")
	}
	address, _ := claims["sub"].(string)
	slot, _ := claims["slot"].(float64)
	if address == "" || slot == 0 {
		return Claims{}, apperrors.New(apperrors.CodeAuthInvalidGrant, "grant claims incomplete")
	}
	return Claims{Slot: int(slot), Address: address}, nil
}

// Package security authenticates callers of the HTTP transport.
package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/alem-hub/progression-ledger/internal/domain/shared"
)

var (
	// ErrInvalidToken is returned for any token that fails verification.
	ErrInvalidToken = errors.New("invalid token")

	// ErrMissingSubject is returned when a valid token has no subject.
	ErrMissingSubject = errors.New("token has no subject")
)

// TokenManager signs and verifies HS256 caller tokens. The "sub" claim is
// the owner identity.
type TokenManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenManager creates a TokenManager. An empty issuer disables the
// issuer check.
func NewTokenManager(secret, issuer string) *TokenManager {
	return &TokenManager{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    time.Hour,
		now:    time.Now,
	}
}

// Generate issues a token for owner. Used by tests and local tooling; the
// ledger itself only verifies.
func (m *TokenManager) Generate(owner shared.Owner) (string, error) {
	if !owner.IsValid() {
		return "", fmt.Errorf("generate token: owner %q is invalid", owner)
	}
	now := m.now()
	claims := jwt.RegisteredClaims{
		Subject:   owner.String(),
		Issuer:    m.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Verify checks signature, expiry and issuer, and returns the caller.
func (m *TokenManager) Verify(tokenStr string) (shared.Owner, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return "", ErrInvalidToken
	}

	owner := shared.Owner(claims.Subject)
	if owner.IsEmpty() {
		return "", ErrMissingSubject
	}
	if !owner.IsValid() {
		return "", fmt.Errorf("%w: subject is not a valid owner", ErrInvalidToken)
	}
	return owner, nil
}

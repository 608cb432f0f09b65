package security

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/alem-hub/progression-ledger/internal/domain/shared"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestTokenManager_RoundTrip(t *testing.T) {
	m := NewTokenManager(testSecret, "ledger-test")

	token, err := m.Generate("alice")
	require.NoError(t, err)

	owner, err := m.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, shared.Owner("alice"), owner)
}

func TestTokenManager_Rejects(t *testing.T) {
	m := NewTokenManager(testSecret, "ledger-test")
	now := time.Now()

	sign := func(method jwt.SigningMethod, key interface{}, claims jwt.Claims) string {
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return s
	}
	valid := func(sub string) jwt.RegisteredClaims {
		return jwt.RegisteredClaims{
			Subject:   sub,
			Issuer:    "ledger-test",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		}
	}

	expired := valid("alice")
	expired.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Minute))

	wrongIssuer := valid("alice")
	wrongIssuer.Issuer = "someone-else"

	noExpiry := valid("alice")
	noExpiry.ExpiresAt = nil

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"garbage", "not-a-token", ErrInvalidToken},
		{"wrong secret", sign(jwt.SigningMethodHS256, []byte("other-secret"), valid("alice")), ErrInvalidToken},
		{"none algorithm", sign(jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, valid("alice")), ErrInvalidToken},
		{"HS512", sign(jwt.SigningMethodHS512, []byte(testSecret), valid("alice")), ErrInvalidToken},
		{"expired", sign(jwt.SigningMethodHS256, []byte(testSecret), expired), ErrInvalidToken},
		{"no expiry", sign(jwt.SigningMethodHS256, []byte(testSecret), noExpiry), ErrInvalidToken},
		{"wrong issuer", sign(jwt.SigningMethodHS256, []byte(testSecret), wrongIssuer), ErrInvalidToken},
		{"no subject", sign(jwt.SigningMethodHS256, []byte(testSecret), valid("")), ErrMissingSubject},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Verify(tt.token)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestTokenManager_GenerateRejectsInvalidOwner(t *testing.T) {
	_, err := NewTokenManager(testSecret, "").Generate("")
	assert.Error(t, err)
}

func TestAPIKeyChecker(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("op-key"), bcrypt.MinCost)
	require.NoError(t, err)

	c := NewAPIKeyChecker([]string{" ", string(hash)})
	assert.True(t, c.Enabled())
	assert.NoError(t, c.Check("op-key"))
	assert.ErrorIs(t, c.Check("wrong"), ErrInvalidAPIKey)
	assert.ErrorIs(t, c.Check(""), ErrInvalidAPIKey)

	assert.False(t, NewAPIKeyChecker(nil).Enabled())
	assert.ErrorIs(t, NewAPIKeyChecker(nil).Check("op-key"), ErrInvalidAPIKey)
}

func TestHashAPIKey(t *testing.T) {
	hash, err := HashAPIKey("op-key")
	require.NoError(t, err)
	assert.NoError(t, NewAPIKeyChecker([]string{hash}).Check("op-key"))
}

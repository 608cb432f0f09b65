package security

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidAPIKey is returned when no configured hash matches.
var ErrInvalidAPIKey = errors.New("invalid api key")

// APIKeyChecker matches operator keys against bcrypt hashes.
type APIKeyChecker struct {
	hashes [][]byte
}

// NewAPIKeyChecker creates a checker. Blank hashes are skipped.
func NewAPIKeyChecker(hashes []string) *APIKeyChecker {
	c := &APIKeyChecker{}
	for _, h := range hashes {
		if h = strings.TrimSpace(h); h != "" {
			c.hashes = append(c.hashes, []byte(h))
		}
	}
	return c
}

// Enabled reports whether any key is configured.
func (c *APIKeyChecker) Enabled() bool {
	return len(c.hashes) > 0
}

// Check returns nil if key matches a configured hash.
func (c *APIKeyChecker) Check(key string) error {
	if key == "" {
		return ErrInvalidAPIKey
	}
	for _, h := range c.hashes {
		if bcrypt.CompareHashAndPassword(h, []byte(key)) == nil {
			return nil
		}
	}
	return ErrInvalidAPIKey
}

// HashAPIKey produces the value to put in AUTH_API_KEY_HASHES.
func HashAPIKey(key string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	return string(b), err
}

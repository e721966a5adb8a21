package secrets

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

// DefaultLength is the number of random bytes behind generated codes,
// client secrets, and magic-link tokens.
const DefaultLength = 32

// Generate creates a cryptographically secure random value of DefaultLength
// bytes, base64url encoded without padding.
func Generate() (string, error) {
	return GenerateN(DefaultLength)
}

// GenerateN creates a base64url encoded random value of n bytes.
func GenerateN(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("could not generate secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Equal compares two opaque secrets in constant time.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

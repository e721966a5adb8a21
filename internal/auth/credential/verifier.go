// Package credential verifies user-supplied secrets against stored digests.
//
// Stored digests come in two formats. Legacy digests are the lowercase hex
// SHA-256 of the secret with no salt; every record created before bcrypt was
// introduced uses this format and must keep verifying. Bcrypt digests are
// recognized by their "$2" prefix. Which format new digests use is an operator
// decision (Algorithm), never an implicit upgrade.
package credential

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Algorithm selects how new digests are computed.
type Algorithm string

const (
	AlgorithmSHA256 Algorithm = "sha256"
	AlgorithmBcrypt Algorithm = "bcrypt"
)

// ErrEmptySecret is returned by Digest for an empty secret.
var ErrEmptySecret = errors.New("secret cannot be empty")

// Verifier computes and checks credential digests.
type Verifier struct {
	algorithm Algorithm
	cost      int
}

// New returns a Verifier producing digests with algorithm. Unknown values
// fall back to AlgorithmSHA256 so stored-data compatibility is the default.
func New(algorithm Algorithm) *Verifier {
	if algorithm != AlgorithmBcrypt {
		algorithm = AlgorithmSHA256
	}
	return &Verifier{algorithm: algorithm, cost: bcrypt.DefaultCost}
}

// Algorithm reports the algorithm used for new digests.
func (v *Verifier) Algorithm() Algorithm {
	return v.algorithm
}

// Digest computes the stored form of secret.
func (v *Verifier) Digest(secret string) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}
	if v.algorithm == AlgorithmBcrypt {
		hashed, err := bcrypt.GenerateFromPassword([]byte(secret), v.cost)
		if err != nil {
			return "", fmt.Errorf("could not hash secret: %w", err)
		}
		return string(hashed), nil
	}
	return sha256Hex(secret), nil
}

// Verify reports whether supplied matches storedDigest. Any mismatch,
// including empty or malformed input, returns false.
func (v *Verifier) Verify(supplied, storedDigest string) bool {
	if supplied == "" || storedDigest == "" {
		return false
	}
	if isBcrypt(storedDigest) {
		return bcrypt.CompareHashAndPassword([]byte(storedDigest), []byte(supplied)) == nil
	}
	computed := sha256Hex(supplied)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(strings.ToLower(storedDigest))) == 1
}

func sha256Hex(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func isBcrypt(digest string) bool {
	return strings.HasPrefix(digest, "$2a$") ||
		strings.HasPrefix(digest, "$2b$") ||
		strings.HasPrefix(digest, "$2y$")
}

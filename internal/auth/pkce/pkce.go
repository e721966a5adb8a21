// Package pkce verifies Proof Key for Code Exchange verifiers (RFC 7636).
package pkce

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
)

// MethodS256 is the only supported code_challenge_method.
const MethodS256 = "S256"

var (
	// ErrUnsupportedMethod is returned for any method other than S256,
	// including "plain".
	ErrUnsupportedMethod = errors.New("unsupported code_challenge_method")
	// ErrMismatch is returned when the verifier does not hash to the challenge.
	ErrMismatch = errors.New("code_verifier does not match code_challenge")
)

// IsSupportedMethod reports whether method can be verified.
func IsSupportedMethod(method string) bool {
	return method == MethodS256
}

// Verify checks codeVerifier against storedChallenge. Challenges are accepted
// in the RFC 7636 encoding (unpadded base64url) and in lowercase hex, which
// earlier clients of this server were told to send.
func Verify(codeVerifier, storedChallenge, method string) error {
	if !IsSupportedMethod(method) {
		return ErrUnsupportedMethod
	}
	if codeVerifier == "" || storedChallenge == "" {
		return ErrMismatch
	}

	sum := sha256.Sum256([]byte(codeVerifier))
	if isHexChallenge(storedChallenge) {
		if constantTimeEqual(hex.EncodeToString(sum[:]), strings.ToLower(storedChallenge)) {
			return nil
		}
		return ErrMismatch
	}
	if constantTimeEqual(base64.RawURLEncoding.EncodeToString(sum[:]), storedChallenge) {
		return nil
	}
	return ErrMismatch
}

// ChallengeS256 derives the base64url S256 challenge for verifier.
func ChallengeS256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// A SHA-256 digest is 64 hex characters; its base64url form is 43 characters,
// so the two encodings cannot be confused.
func isHexChallenge(challenge string) bool {
	if len(challenge) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(challenge)
	return err == nil
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

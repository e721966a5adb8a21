package models

import "time"

// AuthorizationCodeRecord is a one-time grant binding a user, client,
// redirect URI, scope, and optional PKCE challenge.
//
// States: issued -> used (terminal). Expiry is evaluated at redemption time
// rather than stored as a transition.
type AuthorizationCodeRecord struct {
	Code                string
	UserID              string
	ClientID            string
	RedirectURI         string
	Scope               string
	CodeChallenge       string
	CodeChallengeMethod string
	ExpiresAt           time.Time
	Used                bool
	CreatedAt           time.Time
}

// HasChallenge reports whether redemption requires a code_verifier.
func (r *AuthorizationCodeRecord) HasChallenge() bool {
	return r.CodeChallenge != ""
}

// IsExpired reports whether the code is unusable at now. A code is valid
// strictly before ExpiresAt.
func (r *AuthorizationCodeRecord) IsExpired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

func (r *AuthorizationCodeRecord) MarkUsed() {
	r.Used = true
}

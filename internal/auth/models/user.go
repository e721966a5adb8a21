package models

import (
	"strings"
	"time"
)

// Role gates administrative login. Federated and provider logins never change
// a stored role.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User is the local identity record.
//
// Invariants:
//   - Email is unique across all users, compared exactly as stored
//   - PasswordDigest is empty for federated-only accounts
//   - Users are never hard-deleted by this module
type User struct {
	ID              string     `json:"id"`
	Email           string     `json:"email"`
	Name            string     `json:"name,omitempty"`
	Image           string     `json:"image,omitempty"`
	PasswordDigest  string     `json:"-"`
	Role            Role       `json:"role"`
	EmailVerifiedAt *time.Time `json:"email_verified_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (u *User) IsEmailVerified() bool {
	return u.EmailVerifiedAt != nil && !u.EmailVerifiedAt.IsZero()
}

func (u *User) HasPassword() bool {
	return u.PasswordDigest != ""
}

// DefaultName derives a display name from the local part of an email.
func DefaultName(email string) string {
	if local, _, ok := strings.Cut(email, "@"); ok && local != "" {
		return local
	}
	return email
}

// AccountType classifies how a LinkedAccount was established.
type AccountType string

const (
	AccountTypeOAuth       AccountType = "oauth"
	AccountTypeOIDC        AccountType = "oidc"
	AccountTypeCredentials AccountType = "credentials"
	AccountTypeEmail       AccountType = "email"
)

// LinkedAccount associates a User with an external identity. The pair
// (Provider, ProviderAccountID) maps to at most one user.
type LinkedAccount struct {
	UserID            string      `json:"user_id"`
	Type              AccountType `json:"type"`
	Provider          string      `json:"provider"`
	ProviderAccountID string      `json:"provider_account_id"`
	AccessToken       string      `json:"-"`
	RefreshToken      string      `json:"-"`
	IDToken           string      `json:"-"`
	TokenType         string      `json:"token_type,omitempty"`
	Scope             string      `json:"scope,omitempty"`
	ExpiresAt         *time.Time  `json:"expires_at,omitempty"`
}

package identity

import (
	"strings"
	"time"

	"idhub/internal/auth/models"
	dErrors "idhub/pkg/domain-errors"
)

// Capability names one way of proving identity. A Linker only resolves the
// capabilities it was configured with.
type Capability string

const (
	CapabilityPassword  Capability = "password"
	CapabilityIDToken   Capability = "id_token"
	CapabilityProvider  Capability = "oauth_provider"
	CapabilityMagicLink Capability = "magic_link"
)

// Assertion is an inbound login claim. Each variant maps to one Capability.
type Assertion interface {
	Capability() Capability
}

// PasswordAssertion is an email and password pair.
type PasswordAssertion struct {
	Email    string
	Password string
}

func (PasswordAssertion) Capability() Capability { return CapabilityPassword }

// IDTokenAssertion carries a provider-signed ID token (Google one-tap style).
type IDTokenAssertion struct {
	Provider string
	Token    string
}

func (IDTokenAssertion) Capability() Capability { return CapabilityIDToken }

// ProviderAssertion carries an identity already obtained from an upstream
// OAuth/OIDC provider through a code exchange.
type ProviderAssertion struct {
	Identity ProviderIdentity
}

func (ProviderAssertion) Capability() Capability { return CapabilityProvider }

// MagicLinkAssertion carries a single-use email login token.
type MagicLinkAssertion struct {
	Token string
}

func (MagicLinkAssertion) Capability() Capability { return CapabilityMagicLink }

// ProviderIdentity is what an external provider asserts about a user.
type ProviderIdentity struct {
	Provider      string
	AccountID     string
	Type          models.AccountType
	Email         string
	EmailVerified bool
	Name          string
	Image         string

	AccessToken  string
	RefreshToken string
	IDToken      string
	TokenType    string
	Scope        string
	ExpiresAt    *time.Time
}

func (p *ProviderIdentity) normalize() {
	p.Provider = strings.TrimSpace(p.Provider)
	p.AccountID = strings.TrimSpace(p.AccountID)
	p.Email = strings.TrimSpace(p.Email)
	p.Name = strings.TrimSpace(p.Name)
	if p.Type == "" {
		p.Type = models.AccountTypeOAuth
	}
}

func (p *ProviderIdentity) validate() error {
	if p.Provider == "" || p.AccountID == "" {
		return dErrors.New(dErrors.CodeInvalidCredentials, "provider identity is incomplete")
	}
	if p.Email == "" {
		return dErrors.New(dErrors.CodeInvalidCredentials, "provider did not supply an email address")
	}
	return nil
}

func (p *ProviderIdentity) account(userID string) *models.LinkedAccount {
	return &models.LinkedAccount{
		UserID:            userID,
		Type:              p.Type,
		Provider:          p.Provider,
		ProviderAccountID: p.AccountID,
		AccessToken:       p.AccessToken,
		RefreshToken:      p.RefreshToken,
		IDToken:           p.IDToken,
		TokenType:         p.TokenType,
		Scope:             p.Scope,
		ExpiresAt:         p.ExpiresAt,
	}
}

// FederatedClaims are the fields extracted from a verified ID token.
type FederatedClaims struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
}

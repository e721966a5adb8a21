package models

import (
	"net/url"
	"slices"
	"strings"
	"time"

	dErrors "idhub/pkg/domain-errors"
)

// Client is a registered relying party.
//
// Invariants:
//   - ClientID is non-empty, unique, and immutable after creation
//   - RedirectURIs is non-empty and every entry is an absolute URI
//   - A redirect_uri in any request must be a literal member of RedirectURIs
//   - ClientSecret is opaque and compared exactly
type Client struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Domain        string    `json:"domain,omitempty"`
	ClientID      string    `json:"client_id"`
	ClientSecret  string    `json:"-"`
	RedirectURIs  []string  `json:"redirect_uris"`
	AllowedScopes []string  `json:"allowed_scopes"`
	CreatedBy     string    `json:"created_by,omitempty"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func NewClient(id, name, domain, clientID, clientSecret string, redirectURIs, allowedScopes []string, createdBy string, now time.Time) (*Client, error) {
	if strings.TrimSpace(name) == "" {
		return nil, dErrors.New(dErrors.CodeInvalidRequest, "client name cannot be empty")
	}
	if len(name) > 128 {
		return nil, dErrors.New(dErrors.CodeInvalidRequest, "client name must be 128 characters or less")
	}
	if clientID == "" {
		return nil, dErrors.New(dErrors.CodeInvalidRequest, "client_id cannot be empty")
	}
	if clientSecret == "" {
		return nil, dErrors.New(dErrors.CodeInvalidRequest, "client_secret cannot be empty")
	}
	if len(redirectURIs) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidRequest, "redirect_uris cannot be empty")
	}
	for _, uri := range redirectURIs {
		u, err := url.Parse(uri)
		if err != nil || !u.IsAbs() || u.Fragment != "" {
			return nil, dErrors.New(dErrors.CodeInvalidRequest, "redirect_uris must be absolute URIs without fragments")
		}
	}
	return &Client{
		ID:            id,
		Name:          name,
		Domain:        domain,
		ClientID:      clientID,
		ClientSecret:  clientSecret,
		RedirectURIs:  redirectURIs,
		AllowedScopes: allowedScopes,
		CreatedBy:     createdBy,
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func (c *Client) IsActive() bool {
	return c.Active
}

// HasRedirectURI reports literal membership; no normalization is applied.
func (c *Client) HasRedirectURI(uri string) bool {
	return slices.Contains(c.RedirectURIs, uri)
}

// AllowsScopes reports whether every space-separated scope is permitted.
// A client with no AllowedScopes does not restrict scope.
func (c *Client) AllowsScopes(scope string) bool {
	if len(c.AllowedScopes) == 0 {
		return true
	}
	for _, s := range strings.Fields(scope) {
		if !slices.Contains(c.AllowedScopes, s) {
			return false
		}
	}
	return true
}

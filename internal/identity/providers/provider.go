// Package providers talks to upstream OAuth/OIDC identity providers. It
// returns identity facts only; creating or linking users is the Linker's job.
package providers

import (
	"context"
	"net/http"
	"slices"
	"time"

	"idhub/internal/identity"
)

const defaultHTTPTimeout = 10 * time.Second

// OAuthProvider runs the authorization code flow against one upstream.
type OAuthProvider interface {
	Name() string
	// AuthCodeURL builds the upstream authorization URL. codeChallenge is an
	// S256 PKCE challenge.
	AuthCodeURL(state, codeChallenge string) string
	// Exchange redeems the upstream code and returns the normalized identity.
	Exchange(ctx context.Context, code, codeVerifier string) (*identity.ProviderIdentity, error)
}

// Registry maps provider names to implementations.
type Registry struct {
	providers map[string]OAuthProvider
}

func NewRegistry(ps ...OAuthProvider) *Registry {
	r := &Registry{providers: make(map[string]OAuthProvider, len(ps))}
	for _, p := range ps {
		r.providers[p.Name()] = p
	}
	return r
}

func (r *Registry) Get(name string) (OAuthProvider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

// Names lists registered providers in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (r *Registry) Len() int {
	return len(r.providers)
}

func defaultClient(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return &http.Client{Timeout: defaultHTTPTimeout}
}

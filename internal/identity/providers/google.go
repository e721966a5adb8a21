package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"idhub/internal/auth/models"
	"idhub/internal/identity"
)

const (
	GoogleName   = "google"
	googleIssuer = "https://accounts.google.com"
)

// GoogleConfig configures Google sign-in. IssuerURL is only overridden in tests.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	IssuerURL    string
	HTTPClient   *http.Client
}

// Google implements OAuthProvider and identity.IDTokenVerifier.
type Google struct {
	oauth      *oauth2.Config
	verifier   *oidc.IDTokenVerifier
	httpClient *http.Client
}

// NewGoogle runs OIDC discovery against the issuer.
func NewGoogle(ctx context.Context, cfg GoogleConfig) (*Google, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("google client id and secret are required")
	}
	issuer := cfg.IssuerURL
	if issuer == "" {
		issuer = googleIssuer
	}
	httpClient := defaultClient(cfg.HTTPClient)

	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, httpClient), issuer)
	if err != nil {
		return nil, fmt.Errorf("google oidc discovery: %w", err)
	}
	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Endpoint:     provider.Endpoint(),
		Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
	}
	return newGoogle(oauthCfg, provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}), httpClient), nil
}

func newGoogle(cfg *oauth2.Config, verifier *oidc.IDTokenVerifier, httpClient *http.Client) *Google {
	return &Google{oauth: cfg, verifier: verifier, httpClient: defaultClient(httpClient)}
}

func (g *Google) Name() string {
	return GoogleName
}

func (g *Google) AuthCodeURL(state, codeChallenge string) string {
	return g.oauth.AuthCodeURL(state,
		oauth2.AccessTypeOnline,
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

func (g *Google) Exchange(ctx context.Context, code, codeVerifier string) (*identity.ProviderIdentity, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)
	token, err := g.oauth.Exchange(ctx, code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		return nil, errors.Join(identity.ErrAssertionRejected, fmt.Errorf("google token exchange: %w", err))
	}
	rawIDToken, _ := token.Extra("id_token").(string)
	if rawIDToken == "" {
		return nil, errors.Join(identity.ErrAssertionRejected, errors.New("google did not return an id_token"))
	}
	claims, err := g.VerifyIDToken(ctx, rawIDToken)
	if err != nil {
		return nil, err
	}

	id := &identity.ProviderIdentity{
		Provider:      GoogleName,
		AccountID:     claims.Subject,
		Type:          models.AccountTypeOIDC,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Name:          claims.Name,
		Image:         claims.Picture,
		AccessToken:   token.AccessToken,
		RefreshToken:  token.RefreshToken,
		IDToken:       rawIDToken,
		TokenType:     token.TokenType,
		Scope:         strings.Join(g.oauth.Scopes, " "),
	}
	if !token.Expiry.IsZero() {
		expiry := token.Expiry
		id.ExpiresAt = &expiry
	}
	return id, nil
}

// VerifyIDToken checks a Google ID token against the published keys and this
// client id, as used by one-tap sign-in.
func (g *Google) VerifyIDToken(ctx context.Context, rawToken string) (*identity.FederatedClaims, error) {
	idToken, err := g.verifier.Verify(oidc.ClientContext(ctx, g.httpClient), rawToken)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.Join(identity.ErrAssertionRejected, fmt.Errorf("google id token: %w", err))
	}
	var claims struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, errors.Join(identity.ErrAssertionRejected, fmt.Errorf("google id token claims: %w", err))
	}
	return &identity.FederatedClaims{
		Subject:       idToken.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Name:          claims.Name,
		Picture:       claims.Picture,
	}, nil
}

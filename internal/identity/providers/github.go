package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
	oauthgithub "golang.org/x/oauth2/github"

	"idhub/internal/auth/models"
	"idhub/internal/identity"
)

const (
	GitHubName    = "github"
	githubAPIBase = "https://api.github.com"
)

type GitHubConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	HTTPClient   *http.Client
}

// GitHub implements OAuthProvider for GitHub OAuth apps.
type GitHub struct {
	oauth      *oauth2.Config
	apiBase    string
	httpClient *http.Client
}

func NewGitHub(cfg GitHubConfig) (*GitHub, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("github client id and secret are required")
	}
	return newGitHub(&oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Endpoint:     oauthgithub.Endpoint,
		Scopes:       []string{"read:user", "user:email"},
	}, githubAPIBase, cfg.HTTPClient), nil
}

func newGitHub(cfg *oauth2.Config, apiBase string, httpClient *http.Client) *GitHub {
	return &GitHub{oauth: cfg, apiBase: strings.TrimRight(apiBase, "/"), httpClient: defaultClient(httpClient)}
}

func (g *GitHub) Name() string {
	return GitHubName
}

func (g *GitHub) AuthCodeURL(state, codeChallenge string) string {
	return g.oauth.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

type githubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

func (g *GitHub) Exchange(ctx context.Context, code, codeVerifier string) (*identity.ProviderIdentity, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)
	token, err := g.oauth.Exchange(ctx, code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		return nil, errors.Join(identity.ErrAssertionRejected, fmt.Errorf("github token exchange: %w", err))
	}
	client := g.oauth.Client(ctx, token)

	var user githubUser
	if err := g.getJSON(ctx, client, "/user", &user); err != nil {
		return nil, err
	}
	var emails []githubEmail
	if err := g.getJSON(ctx, client, "/user/emails", &emails); err != nil {
		return nil, err
	}
	email, verified := primaryEmail(emails)
	if email == "" {
		email = user.Email
	}

	name := user.Name
	if name == "" {
		name = user.Login
	}
	scope, _ := token.Extra("scope").(string)
	return &identity.ProviderIdentity{
		Provider:      GitHubName,
		AccountID:     strconv.FormatInt(user.ID, 10),
		Type:          models.AccountTypeOAuth,
		Email:         email,
		EmailVerified: verified,
		Name:          name,
		Image:         user.AvatarURL,
		AccessToken:   token.AccessToken,
		TokenType:     token.TokenType,
		Scope:         scope,
	}, nil
}

// primaryEmail prefers the verified primary address, then any verified one.
func primaryEmail(emails []githubEmail) (string, bool) {
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email, true
		}
	}
	for _, e := range emails {
		if e.Verified {
			return e.Email, true
		}
	}
	return "", false
}

func (g *GitHub) getJSON(ctx context.Context, client *http.Client, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.apiBase+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("github %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("github %s: unexpected status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("github %s: decode: %w", path, err)
	}
	return nil
}

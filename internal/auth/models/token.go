package models

import (
	"strings"

	dErrors "idhub/pkg/domain-errors"
)

type GrantType string

// GrantAuthorizationCode is the only grant this server redeems.
const GrantAuthorizationCode GrantType = "authorization_code"

// TokenTypeBearer is returned verbatim in token responses.
const TokenTypeBearer = "Bearer"

// AuthorizationRequest asks for a code on behalf of an authenticated user.
type AuthorizationRequest struct {
	UserID              string `json:"-"`
	ClientID            string `json:"client_id"`
	RedirectURI         string `json:"redirect_uri"`
	Scope               string `json:"scope"`
	State               string `json:"state,omitempty"`
	CodeChallenge       string `json:"code_challenge,omitempty"`
	CodeChallengeMethod string `json:"code_challenge_method,omitempty"`
}

func (r *AuthorizationRequest) Normalize() {
	r.ClientID = strings.TrimSpace(r.ClientID)
	r.RedirectURI = strings.TrimSpace(r.RedirectURI)
	r.Scope = strings.Join(strings.Fields(r.Scope), " ")
	r.CodeChallenge = strings.TrimSpace(r.CodeChallenge)
	r.CodeChallengeMethod = strings.TrimSpace(r.CodeChallengeMethod)
}

func (r *AuthorizationRequest) Validate() error {
	if r.UserID == "" {
		return dErrors.New(dErrors.CodeUnauthorized, "authenticated user is required")
	}
	if r.ClientID == "" {
		return dErrors.New(dErrors.CodeInvalidRequest, "client_id is required")
	}
	if r.RedirectURI == "" {
		return dErrors.New(dErrors.CodeInvalidRequest, "redirect_uri is required")
	}
	if r.CodeChallengeMethod != "" && r.CodeChallenge == "" {
		return dErrors.New(dErrors.CodeInvalidRequest, "code_challenge_method requires code_challenge")
	}
	return nil
}

type AuthorizationResult struct {
	Code        string `json:"code"`
	RedirectURI string `json:"redirect_uri"`
	State       string `json:"state,omitempty"`
}

// TokenRequest carries the token endpoint parameters. Field names are part
// of the wire contract for both JSON and form-encoded bodies.
type TokenRequest struct {
	GrantType    string `json:"grant_type"`
	Code         string `json:"code"`
	RedirectURI  string `json:"redirect_uri"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	CodeVerifier string `json:"code_verifier,omitempty"`
}

func (r *TokenRequest) Normalize() {
	r.GrantType = strings.TrimSpace(r.GrantType)
	r.Code = strings.TrimSpace(r.Code)
	r.RedirectURI = strings.TrimSpace(r.RedirectURI)
	r.ClientID = strings.TrimSpace(r.ClientID)
}

// Validate enforces the grant type and required fields, in that order.
func (r *TokenRequest) Validate() error {
	if GrantType(r.GrantType) != GrantAuthorizationCode {
		return dErrors.New(dErrors.CodeUnsupportedGrantType, "grant_type must be authorization_code")
	}
	if r.Code == "" || r.ClientID == "" || r.RedirectURI == "" {
		return dErrors.New(dErrors.CodeInvalidRequest, "code, client_id and redirect_uri are required")
	}
	return nil
}

type TokenResult struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope"`
}

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body interface{}) error
	POSTForm(path string, form url.Values, headers map[string]string) error
	GET(path string, headers map[string]string) error
	GetResponseField(field string) (interface{}, error)
	GetLastResponseStatus() int
	GetLastResponseHeader(name string) string
	GetClientID() string
	GetClientSecret() string
	GetRedirectURI() string
	GetSessionToken() string
	SetSessionToken(token string)
	GetAuthCode() string
	SetAuthCode(code string)
	GetVerifier() string
	SetVerifier(verifier string)
	GetAccessToken() string
	SetAccessToken(token string)
}

// RegisterSteps registers authentication-related step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &authSteps{tc: tc}

	// Accounts and sessions
	ctx.Step(`^a user "([^"]*)" registered with password "([^"]*)"$`, steps.registerUser)
	ctx.Step(`^I log in with password "([^"]*)"$`, steps.loginWithPassword)

	// Authorization steps
	ctx.Step(`^I authorize with scope "([^"]*)" and state "([^"]*)"$`, steps.authorize)
	ctx.Step(`^I authorize without a session$`, steps.authorizeWithoutSession)
	ctx.Step(`^I should be redirected back with the code and state "([^"]*)"$`, steps.redirectedWithCode)
	ctx.Step(`^I exchange the authorization code for tokens$`, steps.exchangeCodeForTokens)
	ctx.Step(`^I exchange the authorization code with verifier "([^"]*)"$`, steps.exchangeWithVerifier)
	ctx.Step(`^I exchange invalid authorization code "([^"]*)"$`, steps.exchangeInvalidCode)
	ctx.Step(`^I attempt to reuse the same authorization code$`, steps.reuseAuthorizationCode)
	ctx.Step(`^I POST to the token endpoint with grant_type "([^"]*)"$`, steps.postWithGrantType)

	// Userinfo
	ctx.Step(`^I request user info with the access token$`, steps.requestUserInfo)
	ctx.Step(`^I request user info with token "([^"]*)"$`, steps.requestUserInfoWithToken)
}

type authSteps struct {
	tc    TestContext
	email string
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// registerUser makes the local part unique so reruns against the same
// database do not conflict.
func (s *authSteps) registerUser(ctx context.Context, email, password string) error {
	local, domain, ok := strings.Cut(email, "@")
	if !ok {
		return fmt.Errorf("invalid email %q", email)
	}
	s.email = local + "+" + randomHex(4) + "@" + domain
	if err := s.tc.POST("/auth/register", map[string]string{
		"email":    s.email,
		"password": password,
		"name":     local,
	}); err != nil {
		return err
	}
	if got := s.tc.GetLastResponseStatus(); got != 201 {
		return fmt.Errorf("register returned %d", got)
	}
	return nil
}

func (s *authSteps) loginWithPassword(ctx context.Context, password string) error {
	if err := s.tc.POST("/auth/login/password", map[string]string{
		"email":    s.email,
		"password": password,
	}); err != nil {
		return err
	}
	if s.tc.GetLastResponseStatus() != 200 {
		return nil
	}
	token, err := s.tc.GetResponseField("session_token")
	if err != nil {
		return err
	}
	s.tc.SetSessionToken(token.(string))
	return nil
}

func (s *authSteps) authorizeQuery(scope, state string) string {
	verifier := randomHex(32)
	s.tc.SetVerifier(verifier)
	sum := sha256.Sum256([]byte(verifier))
	return url.Values{
		"client_id":             {s.tc.GetClientID()},
		"redirect_uri":          {s.tc.GetRedirectURI()},
		"scope":                 {scope},
		"state":                 {state},
		"code_challenge":        {base64.RawURLEncoding.EncodeToString(sum[:])},
		"code_challenge_method": {"S256"},
	}.Encode()
}

func (s *authSteps) authorize(ctx context.Context, scope, state string) error {
	return s.tc.GET("/oauth/authorize?"+s.authorizeQuery(scope, state), map[string]string{
		"Authorization": "Bearer " + s.tc.GetSessionToken(),
	})
}

func (s *authSteps) authorizeWithoutSession(ctx context.Context) error {
	return s.tc.GET("/oauth/authorize?"+s.authorizeQuery("openid", "none"), nil)
}

func (s *authSteps) redirectedWithCode(ctx context.Context, state string) error {
	if got := s.tc.GetLastResponseStatus(); got != 302 {
		return fmt.Errorf("expected redirect, got %d", got)
	}
	loc, err := url.Parse(s.tc.GetLastResponseHeader("Location"))
	if err != nil {
		return err
	}
	want, err := url.Parse(s.tc.GetRedirectURI())
	if err != nil {
		return err
	}
	if loc.Host != want.Host || loc.Path != want.Path {
		return fmt.Errorf("redirected to %s, want %s", loc, want)
	}
	if got := loc.Query().Get("state"); got != state {
		return fmt.Errorf("expected state %q, got %q", state, got)
	}
	code := loc.Query().Get("code")
	if code == "" {
		return fmt.Errorf("redirect carries no code: %s", loc)
	}
	s.tc.SetAuthCode(code)
	return nil
}

func (s *authSteps) exchange(code, verifier string) error {
	return s.tc.POSTForm("/oauth/token", url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {s.tc.GetRedirectURI()},
		"client_id":     {s.tc.GetClientID()},
		"client_secret": {s.tc.GetClientSecret()},
		"code_verifier": {verifier},
	}, nil)
}

func (s *authSteps) exchangeCodeForTokens(ctx context.Context) error {
	if err := s.exchange(s.tc.GetAuthCode(), s.tc.GetVerifier()); err != nil {
		return err
	}
	if s.tc.GetLastResponseStatus() == 200 {
		token, err := s.tc.GetResponseField("access_token")
		if err != nil {
			return err
		}
		s.tc.SetAccessToken(token.(string))
	}
	return nil
}

func (s *authSteps) exchangeWithVerifier(ctx context.Context, verifier string) error {
	return s.exchange(s.tc.GetAuthCode(), verifier)
}

func (s *authSteps) exchangeInvalidCode(ctx context.Context, code string) error {
	return s.exchange(code, s.tc.GetVerifier())
}

func (s *authSteps) reuseAuthorizationCode(ctx context.Context) error {
	return s.exchange(s.tc.GetAuthCode(), s.tc.GetVerifier())
}

func (s *authSteps) postWithGrantType(ctx context.Context, grantType string) error {
	return s.tc.POSTForm("/oauth/token", url.Values{
		"grant_type":   {grantType},
		"code":         {"some-code"},
		"redirect_uri": {s.tc.GetRedirectURI()},
		"client_id":    {s.tc.GetClientID()},
	}, nil)
}

func (s *authSteps) requestUserInfo(ctx context.Context) error {
	return s.requestUserInfoWithToken(ctx, s.tc.GetAccessToken())
}

func (s *authSteps) requestUserInfoWithToken(ctx context.Context, token string) error {
	return s.tc.GET("/oauth/userinfo", map[string]string{
		"Authorization": "Bearer " + token,
	})
}

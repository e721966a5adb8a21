package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"idhub/internal/auth/handler/mocks"
	"idhub/internal/auth/models"
	"idhub/internal/auth/service"
	"idhub/internal/identity"
	jwttoken "idhub/internal/jwt_token"
	"idhub/internal/platform/config"
	"idhub/internal/platform/middleware"
	dErrors "idhub/pkg/domain-errors"
	"idhub/pkg/platform/middleware/auth"
)

type stubSessions struct{}

func (stubSessions) ValidateToken(token string) (*auth.JWTClaims, error) {
	if token != "session-ok" {
		return nil, errors.New("bad token")
	}
	return &auth.JWTClaims{UserID: "u1", Role: "user"}, nil
}

type stubProvider struct {
	gotCode, gotVerifier string
	identity             *identity.ProviderIdentity
	err                  error
}

func (p *stubProvider) Name() string { return "github" }

func (p *stubProvider) AuthCodeURL(state, challenge string) string {
	return "https://github.example/authorize?state=" + url.QueryEscape(state) + "&code_challenge=" + url.QueryEscape(challenge)
}

func (p *stubProvider) Exchange(_ context.Context, code, verifier string) (*identity.ProviderIdentity, error) {
	p.gotCode, p.gotVerifier = code, verifier
	return p.identity, p.err
}

type HandlerSuite struct {
	suite.Suite
	engine     *mocks.MockEngine
	identities *mocks.MockIdentities
	providers  *mocks.MockProviderRegistry
	tokens     *mocks.MockAccessTokenValidator
	router     chi.Router
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.engine = mocks.NewMockEngine(ctrl)
	s.identities = mocks.NewMockIdentities(ctrl)
	s.providers = mocks.NewMockProviderRegistry(ctrl)
	s.tokens = mocks.NewMockAccessTokenValidator(ctrl)
	s.router = s.newRouter(Config{
		Capabilities: config.Capabilities{Password: true, GitHubLogin: true},
	})
}

func (s *HandlerSuite) newRouter(cfg Config) chi.Router {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := New(s.engine, s.identities, s.providers, s.tokens, stubSessions{}, cfg, logger)
	r := chi.NewRouter()
	h.Register(r)
	return r
}

func (s *HandlerSuite) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) decode(rec *httptest.ResponseRecorder) map[string]any {
	var body map[string]any
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func (s *HandlerSuite) TestTokenJSON() {
	s.engine.EXPECT().ExchangeToken(gomock.Any(), &models.TokenRequest{
		GrantType: "authorization_code", Code: "K", RedirectURI: "https://app/cb",
		ClientID: "c1", ClientSecret: "s1", CodeVerifier: "verifier1",
	}).Return(&models.TokenResult{AccessToken: "jwt", TokenType: "Bearer", ExpiresIn: 3600, Scope: "openid"}, nil)

	req := httptest.NewRequest(http.MethodPost, "/oauth/token", strings.NewReader(
		`{"grant_type":"authorization_code","code":"K","redirect_uri":"https://app/cb","client_id":"c1","client_secret":"s1","code_verifier":"verifier1"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := s.serve(req)

	s.Equal(http.StatusOK, rec.Code)
	s.Equal("no-store", rec.Header().Get("Cache-Control"))
	body := s.decode(rec)
	s.Equal("jwt", body["access_token"])
	s.Equal("Bearer", body["token_type"])
	s.EqualValues(3600, body["expires_in"])
	s.Equal("openid", body["scope"])
}

func (s *HandlerSuite) TestTokenForm() {
	s.engine.EXPECT().ExchangeToken(gomock.Any(), &models.TokenRequest{
		GrantType: "authorization_code", Code: "K", RedirectURI: "https://app/cb",
		ClientID: "c1", ClientSecret: "s1",
	}).Return(&models.TokenResult{AccessToken: "jwt", TokenType: "Bearer"}, nil)

	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {"K"},
		"redirect_uri":  {"https://app/cb"},
		"client_id":     {"c1"},
		"client_secret": {"s1"},
	}
	req := httptest.NewRequest(http.MethodPost, "/oauth/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	s.Equal(http.StatusOK, s.serve(req).Code)
}

func (s *HandlerSuite) TestTokenBasicAuth() {
	s.engine.EXPECT().ExchangeToken(gomock.Any(), &models.TokenRequest{
		GrantType: "authorization_code", Code: "K", RedirectURI: "https://app/cb",
		ClientID: "c1", ClientSecret: "s1",
	}).Return(&models.TokenResult{AccessToken: "jwt", TokenType: "Bearer"}, nil)

	form := url.Values{"grant_type": {"authorization_code"}, "code": {"K"}, "redirect_uri": {"https://app/cb"}}
	req := httptest.NewRequest(http.MethodPost, "/oauth/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth("c1", "s1")
	s.Equal(http.StatusOK, s.serve(req).Code)
}

func (s *HandlerSuite) TestTokenBasicAuthChallenge() {
	s.Run("failed basic credentials get a Basic challenge", func() {
		s.engine.EXPECT().ExchangeToken(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeInvalidClient, "client authentication failed"))
		form := url.Values{"grant_type": {"authorization_code"}, "code": {"K"}, "redirect_uri": {"https://app/cb"}}
		req := httptest.NewRequest(http.MethodPost, "/oauth/token", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.SetBasicAuth("c1", "wrong")
		rec := s.serve(req)

		s.Equal(http.StatusUnauthorized, rec.Code)
		s.Equal(`Basic realm="idhub"`, rec.Header().Get("WWW-Authenticate"))
	})

	s.Run("body credentials get no challenge", func() {
		s.engine.EXPECT().ExchangeToken(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeInvalidClient, "client authentication failed"))
		req := httptest.NewRequest(http.MethodPost, "/oauth/token", strings.NewReader(`{"grant_type":"authorization_code","client_id":"c1","client_secret":"wrong"}`))
		req.Header.Set("Content-Type", "application/json")
		rec := s.serve(req)

		s.Equal(http.StatusUnauthorized, rec.Code)
		s.Empty(rec.Header().Get("WWW-Authenticate"))
	})

	s.Run("other errors with basic credentials get no challenge", func() {
		s.engine.EXPECT().ExchangeToken(gomock.Any(), gomock.Any()).Return(nil, errExpiredCode)
		form := url.Values{"grant_type": {"authorization_code"}, "code": {"K"}, "redirect_uri": {"https://app/cb"}}
		req := httptest.NewRequest(http.MethodPost, "/oauth/token", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.SetBasicAuth("c1", "s1")
		rec := s.serve(req)

		s.Equal(http.StatusBadRequest, rec.Code)
		s.Empty(rec.Header().Get("WWW-Authenticate"))
	})
}

var errExpiredCode = dErrors.New(dErrors.CodeInvalidGrant, "authorization code is invalid or expired")

func (s *HandlerSuite) TestTokenErrors() {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
		desc   bool
	}{
		{"invalid grant", dErrors.New(dErrors.CodeInvalidGrant, "authorization code is invalid or expired"), http.StatusBadRequest, "invalid_grant", true},
		{"invalid client", dErrors.New(dErrors.CodeInvalidClient, "client authentication failed"), http.StatusUnauthorized, "invalid_client", true},
		{"unsupported grant", dErrors.New(dErrors.CodeUnsupportedGrantType, "grant_type must be authorization_code"), http.StatusBadRequest, "unsupported_grant_type", true},
		{"server error hides detail", dErrors.Wrap(errors.New("db down"), dErrors.CodeInternal, "failed"), http.StatusInternalServerError, "server_error", false},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.engine.EXPECT().ExchangeToken(gomock.Any(), gomock.Any()).Return(nil, tt.err)
			req := httptest.NewRequest(http.MethodPost, "/oauth/token", strings.NewReader(`{"grant_type":"x"}`))
			req.Header.Set("Content-Type", "application/json")
			rec := s.serve(req)

			s.Equal(tt.status, rec.Code)
			s.Equal("no-store", rec.Header().Get("Cache-Control"))
			body := s.decode(rec)
			s.Equal(tt.code, body["error"])
			_, hasDesc := body["error_description"]
			s.Equal(tt.desc, hasDesc)
		})
	}
}

func (s *HandlerSuite) TestTokenMalformedJSON() {
	req := httptest.NewRequest(http.MethodPost, "/oauth/token", strings.NewReader(`{`))
	req.Header.Set("Content-Type", "application/json")
	rec := s.serve(req)
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Equal("invalid_request", s.decode(rec)["error"])
}

func (s *HandlerSuite) authorizeQuery() string {
	return "/oauth/authorize?" + url.Values{
		"client_id":             {"c1"},
		"redirect_uri":          {"https://app/cb"},
		"scope":                 {"openid"},
		"state":                 {"xyz"},
		"code_challenge":        {"abc"},
		"code_challenge_method": {"S256"},
	}.Encode()
}

func (s *HandlerSuite) TestAuthorizeRequiresSession() {
	rec := s.serve(httptest.NewRequest(http.MethodGet, s.authorizeQuery(), nil))
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *HandlerSuite) TestAuthorizeRedirects() {
	s.engine.EXPECT().StartAuthorization(gomock.Any(), &models.AuthorizationRequest{
		UserID: "u1", ClientID: "c1", RedirectURI: "https://app/cb", Scope: "openid",
		State: "xyz", CodeChallenge: "abc", CodeChallengeMethod: "S256",
	}).Return(&models.AuthorizationResult{Code: "K", RedirectURI: "https://app/cb?tenant=a", State: "xyz"}, nil)

	req := httptest.NewRequest(http.MethodGet, s.authorizeQuery(), nil)
	req.AddCookie(&http.Cookie{Name: auth.SessionCookie, Value: "session-ok"})
	rec := s.serve(req)

	s.Equal(http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	s.Require().NoError(err)
	s.Equal("app", loc.Host)
	s.Equal("K", loc.Query().Get("code"))
	s.Equal("xyz", loc.Query().Get("state"))
	s.Equal("a", loc.Query().Get("tenant"))
}

func (s *HandlerSuite) TestAuthorizeJSON() {
	s.engine.EXPECT().StartAuthorization(gomock.Any(), gomock.Any()).
		Return(&models.AuthorizationResult{Code: "K", RedirectURI: "https://app/cb", State: "xyz"}, nil)

	req := httptest.NewRequest(http.MethodPost, "/oauth/authorize",
		strings.NewReader(`{"client_id":"c1","redirect_uri":"https://app/cb"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer session-ok")
	rec := s.serve(req)

	s.Equal(http.StatusOK, rec.Code)
	s.Equal("K", s.decode(rec)["code"])
}

func (s *HandlerSuite) TestAuthorizeRejected() {
	s.engine.EXPECT().StartAuthorization(gomock.Any(), gomock.Any()).
		Return(nil, dErrors.New(dErrors.CodeInvalidRequest, "redirect_uri is not registered for this client"))

	req := httptest.NewRequest(http.MethodGet, s.authorizeQuery(), nil)
	req.Header.Set("Authorization", "Bearer session-ok")
	rec := s.serve(req)

	s.Equal(http.StatusBadRequest, rec.Code)
	s.Empty(rec.Header().Get("Location"))
}

func (s *HandlerSuite) TestUserInfo() {
	s.Run("missing token", func() {
		rec := s.serve(httptest.NewRequest(http.MethodGet, "/oauth/userinfo", nil))
		s.Equal(http.StatusUnauthorized, rec.Code)
	})

	s.Run("valid token", func() {
		claims := &jwttoken.AccessTokenClaims{}
		claims.Subject = "u1"
		s.tokens.EXPECT().ValidateIssued("access").Return(claims, nil)
		s.engine.EXPECT().UserInfo(gomock.Any(), "u1").
			Return(&models.User{ID: "u1", Email: "u1@example.com", Name: "U", Role: models.RoleUser}, nil)

		req := httptest.NewRequest(http.MethodGet, "/oauth/userinfo", nil)
		req.Header.Set("Authorization", "Bearer access")
		rec := s.serve(req)

		s.Equal(http.StatusOK, rec.Code)
		body := s.decode(rec)
		s.Equal("u1", body["sub"])
		s.Equal("u1@example.com", body["email"])
		s.Equal(false, body["email_verified"])
	})
}

func (s *HandlerSuite) TestConfig() {
	rec := s.serve(httptest.NewRequest(http.MethodGet, "/auth/config", nil))
	s.Equal(http.StatusOK, rec.Code)
	body := s.decode(rec)
	s.Equal(true, body["enablePasswordLogin"])
	s.Equal(false, body["enableMagicLink"])
	s.Equal(true, body["enableGithubLogin"])
}

func (s *HandlerSuite) TestRegister() {
	s.identities.EXPECT().Register(gomock.Any(), identity.RegisterRequest{
		Email: "new@example.com", Password: "longenough", Name: "New",
	}).Return(&models.User{ID: "u9"}, nil)

	req := httptest.NewRequest(http.MethodPost, "/auth/register",
		strings.NewReader(`{"email":"new@example.com","password":"longenough","name":"New"}`))
	rec := s.serve(req)

	s.Equal(http.StatusCreated, rec.Code)
	s.Equal("u9", s.decode(rec)["userId"])
}

func (s *HandlerSuite) TestRegisterConflict() {
	s.identities.EXPECT().Register(gomock.Any(), gomock.Any()).
		Return(nil, dErrors.New(dErrors.CodeConflict, "user already exists"))

	req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(`{"email":"a@b.c","password":"x"}`))
	s.Equal(http.StatusConflict, s.serve(req).Code)
}

func (s *HandlerSuite) TestPasswordLoginSetsSessionCookie() {
	s.engine.EXPECT().Login(gomock.Any(), identity.PasswordAssertion{Email: "admin@example.com", Password: "pw"}).
		Return(&service.LoginResult{User: &models.User{ID: "u1"}, SessionToken: "sess", ExpiresIn: 60}, nil)

	req := httptest.NewRequest(http.MethodPost, "/auth/login/password",
		strings.NewReader(`{"email":"admin@example.com","password":"pw"}`))
	rec := s.serve(req)

	s.Equal(http.StatusOK, rec.Code)
	s.Equal("sess", s.decode(rec)["session_token"])
	cookies := rec.Result().Cookies()
	s.Require().Len(cookies, 1)
	s.Equal(auth.SessionCookie, cookies[0].Name)
	s.Equal("sess", cookies[0].Value)
	s.True(cookies[0].HttpOnly)
}

func (s *HandlerSuite) TestPasswordLoginRejected() {
	s.engine.EXPECT().Login(gomock.Any(), gomock.Any()).
		Return(nil, dErrors.New(dErrors.CodeInvalidCredentials, "invalid email or password"))

	req := httptest.NewRequest(http.MethodPost, "/auth/login/password", strings.NewReader(`{"email":"a@b.c","password":"no"}`))
	rec := s.serve(req)

	s.Equal(http.StatusUnauthorized, rec.Code)
	s.Equal("invalid_credentials", s.decode(rec)["error"])
	s.Empty(rec.Result().Cookies())
}

func (s *HandlerSuite) TestIDTokenLogin() {
	s.engine.EXPECT().Login(gomock.Any(), identity.IDTokenAssertion{Provider: "google", Token: "raw"}).
		Return(&service.LoginResult{User: &models.User{ID: "u1"}, SessionToken: "sess", ExpiresIn: 60}, nil)

	req := httptest.NewRequest(http.MethodPost, "/auth/login/id-token", strings.NewReader(`{"provider":"google","id_token":"raw"}`))
	s.Equal(http.StatusOK, s.serve(req).Code)
}

func (s *HandlerSuite) TestLoginRateLimited() {
	s.router = s.newRouter(Config{LoginLimiter: middleware.NewKeyedLimiter(1, 1)})
	s.engine.EXPECT().Login(gomock.Any(), gomock.Any()).
		Return(nil, dErrors.New(dErrors.CodeInvalidCredentials, "invalid email or password"))

	first := s.serve(httptest.NewRequest(http.MethodPost, "/auth/login/password", strings.NewReader(`{}`)))
	s.Equal(http.StatusUnauthorized, first.Code)
	second := s.serve(httptest.NewRequest(http.MethodPost, "/auth/login/password", strings.NewReader(`{}`)))
	s.Equal(http.StatusTooManyRequests, second.Code)
}

func (s *HandlerSuite) TestMagicLink() {
	s.Run("request", func() {
		s.identities.EXPECT().RequestMagicLink(gomock.Any(), "ada@example.com").Return(nil)
		req := httptest.NewRequest(http.MethodPost, "/auth/magic-link", strings.NewReader(`{"email":"ada@example.com"}`))
		s.Equal(http.StatusAccepted, s.serve(req).Code)
	})

	s.Run("verify redirects with session", func() {
		s.engine.EXPECT().Login(gomock.Any(), identity.MagicLinkAssertion{Token: "tok"}).
			Return(&service.LoginResult{User: &models.User{ID: "u1"}, SessionToken: "sess", ExpiresIn: 60}, nil)
		rec := s.serve(httptest.NewRequest(http.MethodGet, "/auth/magic-link/verify?token=tok", nil))
		s.Equal(http.StatusFound, rec.Code)
		s.Equal("/", rec.Header().Get("Location"))
		s.Require().NotEmpty(rec.Result().Cookies())
	})

	s.Run("verify without token", func() {
		rec := s.serve(httptest.NewRequest(http.MethodGet, "/auth/magic-link/verify", nil))
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}

func (s *HandlerSuite) TestProviderStartUnknown() {
	s.providers.EXPECT().Get("myspace").Return(nil, false)
	rec := s.serve(httptest.NewRequest(http.MethodGet, "/auth/providers/myspace/start", nil))
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *HandlerSuite) TestProviderRoundTrip() {
	provider := &stubProvider{identity: &identity.ProviderIdentity{Provider: "github", AccountID: "42", Email: "gh@example.com"}}
	s.providers.EXPECT().Get("github").Return(provider, true).Times(2)

	start := s.serve(httptest.NewRequest(http.MethodGet, "/auth/providers/github/start?return_to=/dashboard", nil))
	s.Require().Equal(http.StatusFound, start.Code)
	loc, err := url.Parse(start.Header().Get("Location"))
	s.Require().NoError(err)
	state := loc.Query().Get("state")
	s.NotEmpty(state)
	s.NotEmpty(loc.Query().Get("code_challenge"))

	s.engine.EXPECT().Login(gomock.Any(), identity.ProviderAssertion{Identity: *provider.identity}).
		Return(&service.LoginResult{User: &models.User{ID: "u1"}, SessionToken: "sess", ExpiresIn: 60}, nil)

	cb := httptest.NewRequest(http.MethodGet, "/auth/providers/github/callback?code=up&state="+url.QueryEscape(state), nil)
	var verifier string
	for _, c := range start.Result().Cookies() {
		cb.AddCookie(c)
		if c.Name == verifierCookie {
			verifier = c.Value
		}
	}
	rec := s.serve(cb)

	s.Equal(http.StatusFound, rec.Code)
	s.Equal("/dashboard", rec.Header().Get("Location"))
	s.Equal("up", provider.gotCode)
	s.Equal(verifier, provider.gotVerifier)
}

func (s *HandlerSuite) TestProviderCallbackStateMismatch() {
	s.providers.EXPECT().Get("github").Return(&stubProvider{}, true)
	req := httptest.NewRequest(http.MethodGet, "/auth/providers/github/callback?code=up&state=forged", nil)
	req.AddCookie(&http.Cookie{Name: stateCookie, Value: "real"})
	req.AddCookie(&http.Cookie{Name: verifierCookie, Value: "v"})
	rec := s.serve(req)

	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestProviderCallbackRejectedExchange() {
	provider := &stubProvider{err: errors.Join(identity.ErrAssertionRejected, errors.New("bad code"))}
	s.providers.EXPECT().Get("github").Return(provider, true)
	req := httptest.NewRequest(http.MethodGet, "/auth/providers/github/callback?code=up&state=st", nil)
	req.AddCookie(&http.Cookie{Name: stateCookie, Value: "st"})
	req.AddCookie(&http.Cookie{Name: verifierCookie, Value: "v"})
	rec := s.serve(req)

	s.Equal(http.StatusUnauthorized, rec.Code)
	s.Equal("invalid_credentials", s.decode(rec)["error"])
}

func TestIsLocalPath(t *testing.T) {
	for p, want := range map[string]bool{
		"/":                true,
		"/dashboard?tab=1": true,
		"//evil.example":   false,
		"https://evil":     false,
		"/\\evil.example":  false,
		"":                 false,
	} {
		if got := isLocalPath(p); got != want {
			t.Errorf("isLocalPath(%q) = %v, want %v", p, got, want)
		}
	}
}

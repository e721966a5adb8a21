// Package handler exposes the authorization engine and the login methods
// over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"idhub/internal/auth/models"
	"idhub/internal/auth/service"
	"idhub/internal/identity"
	"idhub/internal/identity/providers"
	jwttoken "idhub/internal/jwt_token"
	"idhub/internal/platform/config"
	"idhub/internal/platform/middleware"
	dErrors "idhub/pkg/domain-errors"
	"idhub/pkg/platform/httputil"
	"idhub/pkg/platform/middleware/auth"
	request "idhub/pkg/platform/middleware/request"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks

type Engine interface {
	StartAuthorization(ctx context.Context, req *models.AuthorizationRequest) (*models.AuthorizationResult, error)
	ExchangeToken(ctx context.Context, req *models.TokenRequest) (*models.TokenResult, error)
	Login(ctx context.Context, a identity.Assertion) (*service.LoginResult, error)
	UserInfo(ctx context.Context, userID string) (*models.User, error)
}

type Identities interface {
	Register(ctx context.Context, req identity.RegisterRequest) (*models.User, error)
	RequestMagicLink(ctx context.Context, address string) error
}

type ProviderRegistry interface {
	Get(name string) (providers.OAuthProvider, bool)
}

// AccessTokenValidator checks access tokens presented to userinfo.
type AccessTokenValidator interface {
	ValidateIssued(token string) (*jwttoken.AccessTokenClaims, error)
}

// Config is the transport-level configuration.
type Config struct {
	Capabilities config.Capabilities
	// SecureCookies marks session and flow cookies Secure.
	SecureCookies bool
	// LoginLimiter throttles credential-bearing routes per client IP. Nil
	// disables throttling.
	LoginLimiter *middleware.KeyedLimiter
}

type Handler struct {
	engine     Engine
	identities Identities
	providers  ProviderRegistry
	tokens     AccessTokenValidator
	sessions   auth.JWTValidator
	cfg        Config
	logger     *slog.Logger
}

func New(
	engine Engine,
	identities Identities,
	providers ProviderRegistry,
	tokens AccessTokenValidator,
	sessions auth.JWTValidator,
	cfg Config,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		engine:     engine,
		identities: identities,
		providers:  providers,
		tokens:     tokens,
		sessions:   sessions,
		cfg:        cfg,
		logger:     logger,
	}
}

// Register mounts the OAuth and login routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Post("/oauth/token", h.handleToken)
	r.Get("/oauth/userinfo", h.handleUserInfo)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(h.sessions, h.logger))
		r.Get("/oauth/authorize", h.handleAuthorize)
		r.Post("/oauth/authorize", h.handleAuthorize)
	})

	r.Get("/auth/config", h.handleConfig)
	r.Get("/auth/magic-link/verify", h.handleMagicLinkVerify)
	r.Get("/auth/providers/{provider}/start", h.handleProviderStart)
	r.Get("/auth/providers/{provider}/callback", h.handleProviderCallback)
	r.Group(func(r chi.Router) {
		if h.cfg.LoginLimiter != nil {
			r.Use(middleware.RateLimitByIP(h.cfg.LoginLimiter))
		}
		r.Post("/auth/register", h.handleRegister)
		r.Post("/auth/login/password", h.handlePasswordLogin)
		r.Post("/auth/login/id-token", h.handleIDTokenLogin)
		r.Post("/auth/magic-link", h.handleMagicLinkRequest)
	})
}

func (h *Handler) handleConfig(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.cfg.Capabilities)
}

// writeFailure logs server errors with the request id and renders err.
func (h *Handler) writeFailure(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	if dErrors.HasCode(err, dErrors.CodeInternal) {
		h.logger.ErrorContext(ctx, msg,
			"request_id", request.GetRequestID(ctx),
			"error", err,
		)
	} else {
		h.logger.WarnContext(ctx, msg,
			"request_id", request.GetRequestID(ctx),
			"error", dErrors.CodeOf(err),
		)
	}
	httputil.WriteError(w, err)
}

func isJSON(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "application/json"
}

func wantsJSON(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Accept"))
	return err == nil && mt == "application/json"
}

const maxBodyBytes = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return dErrors.New(dErrors.CodeInvalidRequest, "invalid request body")
	}
	return nil
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, res *service.LoginResult) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    res.SessionToken,
		Path:     "/",
		MaxAge:   res.ExpiresIn,
		Expires:  time.Now().Add(time.Duration(res.ExpiresIn) * time.Second),
		HttpOnly: true,
		Secure:   h.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// Package httpapi composes the public HTTP surface: shared middleware,
// health and metrics endpoints, and the auth and client handlers.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	authhandler "idhub/internal/auth/handler"
	clienthandler "idhub/internal/client/handler"
	jwttoken "idhub/internal/jwt_token"
	"idhub/internal/platform/metrics"
	"idhub/internal/platform/middleware"
	"idhub/pkg/platform/httputil"
	"idhub/pkg/platform/middleware/auth"
	"idhub/pkg/platform/middleware/metadata"
	request "idhub/pkg/platform/middleware/request"
	"idhub/pkg/platform/middleware/requesttime"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Deps is everything the router needs. Tokens signs both access and session
// tokens; sessions are the ones whose audience is the issuer.
type Deps struct {
	Engine     authhandler.Engine
	Identities authhandler.Identities
	Providers  authhandler.ProviderRegistry
	Tokens     *jwttoken.JWTService
	Clients    clienthandler.Registry

	Auth           authhandler.Config
	AdminToken     string
	RequestTimeout time.Duration

	// Checks are run by /health, keyed by the name reported in the body.
	Checks map[string]HealthCheck
	// MetricsHandler is mounted at /metrics when set.
	MetricsHandler http.Handler

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// NewRouter wires all public endpoints.
func NewRouter(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(middleware.Logger(d.Logger, d.Metrics))
	r.Use(middleware.Recoverer(d.Logger))
	if d.RequestTimeout > 0 {
		r.Use(chimw.Timeout(d.RequestTimeout))
	}

	sessions := jwttoken.NewJWTServiceAdapter(d.Tokens)

	r.Get("/health", healthHandler(d.Checks))
	if d.MetricsHandler != nil {
		r.Handle("/metrics", d.MetricsHandler)
	}

	authhandler.New(d.Engine, d.Identities, d.Providers, d.Tokens, sessions, d.Auth, d.Logger).Register(r)

	r.Group(func(r chi.Router) {
		r.Use(auth.OptionalAuth(sessions))
		clienthandler.New(d.Clients, d.AdminToken, d.Logger, d.Metrics).Register(r)
	})
	return r
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := make(map[string]string, len(checks))
		code := http.StatusOK
		for name, check := range checks {
			if err := check(r.Context()); err != nil {
				status[name] = "unavailable"
				code = http.StatusServiceUnavailable
				continue
			}
			status[name] = "ok"
		}
		httputil.WriteJSON(w, code, status)
	}
}

package main

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	authhandler "idhub/internal/auth/handler"
	httpapi "idhub/internal/http"
	"idhub/internal/platform/middleware"
)

func (a *app) router() http.Handler {
	checks := map[string]httpapi.HealthCheck{"database": a.db.PingContext}
	if a.redis != nil {
		checks["redis"] = a.redis.Health
	}

	return httpapi.NewRouter(httpapi.Deps{
		Engine:     a.engine,
		Identities: a.linker,
		Providers:  a.providers,
		Tokens:     a.jwt,
		Clients:    a.clients,
		Auth: authhandler.Config{
			Capabilities:  a.cfg.Capabilities(),
			SecureCookies: strings.HasPrefix(a.cfg.Server.PublicURL, "https://"),
			LoginLimiter:  middleware.NewKeyedLimiter(a.cfg.Auth.LoginRatePerMinute, a.cfg.Auth.LoginBurst),
		},
		AdminToken:     a.cfg.Server.AdminToken,
		RequestTimeout: a.cfg.Server.RequestTimeout,
		Checks:         checks,
		MetricsHandler: promhttp.Handler(),
		Logger:         a.logger,
		Metrics:        a.metrics,
	})
}

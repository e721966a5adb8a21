package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"idhub/internal/platform/httpserver"
	"idhub/internal/platform/logger"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log := logger.New(cfg.LogLevel)
			ctx := cmd.Context()

			a, err := newApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			if cfg.Auth.JWTSigningKey == "dev-secret-key-change-in-production" {
				log.Warn("using the development JWT signing key")
			}
			log.Info("starting idhub",
				"addr", cfg.Server.Addr,
				"issuer", cfg.Auth.Issuer,
				"db_driver", cfg.Storage.Driver,
				"code_store", cfg.Storage.CodeStore,
				"providers", a.providers.Names(),
			)

			g, gctx := errgroup.WithContext(ctx)
			srv := httpserver.New(cfg.Server, a.router())
			g.Go(func() error {
				return httpserver.Run(gctx, srv, cfg.Server.ShutdownTimeout, log)
			})
			g.Go(func() error {
				a.watchAuditDrops(gctx, time.Minute)
				return nil
			})
			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			log.Info("idhub stopped")
			return nil
		},
	}
}

// watchAuditDrops logs when the async audit buffer has discarded events
// since the last check.
func (a *app) watchAuditDrops(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	var last int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.auditor.Dropped(); n > last {
				a.logger.Warn("audit events dropped", "total", n, "since_last_check", n-last)
				last = n
			}
		}
	}
}

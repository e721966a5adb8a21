package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/twmb/franz-go/pkg/kgo"

	"idhub/internal/audit"
	"idhub/internal/auth/credential"
	"idhub/internal/auth/models"
	"idhub/internal/auth/service"
	authorizationcode "idhub/internal/auth/store/authorization-code"
	magiclink "idhub/internal/auth/store/magic-link"
	userstore "idhub/internal/auth/store/user"
	"idhub/internal/client/registry"
	clientstore "idhub/internal/client/store"
	"idhub/internal/identity"
	"idhub/internal/identity/providers"
	jwttoken "idhub/internal/jwt_token"
	"idhub/internal/platform/config"
	"idhub/internal/platform/metrics"
	redisclient "idhub/internal/platform/redis"
	"idhub/internal/platform/sqldb"
)

// app holds the wired object graph for the serve command.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	metrics   *metrics.Metrics
	db        *sqldb.DB
	redis     *redisclient.Client
	kafka     *kgo.Client
	auditor   *audit.Publisher
	jwt       *jwttoken.JWTService
	clients   *registry.Registry
	linker    *identity.Linker
	providers *providers.Registry
	engine    *service.Service
}

func openDB(ctx context.Context, cfg *config.Config) (*sqldb.DB, error) {
	db, err := sqldb.Open(ctx, sqldb.Dialect(cfg.Storage.Driver), cfg.Storage.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.Storage.AutoMigrate {
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return db, nil
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (a *app, err error) {
	a = &app{cfg: cfg, logger: logger, metrics: metrics.New()}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if a.db, err = openDB(ctx, cfg); err != nil {
		return nil, err
	}
	if a.redis, err = redisclient.New(ctx, cfg.Redis); err != nil {
		return nil, err
	}
	if err = a.buildAuditor(); err != nil {
		return nil, err
	}

	a.jwt = jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer)
	a.clients = registry.New(clientstore.NewSQL(a.db),
		registry.WithLogger(logger),
		registry.WithAuditPublisher(a.auditor),
	)

	users := userstore.NewSQL(a.db)
	if err = a.buildProviders(ctx); err != nil {
		return nil, err
	}
	a.linker = identity.New(users, credential.New(credential.Algorithm(cfg.Auth.PasswordDigest)), a.identityOptions()...)

	a.engine = service.New(
		a.codeStore(),
		a.clients,
		users,
		a.linker,
		a.jwt,
		service.Config{
			AuthCodeTTL:    cfg.Auth.AuthCodeTTL,
			AccessTokenTTL: cfg.Auth.AccessTokenTTL,
			SessionTTL:     cfg.Auth.SessionTTL,
		},
		service.WithLogger(logger),
		service.WithAuditPublisher(a.auditor),
		service.WithMetrics(a.metrics),
	)
	return a, nil
}

// buildAuditor publishes to Kafka when brokers are configured and to the
// log otherwise.
func (a *app) buildAuditor() error {
	var sink audit.Sink = audit.NewLogSink(a.logger)
	if len(a.cfg.Audit.KafkaBrokers) > 0 {
		client, err := audit.NewKafkaClient(a.cfg.Audit.KafkaBrokers, "idhub")
		if err != nil {
			return err
		}
		a.kafka = client
		sink = audit.NewKafkaSink(client, a.cfg.Audit.TopicPrefix)
	}
	a.auditor = audit.NewPublisher(sink,
		audit.WithLogger(a.logger),
		audit.WithAsyncBuffer(a.cfg.Audit.BufferSize),
	)
	return nil
}

func (a *app) buildProviders(ctx context.Context) error {
	base := strings.TrimRight(a.cfg.Server.PublicURL, "/")
	var ps []providers.OAuthProvider
	if a.cfg.Google.Enabled() {
		g, err := providers.NewGoogle(ctx, providers.GoogleConfig{
			ClientID:     a.cfg.Google.ClientID,
			ClientSecret: a.cfg.Google.ClientSecret,
			RedirectURL:  base + "/auth/providers/" + providers.GoogleName + "/callback",
		})
		if err != nil {
			return fmt.Errorf("google provider: %w", err)
		}
		ps = append(ps, g)
	}
	if a.cfg.GitHub.Enabled() {
		g, err := providers.NewGitHub(providers.GitHubConfig{
			ClientID:     a.cfg.GitHub.ClientID,
			ClientSecret: a.cfg.GitHub.ClientSecret,
			RedirectURL:  base + "/auth/providers/" + providers.GitHubName + "/callback",
		})
		if err != nil {
			return fmt.Errorf("github provider: %w", err)
		}
		ps = append(ps, g)
	}
	a.providers = providers.NewRegistry(ps...)
	return nil
}

func (a *app) identityOptions() []identity.Option {
	auth := a.cfg.Auth
	opts := []identity.Option{
		identity.WithTransactor(a.db),
		identity.WithLogger(a.logger),
		identity.WithAuditPublisher(a.auditor),
		identity.WithMetrics(a.metrics),
	}
	if auth.EnablePassword {
		roles := make([]models.Role, 0, len(auth.PasswordLoginRoles))
		for _, r := range auth.PasswordLoginRoles {
			roles = append(roles, models.Role(strings.TrimSpace(r)))
		}
		opts = append(opts, identity.WithPasswordLogin(roles...))
	}
	if a.providers.Len() > 0 {
		opts = append(opts, identity.WithProviderLogin())
	}
	if p, ok := a.providers.Get(providers.GoogleName); ok {
		if v, ok := p.(identity.IDTokenVerifier); ok {
			opts = append(opts, identity.WithIDTokenVerifier(providers.GoogleName, v))
		}
	}
	if auth.EnableMagicLink {
		verifyURL := strings.TrimRight(a.cfg.Server.PublicURL, "/") + "/auth/magic-link/verify"
		opts = append(opts, identity.WithMagicLinks(a.magicLinkStore(), identity.NewLogMailer(a.logger), auth.MagicLinkTTL, verifyURL))
	}
	return opts
}

func (a *app) codeStore() service.CodeStore {
	switch a.cfg.Storage.CodeStore {
	case "redis":
		return authorizationcode.NewRedis(a.redis.Client)
	case "memory":
		return authorizationcode.New()
	default:
		return authorizationcode.NewSQL(a.db)
	}
}

func (a *app) magicLinkStore() identity.MagicLinkStore {
	switch a.cfg.Storage.MagicLinkStore {
	case "redis":
		return magiclink.NewRedis(a.redis.Client)
	case "memory":
		return magiclink.New()
	default:
		return magiclink.NewSQL(a.db)
	}
}

// Close flushes buffered audit events before closing the connections they
// may still need.
func (a *app) Close() {
	a.auditor.Close()
	if a.kafka != nil {
		a.kafka.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}

// Package service is the authorization engine: it issues authorization
// codes for authenticated users and exchanges them for access tokens.
package service

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"idhub/internal/audit"
	"idhub/internal/auth/models"
	authorizationcode "idhub/internal/auth/store/authorization-code"
	clientmodels "idhub/internal/client/models"
	"idhub/internal/identity"
	jwttoken "idhub/internal/jwt_token"
	"idhub/internal/platform/metrics"
)

type CodeStore interface {
	Issue(ctx context.Context, params authorizationcode.IssueParams, ttl time.Duration) (*models.AuthorizationCodeRecord, error)
	Consume(ctx context.Context, code, clientID, redirectURI string, now time.Time) (*models.AuthorizationCodeRecord, error)
}

type ClientRegistry interface {
	Lookup(ctx context.Context, clientID string) (*clientmodels.Client, error)
	Authenticate(ctx context.Context, clientID, clientSecret string) (*clientmodels.Client, error)
	IsRedirectURIRegistered(client *clientmodels.Client, redirectURI string) bool
}

type UserStore interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type IdentityResolver interface {
	Resolve(ctx context.Context, a identity.Assertion) (*models.User, error)
}

type TokenIssuer interface {
	IssueAccessToken(user jwttoken.UserClaims, audience string, expiresIn time.Duration) (string, error)
	IssueSessionToken(user jwttoken.UserClaims, expiresIn time.Duration) (string, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Config holds the lifetimes the engine stamps on what it issues.
type Config struct {
	AuthCodeTTL    time.Duration
	AccessTokenTTL time.Duration
	SessionTTL     time.Duration
}

func (c Config) withDefaults() Config {
	if c.AuthCodeTTL <= 0 {
		c.AuthCodeTTL = 10 * time.Minute
	}
	if c.AccessTokenTTL <= 0 {
		c.AccessTokenTTL = time.Hour
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = 24 * time.Hour
	}
	return c
}

// Service holds no request state; exactly-once redemption is delegated to
// the code store.
type Service struct {
	codes      CodeStore
	clients    ClientRegistry
	users      UserStore
	identities IdentityResolver
	tokens     TokenIssuer
	cfg        Config

	logger  *slog.Logger
	auditor AuditPublisher
	metrics *metrics.Metrics
	tracer  trace.Tracer
	now     func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) {
		s.auditor = p
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func New(
	codes CodeStore,
	clients ClientRegistry,
	users UserStore,
	identities IdentityResolver,
	tokens TokenIssuer,
	cfg Config,
	opts ...Option,
) *Service {
	s := &Service{
		codes:      codes,
		clients:    clients,
		users:      users,
		identities: identities,
		tokens:     tokens,
		cfg:        cfg.withDefaults(),
		logger:     slog.Default(),
		tracer:     otel.Tracer("idhub/auth"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "action", event.Action, "error", err)
	}
}

func userClaims(u *models.User) jwttoken.UserClaims {
	return jwttoken.UserClaims{
		UserID: u.ID,
		Name:   u.Name,
		Email:  u.Email,
		Role:   string(u.Role),
		Image:  u.Image,
	}
}

// codePrefix keeps enough of a code to correlate log lines without making
// the log a source of redeemable codes.
func codePrefix(code string) string {
	if len(code) <= 6 {
		return "***"
	}
	return code[:6] + "..."
}

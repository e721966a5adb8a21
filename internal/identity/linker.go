// Package identity maps login assertions to exactly one local user.
//
// Email is the only cross-provider key: two providers presenting the same
// address resolve to the same user. Roles are never changed by a login.
package identity

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"idhub/internal/audit"
	"idhub/internal/auth/credential"
	"idhub/internal/auth/models"
	"idhub/internal/platform/metrics"
	dErrors "idhub/pkg/domain-errors"
	"idhub/pkg/platform/sentinel"
)

type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindLinkedAccount(ctx context.Context, provider, providerAccountID string) (*models.LinkedAccount, error)
	UpsertLinkedAccount(ctx context.Context, account *models.LinkedAccount) error
	ListLinkedAccounts(ctx context.Context, userID string) ([]*models.LinkedAccount, error)
	DeleteLinkedAccount(ctx context.Context, provider, providerAccountID string) error
}

type MagicLinkStore interface {
	Create(ctx context.Context, link *models.MagicLink) error
	Consume(ctx context.Context, token string, now time.Time) (*models.MagicLink, error)
}

// IDTokenVerifier checks signature, issuer and audience of a provider ID
// token. A token that fails verification is reported wrapped in
// ErrAssertionRejected; any other error is treated as an outage.
type IDTokenVerifier interface {
	VerifyIDToken(ctx context.Context, rawToken string) (*FederatedClaims, error)
}

// Transactor runs fn atomically. The SQL layer carries the transaction on ctx.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// ErrAssertionRejected marks a well-formed request whose proof did not hold.
var ErrAssertionRejected = errors.New("assertion rejected")

var errInvalidCredentials = dErrors.New(dErrors.CodeInvalidCredentials, "invalid email or password")

type resolveFunc func(ctx context.Context, a Assertion) (*models.User, error)

type noTx struct{}

func (noTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

// Linker resolves assertions to users, provisioning and linking as needed.
type Linker struct {
	users     UserStore
	digests   *credential.Verifier
	tx        Transactor
	resolvers map[Capability]resolveFunc

	passwordRoles []models.Role
	idTokens      map[string]IDTokenVerifier
	magic         *magicLinkSettings

	logger  *slog.Logger
	auditor AuditPublisher
	metrics *metrics.Metrics
	tracer  trace.Tracer
	now     func() time.Time
}

type Option func(*Linker)

// WithPasswordLogin enables email/password login for users holding one of
// roles.
func WithPasswordLogin(roles ...models.Role) Option {
	return func(l *Linker) {
		l.passwordRoles = roles
		l.resolvers[CapabilityPassword] = l.resolvePassword
	}
}

// WithIDTokenVerifier enables federated ID token login for provider.
func WithIDTokenVerifier(provider string, v IDTokenVerifier) Option {
	return func(l *Linker) {
		l.idTokens[provider] = v
		l.resolvers[CapabilityIDToken] = l.resolveIDToken
	}
}

// WithProviderLogin enables upstream OAuth/OIDC provider logins.
func WithProviderLogin() Option {
	return func(l *Linker) {
		l.resolvers[CapabilityProvider] = l.resolveProvider
	}
}

// WithMagicLinks enables email login links. verifyURL is the absolute URL
// of the verification endpoint; the token is appended as a query parameter.
func WithMagicLinks(store MagicLinkStore, mailer Mailer, ttl time.Duration, verifyURL string) Option {
	return func(l *Linker) {
		l.magic = &magicLinkSettings{store: store, mailer: mailer, ttl: ttl, verifyURL: verifyURL}
		l.resolvers[CapabilityMagicLink] = l.resolveMagicLink
	}
}

func WithTransactor(tx Transactor) Option {
	return func(l *Linker) {
		l.tx = tx
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Linker) {
		l.logger = logger
	}
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(l *Linker) {
		l.auditor = p
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Linker) {
		l.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(l *Linker) {
		l.now = now
	}
}

// New builds a Linker with no login capabilities; enable them with options.
func New(users UserStore, digests *credential.Verifier, opts ...Option) *Linker {
	l := &Linker{
		users:     users,
		digests:   digests,
		tx:        noTx{},
		resolvers: make(map[Capability]resolveFunc),
		idTokens:  make(map[string]IDTokenVerifier),
		logger:    slog.Default(),
		tracer:    otel.Tracer("idhub/identity"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Enabled reports whether c is configured.
func (l *Linker) Enabled(c Capability) bool {
	_, ok := l.resolvers[c]
	return ok
}

// Resolve maps a to a local user. Disabled capabilities are access_denied.
func (l *Linker) Resolve(ctx context.Context, a Assertion) (*models.User, error) {
	capability := a.Capability()
	ctx, span := l.tracer.Start(ctx, "identity.resolve",
		trace.WithAttributes(attribute.String("capability", string(capability))))
	defer span.End()

	resolve, ok := l.resolvers[capability]
	if !ok {
		err := dErrors.New(dErrors.CodeAccessDenied, "login method is not enabled")
		l.recordFailure(ctx, span, capability, err)
		return nil, err
	}

	user, err := resolve(ctx, a)
	if err != nil {
		l.recordFailure(ctx, span, capability, err)
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	l.metrics.IncrementLogin(string(capability), "success")
	l.emit(ctx, audit.Event{Action: audit.EventLoginSucceeded, UserID: user.ID, Subject: string(capability)})
	return user, nil
}

func (l *Linker) recordFailure(ctx context.Context, span trace.Span, capability Capability, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	l.metrics.IncrementLogin(string(capability), "failure")
	l.emit(ctx, audit.Event{
		Action:  audit.EventLoginFailed,
		Subject: string(capability),
		Reason:  string(dErrors.CodeOf(err)),
	})
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		l.logger.ErrorContext(ctx, "identity resolution failed", "capability", capability, "error", err)
	}
}

func (l *Linker) resolvePassword(ctx context.Context, a Assertion) (*models.User, error) {
	pa := a.(PasswordAssertion)
	if pa.Email == "" || pa.Password == "" {
		return nil, errInvalidCredentials
	}
	user, err := l.users.FindByEmail(ctx, pa.Email)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, errInvalidCredentials
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	if !slices.Contains(l.passwordRoles, user.Role) || !user.HasPassword() {
		return nil, errInvalidCredentials
	}
	if !l.digests.Verify(pa.Password, user.PasswordDigest) {
		return nil, errInvalidCredentials
	}
	return user, nil
}

func (l *Linker) resolveIDToken(ctx context.Context, a Assertion) (*models.User, error) {
	ia := a.(IDTokenAssertion)
	verifier, ok := l.idTokens[ia.Provider]
	if !ok {
		return nil, dErrors.New(dErrors.CodeAccessDenied, "identity provider is not enabled")
	}
	if ia.Token == "" {
		return nil, dErrors.New(dErrors.CodeInvalidRequest, "id token is required")
	}
	claims, err := verifier.VerifyIDToken(ctx, ia.Token)
	if err != nil {
		if errors.Is(err, ErrAssertionRejected) {
			return nil, dErrors.Wrap(err, dErrors.CodeInvalidCredentials, "id token rejected")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify id token")
	}
	return l.link(ctx, ProviderIdentity{
		Provider:      ia.Provider,
		AccountID:     claims.Subject,
		Type:          models.AccountTypeOIDC,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Name:          claims.Name,
		Image:         claims.Picture,
		IDToken:       ia.Token,
	})
}

func (l *Linker) resolveProvider(ctx context.Context, a Assertion) (*models.User, error) {
	return l.link(ctx, a.(ProviderAssertion).Identity)
}

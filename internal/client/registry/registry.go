// Package registry authenticates and registers OAuth client applications.
package registry

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"idhub/internal/audit"
	"idhub/internal/client/models"
	dErrors "idhub/pkg/domain-errors"
	"idhub/pkg/platform/secrets"
	"idhub/pkg/platform/sentinel"
	strutil "idhub/pkg/platform/strings"
	"idhub/pkg/requestcontext"
)

type ClientStore interface {
	Create(ctx context.Context, client *models.Client) error
	FindByClientID(ctx context.Context, clientID string) (*models.Client, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// errInvalidClient is returned for every client authentication failure so
// callers cannot tell which client ids exist.
var errInvalidClient = dErrors.New(dErrors.CodeInvalidClient, "client authentication failed")

type Registry struct {
	clients ClientStore
	logger  *slog.Logger
	auditor AuditPublisher
}

type Option func(*Registry)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(r *Registry) {
		r.auditor = p
	}
}

func New(clients ClientStore, opts ...Option) *Registry {
	r := &Registry{clients: clients, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Authenticate resolves the client and checks its secret. Unknown, inactive
// and wrong-secret cases return the same invalid_client error.
func (r *Registry) Authenticate(ctx context.Context, clientID, clientSecret string) (*models.Client, error) {
	client, err := r.clients.FindByClientID(ctx, clientID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, errInvalidClient
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load client")
	}
	if !client.IsActive() || clientSecret == "" || !secrets.Equal(client.ClientSecret, clientSecret) {
		return nil, errInvalidClient
	}
	return client, nil
}

// Lookup finds an active client without checking its secret. Used when
// issuing codes, where the caller is the user agent rather than the client.
func (r *Registry) Lookup(ctx context.Context, clientID string) (*models.Client, error) {
	client, err := r.clients.FindByClientID(ctx, clientID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, errInvalidClient
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load client")
	}
	if !client.IsActive() {
		return nil, errInvalidClient
	}
	return client, nil
}

func (r *Registry) IsRedirectURIRegistered(client *models.Client, redirectURI string) bool {
	return client != nil && client.HasRedirectURI(redirectURI)
}

type RegisterRequest struct {
	Name          string
	Domain        string
	ClientID      string
	ClientSecret  string
	RedirectURIs  []string
	AllowedScopes []string
	CreatedBy     string
}

// Register creates a client. ClientID and ClientSecret are generated when
// left empty. The returned client carries the plaintext secret; it is the
// only time the secret is shown.
func (r *Registry) Register(ctx context.Context, req RegisterRequest) (*models.Client, error) {
	clientID := strings.TrimSpace(req.ClientID)
	if clientID == "" {
		clientID = uuid.NewString()
	}
	secret := req.ClientSecret
	if secret == "" {
		generated, err := secrets.Generate()
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate client secret")
		}
		secret = generated
	}

	client, err := models.NewClient(uuid.NewString(), strings.TrimSpace(req.Name), req.Domain, clientID, secret,
		strutil.DedupeAndTrim(req.RedirectURIs), strutil.DedupeAndTrim(req.AllowedScopes), req.CreatedBy, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := r.clients.Create(ctx, client); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "client_id already registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create client")
	}

	r.logger.InfoContext(ctx, "client registered", "client_id", client.ClientID, "name", client.Name)
	r.emit(ctx, audit.Event{
		Action:   audit.EventClientCreated,
		ClientID: client.ClientID,
		UserID:   req.CreatedBy,
	})
	return client, nil
}

func (r *Registry) emit(ctx context.Context, event audit.Event) {
	if r.auditor == nil {
		return
	}
	if err := r.auditor.Emit(ctx, event); err != nil {
		r.logger.WarnContext(ctx, "failed to emit audit event", "action", event.Action, "error", err)
	}
}

// Package handler exposes client registration to administrators.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"idhub/internal/client/models"
	"idhub/internal/client/registry"
	"idhub/internal/platform/metrics"
	dErrors "idhub/pkg/domain-errors"
	"idhub/pkg/platform/httputil"
	"idhub/pkg/platform/middleware/admin"
	"idhub/pkg/platform/middleware/auth"
	request "idhub/pkg/platform/middleware/request"
)

type Registry interface {
	Register(ctx context.Context, req registry.RegisterRequest) (*models.Client, error)
}

type Handler struct {
	registry   Registry
	adminToken string
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// New creates a client Handler. adminToken enables the X-Admin-Token
// bootstrap path; leave it empty to require an admin session.
func New(reg Registry, adminToken string, logger *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{registry: reg, adminToken: adminToken, logger: logger, metrics: m}
}

// Register mounts /admin/clients. Session claims, when present, must be
// attached by an upstream OptionalAuth middleware.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(admin.RequireAdmin(h.adminToken, h.logger))
		r.Post("/admin/clients", h.handleCreateClient)
	})
}

type createClientRequest struct {
	Name          string   `json:"name"`
	Domain        string   `json:"domain"`
	ClientID      string   `json:"client_id"`
	RedirectURIs  []string `json:"redirect_uris"`
	AllowedScopes []string `json:"allowed_scopes"`
}

// createClientResponse is the only response that carries the secret.
type createClientResponse struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	ClientID      string    `json:"client_id"`
	ClientSecret  string    `json:"client_secret"`
	RedirectURIs  []string  `json:"redirect_uris"`
	AllowedScopes []string  `json:"allowed_scopes"`
	CreatedAt     time.Time `json:"created_at"`
}

func (h *Handler) handleCreateClient(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	var req createClientRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid create client request",
			"request_id", requestID,
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidRequest, "invalid request body"))
		return
	}

	createdBy := "bootstrap"
	if claims := auth.GetClaims(ctx); claims != nil {
		createdBy = claims.UserID
	}
	client, err := h.registry.Register(ctx, registry.RegisterRequest{
		Name:          req.Name,
		Domain:        req.Domain,
		ClientID:      req.ClientID,
		RedirectURIs:  req.RedirectURIs,
		AllowedScopes: req.AllowedScopes,
		CreatedBy:     createdBy,
	})
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInternal) {
			h.logger.ErrorContext(ctx, "failed to create client",
				"request_id", requestID,
				"error", err,
			)
		}
		httputil.WriteError(w, err)
		return
	}

	h.metrics.IncrementClientsRegistered()
	httputil.WriteJSON(w, http.StatusCreated, createClientResponse{
		ID:            client.ID,
		Name:          client.Name,
		ClientID:      client.ClientID,
		ClientSecret:  client.ClientSecret,
		RedirectURIs:  client.RedirectURIs,
		AllowedScopes: client.AllowedScopes,
		CreatedAt:     client.CreatedAt,
	})
}

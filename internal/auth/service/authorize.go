package service

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"idhub/internal/audit"
	"idhub/internal/auth/models"
	"idhub/internal/auth/pkce"
	authorizationcode "idhub/internal/auth/store/authorization-code"
	dErrors "idhub/pkg/domain-errors"
)

// StartAuthorization issues a code bound to the user, client, redirect URI,
// scope and optional PKCE challenge.
func (s *Service) StartAuthorization(ctx context.Context, req *models.AuthorizationRequest) (*models.AuthorizationResult, error) {
	if req == nil {
		return nil, dErrors.New(dErrors.CodeInvalidRequest, "request is required")
	}
	ctx, span := s.tracer.Start(ctx, "auth.start_authorization",
		trace.WithAttributes(attribute.String("client_id", req.ClientID)))
	defer span.End()

	result, err := s.startAuthorization(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		return nil, err
	}
	span.SetStatus(codes.Ok, "")
	return result, nil
}

func (s *Service) startAuthorization(ctx context.Context, req *models.AuthorizationRequest) (*models.AuthorizationResult, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	client, err := s.clients.Lookup(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}
	if !s.clients.IsRedirectURIRegistered(client, req.RedirectURI) {
		return nil, dErrors.New(dErrors.CodeInvalidRequest, "redirect_uri is not registered for this client")
	}
	if req.CodeChallenge != "" && !pkce.IsSupportedMethod(req.CodeChallengeMethod) {
		return nil, dErrors.New(dErrors.CodeInvalidRequest, "code_challenge_method must be S256")
	}
	if !client.AllowsScopes(req.Scope) {
		return nil, dErrors.New(dErrors.CodeInvalidRequest, "requested scope is not allowed for this client")
	}

	record, err := s.codes.Issue(ctx, authorizationcode.IssueParams{
		UserID:              req.UserID,
		ClientID:            client.ClientID,
		RedirectURI:         req.RedirectURI,
		Scope:               req.Scope,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
	}, s.cfg.AuthCodeTTL)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue authorization code")
	}

	s.metrics.IncrementAuthorizationIssued()
	s.emit(ctx, audit.Event{Action: audit.EventCodeIssued, UserID: req.UserID, ClientID: client.ClientID})
	s.logger.DebugContext(ctx, "authorization code issued",
		"client_id", client.ClientID,
		"code", codePrefix(record.Code),
	)

	return &models.AuthorizationResult{
		Code:        record.Code,
		RedirectURI: record.RedirectURI,
		State:       req.State,
	}, nil
}

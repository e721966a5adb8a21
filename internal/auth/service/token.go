package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"idhub/internal/audit"
	"idhub/internal/auth/models"
	"idhub/internal/auth/pkce"
	authorizationcode "idhub/internal/auth/store/authorization-code"
	dErrors "idhub/pkg/domain-errors"
)

var errInvalidCode = dErrors.New(dErrors.CodeInvalidGrant, "authorization code is invalid or expired")

// ExchangeToken redeems an authorization code for an access token.
//
// The code is consumed before the client is authenticated, so a failed
// secret check still burns it and cannot be retried against.
func (s *Service) ExchangeToken(ctx context.Context, req *models.TokenRequest) (*models.TokenResult, error) {
	if req == nil {
		return nil, dErrors.New(dErrors.CodeInvalidRequest, "request is required")
	}
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "auth.exchange_token",
		trace.WithAttributes(attribute.String("client_id", req.ClientID)))
	defer span.End()

	result, userID, err := s.exchange(ctx, req)

	outcome := "success"
	if err != nil {
		outcome = string(dErrors.CodeOf(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		s.emit(ctx, audit.Event{Action: audit.EventTokenDenied, ClientID: req.ClientID, UserID: userID, Reason: outcome})
		if outcome == string(dErrors.CodeInternal) {
			s.logger.ErrorContext(ctx, "token exchange failed", "client_id", req.ClientID, "error", err)
		}
	} else {
		span.SetStatus(codes.Ok, "")
		s.emit(ctx, audit.Event{Action: audit.EventTokenIssued, ClientID: req.ClientID, UserID: userID})
	}
	s.metrics.ObserveTokenRequest(outcome, time.Since(start).Seconds())
	return result, err
}

func (s *Service) exchange(ctx context.Context, req *models.TokenRequest) (*models.TokenResult, string, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, "", err
	}

	// A caller that already gave up must leave the code redeemable.
	if err := ctx.Err(); err != nil {
		return nil, "", dErrors.Wrap(err, dErrors.CodeInternal, "request cancelled")
	}

	record, err := s.codes.Consume(ctx, req.Code, req.ClientID, req.RedirectURI, s.now())
	if err != nil {
		if authorizationcode.IsRedemptionFailure(err) {
			return nil, "", errInvalidCode
		}
		return nil, "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to redeem authorization code")
	}

	client, err := s.clients.Authenticate(ctx, req.ClientID, req.ClientSecret)
	if err != nil {
		return nil, record.UserID, err
	}

	if record.HasChallenge() {
		if req.CodeVerifier == "" {
			return nil, record.UserID, dErrors.New(dErrors.CodeInvalidRequest, "code_verifier is required")
		}
		if err := pkce.Verify(req.CodeVerifier, record.CodeChallenge, record.CodeChallengeMethod); err != nil {
			return nil, record.UserID, dErrors.Wrap(err, dErrors.CodeInvalidGrant, "code_verifier does not match")
		}
	}

	user, err := s.users.FindByID(ctx, record.UserID)
	if err != nil {
		return nil, record.UserID, dErrors.Wrap(err, dErrors.CodeInternal, "authorization code references an unknown user")
	}

	token, err := s.tokens.IssueAccessToken(userClaims(user), client.ClientID, s.cfg.AccessTokenTTL)
	if err != nil {
		return nil, user.ID, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue access token")
	}

	return &models.TokenResult{
		AccessToken: token,
		TokenType:   models.TokenTypeBearer,
		ExpiresIn:   int(s.cfg.AccessTokenTTL.Seconds()),
		Scope:       record.Scope,
	}, user.ID, nil
}

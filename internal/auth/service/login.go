package service

import (
	"context"
	"errors"

	"idhub/internal/auth/models"
	"idhub/internal/identity"
	dErrors "idhub/pkg/domain-errors"
	"idhub/pkg/platform/sentinel"
)

// LoginResult is an authenticated browser session.
type LoginResult struct {
	User         *models.User `json:"user"`
	SessionToken string       `json:"session_token"`
	ExpiresIn    int          `json:"expires_in"`
}

// Login resolves a to a user and mints a session token scoped to this
// server. The session token is what StartAuthorization trusts for the user id.
func (s *Service) Login(ctx context.Context, a identity.Assertion) (*LoginResult, error) {
	user, err := s.identities.Resolve(ctx, a)
	if err != nil {
		return nil, err
	}
	return s.Session(ctx, user)
}

// Session mints a session token for an already resolved user.
func (s *Service) Session(_ context.Context, user *models.User) (*LoginResult, error) {
	token, err := s.tokens.IssueSessionToken(userClaims(user), s.cfg.SessionTTL)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue session token")
	}
	return &LoginResult{
		User:         user,
		SessionToken: token,
		ExpiresIn:    int(s.cfg.SessionTTL.Seconds()),
	}, nil
}

// UserInfo returns the current profile of the token subject.
func (s *Service) UserInfo(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token subject no longer exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	return user, nil
}

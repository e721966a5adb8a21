package authorizationcode

import (
	"errors"
	"fmt"
	"time"

	"idhub/internal/auth/models"
	"idhub/pkg/platform/secrets"
	"idhub/pkg/platform/sentinel"
)

// Error Contract:
// All store implementations follow this error pattern:
// - Return ErrNotFound when no code matches {code, client_id, redirect_uri}
// - Return ErrAlreadyUsed or ErrExpired when the backend can tell them apart;
//   backends that cannot (SQL) return ErrNotFound
// - Return wrapped errors with context for infrastructure failures

// IssueParams carries everything bound to a new code.
type IssueParams struct {
	UserID              string
	ClientID            string
	RedirectURI         string
	Scope               string
	CodeChallenge       string
	CodeChallengeMethod string
}

// Option configures a store.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the clock used to stamp CreatedAt and ExpiresAt.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func newRecord(params IssueParams, ttl time.Duration, now time.Time) (*models.AuthorizationCodeRecord, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("authorization code ttl must be positive")
	}
	code, err := secrets.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate authorization code: %w", err)
	}
	return &models.AuthorizationCodeRecord{
		Code:                code,
		UserID:              params.UserID,
		ClientID:            params.ClientID,
		RedirectURI:         params.RedirectURI,
		Scope:               params.Scope,
		CodeChallenge:       params.CodeChallenge,
		CodeChallengeMethod: params.CodeChallengeMethod,
		ExpiresAt:           now.Add(ttl),
		CreatedAt:           now,
	}, nil
}

// IsRedemptionFailure reports whether err is one of the store's consume
// rejections, as opposed to an infrastructure fault.
func IsRedemptionFailure(err error) bool {
	return errors.Is(err, sentinel.ErrNotFound) ||
		errors.Is(err, sentinel.ErrAlreadyUsed) ||
		errors.Is(err, sentinel.ErrExpired)
}

var errNotFound = fmt.Errorf("authorization code not found: %w", sentinel.ErrNotFound)

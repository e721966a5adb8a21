package authorizationcode

import (
	"context"
	"fmt"
	"sync"
	"time"

	"idhub/internal/auth/models"
	"idhub/pkg/platform/sentinel"
)

// InMemoryAuthorizationCodeStore stores authorization codes in memory for tests/dev.
type InMemoryAuthorizationCodeStore struct {
	mu        sync.Mutex
	authCodes map[string]*models.AuthorizationCodeRecord
	opts      options
}

// New constructs an empty in-memory auth code store.
func New(opts ...Option) *InMemoryAuthorizationCodeStore {
	return &InMemoryAuthorizationCodeStore{
		authCodes: make(map[string]*models.AuthorizationCodeRecord),
		opts:      buildOptions(opts),
	}
}

func (s *InMemoryAuthorizationCodeStore) Issue(ctx context.Context, params IssueParams, ttl time.Duration) (*models.AuthorizationCodeRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	record, err := newRecord(params, ttl, s.opts.now())
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authCodes[record.Code] = record
	cp := *record
	return &cp, nil
}

func (s *InMemoryAuthorizationCodeStore) FindByCode(_ context.Context, code string) (*models.AuthorizationCodeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record, ok := s.authCodes[code]; ok {
		cp := *record
		return &cp, nil
	}
	return nil, errNotFound
}

// Consume marks the code used if it matches client and redirect and is
// still redeemable. The check and the write happen under one lock.
func (s *InMemoryAuthorizationCodeStore) Consume(ctx context.Context, code, clientID, redirectURI string, now time.Time) (*models.AuthorizationCodeRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.authCodes[code]
	if !ok || record.ClientID != clientID || record.RedirectURI != redirectURI {
		return nil, errNotFound
	}
	if record.Used {
		return nil, fmt.Errorf("authorization code already used: %w", sentinel.ErrAlreadyUsed)
	}
	if record.IsExpired(now) {
		return nil, fmt.Errorf("authorization code expired: %w", sentinel.ErrExpired)
	}

	record.MarkUsed()
	cp := *record
	return &cp, nil
}

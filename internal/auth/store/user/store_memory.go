package user

import (
	"context"
	"fmt"
	"sync"

	"idhub/internal/auth/models"
	"idhub/pkg/platform/sentinel"
)

// Error Contract:
// - Return ErrNotFound when the requested entity does not exist
// - Return ErrConflict when a unique key (email, provider account) is taken
// - Return wrapped errors with context for infrastructure failures

// InMemoryUserStore keeps users and linked accounts in maps for tests/dev.
type InMemoryUserStore struct {
	mu       sync.RWMutex
	users    map[string]*models.User
	byEmail  map[string]string
	accounts map[accountKey]*models.LinkedAccount
}

type accountKey struct {
	provider  string
	accountID string
}

func New() *InMemoryUserStore {
	return &InMemoryUserStore{
		users:    make(map[string]*models.User),
		byEmail:  make(map[string]string),
		accounts: make(map[accountKey]*models.LinkedAccount),
	}
}

func (s *InMemoryUserStore) Create(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[user.Email]; ok {
		return fmt.Errorf("user email taken: %w", sentinel.ErrConflict)
	}
	if _, ok := s.users[user.ID]; ok {
		return fmt.Errorf("user id taken: %w", sentinel.ErrConflict)
	}
	cp := *user
	s.users[user.ID] = &cp
	s.byEmail[user.Email] = user.ID
	return nil
}

// Update replaces the mutable profile fields. Email changes are rejected
// when another user already owns the address.
func (s *InMemoryUserStore) Update(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.users[user.ID]
	if !ok {
		return fmt.Errorf("user not found: %w", sentinel.ErrNotFound)
	}
	if existing.Email != user.Email {
		if owner, taken := s.byEmail[user.Email]; taken && owner != user.ID {
			return fmt.Errorf("user email taken: %w", sentinel.ErrConflict)
		}
		delete(s.byEmail, existing.Email)
		s.byEmail[user.Email] = user.ID
	}
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

func (s *InMemoryUserStore) FindByID(_ context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, fmt.Errorf("user not found: %w", sentinel.ErrNotFound)
}

func (s *InMemoryUserStore) FindByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id, ok := s.byEmail[email]; ok {
		cp := *s.users[id]
		return &cp, nil
	}
	return nil, fmt.Errorf("user not found: %w", sentinel.ErrNotFound)
}

func (s *InMemoryUserStore) FindLinkedAccount(_ context.Context, provider, providerAccountID string) (*models.LinkedAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if a, ok := s.accounts[accountKey{provider, providerAccountID}]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, fmt.Errorf("linked account not found: %w", sentinel.ErrNotFound)
}

// UpsertLinkedAccount inserts or refreshes the account for
// (Provider, ProviderAccountID). Re-pointing an account at a different user
// is a conflict.
func (s *InMemoryUserStore) UpsertLinkedAccount(_ context.Context, account *models.LinkedAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[account.UserID]; !ok {
		return fmt.Errorf("linked account user: %w", sentinel.ErrNotFound)
	}
	key := accountKey{account.Provider, account.ProviderAccountID}
	if existing, ok := s.accounts[key]; ok && existing.UserID != account.UserID {
		return fmt.Errorf("linked account owned by another user: %w", sentinel.ErrConflict)
	}
	cp := *account
	s.accounts[key] = &cp
	return nil
}

func (s *InMemoryUserStore) ListLinkedAccounts(_ context.Context, userID string) ([]*models.LinkedAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.LinkedAccount
	for _, a := range s.accounts {
		if a.UserID == userID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *InMemoryUserStore) DeleteLinkedAccount(_ context.Context, provider, providerAccountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := accountKey{provider, providerAccountID}
	if _, ok := s.accounts[key]; !ok {
		return fmt.Errorf("linked account not found: %w", sentinel.ErrNotFound)
	}
	delete(s.accounts, key)
	return nil
}

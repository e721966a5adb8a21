package magiclink

import (
	"context"
	"fmt"
	"sync"
	"time"

	"idhub/internal/auth/models"
	"idhub/pkg/platform/sentinel"
)

// InMemoryMagicLinkStore keeps magic-link tokens in memory for tests/dev.
type InMemoryMagicLinkStore struct {
	mu    sync.Mutex
	links map[string]*models.MagicLink
}

func New() *InMemoryMagicLinkStore {
	return &InMemoryMagicLinkStore{links: make(map[string]*models.MagicLink)}
}

func (s *InMemoryMagicLinkStore) Create(_ context.Context, link *models.MagicLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.links[link.Token]; ok {
		return fmt.Errorf("magic link token taken: %w", sentinel.ErrConflict)
	}
	cp := *link
	s.links[link.Token] = &cp
	return nil
}

// Consume marks the token used exactly once.
func (s *InMemoryMagicLinkStore) Consume(ctx context.Context, token string, now time.Time) (*models.MagicLink, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	link, ok := s.links[token]
	if !ok {
		return nil, fmt.Errorf("magic link not found: %w", sentinel.ErrNotFound)
	}
	if link.Used {
		return nil, fmt.Errorf("magic link already used: %w", sentinel.ErrAlreadyUsed)
	}
	if link.IsExpired(now) {
		return nil, fmt.Errorf("magic link expired: %w", sentinel.ErrExpired)
	}
	link.Used = true
	cp := *link
	return &cp, nil
}

package store

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"idhub/internal/client/models"
	"idhub/pkg/platform/sentinel"
)

// InMemory stores client registrations keyed by the public client_id.
type InMemory struct {
	mu      sync.RWMutex
	clients map[string]*models.Client
}

func NewInMemory() *InMemory {
	return &InMemory{clients: make(map[string]*models.Client)}
}

func (s *InMemory) Create(_ context.Context, c *models.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c.ClientID]; ok {
		return fmt.Errorf("client_id taken: %w", sentinel.ErrConflict)
	}
	s.clients[c.ClientID] = clone(c)
	return nil
}

func (s *InMemory) FindByClientID(_ context.Context, clientID string) (*models.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.clients[clientID]; ok {
		return clone(c), nil
	}
	return nil, fmt.Errorf("client not found: %w", sentinel.ErrNotFound)
}

func clone(c *models.Client) *models.Client {
	cp := *c
	cp.RedirectURIs = slices.Clone(c.RedirectURIs)
	cp.AllowedScopes = slices.Clone(c.AllowedScopes)
	return &cp
}

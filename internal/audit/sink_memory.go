package audit

import (
	"context"
	"sync"
)

// MemorySink keeps events in memory for tests/dev.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Append(_ context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

// Events returns a snapshot of recorded events.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// ListByUser returns the events recorded for userID.
func (s *MemorySink) ListByUser(userID string) []Event {
	var out []Event
	for _, e := range s.Events() {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out
}

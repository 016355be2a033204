package store

import (
	"context"
	"sync"

	"civis/internal/domain"
	"civis/pkg/platform/sentinel"
)

// InMemoryEventStore keeps the chain in a slice under a RWMutex. List and
// Query hand out copies so verification reads a consistent snapshot while
// appends continue.
type InMemoryEventStore struct {
	mu     sync.RWMutex
	events []domain.AuditEvent

	// FailAppends makes every Append fail; tests use it to exercise the
	// tail-pointer failure semantics.
	FailAppends bool
}

func NewInMemoryEventStore() *InMemoryEventStore {
	return &InMemoryEventStore{}
}

func (s *InMemoryEventStore) Append(_ context.Context, event domain.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAppends {
		return sentinel.ErrUnavailable
	}
	s.events = append(s.events, event)
	return nil
}

func (s *InMemoryEventStore) List(_ context.Context) ([]domain.AuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.AuditEvent{}, s.events...), nil
}

func (s *InMemoryEventStore) Tail(_ context.Context) (domain.AuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.events) == 0 {
		return domain.AuditEvent{}, sentinel.ErrNotFound
	}
	return s.events[len(s.events)-1], nil
}

func (s *InMemoryEventStore) Query(_ context.Context, filter Filter) ([]domain.AuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.AuditEvent
	for _, e := range s.events {
		if !filter.Matches(e) {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// Mutate rewrites the event at index i in place. Test hook for tamper
// scenarios; panics out of range.
func (s *InMemoryEventStore) Mutate(i int, fn func(*domain.AuditEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.events[i])
}

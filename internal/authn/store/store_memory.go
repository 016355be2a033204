package store

import (
	"context"
	"sync"

	"civis/internal/domain"
	"civis/pkg/platform/sentinel"
)

type InMemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]domain.AuthenticationSession
}

func NewInMemorySessionStore() *InMemorySessionStore {
	return &InMemorySessionStore{sessions: make(map[string]domain.AuthenticationSession)}
}

func (s *InMemorySessionStore) Save(_ context.Context, session domain.AuthenticationSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
	return nil
}

func (s *InMemorySessionStore) Get(_ context.Context, id string) (domain.AuthenticationSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return domain.AuthenticationSession{}, sentinel.ErrNotFound
	}
	return session, nil
}

func (s *InMemorySessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

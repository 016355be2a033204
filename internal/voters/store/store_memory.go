package store

import (
	"context"
	"sync"
	"time"

	"civis/internal/domain"
	"civis/pkg/platform/sentinel"
)

// InMemoryStore keeps records in a map keyed by identifier hash plus an
// insertion-ordered slice for chain walks. Safe for concurrent use.
type InMemoryStore struct {
	mu      sync.RWMutex
	byHash  map[string]*domain.VoterRecord
	ordered []*domain.VoterRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byHash: make(map[string]*domain.VoterRecord)}
}

func (s *InMemoryStore) Find(_ context.Context, identifierHash string) (domain.VoterRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.byHash[identifierHash]
	if !ok {
		return domain.VoterRecord{}, sentinel.ErrNotFound
	}
	return *record, nil
}

func (s *InMemoryStore) Put(_ context.Context, record domain.VoterRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byHash[record.IdentifierHash]; exists {
		return sentinel.ErrDuplicate
	}
	stored := record
	s.byHash[record.IdentifierHash] = &stored
	s.ordered = append(s.ordered, &stored)
	return nil
}

func (s *InMemoryStore) Update(_ context.Context, record domain.VoterRecord) (domain.VoterRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.byHash[record.IdentifierHash]
	if !ok {
		return domain.VoterRecord{}, sentinel.ErrNotFound
	}
	if current.Version != record.Version {
		return domain.VoterRecord{}, sentinel.ErrConflict
	}
	record.Version++
	*current = record
	return record, nil
}

func (s *InMemoryStore) ListSince(_ context.Context, ts time.Time) ([]domain.VoterRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.VoterRecord
	for _, r := range s.ordered {
		if r.RegisteredAt.Before(ts) {
			continue
		}
		out = append(out, *r)
	}
	return out, nil
}

func (s *InMemoryStore) Latest(_ context.Context) (domain.VoterRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.ordered) == 0 {
		return domain.VoterRecord{}, sentinel.ErrNotFound
	}
	return *s.ordered[len(s.ordered)-1], nil
}

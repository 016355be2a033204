package store

import (
	"context"
	"time"

	"civis/internal/domain"
)

// Filter narrows event queries. Zero values mean "no constraint".
type Filter struct {
	SubjectID      string
	IdentifierHash string
	Type           domain.EventType
	Result         domain.Result
	SessionID      string
	From           *time.Time
	To             *time.Time
	Limit          int
}

// Matches reports whether an event passes the filter, ignoring Limit.
func (f Filter) Matches(e domain.AuditEvent) bool {
	if f.SubjectID != "" && e.SubjectID != f.SubjectID {
		return false
	}
	if f.IdentifierHash != "" && e.IdentifierHash != f.IdentifierHash {
		return false
	}
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	if f.Result != "" && e.Result != f.Result {
		return false
	}
	if f.SessionID != "" && e.SessionID != f.SessionID {
		return false
	}
	if f.From != nil && e.Timestamp.Before(*f.From) {
		return false
	}
	if f.To != nil && e.Timestamp.After(*f.To) {
		return false
	}
	return true
}

// EventStore persists the chain in append order. Implementations must
// preserve insertion order in List so integrity verification walks the chain
// the way it was written.
type EventStore interface {
	Append(ctx context.Context, event domain.AuditEvent) error
	// List returns a point-in-time copy of the full chain in append order.
	List(ctx context.Context) ([]domain.AuditEvent, error)
	// Tail returns the most recently appended event, or sentinel.ErrNotFound
	// on an empty chain.
	Tail(ctx context.Context) (domain.AuditEvent, error)
	Query(ctx context.Context, filter Filter) ([]domain.AuditEvent, error)
}

// Package store defines persistence for voter records: lookup by identifier
// hash, insert, optimistic-concurrency update, and chain-ordered listing.
package store

import (
	"context"
	"time"

	"civis/internal/domain"
)

// Store is the raw persistence port. Implementations report facts with
// sentinel errors: sentinel.ErrNotFound for a missing record,
// sentinel.ErrDuplicate for an identifier hash already registered, and
// sentinel.ErrConflict when Update's version check loses a race.
type Store interface {
	// Find returns the record indexed by the salted identifier hash.
	Find(ctx context.Context, identifierHash string) (domain.VoterRecord, error)

	// Put inserts a new record. The identifier hash must be unused.
	Put(ctx context.Context, record domain.VoterRecord) error

	// Update persists a modified record if and only if the stored version
	// still equals record.Version, then bumps the version. Returns the
	// stored record.
	Update(ctx context.Context, record domain.VoterRecord) (domain.VoterRecord, error)

	// ListSince returns records registered at or after ts, in registration
	// order (the chain order).
	ListSince(ctx context.Context, ts time.Time) ([]domain.VoterRecord, error)

	// Latest returns the most recently registered record, the chain tail.
	Latest(ctx context.Context) (domain.VoterRecord, error)
}

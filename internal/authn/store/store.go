// Package store persists in-progress authentication sessions. Sessions are
// short-lived working state, not records: losing one costs the voter a
// restart, nothing more.
package store

import (
	"context"

	"civis/internal/domain"
)

// SessionStore is the session persistence port. Get returns
// sentinel.ErrNotFound for an unknown or expired session.
type SessionStore interface {
	Save(ctx context.Context, session domain.AuthenticationSession) error
	Get(ctx context.Context, id string) (domain.AuthenticationSession, error)
	Delete(ctx context.Context, id string) error
}

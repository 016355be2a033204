package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: record does not exist in the store
// - ErrConflict: versioned update lost a concurrent race
// - ErrDuplicate: insert collided with an existing key
// - ErrUnavailable: device or backing service temporarily unavailable
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrDuplicate   = errors.New("duplicate")
	ErrUnavailable = errors.New("unavailable")
)

// Package ledger implements the append-only, hash-chained audit log every
// other component writes security events to. The chain makes retroactive
// edits detectable: each event's hash covers its content and the previous
// event's hash, and the ledger is the only writer of the tail pointer.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"civis/internal/domain"
	"civis/internal/ledger/metrics"
	"civis/internal/ledger/store"
	dErrors "civis/pkg/domain-errors"
	"civis/pkg/platform/sentinel"
	"civis/pkg/requestcontext"
)

// FallbackPublisher receives events that could not be persisted to the
// primary store, so an audit write failure never loses the event silently.
type FallbackPublisher interface {
	Publish(ctx context.Context, event domain.AuditEvent)
}

// Ledger owns the chain tail. All appends serialize through its mutex; the
// in-memory tail only advances after the store accepted the event, so a
// write failure cannot desynchronize memory from persisted state.
type Ledger struct {
	store    store.EventStore
	logger   *slog.Logger
	fallback FallbackPublisher
	metrics  *metrics.Metrics

	mu          sync.Mutex
	tailHash    string
	initialized bool
}

type Option func(*Ledger)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

func WithFallback(publisher FallbackPublisher) Option {
	return func(l *Ledger) { l.fallback = publisher }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

func New(eventStore store.EventStore, opts ...Option) (*Ledger, error) {
	if eventStore == nil {
		return nil, errors.New("event store is required")
	}
	l := &Ledger{
		store:  eventStore,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Initialize loads the persisted tail, writing the genesis event first when
// the chain is empty. Must be called before Record.
func (l *Ledger) Initialize(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	tail, err := l.store.Tail(ctx)
	switch {
	case err == nil:
		l.tailHash = tail.CurrentHash
	case errors.Is(err, sentinel.ErrNotFound):
		genesis := domain.AuditEvent{
			ID:           uuid.NewString(),
			Timestamp:    requestcontext.Now(ctx),
			Type:         domain.EventChainGenesis,
			Result:       domain.ResultSuccess,
			Details:      "audit chain genesis",
			PreviousHash: domain.GenesisHash,
		}
		genesis.CurrentHash = genesis.ComputeHash()
		if err := l.store.Append(ctx, genesis); err != nil {
			return dErrors.Wrap(err, dErrors.CodeStore, "could not write genesis event")
		}
		l.tailHash = genesis.CurrentHash
	default:
		return dErrors.Wrap(err, dErrors.CodeStore, "could not load chain tail")
	}

	l.initialized = true
	return nil
}

// Record appends an event to the chain. The ledger stamps id, timestamp and
// the chain hashes; callers fill the rest. On a store failure the tail stays
// put, the event goes to the fallback channel, and the error carries
// CodeStore - callers treat it as non-fatal for their business outcome.
func (l *Ledger) Record(ctx context.Context, event domain.AuditEvent) (domain.AuditEvent, error) {
	if !event.Type.IsValid() || event.Type == domain.EventChainGenesis {
		return domain.AuditEvent{}, dErrors.Newf(dErrors.CodeInvalidInput, "invalid event type %q", event.Type)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.initialized {
		return domain.AuditEvent{}, dErrors.New(dErrors.CodeInternal, "ledger is not initialized")
	}

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	event.PreviousHash = l.tailHash
	event.CurrentHash = event.ComputeHash()

	if err := l.store.Append(ctx, event); err != nil {
		if l.metrics != nil {
			l.metrics.IncrementAppendFailures()
		}
		l.logger.ErrorContext(ctx, "audit append failed, routing to fallback",
			"event_type", event.Type,
			"session_id", event.SessionID,
			"error", err,
		)
		if l.fallback != nil {
			l.fallback.Publish(ctx, event)
		}
		return domain.AuditEvent{}, dErrors.Wrap(err, dErrors.CodeStore, "could not persist audit event")
	}

	l.tailHash = event.CurrentHash
	if l.metrics != nil {
		l.metrics.IncrementAppends(string(event.Type))
	}
	return event, nil
}

// Violation describes one integrity failure found during verification.
type Violation struct {
	Index   int    `json:"index"`
	EventID string `json:"event_id"`
	Kind    string `json:"kind"` // hash_mismatch or link_break
	Detail  string `json:"detail"`
}

// IntegrityReport is the outcome of a full chain walk.
type IntegrityReport struct {
	Valid      bool        `json:"valid"`
	Events     int         `json:"events"`
	Violations []Violation `json:"violations,omitempty"`
}

// VerifyIntegrity walks a snapshot of the stored chain and collects every
// violation: stored hashes that no longer match a fresh recomputation, and
// links whose previous hash disagrees with the predecessor. It never
// repairs; a broken chain is an operator incident, not a recoverable state.
// Appends may continue concurrently - verification runs against the
// snapshot List returned.
func (l *Ledger) VerifyIntegrity(ctx context.Context) (IntegrityReport, error) {
	chain, err := l.store.List(ctx)
	if err != nil {
		return IntegrityReport{}, dErrors.Wrap(err, dErrors.CodeStore, "could not load chain for verification")
	}

	report := IntegrityReport{Valid: true, Events: len(chain)}
	for i, event := range chain {
		if recomputed := event.ComputeHash(); recomputed != event.CurrentHash {
			report.Violations = append(report.Violations, Violation{
				Index:   i,
				EventID: event.ID,
				Kind:    "hash_mismatch",
				Detail:  fmt.Sprintf("stored hash %s does not match recomputed %s", event.CurrentHash, recomputed),
			})
		}
		if i > 0 && event.PreviousHash != chain[i-1].CurrentHash {
			report.Violations = append(report.Violations, Violation{
				Index:   i,
				EventID: event.ID,
				Kind:    "link_break",
				Detail:  fmt.Sprintf("previous hash %s does not match predecessor %s", event.PreviousHash, chain[i-1].CurrentHash),
			})
		}
	}

	report.Valid = len(report.Violations) == 0
	if l.metrics != nil {
		l.metrics.SetIntegrityViolations(len(report.Violations))
	}
	return report, nil
}

const (
	defaultQueryLimit = 100
	maxQueryLimit     = 1000
)

// Query returns events matching the filter, capped at maxQueryLimit.
// Integrity is not re-verified on the read path: compliance reads stay
// available even when the chain is broken.
func (l *Ledger) Query(ctx context.Context, filter store.Filter) ([]domain.AuditEvent, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultQueryLimit
	}
	if filter.Limit > maxQueryLimit {
		filter.Limit = maxQueryLimit
	}
	events, err := l.store.Query(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStore, "could not query audit events")
	}
	return events, nil
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"civis/internal/domain"
	"civis/pkg/platform/sentinel"
)

// PostgresEventStore persists the chain in the audit_events table. The
// bigserial seq column carries append order; the chain hashes themselves are
// verified by the ledger, not the database.
type PostgresEventStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresEventStore {
	return &PostgresEventStore{db: db}
}

// Schema returns the DDL the store expects. Exposed for integration tests
// and bootstrap tooling.
func Schema() string {
	return `
		CREATE TABLE IF NOT EXISTS audit_events (
			seq             BIGSERIAL PRIMARY KEY,
			id              TEXT NOT NULL UNIQUE,
			timestamp       TIMESTAMPTZ NOT NULL,
			event_type      TEXT NOT NULL,
			result          TEXT NOT NULL,
			subject_id      TEXT NOT NULL DEFAULT '',
			identifier_hash TEXT NOT NULL DEFAULT '',
			details         TEXT NOT NULL DEFAULT '',
			metadata        JSONB,
			session_id      TEXT NOT NULL DEFAULT '',
			previous_hash   TEXT NOT NULL,
			current_hash    TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS audit_events_identifier_hash_idx ON audit_events (identifier_hash);
		CREATE INDEX IF NOT EXISTS audit_events_session_id_idx ON audit_events (session_id);
	`
}

const eventColumns = `id, timestamp, event_type, result, subject_id, identifier_hash,
	details, metadata, session_id, previous_hash, current_hash`

func (s *PostgresEventStore) Append(ctx context.Context, event domain.AuditEvent) error {
	var metadata []byte
	if len(event.Metadata) > 0 {
		var err error
		metadata, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("marshal event metadata: %w", err)
		}
	}

	query := `
		INSERT INTO audit_events (` + eventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.Timestamp,
		string(event.Type),
		string(event.Result),
		event.SubjectID,
		event.IdentifierHash,
		event.Details,
		metadata,
		event.SessionID,
		event.PreviousHash,
		event.CurrentHash,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *PostgresEventStore) List(ctx context.Context) ([]domain.AuditEvent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+eventColumns+` FROM audit_events ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func (s *PostgresEventStore) Tail(ctx context.Context) (domain.AuditEvent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM audit_events ORDER BY seq DESC LIMIT 1`)
	event, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.AuditEvent{}, sentinel.ErrNotFound
	}
	if err != nil {
		return domain.AuditEvent{}, fmt.Errorf("query chain tail: %w", err)
	}
	return event, nil
}

func (s *PostgresEventStore) Query(ctx context.Context, filter Filter) ([]domain.AuditEvent, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.SubjectID != "" {
		add("subject_id = $%d", filter.SubjectID)
	}
	if filter.IdentifierHash != "" {
		add("identifier_hash = $%d", filter.IdentifierHash)
	}
	if filter.Type != "" {
		add("event_type = $%d", string(filter.Type))
	}
	if filter.Result != "" {
		add("result = $%d", string(filter.Result))
	}
	if filter.SessionID != "" {
		add("session_id = $%d", filter.SessionID)
	}
	if filter.From != nil {
		add("timestamp >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("timestamp <= $%d", *filter.To)
	}

	query := `SELECT ` + eventColumns + ` FROM audit_events`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY seq"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (domain.AuditEvent, error) {
	var (
		event     domain.AuditEvent
		eventType string
		result    string
		metadata  []byte
	)
	err := row.Scan(
		&event.ID,
		&event.Timestamp,
		&eventType,
		&result,
		&event.SubjectID,
		&event.IdentifierHash,
		&event.Details,
		&metadata,
		&event.SessionID,
		&event.PreviousHash,
		&event.CurrentHash,
	)
	if err != nil {
		return domain.AuditEvent{}, err
	}
	event.Type = domain.EventType(eventType)
	event.Result = domain.Result(result)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &event.Metadata); err != nil {
			return domain.AuditEvent{}, fmt.Errorf("unmarshal event metadata: %w", err)
		}
	}
	return event, nil
}

func scanEvents(rows *sql.Rows) ([]domain.AuditEvent, error) {
	var events []domain.AuditEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}

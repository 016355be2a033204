package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"civis/internal/domain"
	"civis/pkg/platform/sentinel"
)

// PostgresStore persists voter records. The version column backs the
// compare-and-swap Update; the seq column carries registration order for
// chain walks.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Schema returns the DDL the store expects. Exposed for integration tests
// and bootstrap tooling.
func Schema() string {
	return `
		CREATE TABLE IF NOT EXISTS voter_records (
			seq                       BIGSERIAL PRIMARY KEY,
			id                        TEXT NOT NULL UNIQUE,
			identifier_hash           TEXT NOT NULL UNIQUE,
			encrypted_identifier      TEXT NOT NULL,
			full_name                 TEXT NOT NULL,
			date_of_birth             TEXT NOT NULL DEFAULT '',
			region                    TEXT NOT NULL DEFAULT '',
			encrypted_biometric       BYTEA NOT NULL,
			biometric_quality         DOUBLE PRECISION NOT NULL,
			registered_at             TIMESTAMPTZ NOT NULL,
			active                    BOOLEAN NOT NULL,
			verified                  BOOLEAN NOT NULL,
			login_attempts            INTEGER NOT NULL DEFAULT 0,
			biometric_attempts        INTEGER NOT NULL DEFAULT 0,
			last_login_attempt_at     TIMESTAMPTZ,
			last_biometric_attempt_at TIMESTAMPTZ,
			previous_hash             TEXT NOT NULL,
			current_hash              TEXT NOT NULL,
			version                   BIGINT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS voter_records_registered_at_idx ON voter_records (registered_at);
	`
}

const recordColumns = `id, identifier_hash, encrypted_identifier, full_name, date_of_birth, region,
	encrypted_biometric, biometric_quality, registered_at, active, verified,
	login_attempts, biometric_attempts, last_login_attempt_at, last_biometric_attempt_at,
	previous_hash, current_hash, version`

func (s *PostgresStore) Find(ctx context.Context, identifierHash string) (domain.VoterRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM voter_records WHERE identifier_hash = $1`, identifierHash)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.VoterRecord{}, sentinel.ErrNotFound
	}
	if err != nil {
		return domain.VoterRecord{}, fmt.Errorf("query voter record: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) Put(ctx context.Context, record domain.VoterRecord) error {
	query := `
		INSERT INTO voter_records (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (identifier_hash) DO NOTHING
	`
	result, err := s.db.ExecContext(ctx, query,
		record.ID,
		record.IdentifierHash,
		record.EncryptedIdentifier,
		record.FullName,
		record.DateOfBirth,
		record.Region,
		record.EncryptedBiometric,
		record.BiometricQuality,
		record.RegisteredAt,
		record.Active,
		record.Verified,
		record.LoginAttempts,
		record.BiometricAttempts,
		record.LastLoginAttemptAt,
		record.LastBiometricAttemptAt,
		record.PreviousHash,
		record.CurrentHash,
		record.Version,
	)
	if err != nil {
		return fmt.Errorf("insert voter record: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert voter record: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrDuplicate
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, record domain.VoterRecord) (domain.VoterRecord, error) {
	query := `
		UPDATE voter_records SET
			active = $1, verified = $2,
			login_attempts = $3, biometric_attempts = $4,
			last_login_attempt_at = $5, last_biometric_attempt_at = $6,
			version = version + 1
		WHERE identifier_hash = $7 AND version = $8
		RETURNING ` + recordColumns
	row := s.db.QueryRowContext(ctx, query,
		record.Active,
		record.Verified,
		record.LoginAttempts,
		record.BiometricAttempts,
		record.LastLoginAttemptAt,
		record.LastBiometricAttemptAt,
		record.IdentifierHash,
		record.Version,
	)
	updated, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		// Either the record is gone or the version moved under us; distinguish
		// so callers can retry a CAS loss but not a missing record.
		if _, findErr := s.Find(ctx, record.IdentifierHash); errors.Is(findErr, sentinel.ErrNotFound) {
			return domain.VoterRecord{}, sentinel.ErrNotFound
		}
		return domain.VoterRecord{}, sentinel.ErrConflict
	}
	if err != nil {
		return domain.VoterRecord{}, fmt.Errorf("update voter record: %w", err)
	}
	return updated, nil
}

func (s *PostgresStore) ListSince(ctx context.Context, ts time.Time) ([]domain.VoterRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM voter_records WHERE registered_at >= $1 ORDER BY seq`, ts)
	if err != nil {
		return nil, fmt.Errorf("query voter records: %w", err)
	}
	defer rows.Close()

	var records []domain.VoterRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan voter record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate voter records: %w", err)
	}
	return records, nil
}

func (s *PostgresStore) Latest(ctx context.Context) (domain.VoterRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM voter_records ORDER BY seq DESC LIMIT 1`)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.VoterRecord{}, sentinel.ErrNotFound
	}
	if err != nil {
		return domain.VoterRecord{}, fmt.Errorf("query latest voter record: %w", err)
	}
	return record, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (domain.VoterRecord, error) {
	var (
		record        domain.VoterRecord
		lastLogin     sql.NullTime
		lastBiometric sql.NullTime
	)
	err := row.Scan(
		&record.ID,
		&record.IdentifierHash,
		&record.EncryptedIdentifier,
		&record.FullName,
		&record.DateOfBirth,
		&record.Region,
		&record.EncryptedBiometric,
		&record.BiometricQuality,
		&record.RegisteredAt,
		&record.Active,
		&record.Verified,
		&record.LoginAttempts,
		&record.BiometricAttempts,
		&lastLogin,
		&lastBiometric,
		&record.PreviousHash,
		&record.CurrentHash,
		&record.Version,
	)
	if err != nil {
		return domain.VoterRecord{}, err
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		record.LastLoginAttemptAt = &t
	}
	if lastBiometric.Valid {
		t := lastBiometric.Time
		record.LastBiometricAttemptAt = &t
	}
	return record, nil
}

// Package voters owns the voter record lifecycle. SecureStore is the only
// writer: it seals the identifier and feature vector before anything reaches
// persistence, indexes by salted hash, chains registrations, and applies
// attempt-counter updates through version compare-and-swap.
package voters

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"civis/internal/crypto"
	"civis/internal/domain"
	"civis/internal/voters/store"
	dErrors "civis/pkg/domain-errors"
	"civis/pkg/platform/sentinel"
	"civis/pkg/requestcontext"
)

// casRetries bounds the compare-and-swap loop for counter updates. Contention
// on a single voter's counters is human-speed; losing five races in a row
// means something else is wrong.
const casRetries = 5

// Registration is the plaintext input to Register. Nothing in it is stored
// as-is.
type Registration struct {
	Identifier  string
	FullName    string
	DateOfBirth string
	Region      string
	Features    []float64
	Quality     float64
}

type SecureStore struct {
	store  store.Store
	cipher *crypto.Cipher
	logger *slog.Logger
}

type Option func(*SecureStore)

func WithLogger(logger *slog.Logger) Option {
	return func(s *SecureStore) { s.logger = logger }
}

func NewSecureStore(st store.Store, cipher *crypto.Cipher, opts ...Option) (*SecureStore, error) {
	if st == nil {
		return nil, errors.New("record store is required")
	}
	if cipher == nil {
		return nil, errors.New("cipher is required")
	}
	s := &SecureStore{
		store:  st,
		cipher: cipher,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Register seals the registration payload and appends the record to the
// registration chain. The identifier must be unused; nothing is persisted on
// failure.
func (s *SecureStore) Register(ctx context.Context, reg Registration) (domain.VoterRecord, error) {
	identifierHash := crypto.HashIdentifier(reg.Identifier)

	if _, err := s.store.Find(ctx, identifierHash); err == nil {
		return domain.VoterRecord{}, dErrors.New(dErrors.CodeDuplicate, "identifier is already registered")
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return domain.VoterRecord{}, dErrors.Wrap(err, dErrors.CodeStore, "could not check for existing record")
	}

	previousHash := domain.GenesisHash
	if tail, err := s.store.Latest(ctx); err == nil {
		previousHash = tail.CurrentHash
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return domain.VoterRecord{}, dErrors.Wrap(err, dErrors.CodeStore, "could not load registration chain tail")
	}

	encryptedIdentifier, err := s.cipher.EncryptString(reg.Identifier)
	if err != nil {
		return domain.VoterRecord{}, err
	}
	encryptedBiometric, err := s.cipher.EncryptVector(reg.Features)
	if err != nil {
		return domain.VoterRecord{}, err
	}

	record, err := domain.NewVoterRecord(
		identifierHash, encryptedIdentifier,
		reg.FullName, reg.DateOfBirth, reg.Region,
		encryptedBiometric, reg.Quality,
		previousHash, requestcontext.Now(ctx),
	)
	if err != nil {
		return domain.VoterRecord{}, err
	}

	if err := s.store.Put(ctx, record); err != nil {
		if errors.Is(err, sentinel.ErrDuplicate) {
			return domain.VoterRecord{}, dErrors.New(dErrors.CodeDuplicate, "identifier is already registered")
		}
		return domain.VoterRecord{}, dErrors.Wrap(err, dErrors.CodeStore, "could not persist voter record")
	}
	return record, nil
}

// FindByIdentifier resolves the plaintext identifier to its record through the
// salted index hash.
func (s *SecureStore) FindByIdentifier(ctx context.Context, identifier string) (domain.VoterRecord, error) {
	return s.FindByHash(ctx, crypto.HashIdentifier(identifier))
}

func (s *SecureStore) FindByHash(ctx context.Context, identifierHash string) (domain.VoterRecord, error) {
	record, err := s.store.Find(ctx, identifierHash)
	if errors.Is(err, sentinel.ErrNotFound) {
		return domain.VoterRecord{}, dErrors.New(dErrors.CodeNotFound, "no record for identifier")
	}
	if err != nil {
		return domain.VoterRecord{}, dErrors.Wrap(err, dErrors.CodeStore, "could not load voter record")
	}
	return record, nil
}

// Features opens the record's sealed biometric vector.
func (s *SecureStore) Features(record domain.VoterRecord) ([]float64, error) {
	return s.cipher.DecryptVector(record.EncryptedBiometric)
}

// Identifier opens the record's sealed national identifier.
func (s *SecureStore) Identifier(record domain.VoterRecord) (string, error) {
	return s.cipher.DecryptString(record.EncryptedIdentifier)
}

// RecordLoginFailure bumps the login counter under CAS.
func (s *SecureStore) RecordLoginFailure(ctx context.Context, identifierHash string) (domain.VoterRecord, error) {
	now := requestcontext.Now(ctx)
	return s.mutate(ctx, identifierHash, func(r *domain.VoterRecord) {
		r.RecordLoginFailure(now)
	})
}

// RecordBiometricFailure bumps the biometric counter under CAS.
func (s *SecureStore) RecordBiometricFailure(ctx context.Context, identifierHash string) (domain.VoterRecord, error) {
	now := requestcontext.Now(ctx)
	return s.mutate(ctx, identifierHash, func(r *domain.VoterRecord) {
		r.RecordBiometricFailure(now)
	})
}

// ResetAttempts clears both counters and their timestamps after a successful
// authentication.
func (s *SecureStore) ResetAttempts(ctx context.Context, identifierHash string) (domain.VoterRecord, error) {
	return s.mutate(ctx, identifierHash, func(r *domain.VoterRecord) {
		r.ResetAttempts()
	})
}

// mutate is the CAS loop: read, apply, Update; a version conflict re-reads
// and re-applies so no failed attempt is ever lost to a race.
func (s *SecureStore) mutate(ctx context.Context, identifierHash string, apply func(*domain.VoterRecord)) (domain.VoterRecord, error) {
	for attempt := 0; attempt < casRetries; attempt++ {
		record, err := s.store.Find(ctx, identifierHash)
		if errors.Is(err, sentinel.ErrNotFound) {
			return domain.VoterRecord{}, dErrors.New(dErrors.CodeNotFound, "no record for identifier")
		}
		if err != nil {
			return domain.VoterRecord{}, dErrors.Wrap(err, dErrors.CodeStore, "could not load voter record")
		}

		apply(&record)

		updated, err := s.store.Update(ctx, record)
		switch {
		case err == nil:
			return updated, nil
		case errors.Is(err, sentinel.ErrConflict):
			continue
		default:
			return domain.VoterRecord{}, dErrors.Wrap(err, dErrors.CodeStore, "could not update voter record")
		}
	}
	return domain.VoterRecord{}, dErrors.New(dErrors.CodeConflict, "record update lost every retry")
}

// ChainViolation describes one break in the registration chain.
type ChainViolation struct {
	Index    int    `json:"index"`
	RecordID string `json:"record_id"`
	Kind     string `json:"kind"` // hash_mismatch or link_break
}

// ChainReport is the outcome of a registration-chain walk.
type ChainReport struct {
	Valid      bool             `json:"valid"`
	Records    int              `json:"records"`
	Violations []ChainViolation `json:"violations,omitempty"`
}

// VerifyChain walks every registration in order and checks both the per-record
// hash and the link to the predecessor. Like the audit chain, it collects all
// violations and never repairs.
func (s *SecureStore) VerifyChain(ctx context.Context) (ChainReport, error) {
	records, err := s.store.ListSince(ctx, time.Time{})
	if err != nil {
		return ChainReport{}, dErrors.Wrap(err, dErrors.CodeStore, "could not load registration chain")
	}

	report := ChainReport{Valid: true, Records: len(records)}
	for i, record := range records {
		if record.ComputeHash() != record.CurrentHash {
			report.Violations = append(report.Violations, ChainViolation{
				Index: i, RecordID: record.ID, Kind: "hash_mismatch",
			})
		}
		expected := domain.GenesisHash
		if i > 0 {
			expected = records[i-1].CurrentHash
		}
		if record.PreviousHash != expected {
			report.Violations = append(report.Violations, ChainViolation{
				Index: i, RecordID: record.ID, Kind: "link_break",
			})
		}
	}
	report.Valid = len(report.Violations) == 0
	return report, nil
}

package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"civis/internal/crypto"
	dErrors "civis/pkg/domain-errors"
)

// VoterRecord is the persisted voter. The plaintext identifier and feature
// vector never reach storage: lookups go through IdentifierHash, the payloads
// are sealed by the record cipher. Records chain off each other in
// registration order via PreviousHash/CurrentHash.
//
// Version backs optimistic concurrency on the attempt counters: Update is a
// compare-and-swap, so two concurrent failed attempts cannot both land below
// the lockout threshold.
type VoterRecord struct {
	ID                  string `json:"id"`
	IdentifierHash      string `json:"identifier_hash"`
	EncryptedIdentifier string `json:"encrypted_identifier"`

	FullName    string `json:"full_name"`
	DateOfBirth string `json:"date_of_birth"`
	Region      string `json:"region,omitempty"`

	EncryptedBiometric []byte  `json:"encrypted_biometric"`
	BiometricQuality   float64 `json:"biometric_quality"`

	RegisteredAt time.Time `json:"registered_at"`
	Active       bool      `json:"active"`
	Verified     bool      `json:"verified"`

	LoginAttempts          int        `json:"login_attempts"`
	BiometricAttempts      int        `json:"biometric_attempts"`
	LastLoginAttemptAt     *time.Time `json:"last_login_attempt_at,omitempty"`
	LastBiometricAttemptAt *time.Time `json:"last_biometric_attempt_at,omitempty"`

	PreviousHash string `json:"previous_hash"`
	CurrentHash  string `json:"current_hash"`

	Version int64 `json:"version"`
}

// NewVoterRecord constructs a record with its invariants established. The
// caller supplies already-encrypted payloads and the hash of the previous
// most-recent registration ("0" for the first record).
func NewVoterRecord(identifierHash, encryptedIdentifier, fullName, dateOfBirth, region string,
	encryptedBiometric []byte, quality float64, previousHash string, registeredAt time.Time) (VoterRecord, error) {

	if identifierHash == "" {
		return VoterRecord{}, dErrors.New(dErrors.CodeInvalidInput, "identifier hash cannot be empty")
	}
	if encryptedIdentifier == "" {
		return VoterRecord{}, dErrors.New(dErrors.CodeInvalidInput, "encrypted identifier cannot be empty")
	}
	if fullName == "" {
		return VoterRecord{}, dErrors.New(dErrors.CodeInvalidInput, "full name cannot be empty")
	}
	if len(encryptedBiometric) == 0 {
		return VoterRecord{}, dErrors.New(dErrors.CodeInvalidInput, "biometric payload cannot be empty")
	}
	if previousHash == "" {
		return VoterRecord{}, dErrors.New(dErrors.CodeInvalidInput, "previous hash cannot be empty")
	}

	record := VoterRecord{
		ID:                  uuid.NewString(),
		IdentifierHash:      identifierHash,
		EncryptedIdentifier: encryptedIdentifier,
		FullName:            fullName,
		DateOfBirth:         dateOfBirth,
		Region:              region,
		EncryptedBiometric:  encryptedBiometric,
		BiometricQuality:    quality,
		RegisteredAt:        registeredAt,
		Active:              true,
		Verified:            true,
		PreviousHash:        previousHash,
		Version:             1,
	}
	record.CurrentHash = record.ComputeHash()
	return record, nil
}

// ComputeHash derives the registration-chain hash from the record's identity
// fields and the previous link.
func (r VoterRecord) ComputeHash() string {
	parts := []string{
		r.ID,
		r.IdentifierHash,
		r.FullName,
		r.DateOfBirth,
		r.RegisteredAt.UTC().Format(time.RFC3339Nano),
		r.PreviousHash,
	}
	return crypto.Hash(strings.Join(parts, "|"), "")
}

// TotalAttempts is the combined failure count the lockout threshold applies to.
func (r VoterRecord) TotalAttempts() int {
	return r.LoginAttempts + r.BiometricAttempts
}

// lastAttemptAt returns the most recent of the two attempt timestamps.
func (r VoterRecord) lastAttemptAt() *time.Time {
	last := r.LastLoginAttemptAt
	if r.LastBiometricAttemptAt != nil && (last == nil || r.LastBiometricAttemptAt.After(*last)) {
		last = r.LastBiometricAttemptAt
	}
	return last
}

// IsLockedAt evaluates the lockout predicate: combined attempts at or over
// the threshold AND the last failure inside the lockout window. Lockout is
// derived, never stored - it expires by elapsed time alone.
func (r VoterRecord) IsLockedAt(now time.Time, maxAttempts int, lockout time.Duration) bool {
	if r.TotalAttempts() < maxAttempts {
		return false
	}
	last := r.lastAttemptAt()
	if last == nil {
		return false
	}
	return now.Sub(*last) < lockout
}

// LockedUntil reports when the lockout self-expires. Only meaningful when
// IsLockedAt is true for the same now.
func (r VoterRecord) LockedUntil(lockout time.Duration) time.Time {
	last := r.lastAttemptAt()
	if last == nil {
		return time.Time{}
	}
	return last.Add(lockout)
}

// RecordBiometricFailure increments the biometric counter and stamps the
// attempt time.
func (r *VoterRecord) RecordBiometricFailure(now time.Time) {
	r.BiometricAttempts++
	t := now
	r.LastBiometricAttemptAt = &t
}

// RecordLoginFailure increments the login counter and stamps the attempt time.
func (r *VoterRecord) RecordLoginFailure(now time.Time) {
	r.LoginAttempts++
	t := now
	r.LastLoginAttemptAt = &t
}

// ResetAttempts forgives prior failures after a successful authentication.
func (r *VoterRecord) ResetAttempts() {
	r.LoginAttempts = 0
	r.BiometricAttempts = 0
	r.LastLoginAttemptAt = nil
	r.LastBiometricAttemptAt = nil
}

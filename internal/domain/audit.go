package domain

import (
	"strings"
	"time"

	"civis/internal/crypto"
)

// EventType classifies security-relevant events recorded in the audit chain.
type EventType string

const (
	EventIdentifierValidation EventType = "identifier_validation"
	EventBiometricCapture     EventType = "biometric_capture"
	EventLoginAttempt         EventType = "login_attempt"
	EventRegistration         EventType = "registration"
	EventConsentGiven         EventType = "consent_given"
	EventVoteCast             EventType = "vote_cast"

	// EventChainGenesis marks the first link of a fresh ledger. It is written
	// exactly once, by Initialize, never by callers.
	EventChainGenesis EventType = "chain_genesis"
)

// IsValid checks if the event type is one of the supported enum values.
func (t EventType) IsValid() bool {
	switch t {
	case EventIdentifierValidation, EventBiometricCapture, EventLoginAttempt,
		EventRegistration, EventConsentGiven, EventVoteCast, EventChainGenesis:
		return true
	}
	return false
}

// Result is the outcome recorded with an audit event.
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
	ResultPending Result = "pending"
)

// GenesisHash seeds the chain: the first event's PreviousHash.
const GenesisHash = "0"

// AuditEvent is one link in the tamper-evident chain. IdentifierHash is the
// salted one-way digest of a voter identifier - plaintext identifiers never
// enter the ledger.
type AuditEvent struct {
	ID             string            `json:"id"`
	Timestamp      time.Time         `json:"timestamp"`
	Type           EventType         `json:"event_type"`
	Result         Result            `json:"result"`
	SubjectID      string            `json:"subject_id,omitempty"`
	IdentifierHash string            `json:"identifier_hash,omitempty"`
	Details        string            `json:"details"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	SessionID      string            `json:"session_id,omitempty"`
	PreviousHash   string            `json:"previous_hash"`
	CurrentHash    string            `json:"current_hash"`
}

// ComputeHash derives the event's chain hash from its content and the
// previous link. Integrity verification recomputes this and compares against
// the stored CurrentHash, so the field set and encoding here are load-bearing:
// changing either invalidates every persisted chain.
func (e AuditEvent) ComputeHash() string {
	parts := []string{
		e.ID,
		e.Timestamp.UTC().Format(time.RFC3339Nano),
		string(e.Type),
		string(e.Result),
		e.Details,
		e.SessionID,
		e.PreviousHash,
	}
	return crypto.Hash(strings.Join(parts, "|"), "")
}

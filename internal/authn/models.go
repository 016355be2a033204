package authn

import (
	"time"

	"civis/internal/domain"
	"civis/internal/registry"
)

// ValidationResult is the outcome of submitting an identifier. Step carries
// the state the session landed in: BiometricChallenge for an enrolled voter,
// RequiresRegistration for a registry-valid stranger, Locked when the lockout
// predicate holds.
type ValidationResult struct {
	SessionID         string          `json:"session_id"`
	Step              domain.Step     `json:"step"`
	AttemptsRemaining int             `json:"attempts_remaining,omitempty"`
	LockedUntil       *time.Time      `json:"locked_until,omitempty"`
	RegistrySource    registry.Source `json:"registry_source,omitempty"`
}

// AuthResult is the outcome of a biometric authentication attempt.
type AuthResult struct {
	SessionID         string      `json:"session_id"`
	Step              domain.Step `json:"step"`
	VoterID           string      `json:"voter_id,omitempty"`
	Similarity        float64     `json:"similarity"`
	AttemptsRemaining int         `json:"attempts_remaining,omitempty"`
	Token             string      `json:"token,omitempty"`
}

// Consent is the set of processing consents registration requires. Every flag
// must be affirmatively true; absence of objection is not consent.
type Consent struct {
	BiometricProcessing bool `json:"biometric_processing"`
	EncryptedRetention  bool `json:"encrypted_retention"`
	AuditTrail          bool `json:"audit_trail"`
}

// Missing lists the consents not given, empty when consent is complete.
func (c Consent) Missing() []string {
	var missing []string
	if !c.BiometricProcessing {
		missing = append(missing, "biometric_processing")
	}
	if !c.EncryptedRetention {
		missing = append(missing, "encrypted_retention")
	}
	if !c.AuditTrail {
		missing = append(missing, "audit_trail")
	}
	return missing
}

// RegistrationRequest enrolls a new voter. The sample must clear the
// registration quality, confidence and liveness thresholds.
type RegistrationRequest struct {
	SessionID   string                 `json:"session_id,omitempty"`
	Identifier  string                 `json:"identifier"`
	FullName    string                 `json:"full_name"`
	DateOfBirth string                 `json:"date_of_birth"`
	Region      string                 `json:"region,omitempty"`
	Sample      domain.BiometricSample `json:"sample"`
	Consent     Consent                `json:"consent"`
}

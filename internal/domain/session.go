package domain

import "time"

// Step is the authenticator state a session sits in.
type Step string

const (
	StepIdentifierValidation Step = "identifier_validation"
	StepLockoutCheck         Step = "lockout_check"
	StepBiometricChallenge   Step = "biometric_challenge"
	StepMatchDecision        Step = "match_decision"
	StepAuthenticated        Step = "authenticated"
	StepRequiresRegistration Step = "requires_registration"
	StepLocked               Step = "locked"
)

// Terminal reports whether the step ends the session's authentication branch.
func (s Step) Terminal() bool {
	switch s {
	case StepAuthenticated, StepRequiresRegistration, StepLocked:
		return true
	}
	return false
}

// AuthenticationSession tracks one voter's progress through the state
// machine. Created on first identifier submission, discarded on reset or
// terminal success. The bound record is referenced by its identifier hash,
// never by plaintext identifier.
type AuthenticationSession struct {
	ID                string     `json:"id"`
	Step              Step       `json:"step"`
	IdentifierHash    string     `json:"identifier_hash,omitempty"`
	VoterID           string     `json:"voter_id,omitempty"`
	AttemptsRemaining int        `json:"attempts_remaining"`
	LockedUntil       *time.Time `json:"locked_until,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

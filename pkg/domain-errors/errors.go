// Package domainerrors defines coded domain errors shared across services.
// Stores return sentinel errors (pkg/platform/sentinel); services translate
// them into one of these codes before they cross a package boundary, so
// transports and callers can branch on Code without string matching.
package domainerrors

import (
	"errors"
	"fmt"
)

type Code string

const (
	// Identifier / input validation
	CodeInvalidFormat Code = "invalid_format"
	CodeInvalidInput  Code = "invalid_input"

	// Lookup outcomes
	CodeNotFound Code = "not_found"

	// Authentication pipeline
	CodeLocked            Code = "locked"
	CodeLivenessFailed    Code = "liveness_failed"
	CodeQualityTooLow     Code = "quality_below_threshold"
	CodeMatchBelowTarget  Code = "match_below_threshold"
	CodeConsentMissing    Code = "consent_missing"
	CodeDuplicate         Code = "duplicate_registration"
	CodeDimensionMismatch Code = "dimension_mismatch"

	// Infrastructure
	CodeChainIntegrity Code = "chain_integrity"
	CodeCrypto         Code = "crypto_failure"
	CodeStore          Code = "store_failure"
	CodeConflict       Code = "conflict"
	CodeUnavailable    Code = "unavailable"
	CodeUnauthorized   Code = "unauthorized"
	CodeInternal       Code = "internal"
)

// Error is the single error type domain services return. Meta carries
// machine-readable values the caller needs to act on a failure (attempts
// remaining, lockout deadline, numeric similarity) so nothing is lost to
// string formatting.
type Error struct {
	Code    Code
	Message string
	Meta    map[string]any
	err     error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.err }

// New creates a domain error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a domain error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, err: err}
}

// WithMeta returns the error with a metadata key set. The receiver is
// returned to allow chaining at the construction site.
func (e *Error) WithMeta(key string, value any) *Error {
	if e.Meta == nil {
		e.Meta = make(map[string]any, 1)
	}
	e.Meta[key] = value
	return e
}

// CodeOf extracts the domain code from an error chain. Non-domain errors
// report CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// Is lets callers match with errors.Is against a bare-code error value.
func (e *Error) Is(target error) bool {
	var de *Error
	if errors.As(target, &de) {
		return de.Code == e.Code
	}
	return false
}

// MetaValue extracts a metadata value from an error chain.
func MetaValue(err error, key string) (any, bool) {
	var de *Error
	if errors.As(err, &de) {
		v, ok := de.Meta[key]
		return v, ok
	}
	return nil, false
}

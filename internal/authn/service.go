// Package authn drives the voter authentication state machine:
//
//	IdentifierValidation → LockoutCheck → BiometricChallenge → MatchDecision
//	                → Authenticated | RequiresRegistration | Locked
//
// Authenticated is reachable only through a passed liveness challenge and a
// match at or above the confidence threshold; Locked only through the derived
// lockout predicate. Every transition lands exactly one event in the audit
// chain; an audit write failure never changes the business outcome.
package authn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"civis/internal/authn/metrics"
	"civis/internal/authn/store"
	"civis/internal/biometric"
	"civis/internal/crypto"
	"civis/internal/domain"
	"civis/internal/ledger"
	"civis/internal/liveness"
	"civis/internal/platform/config"
	"civis/internal/registry"
	"civis/internal/token"
	"civis/internal/voters"
	dErrors "civis/pkg/domain-errors"
	"civis/pkg/platform/sentinel"
	"civis/pkg/requestcontext"
)

type Service struct {
	sessions store.SessionStore
	records  *voters.SecureStore
	registry *registry.Gateway
	engine   *liveness.Engine
	audit    *ledger.Ledger
	policy   config.Policy

	source  biometric.Source
	tokens  *token.Issuer
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer

	// captures maps session id to the cancel func of its in-flight capture so
	// Reset can abort a blocked device wait.
	mu       sync.Mutex
	captures map[string]context.CancelFunc
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithSource(source biometric.Source) Option {
	return func(s *Service) { s.source = source }
}

func WithTokenIssuer(issuer *token.Issuer) Option {
	return func(s *Service) { s.tokens = issuer }
}

func New(sessions store.SessionStore, records *voters.SecureStore, gateway *registry.Gateway,
	engine *liveness.Engine, audit *ledger.Ledger, policy config.Policy, opts ...Option) (*Service, error) {

	if sessions == nil || records == nil || gateway == nil || engine == nil || audit == nil {
		return nil, errors.New("sessions, records, registry, engine and audit ledger are all required")
	}
	s := &Service{
		sessions: sessions,
		records:  records,
		registry: gateway,
		engine:   engine,
		audit:    audit,
		policy:   policy,
		logger:   slog.Default(),
		tracer:   otel.Tracer("civis/internal/authn"),
		captures: make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// record appends an audit event, logging on failure. Audit follows the
// decision; it never vetoes it.
func (s *Service) record(ctx context.Context, event domain.AuditEvent) {
	if _, err := s.audit.Record(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "audit record failed",
			"event_type", event.Type,
			"session_id", event.SessionID,
			"error", err,
		)
	}
}

func (s *Service) attemptsRemaining(record domain.VoterRecord) int {
	remaining := s.policy.MaxLoginAttempts - record.TotalAttempts()
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ValidateIdentifier runs the first two states: identifier format and lookup,
// then the lockout check. An empty sessionID starts a fresh session.
func (s *Service) ValidateIdentifier(ctx context.Context, sessionID, identifier string) (ValidationResult, error) {
	ctx, span := s.tracer.Start(ctx, "authn.ValidateIdentifier")
	defer span.End()

	now := requestcontext.Now(ctx)
	session, err := s.loadOrCreateSession(ctx, sessionID, now)
	if err != nil {
		return ValidationResult{}, err
	}

	if err := s.registry.ValidateFormat(identifier); err != nil {
		s.record(ctx, domain.AuditEvent{
			Type: domain.EventIdentifierValidation, Result: domain.ResultFailure,
			Details: "identifier format rejected", SessionID: session.ID,
		})
		s.countValidation(string(domain.StepIdentifierValidation))
		return ValidationResult{SessionID: session.ID, Step: domain.StepIdentifierValidation}, err
	}

	identifierHash := crypto.HashIdentifier(identifier)
	record, err := s.records.FindByHash(ctx, identifierHash)
	switch {
	case err == nil:
		return s.admitKnownVoter(ctx, session, record, now)
	case dErrors.CodeOf(err) == dErrors.CodeNotFound:
		return s.consultRegistry(ctx, session, identifier, identifierHash)
	default:
		return ValidationResult{}, err
	}
}

// admitKnownVoter applies the lockout predicate and, when clear, moves the
// session to the biometric challenge.
func (s *Service) admitKnownVoter(ctx context.Context, session domain.AuthenticationSession,
	record domain.VoterRecord, now time.Time) (ValidationResult, error) {

	session.IdentifierHash = record.IdentifierHash
	session.VoterID = record.ID
	session.UpdatedAt = now

	if record.IsLockedAt(now, s.policy.MaxLoginAttempts, s.policy.LockoutDuration) {
		until := record.LockedUntil(s.policy.LockoutDuration)
		session.Step = domain.StepLocked
		session.LockedUntil = &until
		session.AttemptsRemaining = 0
		if err := s.sessions.Save(ctx, session); err != nil {
			return ValidationResult{}, dErrors.Wrap(err, dErrors.CodeStore, "could not save session")
		}

		s.record(ctx, domain.AuditEvent{
			Type: domain.EventIdentifierValidation, Result: domain.ResultFailure,
			SubjectID: record.ID, IdentifierHash: record.IdentifierHash,
			Details:   "lockout predicate holds",
			Metadata:  map[string]string{"locked_until": until.UTC().Format(time.RFC3339)},
			SessionID: session.ID,
		})
		if s.metrics != nil {
			s.metrics.IncrementLockouts()
		}
		s.countValidation(string(domain.StepLocked))
		return ValidationResult{
			SessionID: session.ID, Step: domain.StepLocked, LockedUntil: &until,
		}, nil
	}

	session.Step = domain.StepBiometricChallenge
	session.AttemptsRemaining = s.attemptsRemaining(record)
	if err := s.sessions.Save(ctx, session); err != nil {
		return ValidationResult{}, dErrors.Wrap(err, dErrors.CodeStore, "could not save session")
	}

	s.record(ctx, domain.AuditEvent{
		Type: domain.EventIdentifierValidation, Result: domain.ResultSuccess,
		SubjectID: record.ID, IdentifierHash: record.IdentifierHash,
		Details: "identifier recognized, biometric challenge issued", SessionID: session.ID,
	})
	s.countValidation(string(domain.StepBiometricChallenge))
	return ValidationResult{
		SessionID:         session.ID,
		Step:              domain.StepBiometricChallenge,
		AttemptsRemaining: session.AttemptsRemaining,
	}, nil
}

// consultRegistry resolves an unknown identifier against the national
// registry: valid citizens are routed to registration, the rest are rejected.
func (s *Service) consultRegistry(ctx context.Context, session domain.AuthenticationSession,
	identifier, identifierHash string) (ValidationResult, error) {

	result, err := s.registry.Validate(ctx, identifier)
	if err != nil {
		return ValidationResult{}, err
	}

	if !result.Valid {
		s.record(ctx, domain.AuditEvent{
			Type: domain.EventIdentifierValidation, Result: domain.ResultFailure,
			IdentifierHash: identifierHash,
			Details:        fmt.Sprintf("identifier not recognized by %s registry", result.Source),
			SessionID:      session.ID,
		})
		s.countValidation(string(domain.StepIdentifierValidation))
		return ValidationResult{SessionID: session.ID, Step: domain.StepIdentifierValidation, RegistrySource: result.Source},
			dErrors.New(dErrors.CodeNotFound, "identifier is not a registered citizen")
	}

	session.Step = domain.StepRequiresRegistration
	session.IdentifierHash = identifierHash
	session.UpdatedAt = requestcontext.Now(ctx)
	if err := s.sessions.Save(ctx, session); err != nil {
		return ValidationResult{}, dErrors.Wrap(err, dErrors.CodeStore, "could not save session")
	}

	s.record(ctx, domain.AuditEvent{
		Type: domain.EventIdentifierValidation, Result: domain.ResultPending,
		IdentifierHash: identifierHash,
		Details:        fmt.Sprintf("citizen valid per %s registry, not yet enrolled", result.Source),
		SessionID:      session.ID,
	})
	s.countValidation(string(domain.StepRequiresRegistration))
	return ValidationResult{
		SessionID: session.ID, Step: domain.StepRequiresRegistration, RegistrySource: result.Source,
	}, nil
}

// AuthenticateWithBiometrics runs the challenge and match states against a
// captured sample. Failures increment the biometric counter; success resets
// both counters and ends the session.
func (s *Service) AuthenticateWithBiometrics(ctx context.Context, sessionID string, sample domain.BiometricSample) (AuthResult, error) {
	ctx, span := s.tracer.Start(ctx, "authn.AuthenticateWithBiometrics")
	defer span.End()

	session, err := s.sessions.Get(ctx, sessionID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return AuthResult{}, dErrors.New(dErrors.CodeNotFound, "unknown session")
	}
	if err != nil {
		return AuthResult{}, dErrors.Wrap(err, dErrors.CodeStore, "could not load session")
	}
	if session.Step != domain.StepBiometricChallenge {
		return AuthResult{}, dErrors.Newf(dErrors.CodeInvalidInput,
			"session is in step %s, not awaiting a biometric challenge", session.Step)
	}

	record, err := s.records.FindByHash(ctx, session.IdentifierHash)
	if err != nil {
		return AuthResult{}, err
	}

	now := requestcontext.Now(ctx)
	if record.IsLockedAt(now, s.policy.MaxLoginAttempts, s.policy.LockoutDuration) {
		until := record.LockedUntil(s.policy.LockoutDuration)
		return AuthResult{SessionID: session.ID, Step: domain.StepLocked},
			dErrors.New(dErrors.CodeLocked, "account is locked").WithMeta("locked_until", until)
	}

	if err := s.engine.EvaluateChallenge(sample.Tests); err != nil {
		return s.failAttempt(ctx, session, record, domain.EventBiometricCapture, "liveness_failed", 0, err)
	}
	s.record(ctx, domain.AuditEvent{
		Type: domain.EventBiometricCapture, Result: domain.ResultSuccess,
		SubjectID: record.ID, IdentifierHash: record.IdentifierHash,
		Details: "liveness challenge passed", SessionID: session.ID,
	})

	enrolled, err := s.records.Features(record)
	if err != nil {
		return AuthResult{}, err
	}
	similarity, err := s.engine.Compare(sample.Features, enrolled)
	if err != nil {
		return s.failAttempt(ctx, session, record, domain.EventLoginAttempt, "dimension_mismatch", 0, err)
	}

	if similarity < s.policy.ConfidenceThreshold {
		matchErr := dErrors.Newf(dErrors.CodeMatchBelowTarget,
			"similarity %.4f below threshold %.2f", similarity, s.policy.ConfidenceThreshold).
			WithMeta("similarity", similarity)
		return s.failAttempt(ctx, session, record, domain.EventLoginAttempt, "match_below_threshold", similarity, matchErr)
	}

	if _, err := s.records.ResetAttempts(ctx, record.IdentifierHash); err != nil {
		return AuthResult{}, err
	}

	result := AuthResult{
		SessionID:  session.ID,
		Step:       domain.StepAuthenticated,
		VoterID:    record.ID,
		Similarity: similarity,
	}
	if s.tokens != nil {
		result.Token, err = s.tokens.Issue(ctx, record.ID, session.ID)
		if err != nil {
			return AuthResult{}, err
		}
	}

	// Terminal success: the session is done, working state goes away.
	if err := s.sessions.Delete(ctx, session.ID); err != nil {
		s.logger.WarnContext(ctx, "could not discard finished session", "session_id", session.ID, "error", err)
	}
	s.clearCapture(session.ID)

	s.record(ctx, domain.AuditEvent{
		Type: domain.EventLoginAttempt, Result: domain.ResultSuccess,
		SubjectID: record.ID, IdentifierHash: record.IdentifierHash,
		Details:   "biometric match accepted",
		Metadata:  map[string]string{"similarity": fmt.Sprintf("%.4f", similarity)},
		SessionID: session.ID,
	})
	s.countAttempt("success")
	return result, nil
}

// failAttempt is the shared failure path for liveness and match failures:
// bump the counter, audit, persist the session with the new attempt budget,
// and hand the causing error back.
func (s *Service) failAttempt(ctx context.Context, session domain.AuthenticationSession,
	record domain.VoterRecord, eventType domain.EventType, outcome string,
	similarity float64, cause error) (AuthResult, error) {

	updated, err := s.records.RecordBiometricFailure(ctx, record.IdentifierHash)
	if err != nil {
		return AuthResult{}, err
	}

	metadata := map[string]string{"reason": outcome}
	if eventType == domain.EventLoginAttempt && outcome == "match_below_threshold" {
		metadata["similarity"] = fmt.Sprintf("%.4f", similarity)
	}
	s.record(ctx, domain.AuditEvent{
		Type: eventType, Result: domain.ResultFailure,
		SubjectID: record.ID, IdentifierHash: record.IdentifierHash,
		Details:   fmt.Sprintf("attempt failed: %s", outcome),
		Metadata:  metadata,
		SessionID: session.ID,
	})
	s.countAttempt(outcome)

	session.AttemptsRemaining = s.attemptsRemaining(updated)
	session.UpdatedAt = requestcontext.Now(ctx)
	if err := s.sessions.Save(ctx, session); err != nil {
		s.logger.WarnContext(ctx, "could not save session after failed attempt", "session_id", session.ID, "error", err)
	}

	return AuthResult{
		SessionID:         session.ID,
		Step:              domain.StepBiometricChallenge,
		Similarity:        similarity,
		AttemptsRemaining: session.AttemptsRemaining,
	}, cause
}

// CaptureAndAuthenticate waits on the capture device, then runs the sample
// through AuthenticateWithBiometrics. The wait is unbounded but cancellable:
// Reset aborts it.
func (s *Service) CaptureAndAuthenticate(ctx context.Context, sessionID string) (AuthResult, error) {
	ctx, span := s.tracer.Start(ctx, "authn.CaptureAndAuthenticate")
	defer span.End()

	if s.source == nil {
		return AuthResult{}, dErrors.New(dErrors.CodeUnavailable, "no capture source is configured")
	}
	if _, err := s.sessions.Get(ctx, sessionID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return AuthResult{}, dErrors.New(dErrors.CodeNotFound, "unknown session")
		}
		return AuthResult{}, dErrors.Wrap(err, dErrors.CodeStore, "could not load session")
	}

	captureCtx, cancel := context.WithCancel(ctx)
	s.registerCapture(sessionID, cancel)
	defer s.clearCapture(sessionID)

	sample, err := s.source.Capture(captureCtx)
	if err != nil {
		s.record(ctx, domain.AuditEvent{
			Type: domain.EventBiometricCapture, Result: domain.ResultFailure,
			Details: "capture did not complete", SessionID: sessionID,
		})
		if errors.Is(err, context.Canceled) {
			return AuthResult{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "capture was cancelled")
		}
		return AuthResult{}, err
	}

	return s.AuthenticateWithBiometrics(ctx, sessionID, sample)
}

// RegisterNewVoter enrolls a citizen: complete consent, a sample above the
// registration thresholds, and an unused identifier. Success writes the
// chained record and lands both a registration and a consent event in the
// audit chain; failure writes nothing but the failure event.
func (s *Service) RegisterNewVoter(ctx context.Context, req RegistrationRequest) (domain.VoterRecord, error) {
	ctx, span := s.tracer.Start(ctx, "authn.RegisterNewVoter")
	defer span.End()

	identifierHash := crypto.HashIdentifier(req.Identifier)
	fail := func(cause error, reason string) (domain.VoterRecord, error) {
		s.record(ctx, domain.AuditEvent{
			Type: domain.EventRegistration, Result: domain.ResultFailure,
			IdentifierHash: identifierHash,
			Details:        fmt.Sprintf("registration rejected: %s", reason),
			SessionID:      req.SessionID,
		})
		s.countRegistration("failure")
		return domain.VoterRecord{}, cause
	}

	if err := s.registry.ValidateFormat(req.Identifier); err != nil {
		return fail(err, "identifier format")
	}
	if missing := req.Consent.Missing(); len(missing) > 0 {
		err := dErrors.New(dErrors.CodeConsentMissing, "registration requires every consent").
			WithMeta("missing", missing)
		return fail(err, "consent incomplete")
	}

	if err := s.engine.EvaluateChallenge(req.Sample.Tests); err != nil {
		return fail(err, "liveness challenge")
	}
	livenessScore := s.engine.ScoreLiveness(req.Sample.Tests)
	if livenessScore < s.policy.RegistrationLivenessMin {
		err := dErrors.Newf(dErrors.CodeLivenessFailed,
			"liveness score %.2f below registration minimum %.2f", livenessScore, s.policy.RegistrationLivenessMin)
		return fail(err, "liveness score")
	}
	quality := s.engine.AssessQuality(req.Sample)
	if quality < s.policy.RegistrationQualityMin {
		err := dErrors.Newf(dErrors.CodeQualityTooLow,
			"capture quality %.2f below registration minimum %.2f", quality, s.policy.RegistrationQualityMin)
		return fail(err, "capture quality")
	}
	if req.Sample.Confidence < s.policy.RegistrationConfidenceMin {
		err := dErrors.Newf(dErrors.CodeQualityTooLow,
			"capture confidence %.2f below registration minimum %.2f", req.Sample.Confidence, s.policy.RegistrationConfidenceMin)
		return fail(err, "capture confidence")
	}

	record, err := s.records.Register(ctx, voters.Registration{
		Identifier:  req.Identifier,
		FullName:    req.FullName,
		DateOfBirth: req.DateOfBirth,
		Region:      req.Region,
		Features:    req.Sample.Features,
		Quality:     quality,
	})
	if err != nil {
		return fail(err, "record store")
	}

	s.record(ctx, domain.AuditEvent{
		Type: domain.EventRegistration, Result: domain.ResultSuccess,
		SubjectID: record.ID, IdentifierHash: record.IdentifierHash,
		Details:   "voter enrolled",
		Metadata:  map[string]string{"quality": fmt.Sprintf("%.4f", quality)},
		SessionID: req.SessionID,
	})
	s.record(ctx, domain.AuditEvent{
		Type: domain.EventConsentGiven, Result: domain.ResultSuccess,
		SubjectID: record.ID, IdentifierHash: record.IdentifierHash,
		Details:   "biometric_processing, encrypted_retention, audit_trail",
		SessionID: req.SessionID,
	})
	s.countRegistration("success")
	return record, nil
}

// Reset aborts any in-flight capture and discards the session. A registered
// voter who resets starts over at identifier validation.
func (s *Service) Reset(ctx context.Context, sessionID string) error {
	ctx, span := s.tracer.Start(ctx, "authn.Reset")
	defer span.End()

	s.clearCapture(sessionID)
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return dErrors.Wrap(err, dErrors.CodeStore, "could not discard session")
	}
	s.logger.InfoContext(ctx, "session reset", "session_id", sessionID)
	return nil
}

func (s *Service) loadOrCreateSession(ctx context.Context, sessionID string, now time.Time) (domain.AuthenticationSession, error) {
	if sessionID == "" {
		return domain.AuthenticationSession{
			ID:        crypto.SessionID(),
			Step:      domain.StepIdentifierValidation,
			CreatedAt: now,
			UpdatedAt: now,
		}, nil
	}
	session, err := s.sessions.Get(ctx, sessionID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return domain.AuthenticationSession{}, dErrors.New(dErrors.CodeNotFound, "unknown session")
	}
	if err != nil {
		return domain.AuthenticationSession{}, dErrors.Wrap(err, dErrors.CodeStore, "could not load session")
	}
	return session, nil
}

func (s *Service) registerCapture(sessionID string, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prior, ok := s.captures[sessionID]; ok {
		prior()
	}
	s.captures[sessionID] = cancel
}

func (s *Service) clearCapture(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.captures[sessionID]; ok {
		cancel()
		delete(s.captures, sessionID)
	}
}

func (s *Service) countValidation(step string) {
	if s.metrics != nil {
		s.metrics.IncrementValidations(step)
	}
}

func (s *Service) countAttempt(outcome string) {
	if s.metrics != nil {
		s.metrics.IncrementAttempts(outcome)
	}
}

func (s *Service) countRegistration(outcome string) {
	if s.metrics != nil {
		s.metrics.IncrementRegistrations(outcome)
	}
}

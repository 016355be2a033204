package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"civis/internal/authn"
	"civis/internal/domain"
	"civis/internal/ledger"
	"civis/internal/ledger/store"
	"civis/internal/voters"
	dErrors "civis/pkg/domain-errors"
	"civis/pkg/requestcontext"
)

type handlers struct {
	authn  *authn.Service
	audit  *ledger.Ledger
	voters *voters.SecureStore
	logger *slog.Logger
	health func(ctx context.Context) error
}

type validateRequest struct {
	SessionID  string `json:"session_id,omitempty"`
	Identifier string `json:"identifier"`
}

func (h *handlers) validateIdentifier(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, dErrors.Wrap(err, dErrors.CodeInvalidInput, "malformed request body"))
		return
	}

	result, err := h.authn.ValidateIdentifier(r.Context(), req.SessionID, req.Identifier)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type authenticateRequest struct {
	Sample domain.BiometricSample `json:"sample"`
}

func (h *handlers) authenticate(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req authenticateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, dErrors.Wrap(err, dErrors.CodeInvalidInput, "malformed request body"))
		return
	}

	result, err := h.authn.AuthenticateWithBiometrics(r.Context(), sessionID, req.Sample)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handlers) captureAndAuthenticate(w http.ResponseWriter, r *http.Request) {
	result, err := h.authn.CaptureAndAuthenticate(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handlers) reset(w http.ResponseWriter, r *http.Request) {
	if err := h.authn.Reset(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) register(w http.ResponseWriter, r *http.Request) {
	var req authn.RegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, dErrors.Wrap(err, dErrors.CodeInvalidInput, "malformed request body"))
		return
	}

	record, err := h.authn.RegisterNewVoter(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

// auditFilter parses the shared query parameters for the audit endpoints.
func auditFilter(r *http.Request) store.Filter {
	q := r.URL.Query()
	filter := store.Filter{
		SubjectID:      q.Get("subject_id"),
		IdentifierHash: q.Get("identifier_hash"),
		Type:           domain.EventType(q.Get("event_type")),
		Result:         domain.Result(q.Get("result")),
		SessionID:      q.Get("session_id"),
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.From = &t
		}
	}
	if v := q.Get("to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.To = &t
		}
	}
	return filter
}

func (h *handlers) auditEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.audit.Query(r.Context(), auditFilter(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (h *handlers) auditVerify(w http.ResponseWriter, r *http.Request) {
	report, err := h.audit.VerifyIntegrity(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *handlers) auditExportCSV(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="audit-events.csv"`)
	if err := h.audit.ExportCSV(r.Context(), w, auditFilter(r)); err != nil {
		// Headers are gone; all we can do is log.
		h.logger.Error("csv export failed", "error", err)
	}
}

func (h *handlers) votersVerifyChain(w http.ResponseWriter, r *http.Request) {
	report, err := h.voters.VerifyChain(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// castVote acknowledges a ballot handoff in the audit chain. Ballot contents
// and tallying live elsewhere; this system records only the fact that an
// authenticated voter proceeded to vote.
func (h *handlers) castVote(w http.ResponseWriter, r *http.Request) {
	event, err := h.audit.Record(r.Context(), domain.AuditEvent{
		Type:      domain.EventVoteCast,
		Result:    domain.ResultSuccess,
		SubjectID: AssertedVoterID(r.Context()),
		Details:   "ballot handoff acknowledged",
		SessionID: requestcontext.SessionID(r.Context()),
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"receipt":   event.ID,
		"timestamp": event.Timestamp.UTC().Format(time.RFC3339Nano),
	})
}

func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

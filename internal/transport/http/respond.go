package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	dErrors "civis/pkg/domain-errors"
)

type errorBody struct {
	Code    dErrors.Code   `json:"code"`
	Message string         `json:"message"`
	Meta    map[string]any `json:"meta,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// writeError maps a domain error to its HTTP status. The mapping lives in one
// place so handlers never pick status codes.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	code := dErrors.CodeOf(err)

	status := http.StatusInternalServerError
	switch code {
	case dErrors.CodeInvalidFormat, dErrors.CodeInvalidInput, dErrors.CodeDimensionMismatch:
		status = http.StatusBadRequest
	case dErrors.CodeNotFound:
		status = http.StatusNotFound
	case dErrors.CodeLocked:
		status = http.StatusLocked
	case dErrors.CodeLivenessFailed, dErrors.CodeQualityTooLow, dErrors.CodeMatchBelowTarget:
		status = http.StatusUnprocessableEntity
	case dErrors.CodeConsentMissing:
		status = http.StatusPreconditionFailed
	case dErrors.CodeDuplicate, dErrors.CodeConflict:
		status = http.StatusConflict
	case dErrors.CodeUnauthorized:
		status = http.StatusUnauthorized
	case dErrors.CodeUnavailable:
		status = http.StatusServiceUnavailable
	case dErrors.CodeChainIntegrity, dErrors.CodeCrypto, dErrors.CodeStore, dErrors.CodeInternal:
		status = http.StatusInternalServerError
	}

	body := errorBody{Code: code, Message: "request failed"}
	var de *dErrors.Error
	if errors.As(err, &de) {
		body.Message = de.Message
		body.Meta = de.Meta
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "code", code, "error", err)
		body.Message = "internal error"
		body.Meta = nil
	}
	writeJSON(w, status, body)
}

package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mssola/useragent"

	"civis/internal/token"
	dErrors "civis/pkg/domain-errors"
	"civis/pkg/requestcontext"
)

// RequestScope stamps each request's context with a correlation id and the
// request-scoped clock every downstream time read goes through.
func RequestScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		ctx = requestcontext.WithTime(ctx, time.Now())

		w.Header().Set("X-Request-Id", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// DeviceClass classifies the capture device from the user agent so the
// authenticator can attach it to capture environments and tokens.
func DeviceClass(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua := useragent.New(r.UserAgent())

		class := "desktop"
		switch {
		case ua.Bot():
			class = "bot"
		case ua.Mobile():
			class = "mobile"
		}

		ctx := requestcontext.WithDeviceClass(r.Context(), class)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type assertionKey struct{}

// AssertedVoterID returns the voter id a verified assertion vouched for.
// Empty outside routes guarded by RequireAssertion.
func AssertedVoterID(ctx context.Context) string {
	if v, ok := ctx.Value(assertionKey{}).(string); ok {
		return v
	}
	return ""
}

// RequireAssertion guards routes that must only be reachable by a voter who
// already passed the biometric pipeline. It verifies the bearer assertion and
// puts the asserted voter id on the context.
func RequireAssertion(issuer *token.Issuer, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok {
				writeError(w, logger, dErrors.New(dErrors.CodeUnauthorized, "missing bearer assertion"))
				return
			}
			claims, err := issuer.Verify(bearer)
			if err != nil {
				logger.WarnContext(r.Context(), "rejected assertion",
					"request_id", requestcontext.RequestID(r.Context()), "error", err)
				writeError(w, logger, err)
				return
			}

			ctx := context.WithValue(r.Context(), assertionKey{}, claims.Subject)
			ctx = requestcontext.WithSessionID(ctx, claims.SessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values.
//
// Middleware sets these values; services only read them. Keeping the package
// free of net/http lets services import it without pulling transport code.
//
// Usage in tests:
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
//	ctx = requestcontext.WithSessionID(ctx, "sess-1")
package requestcontext

import (
	"context"
	"time"
)

type (
	sessionIDKey   struct{}
	requestIDKey   struct{}
	deviceClassKey struct{}
	requestTimeKey struct{}
)

// SessionID retrieves the authentication session id from the context.
func SessionID(ctx context.Context) string {
	if v, ok := ctx.Value(sessionIDKey{}).(string); ok {
		return v
	}
	return ""
}

// WithSessionID injects a session id into the context.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey{}, sessionID)
}

// RequestID retrieves the request correlation id from the context.
func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

// WithRequestID injects a request id into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// DeviceClass retrieves the capture device class derived from the request
// (mobile, desktop, kiosk). Empty when no device middleware ran.
func DeviceClass(ctx context.Context) string {
	if v, ok := ctx.Value(deviceClassKey{}).(string); ok {
		return v
	}
	return ""
}

// WithDeviceClass injects a device class into the context.
func WithDeviceClass(ctx context.Context, class string) context.Context {
	return context.WithValue(ctx, deviceClassKey{}, class)
}

// Now retrieves the request-scoped time from the context. Falls back to
// time.Now() for non-HTTP contexts (workers, CLI, tests that don't care).
// All lockout arithmetic reads time through this accessor so tests can pin it.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}

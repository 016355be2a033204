// Package token issues the signed assertion the surrounding election system
// consumes after a successful authentication. The token asserts identity
// verification only; it carries no ballot semantics.
package token

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"

	dErrors "civis/pkg/domain-errors"
	"civis/pkg/requestcontext"
)

const defaultTTL = 10 * time.Minute

// Claims is the assertion payload. The subject is the voter record id; the
// plaintext identifier never appears in a token.
type Claims struct {
	jwt.RegisteredClaims
	SessionID   string `json:"sid"`
	DeviceClass string `json:"device_class,omitempty"`
}

type Issuer struct {
	signingKey []byte
	ttl        time.Duration
}

type Option func(*Issuer)

func WithTTL(ttl time.Duration) Option {
	return func(i *Issuer) { i.ttl = ttl }
}

func NewIssuer(signingKey string, opts ...Option) (*Issuer, error) {
	if signingKey == "" {
		return nil, dErrors.New(dErrors.CodeCrypto, "signing key is required")
	}
	i := &Issuer{
		signingKey: []byte(signingKey),
		ttl:        defaultTTL,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Issue signs an assertion for the authenticated voter. Issued-at and expiry
// come from the request-scoped clock.
func (i *Issuer) Issue(ctx context.Context, voterID, sessionID string) (string, error) {
	now := requestcontext.Now(ctx)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "civis",
			Subject:   voterID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		SessionID:   sessionID,
		DeviceClass: requestcontext.DeviceClass(ctx),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.signingKey)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeCrypto, "could not sign assertion")
	}
	return signed, nil
}

// Verify parses and validates an assertion, returning its claims.
func (i *Issuer) Verify(tokenString string) (Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, dErrors.Newf(dErrors.CodeUnauthorized, "unexpected signing method %v", t.Header["alg"])
		}
		return i.signingKey, nil
	}, jwt.WithIssuer("civis"), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Claims{}, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid assertion")
	}
	if !token.Valid {
		return Claims{}, dErrors.New(dErrors.CodeUnauthorized, "invalid assertion")
	}
	return claims, nil
}

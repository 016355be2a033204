package crypto

import (
	"context"
	"encoding/base64"
	"os"

	dErrors "civis/pkg/domain-errors"
)

// SecretProvider hands the cipher its key material. The symmetric key is
// never a literal in the codebase; production wires the environment provider,
// tests wire a static one.
type SecretProvider interface {
	Secret(ctx context.Context) ([]byte, error)
}

// EnvSecretProvider reads a base64-encoded secret from an environment
// variable at construction time and serves it from memory afterwards.
type EnvSecretProvider struct {
	secret []byte
}

func NewEnvSecretProvider(envVar string) (*EnvSecretProvider, error) {
	raw := os.Getenv(envVar)
	if raw == "" {
		return nil, dErrors.Newf(dErrors.CodeCrypto, "secret env var %s is not set", envVar)
	}
	secret, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeCrypto, "secret is not valid base64")
	}
	return &EnvSecretProvider{secret: secret}, nil
}

func (p *EnvSecretProvider) Secret(_ context.Context) ([]byte, error) {
	return p.secret, nil
}

// StaticSecretProvider serves a fixed secret. For tests and local
// development only.
type StaticSecretProvider struct {
	Value []byte
}

func (p StaticSecretProvider) Secret(_ context.Context) ([]byte, error) {
	if len(p.Value) == 0 {
		return nil, dErrors.New(dErrors.CodeCrypto, "static secret is empty")
	}
	return p.Value, nil
}

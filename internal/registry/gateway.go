// Package registry answers "is this identifier a real, registered citizen?"
// It consults the national registry over HTTP when reachable and falls back
// to a locally held, encrypted snapshot of the registry when it is not.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"civis/internal/crypto"
	"civis/internal/platform/config"
	dErrors "civis/pkg/domain-errors"
	"civis/pkg/platform/sentinel"
)

// Source names which registry answered a lookup.
type Source string

const (
	SourceOnline  Source = "online"
	SourceOffline Source = "offline"
)

// Demographic is the registry's view of a citizen.
type Demographic struct {
	FullName    string `json:"full_name"`
	DateOfBirth string `json:"date_of_birth"`
	Region      string `json:"region"`
}

// Result reports whether the identifier is registered and who said so.
type Result struct {
	Valid       bool
	Source      Source
	Demographic *Demographic
}

// OnlineClient looks an identifier up in the live national registry.
// Implementations return sentinel.ErrNotFound for an unknown identifier and
// sentinel.ErrUnavailable when the registry cannot be reached.
type OnlineClient interface {
	Lookup(ctx context.Context, identifier string) (Demographic, error)
}

type HTTPClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *HTTPClient) Lookup(ctx context.Context, identifier string) (Demographic, error) {
	url := fmt.Sprintf("%s/citizens/%s", c.baseURL, identifier)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Demographic{}, fmt.Errorf("building registry request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Demographic{}, fmt.Errorf("%w: %v", sentinel.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var d Demographic
		if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
			return Demographic{}, fmt.Errorf("decoding registry response: %w", err)
		}
		return d, nil
	case http.StatusNotFound:
		return Demographic{}, sentinel.ErrNotFound
	default:
		return Demographic{}, fmt.Errorf("%w: registry returned status %d", sentinel.ErrUnavailable, resp.StatusCode)
	}
}

// OfflineRegistry holds an encrypted snapshot keyed by identifier hash.
// Identifiers never appear in the clear: the key is the salted index hash and
// the demographic payload is AES-GCM ciphertext.
type OfflineRegistry struct {
	cipher *crypto.Cipher

	mu      sync.RWMutex
	entries map[string][]byte
}

func NewOfflineRegistry(cipher *crypto.Cipher) *OfflineRegistry {
	return &OfflineRegistry{
		cipher:  cipher,
		entries: make(map[string][]byte),
	}
}

// Add encrypts and stores one citizen entry. Used when loading a snapshot.
func (r *OfflineRegistry) Add(identifier string, demographic Demographic) error {
	payload, err := json.Marshal(demographic)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "could not marshal demographic")
	}
	sealed, err := r.cipher.Encrypt(payload)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeCrypto, "could not encrypt demographic")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[crypto.HashIdentifier(identifier)] = sealed
	return nil
}

func (r *OfflineRegistry) Lookup(_ context.Context, identifier string) (Demographic, error) {
	r.mu.RLock()
	sealed, ok := r.entries[crypto.HashIdentifier(identifier)]
	r.mu.RUnlock()
	if !ok {
		return Demographic{}, sentinel.ErrNotFound
	}

	payload, err := r.cipher.Decrypt(sealed)
	if err != nil {
		return Demographic{}, dErrors.Wrap(err, dErrors.CodeCrypto, "could not decrypt offline registry entry")
	}
	var d Demographic
	if err := json.Unmarshal(payload, &d); err != nil {
		return Demographic{}, dErrors.Wrap(err, dErrors.CodeInternal, "could not unmarshal offline registry entry")
	}
	return d, nil
}

// Gateway fronts both registries. Online is authoritative; the offline
// snapshot answers only when the online registry is unreachable, never when
// it gave a definitive not-found.
type Gateway struct {
	online  OnlineClient
	offline *OfflineRegistry
	policy  config.Policy
	logger  *slog.Logger
}

type Option func(*Gateway)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) { g.logger = logger }
}

func WithOnline(client OnlineClient) Option {
	return func(g *Gateway) { g.online = client }
}

func NewGateway(offline *OfflineRegistry, policy config.Policy, opts ...Option) *Gateway {
	g := &Gateway{
		offline: offline,
		policy:  policy,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ValidateFormat checks the identifier shape without touching any registry:
// exactly the configured number of decimal digits.
func (g *Gateway) ValidateFormat(identifier string) error {
	if len(identifier) != g.policy.IdentifierLength {
		return dErrors.Newf(dErrors.CodeInvalidFormat,
			"identifier must be %d digits, got %d", g.policy.IdentifierLength, len(identifier))
	}
	for _, r := range identifier {
		if r < '0' || r > '9' {
			return dErrors.New(dErrors.CodeInvalidFormat, "identifier must contain only digits")
		}
	}
	return nil
}

// Validate checks the identifier format and resolves it against the
// registries. A definitive online not-found is final; only reachability
// failures fall back to the offline snapshot.
func (g *Gateway) Validate(ctx context.Context, identifier string) (Result, error) {
	if err := g.ValidateFormat(identifier); err != nil {
		return Result{}, err
	}

	if g.online != nil {
		d, err := g.online.Lookup(ctx, identifier)
		switch {
		case err == nil:
			return Result{Valid: true, Source: SourceOnline, Demographic: &d}, nil
		case errors.Is(err, sentinel.ErrNotFound):
			return Result{Valid: false, Source: SourceOnline}, nil
		default:
			g.logger.WarnContext(ctx, "online registry unreachable, using offline snapshot", "error", err)
		}
	}

	d, err := g.offline.Lookup(ctx, identifier)
	switch {
	case err == nil:
		return Result{Valid: true, Source: SourceOffline, Demographic: &d}, nil
	case errors.Is(err, sentinel.ErrNotFound):
		return Result{Valid: false, Source: SourceOffline}, nil
	default:
		return Result{}, err
	}
}

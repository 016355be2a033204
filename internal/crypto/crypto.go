// Package crypto bundles the primitives the verification pipeline relies on:
// salted hashing for the identifier index, symmetric encryption for stored
// identifiers and biometric vectors, and nonce/session-id generation.
package crypto

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"io"
	"math"

	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"

	dErrors "civis/pkg/domain-errors"
)

// identifierSalt is fixed so HashIdentifier stays a stable index key across
// restarts. It salts a one-way lookup hash, not a password store.
const identifierSalt = "civis-identifier-index-v1"

// Cipher performs all symmetric operations with a key derived from the
// injected secret. Construction derives the key once; failures after that
// point are corrupt-ciphertext failures, not key failures.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher derives a 256-bit AES-GCM key from the provider's secret via
// HKDF-SHA256.
func NewCipher(ctx context.Context, provider SecretProvider) (*Cipher, error) {
	if provider == nil {
		return nil, dErrors.New(dErrors.CodeCrypto, "secret provider is required")
	}
	secret, err := provider.Secret(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeCrypto, "could not obtain secret")
	}

	key := make([]byte, 32)
	kdf := hkdf.New(sha256.New, secret, []byte(identifierSalt), []byte("civis-record-cipher"))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeCrypto, "key derivation failed")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeCrypto, "could not build cipher")
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeCrypto, "could not build AEAD")
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext with a fresh nonce prepended to the ciphertext.
func (c *Cipher) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeCrypto, "nonce generation failed")
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens ciphertext produced by Encrypt. Tampered or truncated input
// surfaces as a crypto failure, never as malformed plaintext.
func (c *Cipher) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < c.aead.NonceSize() {
		return nil, dErrors.New(dErrors.CodeCrypto, "ciphertext too short")
	}
	nonce, sealed := ciphertext[:c.aead.NonceSize()], ciphertext[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeCrypto, "decryption failed")
	}
	return plaintext, nil
}

// EncryptString seals a string and base64-encodes the result for storage in
// text columns.
func (c *Cipher) EncryptString(plaintext string) (string, error) {
	sealed, err := c.Encrypt([]byte(plaintext))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptString reverses EncryptString.
func (c *Cipher) DecryptString(encoded string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeCrypto, "ciphertext is not valid base64")
	}
	plaintext, err := c.Decrypt(sealed)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// EncryptVector seals a biometric feature vector. The plaintext wire format
// is big-endian float64s; the length check on decrypt guards against
// truncation that GCM cannot see (it can't happen without failing the tag,
// but a zero-length vector round-trips unambiguously this way).
func (c *Cipher) EncryptVector(vector []float64) ([]byte, error) {
	buf := make([]byte, 8*len(vector))
	for i, v := range vector {
		binary.BigEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return c.Encrypt(buf)
}

// DecryptVector reverses EncryptVector.
func (c *Cipher) DecryptVector(ciphertext []byte) ([]float64, error) {
	buf, err := c.Decrypt(ciphertext)
	if err != nil {
		return nil, err
	}
	if len(buf)%8 != 0 {
		return nil, dErrors.New(dErrors.CodeCrypto, "vector payload is not a float64 sequence")
	}
	vector := make([]float64, len(buf)/8)
	for i := range vector {
		vector[i] = math.Float64frombits(binary.BigEndian.Uint64(buf[i*8:]))
	}
	return vector, nil
}

// Hash returns the hex SHA-256 of data with an optional salt. Deterministic:
// the audit chain and record chain both recompute it during verification.
func Hash(data string, salt string) string {
	sum := sha256.Sum256([]byte(salt + data))
	return hex.EncodeToString(sum[:])
}

// HashIdentifier produces the stable index digest for a national identifier.
// Lookup works without ever storing the plaintext identifier.
func HashIdentifier(id string) string {
	return Hash(id, identifierSalt)
}

// SessionID returns a fresh session identifier.
func SessionID() string {
	return "sess_" + uuid.NewString()
}

// Nonce returns a base64 random nonce for challenge/response exchanges.
func Nonce() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeCrypto, "nonce generation failed")
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

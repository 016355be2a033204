package crypto

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"
)

type CipherSuite struct {
	suite.Suite
	cipher *Cipher
}

func TestCipherSuite(t *testing.T) {
	suite.Run(t, new(CipherSuite))
}

func (s *CipherSuite) SetupTest() {
	var err error
	s.cipher, err = NewCipher(context.Background(), StaticSecretProvider{Value: []byte("unit-test-secret")})
	s.Require().NoError(err)
}

func (s *CipherSuite) TestNewCipher() {
	s.Run("nil provider returns error", func() {
		_, err := NewCipher(context.Background(), nil)
		s.Error(err)
	})

	s.Run("empty static secret returns error", func() {
		_, err := NewCipher(context.Background(), StaticSecretProvider{})
		s.Error(err)
	})
}

func (s *CipherSuite) TestStringRoundTrip() {
	s.Run("identifier round-trips", func() {
		sealed, err := s.cipher.EncryptString("38901234567")
		s.Require().NoError(err)
		s.NotEqual("38901234567", sealed)

		plain, err := s.cipher.DecryptString(sealed)
		s.NoError(err)
		s.Equal("38901234567", plain)
	})

	s.Run("empty string round-trips", func() {
		sealed, err := s.cipher.EncryptString("")
		s.Require().NoError(err)
		plain, err := s.cipher.DecryptString(sealed)
		s.NoError(err)
		s.Equal("", plain)
	})

	s.Run("same plaintext encrypts to different ciphertexts", func() {
		a, err := s.cipher.EncryptString("38901234567")
		s.Require().NoError(err)
		b, err := s.cipher.EncryptString("38901234567")
		s.Require().NoError(err)
		s.NotEqual(a, b)
	})

	s.Run("tampered ciphertext fails to decrypt", func() {
		sealed, err := s.cipher.Encrypt([]byte("payload"))
		s.Require().NoError(err)
		sealed[len(sealed)-1] ^= 0xFF

		_, err = s.cipher.Decrypt(sealed)
		s.Error(err)
	})

	s.Run("truncated ciphertext fails to decrypt", func() {
		_, err := s.cipher.Decrypt([]byte{0x01, 0x02})
		s.Error(err)
	})
}

func (s *CipherSuite) TestVectorRoundTrip() {
	vectors := [][]float64{
		{},
		{0.5},
		{0.1, -0.2, 0.3, 0.999, -1},
		make([]float64, 128),
	}
	for _, v := range vectors {
		sealed, err := s.cipher.EncryptVector(v)
		s.Require().NoError(err)

		got, err := s.cipher.DecryptVector(sealed)
		s.Require().NoError(err)
		s.Equal(len(v), len(got))
		for i := range v {
			s.InDelta(v[i], got[i], 0)
		}
	}
}

func (s *CipherSuite) TestHash() {
	s.Run("deterministic", func() {
		s.Equal(Hash("data", "salt"), Hash("data", "salt"))
	})

	s.Run("salt changes digest", func() {
		s.NotEqual(Hash("data", "a"), Hash("data", "b"))
	})

	s.Run("identifier hash is stable across calls", func() {
		s.Equal(HashIdentifier("12345678901"), HashIdentifier("12345678901"))
		s.NotEqual(HashIdentifier("12345678901"), HashIdentifier("12345678902"))
	})
}

func (s *CipherSuite) TestIdentifiers() {
	s.Run("session ids are unique and prefixed", func() {
		a := SessionID()
		b := SessionID()
		s.NotEqual(a, b)
		s.Contains(a, "sess_")
	})

	s.Run("nonces are unique", func() {
		a, err := Nonce()
		s.Require().NoError(err)
		b, err := Nonce()
		s.Require().NoError(err)
		s.NotEqual(a, b)
	})
}

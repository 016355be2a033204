package voters

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"civis/internal/crypto"
	"civis/internal/domain"
	"civis/internal/voters/store"
	dErrors "civis/pkg/domain-errors"
	"civis/pkg/requestcontext"
)

type SecureStoreSuite struct {
	suite.Suite
	raw     *store.InMemoryStore
	secure  *SecureStore
	baseCtx context.Context
	now     time.Time
}

func TestSecureStoreSuite(t *testing.T) {
	suite.Run(t, new(SecureStoreSuite))
}

func (s *SecureStoreSuite) SetupTest() {
	cipher, err := crypto.NewCipher(context.Background(), crypto.StaticSecretProvider{Value: []byte("voters-test-secret")})
	s.Require().NoError(err)

	s.raw = store.NewInMemoryStore()
	s.secure, err = NewSecureStore(s.raw, cipher)
	s.Require().NoError(err)

	s.now = time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	s.baseCtx = requestcontext.WithTime(context.Background(), s.now)
}

func (s *SecureStoreSuite) register(identifier, name string) domain.VoterRecord {
	record, err := s.secure.Register(s.baseCtx, Registration{
		Identifier:  identifier,
		FullName:    name,
		DateOfBirth: "1985-06-02",
		Region:      "Kaunas",
		Features:    []float64{0.1, 0.2, 0.3, 0.4},
		Quality:     0.85,
	})
	s.Require().NoError(err)
	return record
}

func (s *SecureStoreSuite) TestRegister() {
	s.Run("nothing sensitive is stored in the clear", func() {
		record := s.register("12345678901", "Jonas Petrauskas")

		s.NotContains(record.EncryptedIdentifier, "12345678901")
		s.Equal(crypto.HashIdentifier("12345678901"), record.IdentifierHash)

		identifier, err := s.secure.Identifier(record)
		s.Require().NoError(err)
		s.Equal("12345678901", identifier)

		features, err := s.secure.Features(record)
		s.Require().NoError(err)
		s.Equal([]float64{0.1, 0.2, 0.3, 0.4}, features)
	})

	s.Run("lookup works through the identifier hash", func() {
		record := s.register("22222222222", "Ruta Janule")

		found, err := s.secure.FindByIdentifier(s.baseCtx, "22222222222")
		s.Require().NoError(err)
		s.Equal(record.ID, found.ID)

		_, err = s.secure.FindByIdentifier(s.baseCtx, "99999999999")
		s.Equal(dErrors.CodeNotFound, dErrors.CodeOf(err))
	})

	s.Run("duplicate identifier is rejected", func() {
		s.register("33333333333", "First Registrant")

		_, err := s.secure.Register(s.baseCtx, Registration{
			Identifier: "33333333333",
			FullName:   "Second Registrant",
			Features:   []float64{1},
			Quality:    0.9,
		})
		s.Equal(dErrors.CodeDuplicate, dErrors.CodeOf(err))
	})

	s.Run("registrations chain off each other", func() {
		fresh := store.NewInMemoryStore()
		cipher, err := crypto.NewCipher(context.Background(), crypto.StaticSecretProvider{Value: []byte("chain-secret")})
		s.Require().NoError(err)
		secure, err := NewSecureStore(fresh, cipher)
		s.Require().NoError(err)

		first, err := secure.Register(s.baseCtx, Registration{
			Identifier: "10000000001", FullName: "First", Features: []float64{1}, Quality: 0.8,
		})
		s.Require().NoError(err)
		second, err := secure.Register(s.baseCtx, Registration{
			Identifier: "10000000002", FullName: "Second", Features: []float64{1}, Quality: 0.8,
		})
		s.Require().NoError(err)

		s.Equal(domain.GenesisHash, first.PreviousHash)
		s.Equal(first.CurrentHash, second.PreviousHash)
		s.Equal(second.ComputeHash(), second.CurrentHash)
	})
}

func (s *SecureStoreSuite) TestCounterUpdates() {
	s.Run("failures accumulate and stamp the attempt time", func() {
		record := s.register("44444444444", "Counter Case")

		updated, err := s.secure.RecordBiometricFailure(s.baseCtx, record.IdentifierHash)
		s.Require().NoError(err)
		s.Equal(1, updated.BiometricAttempts)
		s.Require().NotNil(updated.LastBiometricAttemptAt)
		s.True(updated.LastBiometricAttemptAt.Equal(s.now))

		updated, err = s.secure.RecordLoginFailure(s.baseCtx, record.IdentifierHash)
		s.Require().NoError(err)
		s.Equal(1, updated.LoginAttempts)
		s.Equal(2, updated.TotalAttempts())
	})

	s.Run("reset forgives everything", func() {
		record := s.register("55555555555", "Reset Case")
		_, err := s.secure.RecordBiometricFailure(s.baseCtx, record.IdentifierHash)
		s.Require().NoError(err)

		updated, err := s.secure.ResetAttempts(s.baseCtx, record.IdentifierHash)
		s.Require().NoError(err)
		s.Zero(updated.TotalAttempts())
		s.Nil(updated.LastLoginAttemptAt)
		s.Nil(updated.LastBiometricAttemptAt)
	})

	s.Run("concurrent failures are never lost to a version race", func() {
		record := s.register("66666666666", "Race Case")

		// Kept below the CAS retry bound so a maximally unlucky writer still
		// lands within its budget.
		const writers = 4
		var wg sync.WaitGroup
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.secure.RecordBiometricFailure(s.baseCtx, record.IdentifierHash)
				s.NoError(err)
			}()
		}
		wg.Wait()

		final, err := s.secure.FindByHash(s.baseCtx, record.IdentifierHash)
		s.Require().NoError(err)
		s.Equal(writers, final.BiometricAttempts)
	})
}

func (s *SecureStoreSuite) TestVerifyChain() {
	s.Run("untouched chain verifies clean", func() {
		s.register("70000000001", "Link One")
		s.register("70000000002", "Link Two")

		report, err := s.secure.VerifyChain(s.baseCtx)
		s.Require().NoError(err)
		s.True(report.Valid)
		s.Equal(2, report.Records)
	})

	s.Run("rewriting an identity field is detected", func() {
		record := s.register("70000000003", "Honest Name")

		tampered, err := s.raw.Find(s.baseCtx, record.IdentifierHash)
		s.Require().NoError(err)
		tampered.FullName = "Forged Name"
		_, err = s.raw.Update(s.baseCtx, tampered)
		s.Require().NoError(err)

		report, err := s.secure.VerifyChain(s.baseCtx)
		s.Require().NoError(err)
		s.False(report.Valid)
		s.Require().NotEmpty(report.Violations)
		s.Equal("hash_mismatch", report.Violations[len(report.Violations)-1].Kind)
	})
}

package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type VoterRecordSuite struct {
	suite.Suite
}

func TestVoterRecordSuite(t *testing.T) {
	suite.Run(t, new(VoterRecordSuite))
}

func (s *VoterRecordSuite) newRecord() VoterRecord {
	record, err := NewVoterRecord(
		"idhash", "enc-identifier", "Jonas Jonaitis", "1990-01-01", "VLN",
		[]byte{0x01}, 0.8, GenesisHash, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	)
	s.Require().NoError(err)
	return record
}

func (s *VoterRecordSuite) TestNewVoterRecord() {
	s.Run("constructor seals the chain hash", func() {
		record := s.newRecord()
		s.Equal(record.ComputeHash(), record.CurrentHash)
		s.Equal(GenesisHash, record.PreviousHash)
		s.Equal(int64(1), record.Version)
		s.True(record.Active)
	})

	s.Run("missing identifier hash is rejected", func() {
		_, err := NewVoterRecord("", "enc", "name", "dob", "", []byte{1}, 0.8, GenesisHash, time.Now())
		s.Error(err)
	})

	s.Run("missing biometric payload is rejected", func() {
		_, err := NewVoterRecord("h", "enc", "name", "dob", "", nil, 0.8, GenesisHash, time.Now())
		s.Error(err)
	})

	s.Run("tampering with identity fields breaks the hash", func() {
		record := s.newRecord()
		record.FullName = "Somebody Else"
		s.NotEqual(record.ComputeHash(), record.CurrentHash)
	})
}

func (s *VoterRecordSuite) TestLockoutPredicate() {
	const maxAttempts = 5
	lockout := 15 * time.Minute
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	s.Run("below threshold is never locked", func() {
		record := s.newRecord()
		for i := 0; i < maxAttempts-1; i++ {
			record.RecordBiometricFailure(base)
		}
		s.False(record.IsLockedAt(base.Add(time.Second), maxAttempts, lockout))
	})

	s.Run("combined counters reach the threshold", func() {
		record := s.newRecord()
		record.RecordLoginFailure(base)
		record.RecordLoginFailure(base)
		record.RecordBiometricFailure(base)
		record.RecordBiometricFailure(base)
		record.RecordBiometricFailure(base)

		s.Equal(maxAttempts, record.TotalAttempts())
		s.True(record.IsLockedAt(base.Add(time.Minute), maxAttempts, lockout))
	})

	s.Run("lockout self-expires after the window", func() {
		record := s.newRecord()
		for i := 0; i < maxAttempts; i++ {
			record.RecordBiometricFailure(base)
		}
		s.True(record.IsLockedAt(base.Add(14*time.Minute), maxAttempts, lockout))
		s.False(record.IsLockedAt(base.Add(15*time.Minute), maxAttempts, lockout))
		s.Equal(base.Add(lockout), record.LockedUntil(lockout))
	})

	s.Run("latest of the two attempt timestamps drives the window", func() {
		record := s.newRecord()
		for i := 0; i < maxAttempts-1; i++ {
			record.RecordLoginFailure(base)
		}
		record.RecordBiometricFailure(base.Add(10 * time.Minute))

		s.True(record.IsLockedAt(base.Add(20*time.Minute), maxAttempts, lockout))
		s.Equal(base.Add(10*time.Minute).Add(lockout), record.LockedUntil(lockout))
	})

	s.Run("reset forgives everything", func() {
		record := s.newRecord()
		for i := 0; i < maxAttempts; i++ {
			record.RecordBiometricFailure(base)
		}
		record.ResetAttempts()

		s.Zero(record.TotalAttempts())
		s.Nil(record.LastBiometricAttemptAt)
		s.Nil(record.LastLoginAttemptAt)
		s.False(record.IsLockedAt(base, maxAttempts, lockout))
	})
}

func (s *VoterRecordSuite) TestAuditEventHash() {
	event := AuditEvent{
		ID:           "evt-1",
		Timestamp:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Type:         EventLoginAttempt,
		Result:       ResultFailure,
		Details:      "similarity below threshold",
		SessionID:    "sess-1",
		PreviousHash: GenesisHash,
	}

	s.Run("hash is deterministic", func() {
		s.Equal(event.ComputeHash(), event.ComputeHash())
	})

	s.Run("details mutation changes the hash", func() {
		mutated := event
		mutated.Details = "edited after the fact"
		s.NotEqual(event.ComputeHash(), mutated.ComputeHash())
	})

	s.Run("previous hash is part of the digest", func() {
		mutated := event
		mutated.PreviousHash = "abcd"
		s.NotEqual(event.ComputeHash(), mutated.ComputeHash())
	})
}

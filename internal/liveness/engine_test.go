package liveness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"civis/internal/domain"
	"civis/internal/platform/config"
	dErrors "civis/pkg/domain-errors"
)

type EngineSuite struct {
	suite.Suite
	engine *Engine
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.engine = NewEngine(config.DefaultPolicy())
}

func passingTests() domain.LivenessTests {
	passed := domain.Check{Ran: true, Passed: true}
	return domain.LivenessTests{
		Blink:         passed,
		BlinkCount:    3,
		BlinkDuration: 150 * time.Millisecond,
		HeadMovement:  passed,
		Texture:       passed,
		Spoofing:      passed,
	}
}

func (s *EngineSuite) TestScoreLiveness() {
	s.Run("all checks passed scores 1.0", func() {
		s.InDelta(1.0, s.engine.ScoreLiveness(passingTests()), 1e-9)
	})

	s.Run("failed checks subtract their weight", func() {
		tests := passingTests()
		tests.Spoofing.Passed = false
		s.InDelta(0.80, s.engine.ScoreLiveness(tests), 1e-9)
	})

	s.Run("checks that did not run are excluded from the denominator", func() {
		tests := passingTests()
		tests.Texture = domain.Check{Ran: false}
		// blink + head + spoofing all passed out of 0.75 total weight.
		s.InDelta(1.0, s.engine.ScoreLiveness(tests), 1e-9)

		tests.Spoofing.Passed = false
		s.InDelta(0.55/0.75, s.engine.ScoreLiveness(tests), 1e-9)
	})

	s.Run("no checks ran scores zero", func() {
		s.Zero(s.engine.ScoreLiveness(domain.LivenessTests{}))
	})
}

func (s *EngineSuite) TestEvaluateChallenge() {
	s.Run("three of four passing clears the gate", func() {
		tests := passingTests()
		tests.Texture.Passed = false
		s.NoError(s.engine.EvaluateChallenge(tests))
	})

	s.Run("two of four passing fails", func() {
		tests := passingTests()
		tests.Texture.Passed = false
		tests.Spoofing.Passed = false
		err := s.engine.EvaluateChallenge(tests)
		s.Equal(dErrors.CodeLivenessFailed, dErrors.CodeOf(err))
	})

	s.Run("a check that did not run does not count as passed", func() {
		tests := passingTests()
		tests.Texture = domain.Check{Ran: false}
		tests.Spoofing.Passed = false
		err := s.engine.EvaluateChallenge(tests)
		s.Equal(dErrors.CodeLivenessFailed, dErrors.CodeOf(err))
	})

	s.Run("blink count outside the window fails", func() {
		tests := passingTests()
		tests.BlinkCount = 1
		s.Error(s.engine.EvaluateChallenge(tests))

		tests.BlinkCount = 9
		s.Error(s.engine.EvaluateChallenge(tests))

		tests.BlinkCount = 8
		s.NoError(s.engine.EvaluateChallenge(tests))
	})

	s.Run("blink duration below minimum fails", func() {
		tests := passingTests()
		tests.BlinkDuration = 99 * time.Millisecond
		s.Error(s.engine.EvaluateChallenge(tests))

		tests.BlinkDuration = 100 * time.Millisecond
		s.NoError(s.engine.EvaluateChallenge(tests))
	})
}

func (s *EngineSuite) TestCompare() {
	s.Run("identical vectors score 1.0", func() {
		v := []float64{0.5, -0.25, 0.8, 0.1}
		got, err := s.engine.Compare(v, v)
		s.Require().NoError(err)
		s.InDelta(1.0, got, 1e-9)
	})

	s.Run("orthogonal vectors clamp to zero", func() {
		got, err := s.engine.Compare([]float64{1, 0}, []float64{0, 1})
		s.Require().NoError(err)
		s.Zero(got)
	})

	s.Run("opposed vectors clamp to zero rather than going negative", func() {
		got, err := s.engine.Compare([]float64{1, 1}, []float64{-1, -1})
		s.Require().NoError(err)
		s.Zero(got)
	})

	s.Run("dimension mismatch is rejected", func() {
		_, err := s.engine.Compare([]float64{1, 2, 3}, []float64{1, 2})
		s.Equal(dErrors.CodeDimensionMismatch, dErrors.CodeOf(err))
	})

	s.Run("empty vectors are rejected", func() {
		_, err := s.engine.Compare(nil, nil)
		s.Equal(dErrors.CodeDimensionMismatch, dErrors.CodeOf(err))
	})

	s.Run("zero vector scores zero without dividing by zero", func() {
		got, err := s.engine.Compare([]float64{0, 0}, []float64{1, 2})
		s.Require().NoError(err)
		s.Zero(got)
	})
}

func (s *EngineSuite) TestAssessQuality() {
	s.Run("good environment with passing liveness scores 1.0", func() {
		sample := domain.BiometricSample{
			Tests: passingTests(),
			Environment: domain.CaptureEnvironment{
				Lighting:   domain.LightingGood,
				Resolution: domain.ResolutionHigh,
			},
		}
		s.InDelta(1.0, s.engine.AssessQuality(sample), 1e-9)
	})

	s.Run("poor environment drags the score down", func() {
		sample := domain.BiometricSample{
			Tests: passingTests(),
			Environment: domain.CaptureEnvironment{
				Lighting:   domain.LightingPoor,
				Resolution: domain.ResolutionLow,
			},
		}
		s.InDelta((0.4+0.3+1.0)/3, s.engine.AssessQuality(sample), 1e-9)
	})

	s.Run("failed liveness removes its third of the score", func() {
		sample := domain.BiometricSample{
			Environment: domain.CaptureEnvironment{
				Lighting:   domain.LightingGood,
				Resolution: domain.ResolutionHigh,
			},
		}
		s.InDelta(2.0/3, s.engine.AssessQuality(sample), 1e-9)
	})
}

// Package biometric defines the capture port the authenticator awaits. Real
// deployments plug a device-backed implementation in; this package ships a
// deterministic double for tests and local development.
package biometric

import (
	"context"
	"time"

	"civis/internal/domain"
	dErrors "civis/pkg/domain-errors"
	"civis/pkg/requestcontext"
)

// Source produces one biometric sample per call. Capture blocks until the
// device delivers, the context is cancelled, or the device reports failure.
// An unavailable device surfaces as CodeUnavailable.
type Source interface {
	Capture(ctx context.Context) (domain.BiometricSample, error)
}

// StaticSource returns a fixed sample after an optional delay. Deterministic:
// the same configuration always produces the same sample.
type StaticSource struct {
	Sample domain.BiometricSample
	Delay  time.Duration

	// Unavailable simulates a missing or failed capture device.
	Unavailable bool
}

func (s *StaticSource) Capture(ctx context.Context) (domain.BiometricSample, error) {
	if s.Unavailable {
		return domain.BiometricSample{}, dErrors.New(dErrors.CodeUnavailable, "capture device is unavailable")
	}

	if s.Delay > 0 {
		timer := time.NewTimer(s.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return domain.BiometricSample{}, ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return domain.BiometricSample{}, err
	}

	sample := s.Sample
	if sample.CapturedAt.IsZero() {
		sample.CapturedAt = requestcontext.Now(ctx)
	}
	return sample, nil
}

// PassingSample is a sample that clears the reference liveness and quality
// gates. Development wiring and tests start from it and break what they need.
func PassingSample(features []float64) domain.BiometricSample {
	passed := domain.Check{Ran: true, Passed: true}
	return domain.BiometricSample{
		Features:      features,
		Confidence:    0.92,
		LivenessScore: 1.0,
		QualityScore:  0.9,
		Tests: domain.LivenessTests{
			Blink:           passed,
			BlinkCount:      3,
			EyeAspectRatios: []float64{0.31, 0.12, 0.30, 0.11, 0.29, 0.12},
			BlinkDuration:   180 * time.Millisecond,
			HeadMovement:    passed,
			Texture:         passed,
			Spoofing:        passed,
		},
		Environment: domain.CaptureEnvironment{
			Lighting:   domain.LightingGood,
			Resolution: domain.ResolutionHigh,
		},
	}
}

// Package liveness scores biometric captures and compares feature vectors.
// The engine is deterministic arithmetic over telemetry the capture source
// produces; it performs no computer vision of its own.
package liveness

import (
	"math"

	"civis/internal/domain"
	"civis/internal/platform/config"
	dErrors "civis/pkg/domain-errors"
)

// Sub-test weights for the liveness score. The blink challenge is the
// strongest live-subject signal, so it carries the largest weight.
const (
	weightBlink        = 0.30
	weightHeadMovement = 0.25
	weightTexture      = 0.25
	weightSpoofing     = 0.20
)

// minimumPassedChecks is how many of the four sub-tests must pass for a
// capture to clear the challenge gate.
const minimumPassedChecks = 3

type Engine struct {
	policy config.Policy
}

func NewEngine(policy config.Policy) *Engine {
	return &Engine{policy: policy}
}

// ScoreLiveness computes the weighted liveness score in [0,1]. A sub-test
// contributes its weight only when it passed; the sum is normalized by the
// weights of the checks that actually ran, so a capture path that cannot run
// texture analysis is not punished for it.
func (e *Engine) ScoreLiveness(tests domain.LivenessTests) float64 {
	type weighted struct {
		check  domain.Check
		weight float64
	}
	checks := []weighted{
		{tests.Blink, weightBlink},
		{tests.HeadMovement, weightHeadMovement},
		{tests.Texture, weightTexture},
		{tests.Spoofing, weightSpoofing},
	}

	var score, total float64
	for _, c := range checks {
		if !c.check.Ran {
			continue
		}
		total += c.weight
		if c.check.Passed {
			score += c.weight
		}
	}
	if total == 0 {
		return 0
	}
	return score / total
}

// EvaluateChallenge applies the liveness gate: at least three of the four
// sub-tests passed, blink count inside the policy window, blink duration at
// or above the minimum. Returns nil when the capture clears the gate.
func (e *Engine) EvaluateChallenge(tests domain.LivenessTests) error {
	passed := 0
	for _, c := range []domain.Check{tests.Blink, tests.HeadMovement, tests.Texture, tests.Spoofing} {
		if c.Ran && c.Passed {
			passed++
		}
	}
	if passed < minimumPassedChecks {
		return dErrors.Newf(dErrors.CodeLivenessFailed,
			"%d of %d required liveness checks passed", passed, minimumPassedChecks).
			WithMeta("checks_passed", passed)
	}
	if tests.BlinkCount < e.policy.MinBlinkCount || tests.BlinkCount > e.policy.MaxBlinkCount {
		return dErrors.Newf(dErrors.CodeLivenessFailed,
			"blink count %d outside [%d, %d]", tests.BlinkCount, e.policy.MinBlinkCount, e.policy.MaxBlinkCount).
			WithMeta("blink_count", tests.BlinkCount)
	}
	if tests.BlinkDuration < e.policy.MinBlinkDuration {
		return dErrors.Newf(dErrors.CodeLivenessFailed,
			"blink duration %s below minimum %s", tests.BlinkDuration, e.policy.MinBlinkDuration).
			WithMeta("blink_duration_ms", tests.BlinkDuration.Milliseconds())
	}
	return nil
}

// Compare returns the cosine similarity of two feature vectors, clamped to
// [0,1]. Vectors of different lengths cannot be compared.
func (e *Engine) Compare(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, dErrors.Newf(dErrors.CodeDimensionMismatch,
			"feature vectors have different lengths: %d vs %d", len(a), len(b))
	}
	if len(a) == 0 {
		return 0, dErrors.New(dErrors.CodeDimensionMismatch, "feature vectors are empty")
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}

	similarity := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return math.Min(1, math.Max(0, similarity)), nil
}

// AssessQuality composites sharpness, lighting adequacy and the liveness
// outcome into a single [0,1] quality figure.
func (e *Engine) AssessQuality(sample domain.BiometricSample) float64 {
	sharpness := resolutionScore(sample.Environment.Resolution)
	lighting := lightingScore(sample.Environment.Lighting)

	livenessPass := 0.0
	if e.EvaluateChallenge(sample.Tests) == nil {
		livenessPass = 1.0
	}

	return (sharpness + lighting + livenessPass) / 3
}

func resolutionScore(r domain.Resolution) float64 {
	switch r {
	case domain.ResolutionHigh:
		return 1.0
	case domain.ResolutionStandard:
		return 0.75
	case domain.ResolutionLow:
		return 0.4
	}
	return 0.5
}

func lightingScore(l domain.Lighting) float64 {
	switch l {
	case domain.LightingGood:
		return 1.0
	case domain.LightingAdequate:
		return 0.7
	case domain.LightingPoor:
		return 0.3
	}
	return 0.5
}

package domain

import "time"

// Check records a liveness sub-test that may or may not have run. Liveness
// scoring normalizes over the checks that actually ran, so a capture device
// that cannot perform texture analysis does not silently drag the score down.
type Check struct {
	Ran    bool `json:"ran"`
	Passed bool `json:"passed"`
}

// LivenessTests is the telemetry a capture produces alongside the feature
// vector. The blink fields feed the challenge gate; the per-frame eye aspect
// ratios are retained for audit and offline tuning.
type LivenessTests struct {
	Blink           Check           `json:"blink"`
	BlinkCount      int             `json:"blink_count"`
	EyeAspectRatios []float64       `json:"eye_aspect_ratios,omitempty"`
	BlinkDuration   time.Duration   `json:"blink_duration"`
	HeadMovement    Check           `json:"head_movement"`
	Texture         Check           `json:"texture"`
	Spoofing        Check           `json:"spoofing"`
}

// Lighting classifies capture illumination.
type Lighting string

const (
	LightingPoor     Lighting = "poor"
	LightingAdequate Lighting = "adequate"
	LightingGood     Lighting = "good"
)

// Resolution classifies capture resolution.
type Resolution string

const (
	ResolutionLow      Resolution = "low"
	ResolutionStandard Resolution = "standard"
	ResolutionHigh     Resolution = "high"
)

// CaptureEnvironment describes the conditions a sample was taken under.
type CaptureEnvironment struct {
	Lighting    Lighting   `json:"lighting"`
	Resolution  Resolution `json:"resolution"`
	DeviceClass string     `json:"device_class,omitempty"`
}

// BiometricSample is a single capture: the feature vector plus the scores
// and telemetry the liveness engine evaluates. Scores are in [0,1].
type BiometricSample struct {
	Features      []float64          `json:"features"`
	Confidence    float64            `json:"confidence"`
	LivenessScore float64            `json:"liveness_score"`
	QualityScore  float64            `json:"quality_score"`
	Tests         LivenessTests      `json:"tests"`
	CapturedAt    time.Time          `json:"captured_at"`
	Environment   CaptureEnvironment `json:"environment"`
}

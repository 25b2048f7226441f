package speech

import "time"

// RecognitionConfig is the configuration surface sent to the platform recognizer.
type RecognitionConfig struct {
	Continuous      bool   `json:"continuous"`
	InterimResults  bool   `json:"interimResults"`
	Lang            string `json:"lang"`
	MaxAlternatives int    `json:"maxAlternatives"`

	// Silence timeouts are enforced by the capture session, not the platform.
	ShortSilence time.Duration `json:"-"`
	LongSilence  time.Duration `json:"-"`
	// MinConfidentLength and MinConfidence tune the early end-of-utterance path.
	MinConfidentLength int     `json:"-"`
	MinConfidence      float64 `json:"-"`
}

// DefaultRecognitionConfig mirrors the settings the journaling client ships with.
func DefaultRecognitionConfig() RecognitionConfig {
	return RecognitionConfig{
		Continuous:         true,
		InterimResults:     true,
		Lang:               "en-IN",
		MaxAlternatives:    5,
		ShortSilence:       2500 * time.Millisecond,
		LongSilence:        3000 * time.Millisecond,
		MinConfidentLength: 10,
		MinConfidence:      0.8,
	}
}

const (
	MinRate     = 0.5
	MaxRate     = 2.0
	DefaultRate = 1.0
	FixedPitch  = 1.0
	FixedVolume = 1.0
)

// SynthesisConfig holds output defaults.
type SynthesisConfig struct {
	Lang string
	Rate float64
}

// ClampRate keeps a playback rate inside the supported range.
func ClampRate(rate float64) float64 {
	if rate < MinRate {
		return MinRate
	}
	if rate > MaxRate {
		return MaxRate
	}
	return rate
}

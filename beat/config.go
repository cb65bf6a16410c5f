package beat

import "math/bits"

// Config is the immutable per-parser configuration. Construct with
// NewDefaultConfig, adjust fields, and pass by value; the parser snapshots
// it before the first parse and never reads it again afterwards.
type Config struct {
	SampleRate int `json:"sample_rate"`
	FrameSize  int `json:"frame_size"` // power of two
	HopSize    int `json:"hop_size"`   // <= FrameSize

	MinBPM float64 `json:"min_bpm"`
	MaxBPM float64 `json:"max_bpm"`

	// Detector fusion weights, each in [0,1].
	OnsetWeight    float64 `json:"onset_weight"`
	TempoWeight    float64 `json:"tempo_weight"`
	SpectralWeight float64 `json:"spectral_weight"`

	MultiPass           bool    `json:"multi_pass"`
	GenreAdaptive       bool    `json:"genre_adaptive"`
	ConfidenceThreshold float64 `json:"confidence_threshold"`

	// Preprocessing toggles.
	Normalize bool `json:"normalize"` // peak-normalize to 1.0
	HighPass  bool `json:"high_pass"` // 80 Hz high-pass before analysis

	// Output toggles.
	IncludeTempo    bool `json:"include_tempo"`
	IncludeAnalysis bool `json:"include_analysis"` // quality block in metadata
}

// NewDefaultConfig returns the default analysis configuration.
func NewDefaultConfig() Config {
	return Config{
		SampleRate:          44100,
		FrameSize:           2048,
		HopSize:             512,
		MinBPM:              60,
		MaxBPM:              200,
		OnsetWeight:         0.4,
		TempoWeight:         0.4,
		SpectralWeight:      0.2,
		ConfidenceThreshold: 0.5,
		Normalize:           true,
		HighPass:            false,
		IncludeTempo:        true,
		IncludeAnalysis:     true,
	}
}

// Validate reports the first constraint violation, if any.
func (c Config) Validate() error {
	if c.SampleRate <= 0 {
		return Errorf(ErrInvalidConfig, "config", "sample_rate must be positive: %d", c.SampleRate)
	}
	if c.FrameSize <= 0 || bits.OnesCount(uint(c.FrameSize)) != 1 {
		return Errorf(ErrInvalidConfig, "config", "frame_size must be a power of two: %d", c.FrameSize)
	}
	if c.HopSize <= 0 || c.HopSize > c.FrameSize {
		return Errorf(ErrInvalidConfig, "config", "hop_size must be in (0, frame_size]: %d", c.HopSize)
	}
	if c.MinBPM <= 0 || c.MaxBPM <= 0 || c.MinBPM >= c.MaxBPM {
		return Errorf(ErrInvalidConfig, "config", "bpm range invalid: [%g, %g]", c.MinBPM, c.MaxBPM)
	}
	for _, w := range []struct {
		name string
		v    float64
	}{
		{"onset_weight", c.OnsetWeight},
		{"tempo_weight", c.TempoWeight},
		{"spectral_weight", c.SpectralWeight},
		{"confidence_threshold", c.ConfidenceThreshold},
	} {
		if w.v < 0 || w.v > 1 {
			return Errorf(ErrInvalidConfig, "config", "%s outside [0,1]: %g", w.name, w.v)
		}
	}
	return nil
}

// Package preset loads analysis configuration presets from JSON files.
// Preset fields are optional; present fields override the defaults.
package preset

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/cwbudde/algo-beat/beat"
)

// File is the JSON schema for analysis presets.
type File struct {
	SampleRate          *int     `json:"sample_rate"`
	FrameSize           *int     `json:"frame_size"`
	HopSize             *int     `json:"hop_size"`
	MinBPM              *float64 `json:"min_bpm"`
	MaxBPM              *float64 `json:"max_bpm"`
	OnsetWeight         *float64 `json:"onset_weight"`
	TempoWeight         *float64 `json:"tempo_weight"`
	SpectralWeight      *float64 `json:"spectral_weight"`
	MultiPass           *bool    `json:"multi_pass"`
	GenreAdaptive       *bool    `json:"genre_adaptive"`
	ConfidenceThreshold *float64 `json:"confidence_threshold"`
	Normalize           *bool    `json:"normalize"`
	HighPass            *bool    `json:"high_pass"`
	IncludeTempo        *bool    `json:"include_tempo"`
	IncludeAnalysis     *bool    `json:"include_analysis"`

	Options *OptionsFile `json:"options"`
}

// OptionsFile is a partial ParseOptions override.
type OptionsFile struct {
	TargetCount     *int     `json:"target_count"`
	Strategy        *string  `json:"strategy"`
	MinConfidence   *float64 `json:"min_confidence"`
	ChunkSize       *int     `json:"chunk_size"`
	OverlapFraction *float64 `json:"overlap_fraction"`
}

// LoadJSON loads a preset file and applies it on top of the defaults,
// returning the resulting configuration and parse options.
func LoadJSON(path string) (beat.Config, beat.ParseOptions, error) {
	cfg := beat.NewDefaultConfig()
	var opts beat.ParseOptions

	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, opts, err
	}
	var f File
	if err := json.Unmarshal(b, &f); err != nil {
		return cfg, opts, fmt.Errorf("preset %s: %w", path, err)
	}
	if err := ApplyFile(&cfg, &opts, &f); err != nil {
		return cfg, opts, fmt.Errorf("preset %s: %w", path, err)
	}
	return cfg, opts, nil
}

// ApplyFile applies a parsed preset onto existing config and options.
func ApplyFile(cfg *beat.Config, opts *beat.ParseOptions, f *File) error {
	if cfg == nil {
		return fmt.Errorf("nil destination config")
	}
	if f == nil {
		return nil
	}

	if f.SampleRate != nil {
		cfg.SampleRate = *f.SampleRate
	}
	if f.FrameSize != nil {
		cfg.FrameSize = *f.FrameSize
	}
	if f.HopSize != nil {
		cfg.HopSize = *f.HopSize
	}
	if f.MinBPM != nil {
		cfg.MinBPM = *f.MinBPM
	}
	if f.MaxBPM != nil {
		cfg.MaxBPM = *f.MaxBPM
	}
	if f.OnsetWeight != nil {
		cfg.OnsetWeight = *f.OnsetWeight
	}
	if f.TempoWeight != nil {
		cfg.TempoWeight = *f.TempoWeight
	}
	if f.SpectralWeight != nil {
		cfg.SpectralWeight = *f.SpectralWeight
	}
	if f.MultiPass != nil {
		cfg.MultiPass = *f.MultiPass
	}
	if f.GenreAdaptive != nil {
		cfg.GenreAdaptive = *f.GenreAdaptive
	}
	if f.ConfidenceThreshold != nil {
		cfg.ConfidenceThreshold = *f.ConfidenceThreshold
	}
	if f.Normalize != nil {
		cfg.Normalize = *f.Normalize
	}
	if f.HighPass != nil {
		cfg.HighPass = *f.HighPass
	}
	if f.IncludeTempo != nil {
		cfg.IncludeTempo = *f.IncludeTempo
	}
	if f.IncludeAnalysis != nil {
		cfg.IncludeAnalysis = *f.IncludeAnalysis
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if opts == nil || f.Options == nil {
		return nil
	}
	o := f.Options
	if o.TargetCount != nil {
		if *o.TargetCount <= 0 {
			return fmt.Errorf("target_count must be > 0")
		}
		opts.TargetCount = *o.TargetCount
	}
	if o.Strategy != nil {
		s, err := beat.ParseStrategy(*o.Strategy)
		if err != nil {
			return err
		}
		opts.Strategy = s
	}
	if o.MinConfidence != nil {
		if *o.MinConfidence < 0 || *o.MinConfidence > 1 {
			return fmt.Errorf("min_confidence must be in [0,1]")
		}
		opts.MinConfidence = *o.MinConfidence
	}
	if o.ChunkSize != nil {
		if *o.ChunkSize <= 0 {
			return fmt.Errorf("chunk_size must be > 0")
		}
		opts.ChunkSize = *o.ChunkSize
	}
	if o.OverlapFraction != nil {
		if *o.OverlapFraction < 0 || *o.OverlapFraction >= 1 {
			return fmt.Errorf("overlap_fraction must be in [0,1)")
		}
		opts.OverlapFraction = *o.OverlapFraction
	}
	return nil
}

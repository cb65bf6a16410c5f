package beat

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorKindDiscrimination(t *testing.T) {
	err := Errorf(ErrInvalidAudio, "input", "empty sample buffer")
	if !errors.Is(err, ErrInvalidAudio) {
		t.Fatalf("errors.Is must match the kind")
	}
	if errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("errors.Is must not match other kinds")
	}
	if !strings.Contains(err.Error(), "input") || !strings.Contains(err.Error(), "empty") {
		t.Fatalf("message should carry stage and detail: %q", err.Error())
	}
}

func TestErrorWrapPreservesCause(t *testing.T) {
	cause := fmt.Errorf("underlying failure")
	err := Wrap(ErrDecoderFailure, "decode", cause, "mp3 frame")
	if !errors.Is(err, ErrDecoderFailure) {
		t.Fatalf("kind lost through wrap")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("cause must be reachable via Unwrap")
	}
	var typed *Error
	if !errors.As(err, &typed) {
		t.Fatalf("errors.As must recover the typed error")
	}
	if typed.Stage != "decode" {
		t.Fatalf("stage lost: %q", typed.Stage)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero sample rate", func(c *Config) { c.SampleRate = 0 }},
		{"non power of two frame", func(c *Config) { c.FrameSize = 3000 }},
		{"hop exceeds frame", func(c *Config) { c.HopSize = c.FrameSize + 1 }},
		{"zero hop", func(c *Config) { c.HopSize = 0 }},
		{"inverted bpm range", func(c *Config) { c.MinBPM, c.MaxBPM = 200, 100 }},
		{"weight above one", func(c *Config) { c.OnsetWeight = 1.5 }},
		{"negative weight", func(c *Config) { c.SpectralWeight = -0.1 }},
		{"threshold above one", func(c *Config) { c.ConfidenceThreshold = 2 }},
	}
	for _, tc := range cases {
		c := NewDefaultConfig()
		tc.mutate(&c)
		if err := c.Validate(); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("%s: expected ErrInvalidConfig, got %v", tc.name, err)
		}
	}
}

func TestParseOptionsNormalized(t *testing.T) {
	opts := ParseOptions{}.Normalized(44100)
	if opts.TargetCount != 10 {
		t.Fatalf("default target count = %d", opts.TargetCount)
	}
	if opts.MinConfidence != 0.5 {
		t.Fatalf("default min confidence = %g", opts.MinConfidence)
	}
	if opts.ChunkSize != 44100 {
		t.Fatalf("default chunk size = %d", opts.ChunkSize)
	}
	if opts.OverlapFraction != 0.1 {
		t.Fatalf("default overlap = %g", opts.OverlapFraction)
	}

	opts = ParseOptions{TargetCount: 3, MinConfidence: 0.7, ChunkSize: 1000, OverlapFraction: 0.25}.Normalized(44100)
	if opts.TargetCount != 3 || opts.MinConfidence != 0.7 || opts.ChunkSize != 1000 || opts.OverlapFraction != 0.25 {
		t.Fatalf("explicit options must be preserved: %+v", opts)
	}
}

func TestParseStrategy(t *testing.T) {
	for name, want := range map[string]SelectionStrategy{
		"energy":   StrategyEnergy,
		"regular":  StrategyRegular,
		"musical":  StrategyMusical,
		"adaptive": StrategyAdaptive,
		"":         StrategyAdaptive,
	} {
		got, err := ParseStrategy(name)
		if err != nil || got != want {
			t.Fatalf("ParseStrategy(%q) = %v, %v", name, got, err)
		}
	}
	if _, err := ParseStrategy("fastest"); err == nil {
		t.Fatalf("unknown strategy must error")
	}

	for _, s := range []SelectionStrategy{StrategyEnergy, StrategyRegular, StrategyMusical, StrategyAdaptive} {
		round, err := ParseStrategy(s.String())
		if err != nil || round != s {
			t.Fatalf("round trip failed for %v", s)
		}
	}
}

func TestTempoBeatInterval(t *testing.T) {
	if (Tempo{BPM: 120}).BeatInterval() != 0.5 {
		t.Fatalf("120 bpm should have 0.5 s beats")
	}
	if (Tempo{}).BeatInterval() != 0 {
		t.Fatalf("zero tempo should have zero interval")
	}
}

package main

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-beat/beat"
)

// knobDef describes one tunable parameter and its search range.
type knobDef struct {
	Name string
	Min  float64
	Max  float64
}

// candidate holds one knob vector in natural (denormalized) units.
type candidate struct {
	Vals []float64
}

var knobDefs = []knobDef{
	{Name: "onset_weight", Min: 0.05, Max: 1.0},
	{Name: "tempo_weight", Min: 0.05, Max: 1.0},
	{Name: "spectral_weight", Min: 0.0, Max: 1.0},
	{Name: "confidence_threshold", Min: 0.0, Max: 0.9},
	{Name: "min_confidence", Min: 0.0, Max: 0.9},
}

// fromNormalized maps a [0,1]^n position onto the knob ranges.
func fromNormalized(pos []float64, defs []knobDef) candidate {
	vals := make([]float64, len(defs))
	for i, d := range defs {
		v := pos[i]
		if v < 0 {
			v = 0
		}
		if v > 1 {
			v = 1
		}
		vals[i] = d.Min + v*(d.Max-d.Min)
	}
	return candidate{Vals: vals}
}

// apply writes a candidate onto a config and options copy.
func (c candidate) apply(cfg beat.Config, opts beat.ParseOptions) (beat.Config, beat.ParseOptions, error) {
	if len(c.Vals) != len(knobDefs) {
		return cfg, opts, fmt.Errorf("candidate has %d values, want %d", len(c.Vals), len(knobDefs))
	}
	cfg.OnsetWeight = c.Vals[0]
	cfg.TempoWeight = c.Vals[1]
	cfg.SpectralWeight = c.Vals[2]
	cfg.ConfidenceThreshold = c.Vals[3]
	opts.MinConfidence = c.Vals[4]
	return cfg, opts, cfg.Validate()
}

func (c candidate) knobMap() map[string]float64 {
	m := make(map[string]float64, len(knobDefs))
	for i, d := range knobDefs {
		m[d.Name] = round6(c.Vals[i])
	}
	return m
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

func cloneCandidate(c candidate) candidate {
	return candidate{Vals: append([]float64(nil), c.Vals...)}
}

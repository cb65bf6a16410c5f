package tempo

import (
	"math"

	"github.com/cwbudde/algo-beat/beat"
)

// bestPhase finds the grid offset in [0, 60/bpm) that maximizes the mean
// onset-function value sampled on the implied beat grid.
func bestPhase(fn []float64, frameRate float64, bpm float64) float64 {
	if bpm <= 0 || len(fn) == 0 {
		return 0
	}
	interval := 60 / bpm
	intervalFrames := interval * frameRate
	if intervalFrames < 1 {
		return 0
	}

	steps := int(intervalFrames)
	if steps > 64 {
		steps = 64
	}
	if steps < 1 {
		steps = 1
	}

	bestOffset := 0.0
	bestScore := math.Inf(-1)
	for s := 0; s < steps; s++ {
		offset := float64(s) / float64(steps) * interval
		var sum float64
		count := 0
		for pos := offset * frameRate; pos < float64(len(fn)); pos += intervalFrames {
			sum += fn[int(pos)]
			count++
		}
		if count == 0 {
			continue
		}
		score := sum / float64(count)
		if score > bestScore {
			bestScore = score
			bestOffset = offset
		}
	}
	return bestOffset
}

// refineConfidence applies the musical scoring refinements: preference
// bands, extremes, integral-bpm bonuses, autocorrelation magnitude and
// phase quality.
func refineConfidence(h beat.TempoHypothesis) float64 {
	conf := h.Confidence

	switch {
	case h.BPM >= 110 && h.BPM <= 130:
		conf *= 1.3
	case h.BPM >= 90 && h.BPM < 110:
		conf *= 1.2
	case h.BPM >= 60 && h.BPM <= 80:
		conf *= 1.15
	case h.BPM >= 140 && h.BPM <= 160:
		conf *= 1.1
	}

	switch {
	case h.BPM < 50:
		conf *= 0.3
	case h.BPM < 70:
		conf *= 0.7
	}
	switch {
	case h.BPM > 250:
		conf *= 0.2
	case h.BPM > 200:
		conf *= 0.6
	}

	const tol = 0.01
	switch {
	case math.Abs(h.BPM-math.Round(h.BPM)) < tol:
		conf *= 1.08
	case math.Abs(h.BPM*2-math.Round(h.BPM*2)) < tol:
		conf *= 1.04
	case math.Abs(h.BPM*4-math.Round(h.BPM*4)) < tol:
		conf *= 1.02
	}

	conf *= 0.8 + 0.2*clamp01(h.ACFPeak)
	conf *= phaseQuality(h)
	return conf
}

// phaseQuality favors phases landing near quarter-beat grid positions.
func phaseQuality(h beat.TempoHypothesis) float64 {
	interval := 60 / h.BPM
	if interval <= 0 {
		return 1
	}
	frac := h.Phase / interval
	frac -= math.Floor(frac)
	minDist := 1.0
	for _, anchor := range []float64{0, 0.25, 0.5, 0.75, 1} {
		d := math.Abs(frac - anchor)
		if d < minDist {
			minDist = d
		}
	}
	// minDist is at most 0.125 of a beat.
	q := 1 - minDist/0.125
	if q < 0 {
		q = 0
	}
	return 0.9 + 0.1*q
}

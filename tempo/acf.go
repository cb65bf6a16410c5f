package tempo

import (
	"math"
	"sort"

	"github.com/cwbudde/algo-beat/beat"
)

const eps = 1e-9

// commonTempos attract a mild musical prior.
var commonTempos = []float64{120, 128, 100, 140, 90, 110, 130, 150}

// hypotheses extracts tempo candidates from the autocorrelation of fn,
// optionally across three time scales.
func (t *Tracker) hypotheses(fn []float64, frameRate float64) []beat.TempoHypothesis {
	scales := []int{1}
	if t.cfg.MultiScale {
		scales = []int{1, 2, 4}
	}

	mu, sigma := meanStd(fn)
	cv := 0.0
	if mu > eps {
		cv = sigma / mu
	}
	// Normalized mean onset level contributes to confidence.
	maxV := 0.0
	for _, v := range fn {
		if v > maxV {
			maxV = v
		}
	}
	meanNorm := 0.0
	if maxV > eps {
		meanNorm = mu / maxV
	}

	var out []beat.TempoHypothesis
	for _, scale := range scales {
		scaled := downsample(fn, scale)
		scaledRate := frameRate / float64(scale)
		maxLag := int(scaledRate * 60 / t.cfg.MinBPM)
		if maxLag >= len(scaled) {
			maxLag = len(scaled) - 1
		}
		if maxLag < 2 {
			continue
		}
		acf := autocorrelate(scaled, maxLag)

		minLag := int(scaledRate * 60 / t.cfg.MaxBPM)
		if minLag < 1 {
			minLag = 1
		}
		for lag := minLag + 1; lag < maxLag; lag++ {
			if acf[lag] <= acf[lag-1] || acf[lag] <= acf[lag+1] {
				continue
			}
			if acf[lag] < minACFPeak {
				continue
			}
			bpm := 60 * scaledRate / float64(lag)
			if bpm < t.cfg.MinBPM || bpm > t.cfg.MaxBPM {
				continue
			}
			prominence := localProminence(acf, lag)
			conf := 0.4*acf[lag] + 0.3*prominence + 0.2*meanNorm + 0.1*(1-math.Min(cv, 1))
			if nearCommonTempo(bpm) {
				conf *= 1.2
			}
			out = append(out, beat.TempoHypothesis{
				BPM:        bpm,
				Confidence: clamp01(conf),
				Strength:   acf[lag],
				ACFPeak:    acf[lag],
			})
		}
	}
	sortByConfidence(out)
	return out
}

// autocorrelate returns the mean-removed, normalized autocorrelation of x
// up to maxLag, with acf[0] == 1. Removing the mean keeps near-constant
// onset functions (steady tones) from faking strong periodicity.
func autocorrelate(x []float64, maxLag int) []float64 {
	acf := make([]float64, maxLag+1)
	mu, _ := meanStd(x)
	d := make([]float64, len(x))
	var energy float64
	for i, v := range x {
		d[i] = v - mu
		energy += d[i] * d[i]
	}
	if energy < eps {
		return acf
	}
	for lag := 0; lag <= maxLag; lag++ {
		var sum float64
		for i := 0; i+lag < len(d); i++ {
			sum += d[i] * d[i+lag]
		}
		acf[lag] = sum / energy
	}
	return acf
}

// localProminence relates the peak at lag to the strongest value outside a
// +/-10% neighborhood.
func localProminence(acf []float64, lag int) float64 {
	span := lag / 10
	if span < 1 {
		span = 1
	}
	outside := eps
	for i := 1; i < len(acf); i++ {
		if i >= lag-span && i <= lag+span {
			continue
		}
		if acf[i] > outside {
			outside = acf[i]
		}
	}
	p := acf[lag] / outside
	if p > 1 {
		p = 1
	}
	return p
}

func nearCommonTempo(bpm float64) bool {
	for _, c := range commonTempos {
		if math.Abs(bpm-c) <= 5 {
			return true
		}
	}
	return false
}

// multiples emits scaled copies of the top hypotheses at common tempo
// ratios, restricted to [50, 250] bpm.
func multiples(hyps []beat.TempoHypothesis) []beat.TempoHypothesis {
	top := hyps
	if len(top) > 5 {
		top = top[:5]
	}
	ratios := []struct {
		ratio float64
		scale float64
	}{
		{0.25, 0.6},
		{0.5, 0.8},
		{2, 0.8},
		{3, 0.6},
		{4, 0.6},
	}
	var out []beat.TempoHypothesis
	for _, h := range top {
		for _, r := range ratios {
			bpm := h.BPM * r.ratio
			if bpm < 50 || bpm > 250 {
				continue
			}
			out = append(out, beat.TempoHypothesis{
				BPM:        bpm,
				Confidence: clamp01(h.Confidence * r.scale),
				Strength:   h.Strength * r.scale,
				ACFPeak:    h.ACFPeak,
			})
		}
	}
	return out
}

func downsample(x []float64, factor int) []float64 {
	if factor <= 1 {
		return x
	}
	out := make([]float64, 0, len(x)/factor+1)
	for i := 0; i+factor <= len(x); i += factor {
		var sum float64
		for j := 0; j < factor; j++ {
			sum += x[i+j]
		}
		out = append(out, sum/float64(factor))
	}
	return out
}

func meanStd(x []float64) (float64, float64) {
	if len(x) == 0 {
		return 0, 0
	}
	var mu float64
	for _, v := range x {
		mu += v
	}
	mu /= float64(len(x))
	var variance float64
	for _, v := range x {
		d := v - mu
		variance += d * d
	}
	return mu, math.Sqrt(variance / float64(len(x)))
}

func sortByConfidence(hyps []beat.TempoHypothesis) {
	sort.SliceStable(hyps, func(i, j int) bool {
		return hyps[i].Confidence > hyps[j].Confidence
	})
}

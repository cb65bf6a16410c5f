package onset

import (
	"math"

	"github.com/cwbudde/algo-beat/beat"
	"github.com/cwbudde/algo-beat/sigproc"
)

const (
	refineSpan   = 256 // samples searched either side of the coarse position
	refineStep   = 16
	refineWindow = 512
	snapSpan     = 64 // zero-crossing snap radius
)

// refine nudges each onset to the most transient-like position nearby, then
// snaps to the nearest zero crossing. Confidence gets a 10% boost, capped.
func (d *Detector) refine(samples []float64, onsets []beat.Onset) {
	for i := range onsets {
		center := int(onsets[i].Time * float64(d.cfg.SampleRate))
		best := center
		bestScore := math.Inf(-1)
		for off := -refineSpan; off <= refineSpan; off += refineStep {
			pos := center + off
			score := d.transientScore(samples, pos)
			if score > bestScore {
				bestScore = score
				best = pos
			}
		}
		best = snapToZeroCrossing(samples, best, snapSpan)
		onsets[i].Time = float64(best) / float64(d.cfg.SampleRate)
		onsets[i].Confidence = clamp01(onsets[i].Confidence * 1.1)
	}
}

// transientScore rates a candidate position by local energy, spectral
// centroid and zero-crossing density over a refineWindow-sample window.
func (d *Detector) transientScore(samples []float64, pos int) float64 {
	lo := pos - refineWindow/2
	hi := pos + refineWindow/2
	if lo < 0 || hi > len(samples) {
		return math.Inf(-1)
	}
	window := samples[lo:hi]

	var energy float64
	for _, v := range window {
		energy += v * v
	}
	energy /= float64(len(window))

	crossings := 0.0
	for i := 1; i < len(window); i++ {
		if (window[i-1] < 0 && window[i] >= 0) || (window[i-1] >= 0 && window[i] < 0) {
			crossings++
		}
	}
	zcr := crossings / float64(len(window))

	centroid := 0.0
	if c, err := timeDomainCentroid(window, d.cfg.SampleRate); err == nil {
		centroid = c / (float64(d.cfg.SampleRate) / 2)
	}

	return 0.6*energy + 0.3*centroid + 0.1*zcr*100
}

// timeDomainCentroid estimates the spectral centroid of a short window via
// its magnitude spectrum when the window is a power of two, falling back to
// a zero-crossing frequency estimate otherwise.
func timeDomainCentroid(window []float64, sampleRate int) (float64, error) {
	if n := len(window); n > 0 && n&(n-1) == 0 {
		mags, err := sigproc.Magnitude(window)
		if err == nil {
			return sigproc.SpectralCentroid(mags, sampleRate)
		}
	}
	return sigproc.ZeroCrossingRate(window, sampleRate)
}

func snapToZeroCrossing(samples []float64, pos int, span int) int {
	best := pos
	bestDist := span + 1
	lo := pos - span
	if lo < 1 {
		lo = 1
	}
	hi := pos + span
	if hi >= len(samples) {
		hi = len(samples) - 1
	}
	for i := lo; i <= hi; i++ {
		if (samples[i-1] < 0 && samples[i] >= 0) || (samples[i-1] >= 0 && samples[i] < 0) {
			dist := i - pos
			if dist < 0 {
				dist = -dist
			}
			if dist < bestDist {
				bestDist = dist
				best = i
			}
		}
	}
	return best
}

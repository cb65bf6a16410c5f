package onset

import (
	"math"
	"sort"

	"github.com/cwbudde/algo-beat/beat"
)

// pickPeaks accepts strict local maxima of fn that exceed a per-sample
// adaptive threshold and are at least minInterval seconds apart.
func pickPeaks(fn []float64, frameRate float64, thresholdScale float64, minInterval float64) []beat.Onset {
	if len(fn) < 3 {
		return nil
	}

	threshold := adaptiveThreshold(fn)
	for i := range threshold {
		threshold[i] *= thresholdScale
	}

	globalMax := 0.0
	for _, v := range fn {
		if v > globalMax {
			globalMax = v
		}
	}
	if globalMax < eps {
		return nil
	}

	var onsets []beat.Onset
	lastTime := math.Inf(-1)
	for i := 1; i < len(fn)-1; i++ {
		if fn[i] <= fn[i-1] || fn[i] <= fn[i+1] {
			continue
		}
		if fn[i] <= threshold[i] {
			continue
		}
		t := float64(i) / frameRate
		if t-lastTime < minInterval {
			continue
		}
		lastTime = t
		onsets = append(onsets, beat.Onset{
			Time:       t,
			Strength:   fn[i],
			Confidence: clamp01(fn[i] / globalMax),
		})
	}
	return onsets
}

// adaptiveThreshold blends a statistical and a percentile threshold over a
// sliding window, scales by local activity, and smooths with a 3-tap filter.
func adaptiveThreshold(fn []float64) []float64 {
	n := len(fn)
	window := n / 20 // 5% of length
	if window < 20 {
		window = 20
	}
	half := window / 2

	globalMean, _ := meanStd(fn)

	out := make([]float64, n)
	buf := make([]float64, 0, window+1)
	for i := 0; i < n; i++ {
		lo := i - half
		if lo < 0 {
			lo = 0
		}
		hi := i + half + 1
		if hi > n {
			hi = n
		}
		local := fn[lo:hi]
		mu, sigma := meanStd(local)

		buf = buf[:0]
		buf = append(buf, local...)
		sort.Float64s(buf)
		med := buf[len(buf)/2]

		statistical := mu + 1.2*sigma
		percentile := med + 2*sigma
		t := 0.5 * (statistical + percentile)

		// A region whose local mean exceeds the global mean counts as
		// active (tighten), otherwise as quiet (relax). The local
		// coefficient of variation is not used for this decision.
		if mu > globalMean {
			t *= 0.8
		} else {
			t *= 1.2
		}
		out[i] = t
	}

	// 3-tap smoothing.
	smoothed := make([]float64, n)
	for i := range out {
		switch {
		case i == 0 || i == n-1:
			smoothed[i] = out[i]
		default:
			smoothed[i] = 0.25*out[i-1] + 0.5*out[i] + 0.25*out[i+1]
		}
	}
	return smoothed
}

// prunePairs sorts onsets by time and drops the weaker of any pair closer
// than minGap seconds.
func prunePairs(onsets []beat.Onset, minGap float64) []beat.Onset {
	if len(onsets) < 2 {
		return onsets
	}
	sort.Slice(onsets, func(i, j int) bool { return onsets[i].Time < onsets[j].Time })
	out := onsets[:1]
	for _, o := range onsets[1:] {
		last := &out[len(out)-1]
		if o.Time-last.Time < minGap {
			if o.Strength > last.Strength {
				*last = o
			}
			continue
		}
		out = append(out, o)
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

package selector

import (
	"math"

	"github.com/cwbudde/algo-beat/beat"
)

// quality scores a time-ordered selection: span coverage, strength
// diversity and spacing evenness, combined into an overall mean.
func quality(beats []beat.Beat, durationSec float64) beat.QualityReport {
	q := beat.QualityReport{}
	if len(beats) == 0 || durationSec <= 0 {
		return q
	}
	q.BeatDensity = float64(len(beats)) / durationSec

	first := beats[0].Timestamp
	last := beats[len(beats)-1].Timestamp
	q.Coverage = math.Min(1, (last-first)/(durationSec*1000))

	minS, maxS := beats[0].Strength, beats[0].Strength
	for _, b := range beats[1:] {
		if b.Strength < minS {
			minS = b.Strength
		}
		if b.Strength > maxS {
			maxS = b.Strength
		}
	}
	if maxS > eps {
		q.Diversity = 1 - (maxS-minS)/maxS
	}

	if len(beats) >= 3 {
		gaps := make([]float64, 0, len(beats)-1)
		for i := 1; i < len(beats); i++ {
			gaps = append(gaps, beats[i].Timestamp-beats[i-1].Timestamp)
		}
		var mu float64
		for _, g := range gaps {
			mu += g
		}
		mu /= float64(len(gaps))
		var variance float64
		for _, g := range gaps {
			d := g - mu
			variance += d * d
		}
		sd := math.Sqrt(variance / float64(len(gaps)))
		if mu > eps {
			q.Spacing = clamp01(1 - sd/mu)
		}
	} else if len(beats) == 2 {
		q.Spacing = 1
	}

	q.Overall = (q.Coverage + q.Diversity + q.Spacing) / 3
	return q
}

// Package analysis measures how well a detected beat list matches a
// reference annotation. It is the objective used by beat-fit calibration
// and is usable standalone for evaluation.
package analysis

import (
	"math"

	"github.com/cwbudde/algo-beat/beat"
)

// Score weights for each metric component.
const (
	WeightHits   = 0.40
	WeightOffset = 0.30
	WeightTempo  = 0.15
	WeightCount  = 0.15

	// DefaultToleranceMS is the hit window for matching a detected beat to
	// a reference beat.
	DefaultToleranceMS = 50.0

	NormOffsetMS = 30.0
)

// Metrics contains accuracy measurements of a detection against a
// reference annotation.
type Metrics struct {
	ReferenceCount int `json:"reference_count"`
	DetectedCount  int `json:"detected_count"`
	Hits           int `json:"hits"`

	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	FMeasure  float64 `json:"f_measure"`

	MeanOffsetMS float64 `json:"mean_offset_ms"`
	MaxOffsetMS  float64 `json:"max_offset_ms"`

	ReferenceBPM float64 `json:"reference_bpm"`
	DetectedBPM  float64 `json:"detected_bpm"`
	TempoRatio   float64 `json:"tempo_ratio"`

	// Normalized component contributions (0-1 each, weighted sum = Score).
	HitsNorm   float64 `json:"hits_norm"`
	OffsetNorm float64 `json:"offset_norm"`
	TempoNorm  float64 `json:"tempo_norm"`
	CountNorm  float64 `json:"count_norm"`

	Score      float64 `json:"score"`      // 0 = perfect, 1 = worst
	Similarity float64 `json:"similarity"` // 1 = perfect
}

// Compare matches detected beats against reference timestamps (both in
// milliseconds) within toleranceMS and combines the sub-metrics into a
// score in [0,1]. Pass 0 for the default tolerance.
func Compare(referenceMS []float64, detected []beat.Beat, toleranceMS float64) Metrics {
	if toleranceMS <= 0 {
		toleranceMS = DefaultToleranceMS
	}
	m := Metrics{
		ReferenceCount: len(referenceMS),
		DetectedCount:  len(detected),
	}
	if len(referenceMS) == 0 || len(detected) == 0 {
		m.Score = 1
		return m
	}

	// Greedy one-to-one matching in time order.
	used := make([]bool, len(detected))
	var offsetSum float64
	for _, ref := range referenceMS {
		bestIdx := -1
		bestDist := toleranceMS
		for i, d := range detected {
			if used[i] {
				continue
			}
			dist := math.Abs(d.Timestamp - ref)
			if dist <= bestDist {
				bestDist = dist
				bestIdx = i
			}
		}
		if bestIdx < 0 {
			continue
		}
		used[bestIdx] = true
		m.Hits++
		offsetSum += bestDist
		if bestDist > m.MaxOffsetMS {
			m.MaxOffsetMS = bestDist
		}
	}

	if m.Hits > 0 {
		m.MeanOffsetMS = offsetSum / float64(m.Hits)
		m.Precision = float64(m.Hits) / float64(len(detected))
		m.Recall = float64(m.Hits) / float64(len(referenceMS))
		m.FMeasure = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}

	m.ReferenceBPM = medianBPM(referenceMS)
	detectedMS := make([]float64, len(detected))
	for i, d := range detected {
		detectedMS[i] = d.Timestamp
	}
	m.DetectedBPM = medianBPM(detectedMS)
	if m.ReferenceBPM > 0 && m.DetectedBPM > 0 {
		m.TempoRatio = m.DetectedBPM / m.ReferenceBPM
	}

	// Normalize sub-metrics and combine.
	m.HitsNorm = clamp01(1 - m.FMeasure)
	m.OffsetNorm = clamp01(m.MeanOffsetMS / NormOffsetMS)
	m.TempoNorm = clamp01(tempoError(m.TempoRatio))
	m.CountNorm = clamp01(math.Abs(float64(m.DetectedCount)-float64(m.ReferenceCount)) / float64(m.ReferenceCount))
	m.Score = clamp01(WeightHits*m.HitsNorm + WeightOffset*m.OffsetNorm + WeightTempo*m.TempoNorm + WeightCount*m.CountNorm)
	m.Similarity = clamp01(math.Exp(-4.0 * m.Score))
	return m
}

// medianBPM derives a tempo from the median gap of a timestamp list.
func medianBPM(timesMS []float64) float64 {
	if len(timesMS) < 2 {
		return 0
	}
	gaps := make([]float64, 0, len(timesMS)-1)
	for i := 1; i < len(timesMS); i++ {
		g := timesMS[i] - timesMS[i-1]
		if g > 0 {
			gaps = append(gaps, g)
		}
	}
	if len(gaps) == 0 {
		return 0
	}
	// Insertion sort keeps the helper dependency-free for short lists.
	for i := 1; i < len(gaps); i++ {
		for j := i; j > 0 && gaps[j] < gaps[j-1]; j-- {
			gaps[j], gaps[j-1] = gaps[j-1], gaps[j]
		}
	}
	med := gaps[len(gaps)/2]
	return 60000 / med
}

// tempoError treats octave-equivalent ratios (0.5x, 2x) as half mistakes.
func tempoError(ratio float64) float64 {
	if ratio <= 0 {
		return 1
	}
	direct := math.Abs(ratio - 1)
	halved := math.Abs(ratio-0.5) + 0.5
	doubled := math.Abs(ratio-2)/2 + 0.5
	return math.Min(direct, math.Min(halved, doubled))
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// Package selector reduces merged beat candidates to a target-size,
// time-ordered list under quality and spacing criteria.
package selector

import (
	"fmt"
	"math"
	"sort"

	"github.com/cwbudde/algo-beat/beat"
	"github.com/cwbudde/algo-beat/sigproc"
)

const eps = 1e-9

// minSpacingFloorMS is the global minimum spacing between selected beats.
const minSpacingFloorMS = 50.0

// Weights are the adaptive-strategy dimension weights.
type Weights struct {
	Energy  float64
	Regular float64
	Musical float64
}

// DefaultWeights mirror the adaptive strategy defaults.
var DefaultWeights = Weights{Energy: 0.3, Regular: 0.3, Musical: 0.4}

// Options parameterize one selection pass.
type Options struct {
	Count         int
	Strategy      beat.SelectionStrategy
	MinConfidence float64
	DurationSec   float64
	Tempo         *beat.Tempo

	// MinSpacingMS is the minimum gap between selected beats in
	// milliseconds; values below the 50 ms floor (including zero) use the
	// floor.
	MinSpacingMS float64

	// Synthesize permits grid-beat synthesis when fewer candidates than
	// Count exist. Only strategies that opt in use it; energy never does.
	Synthesize bool

	// Weights apply to the adaptive strategy; zero value means defaults.
	Weights Weights
}

// Selection is the outcome of a pass plus its quality scores.
type Selection struct {
	Beats   []beat.Beat
	Quality beat.QualityReport
}

// Select runs the configured strategy over candidates.
func Select(candidates []beat.Candidate, opts Options) (Selection, error) {
	if opts.Count <= 0 {
		return Selection{}, fmt.Errorf("%w: target count must be positive: %d", sigproc.ErrInvalidArgument, opts.Count)
	}
	if opts.DurationSec <= 0 {
		return Selection{}, fmt.Errorf("%w: duration must be positive: %g", sigproc.ErrInvalidArgument, opts.DurationSec)
	}
	if opts.Weights == (Weights{}) {
		opts.Weights = DefaultWeights
	}

	filtered := make([]beat.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Confidence >= opts.MinConfidence {
			filtered = append(filtered, c)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool { return filtered[i].Timestamp < filtered[j].Timestamp })

	var selected []beat.Beat
	switch opts.Strategy {
	case beat.StrategyEnergy:
		selected = selectEnergy(filtered, opts.Count)
	case beat.StrategyRegular:
		selected = selectRegular(filtered, opts)
	case beat.StrategyMusical:
		selected = selectMusical(filtered, opts)
	default:
		selected = selectAdaptive(filtered, opts)
	}

	if opts.Synthesize && opts.Strategy != beat.StrategyEnergy {
		selected = synthesizeGridBeats(selected, opts)
	}

	// Every strategy honors the spacing invariant: the DP path constrains
	// during selection, the others only here. Cross-detector candidates
	// land within samples of the same transient, so near-coincident picks
	// are routine, not a corner case.
	sort.Slice(selected, func(i, j int) bool { return selected[i].Timestamp < selected[j].Timestamp })
	selected = enforceMinSpacing(selected, minSpacingFor(opts))
	return Selection{
		Beats:   selected,
		Quality: quality(selected, opts.DurationSec),
	}, nil
}

func minSpacingFor(opts Options) float64 {
	if opts.MinSpacingMS > minSpacingFloorMS {
		return opts.MinSpacingMS
	}
	return minSpacingFloorMS
}

// enforceMinSpacing drops the weaker of any adjacent pair of time-ordered
// beats closer than minGapMS.
func enforceMinSpacing(beats []beat.Beat, minGapMS float64) []beat.Beat {
	if len(beats) < 2 {
		return beats
	}
	out := beats[:1]
	for _, b := range beats[1:] {
		last := &out[len(out)-1]
		if b.Timestamp-last.Timestamp < minGapMS {
			if b.Strength > last.Strength {
				*last = b
			}
			continue
		}
		out = append(out, b)
	}
	return out
}

// selectEnergy keeps the strongest Count candidates.
func selectEnergy(candidates []beat.Candidate, count int) []beat.Beat {
	byStrength := append([]beat.Candidate(nil), candidates...)
	sort.SliceStable(byStrength, func(i, j int) bool { return byStrength[i].Strength > byStrength[j].Strength })
	if len(byStrength) > count {
		byStrength = byStrength[:count]
	}
	out := make([]beat.Beat, len(byStrength))
	for i, c := range byStrength {
		out[i] = c.Beat
	}
	return out
}

// selectRegular picks, for each evenly spaced target time, the closest
// remaining candidate.
func selectRegular(candidates []beat.Candidate, opts Options) []beat.Beat {
	if len(candidates) == 0 {
		return nil
	}
	used := make([]bool, len(candidates))
	var out []beat.Beat
	durationMS := opts.DurationSec * 1000
	for i := 0; i < opts.Count; i++ {
		target := float64(i) * durationMS / float64(opts.Count)
		bestIdx := -1
		bestDist := math.Inf(1)
		for j, c := range candidates {
			if used[j] {
				continue
			}
			d := math.Abs(c.Timestamp - target)
			if d < bestDist {
				bestDist = d
				bestIdx = j
			}
		}
		if bestIdx < 0 {
			break
		}
		used[bestIdx] = true
		out = append(out, candidates[bestIdx].Beat)
	}
	return out
}

// selectMusical ranks candidates by grid alignment, beat-role bonuses and
// local prominence.
func selectMusical(candidates []beat.Candidate, opts Options) []beat.Beat {
	if len(candidates) == 0 {
		return nil
	}
	type scored struct {
		c beat.Candidate
		s float64
	}
	list := make([]scored, len(candidates))
	for i, c := range candidates {
		s := gridAlignment(c, opts.Tempo)
		s += beatRoleBonus(c, opts.Tempo)
		s += 0.2 * localProminence(candidates, i, 1000)
		list[i] = scored{c, s}
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].s > list[j].s })
	if len(list) > opts.Count {
		list = list[:opts.Count]
	}
	out := make([]beat.Beat, len(list))
	for i, sc := range list {
		out[i] = sc.c.Beat
	}
	return out
}

// gridAlignment scores distance to the nearest expected beat time in
// [0, 0.3].
func gridAlignment(c beat.Candidate, tempo *beat.Tempo) float64 {
	if tempo == nil || tempo.BPM <= 0 {
		return 0
	}
	intervalMS := tempo.BeatInterval() * 1000
	phaseMS := tempo.Phase * 1000
	offset := math.Mod(c.Timestamp-phaseMS, intervalMS)
	if offset < 0 {
		offset += intervalMS
	}
	dist := math.Min(offset, intervalMS-offset)
	tol := intervalMS / 2
	return 0.3 * (1 - dist/tol)
}

// beatRoleBonus rewards downbeats and, in 4/4, backbeats.
func beatRoleBonus(c beat.Candidate, tempo *beat.Tempo) float64 {
	if c.Classification == beat.ClassDownbeat {
		return 0.2
	}
	if tempo != nil && tempo.TimeSignature != nil &&
		tempo.TimeSignature.Numerator == 4 && tempo.TimeSignature.Denominator == 4 &&
		c.Metadata != nil && (c.Metadata.BeatNumber == 2 || c.Metadata.BeatNumber == 4) {
		return 0.1
	}
	return 0
}

// localProminence compares a candidate's strength to its neighbors within
// +/- windowMS.
func localProminence(candidates []beat.Candidate, i int, windowMS float64) float64 {
	self := candidates[i]
	maxNeighbor := eps
	for j, c := range candidates {
		if j == i {
			continue
		}
		if math.Abs(c.Timestamp-self.Timestamp) <= windowMS && c.Strength > maxNeighbor {
			maxNeighbor = c.Strength
		}
	}
	p := self.Strength / maxNeighbor
	if p > 1 {
		p = 1
	}
	return p
}

// synthesizeGridBeats fills missing slots with tempo-grid beats flagged
// synthetic, at reduced strength and confidence.
func synthesizeGridBeats(selected []beat.Beat, opts Options) []beat.Beat {
	missing := opts.Count - len(selected)
	if missing <= 0 || opts.Tempo == nil || opts.Tempo.BPM <= 0 || opts.Tempo.Confidence <= 0 {
		return selected
	}

	var avgStrength, avgConf float64
	if len(selected) > 0 {
		for _, b := range selected {
			avgStrength += b.Strength
			avgConf += b.Confidence
		}
		avgStrength /= float64(len(selected))
		avgConf /= float64(len(selected))
	} else {
		avgStrength = 0.5
		avgConf = opts.Tempo.Confidence
	}

	intervalMS := opts.Tempo.BeatInterval() * 1000
	phaseMS := opts.Tempo.Phase * 1000
	durationMS := opts.DurationSec * 1000
	occupied := func(ts float64) bool {
		for _, b := range selected {
			if math.Abs(b.Timestamp-ts) < intervalMS/2 {
				return true
			}
		}
		return false
	}

	for ts := phaseMS; ts < durationMS && missing > 0; ts += intervalMS {
		if occupied(ts) {
			continue
		}
		selected = append(selected, beat.Beat{
			Timestamp:  ts,
			Strength:   0.7 * avgStrength,
			Confidence: 0.5 * avgConf,
			Metadata:   &beat.Metadata{Synthetic: true},
		})
		missing--
	}
	return selected
}

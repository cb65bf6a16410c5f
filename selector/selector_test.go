package selector

import (
	"errors"
	"math"
	"sort"
	"testing"

	"pgregory.net/rapid"

	"github.com/cwbudde/algo-beat/beat"
	"github.com/cwbudde/algo-beat/sigproc"
)

// gridCandidates builds count candidates spaced intervalMS apart with the
// given strengths cycling.
func gridCandidates(count int, intervalMS float64, strengths ...float64) []beat.Candidate {
	if len(strengths) == 0 {
		strengths = []float64{1}
	}
	out := make([]beat.Candidate, count)
	for i := range out {
		s := strengths[i%len(strengths)]
		out[i] = beat.Candidate{
			Beat: beat.Beat{
				Timestamp:  float64(i) * intervalMS,
				Strength:   s,
				Confidence: 0.6 + 0.4*s/2,
			},
			Source: beat.SourceOnset,
		}
	}
	return out
}

func TestSelectValidation(t *testing.T) {
	if _, err := Select(nil, Options{Count: 0, DurationSec: 10}); !errors.Is(err, sigproc.ErrInvalidArgument) {
		t.Fatalf("expected error for zero count, got %v", err)
	}
	if _, err := Select(nil, Options{Count: 5, DurationSec: 0}); !errors.Is(err, sigproc.ErrInvalidArgument) {
		t.Fatalf("expected error for zero duration, got %v", err)
	}
}

func TestCountContract(t *testing.T) {
	cands := gridCandidates(30, 400, 1, 0.8, 1.2)
	for _, strategy := range []beat.SelectionStrategy{
		beat.StrategyEnergy, beat.StrategyRegular, beat.StrategyMusical, beat.StrategyAdaptive,
	} {
		sel, err := Select(cands, Options{Count: 8, Strategy: strategy, DurationSec: 12})
		if err != nil {
			t.Fatalf("%v: Select failed: %v", strategy, err)
		}
		if len(sel.Beats) > 8 {
			t.Fatalf("%v: selected %d beats, target 8", strategy, len(sel.Beats))
		}
		for i := 1; i < len(sel.Beats); i++ {
			if sel.Beats[i].Timestamp <= sel.Beats[i-1].Timestamp {
				t.Fatalf("%v: timestamps must strictly increase", strategy)
			}
		}
	}
}

func TestEnergyStrategyKeepsStrongest(t *testing.T) {
	cands := gridCandidates(10, 300, 0.1, 2.0)
	sel, err := Select(cands, Options{Count: 5, Strategy: beat.StrategyEnergy, DurationSec: 3})
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if len(sel.Beats) != 5 {
		t.Fatalf("expected 5 beats, got %d", len(sel.Beats))
	}
	for _, b := range sel.Beats {
		if b.Strength != 2.0 {
			t.Fatalf("energy strategy picked a weak beat: %g", b.Strength)
		}
	}
}

func TestRegularStrategyCoversSpan(t *testing.T) {
	cands := gridCandidates(40, 250, 1)
	sel, err := Select(cands, Options{Count: 4, Strategy: beat.StrategyRegular, DurationSec: 10})
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if len(sel.Beats) != 4 {
		t.Fatalf("expected 4 beats, got %d", len(sel.Beats))
	}
	// Targets are 0, 2.5, 5, 7.5 s.
	wants := []float64{0, 2500, 5000, 7500}
	for i, b := range sel.Beats {
		if math.Abs(b.Timestamp-wants[i]) > 250 {
			t.Fatalf("regular selection %d at %g ms, want near %g", i, b.Timestamp, wants[i])
		}
	}
}

func TestMinConfidenceFilters(t *testing.T) {
	cands := gridCandidates(10, 300, 1)
	for i := range cands {
		cands[i].Confidence = 0.2
	}
	sel, err := Select(cands, Options{Count: 5, Strategy: beat.StrategyEnergy, MinConfidence: 0.5, DurationSec: 3})
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if len(sel.Beats) != 0 {
		t.Fatalf("low-confidence candidates must be filtered, got %d", len(sel.Beats))
	}
}

func TestAdaptiveEnergyWeightMatchesEnergyStrategy(t *testing.T) {
	cands := gridCandidates(20, 350, 0.4, 1.8, 0.9, 1.1)
	energySel, err := Select(cands, Options{Count: 6, Strategy: beat.StrategyEnergy, DurationSec: 7})
	if err != nil {
		t.Fatalf("energy Select failed: %v", err)
	}
	adaptiveSel, err := Select(cands, Options{
		Count:       6,
		Strategy:    beat.StrategyAdaptive,
		DurationSec: 7,
		Weights:     Weights{Energy: 1},
	})
	if err != nil {
		t.Fatalf("adaptive Select failed: %v", err)
	}
	if len(energySel.Beats) != len(adaptiveSel.Beats) {
		t.Fatalf("selection sizes differ: %d vs %d", len(energySel.Beats), len(adaptiveSel.Beats))
	}
	for i := range energySel.Beats {
		if energySel.Beats[i].Timestamp != adaptiveSel.Beats[i].Timestamp {
			t.Fatalf("selection %d differs: %g vs %g", i, energySel.Beats[i].Timestamp, adaptiveSel.Beats[i].Timestamp)
		}
	}
}

func TestSynthesisFillsSparseCandidates(t *testing.T) {
	cands := gridCandidates(3, 500, 1)
	tempo := &beat.Tempo{BPM: 120, Confidence: 0.8}
	sel, err := Select(cands, Options{
		Count:       8,
		Strategy:    beat.StrategyAdaptive,
		DurationSec: 6,
		Tempo:       tempo,
		Synthesize:  true,
	})
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if len(sel.Beats) <= 3 {
		t.Fatalf("expected synthesized grid beats, got %d", len(sel.Beats))
	}
	synthetic := 0
	for _, b := range sel.Beats {
		if b.Metadata != nil && b.Metadata.Synthetic {
			synthetic++
		}
	}
	if synthetic == 0 {
		t.Fatalf("expected synthetic flags on grid-filled beats")
	}
}

func TestEnergyStrategyNeverSynthesizes(t *testing.T) {
	cands := gridCandidates(2, 500, 1)
	tempo := &beat.Tempo{BPM: 120, Confidence: 0.8}
	sel, err := Select(cands, Options{
		Count:       8,
		Strategy:    beat.StrategyEnergy,
		DurationSec: 6,
		Tempo:       tempo,
		Synthesize:  true,
	})
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if len(sel.Beats) != 2 {
		t.Fatalf("energy strategy must not synthesize: got %d beats", len(sel.Beats))
	}
}

func TestSpacingFloorAllStrategies(t *testing.T) {
	// Candidates every 20 ms, the way coincident multi-detector output
	// looks after a merge: the selection must still honor the 50 ms floor.
	cands := gridCandidates(100, 20, 0.4, 1.8, 0.9, 1.1, 0.7)
	tempo := &beat.Tempo{BPM: 120, Confidence: 0.8}
	for _, strategy := range []beat.SelectionStrategy{
		beat.StrategyEnergy, beat.StrategyRegular, beat.StrategyMusical, beat.StrategyAdaptive,
	} {
		sel, err := Select(cands, Options{
			Count:       10,
			Strategy:    strategy,
			DurationSec: 2,
			Tempo:       tempo,
		})
		if err != nil {
			t.Fatalf("%v: Select failed: %v", strategy, err)
		}
		if len(sel.Beats) == 0 {
			t.Fatalf("%v: expected a non-empty selection", strategy)
		}
		for i := 1; i < len(sel.Beats); i++ {
			gap := sel.Beats[i].Timestamp - sel.Beats[i-1].Timestamp
			if gap < 50 {
				t.Fatalf("%v: beats %d/%d closer than 50 ms: %g", strategy, i-1, i, gap)
			}
		}
	}
}

func TestQualityMetrics(t *testing.T) {
	beats := []beat.Beat{
		{Timestamp: 0, Strength: 1},
		{Timestamp: 2500, Strength: 1},
		{Timestamp: 5000, Strength: 1},
		{Timestamp: 7500, Strength: 1},
		{Timestamp: 10000, Strength: 1},
	}
	q := quality(beats, 10)
	if q.Coverage < 0.99 {
		t.Fatalf("full-span selection should have coverage ~1, got %g", q.Coverage)
	}
	if q.Diversity < 0.99 {
		t.Fatalf("equal strengths should have diversity ~1, got %g", q.Diversity)
	}
	if q.Spacing < 0.99 {
		t.Fatalf("even spacing should score ~1, got %g", q.Spacing)
	}
	if q.Overall < 0.99 {
		t.Fatalf("overall should be the mean, got %g", q.Overall)
	}
	if math.Abs(q.BeatDensity-0.5) > 1e-9 {
		t.Fatalf("expected density 0.5 beats/s, got %g", q.BeatDensity)
	}
}

// bruteBest enumerates every spacing-feasible subset of exactly size
// members and returns the best achievable total score.
func bruteBest(cands []beat.Candidate, scores []float64, size int, minSpacing float64) float64 {
	n := len(cands)
	best := math.Inf(-1)
	var recurse func(idx int, chosen []int, total float64)
	recurse = func(idx int, chosen []int, total float64) {
		if len(chosen) == size {
			if total > best {
				best = total
			}
			return
		}
		if idx == n {
			return
		}
		// Skip idx.
		recurse(idx+1, chosen, total)
		// Take idx if feasible.
		if len(chosen) == 0 || cands[idx].Timestamp-cands[chosen[len(chosen)-1]].Timestamp >= minSpacing {
			recurse(idx+1, append(chosen, idx), total+scores[idx])
		}
	}
	recurse(0, nil, 0)
	return best
}

func TestDPOptimality(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(2, 14).Draw(t, "n")
		count := rapid.IntRange(1, n).Draw(t, "count")

		cands := make([]beat.Candidate, n)
		last := 0.0
		for i := range cands {
			last += rapid.Float64Range(20, 400).Draw(t, "gap")
			cands[i] = beat.Candidate{Beat: beat.Beat{
				Timestamp:  last,
				Strength:   rapid.Float64Range(0, 2).Draw(t, "strength"),
				Confidence: rapid.Float64Range(0, 1).Draw(t, "confidence"),
			}}
		}
		opts := Options{Count: count, DurationSec: last/1000 + 1, Weights: DefaultWeights}
		scores := adaptiveScores(cands, opts)
		minSpacing := 0.3 * meanIntervalMS(cands)
		if minSpacing < minSpacingFloorMS {
			minSpacing = minSpacingFloorMS
		}

		picked := dpSelect(cands, scores, count, minSpacingFloorMS)
		if len(picked) == 0 {
			t.Fatalf("DP selected nothing from %d candidates", n)
		}
		if !sort.IntsAreSorted(picked) {
			t.Fatalf("DP selection must be time ordered")
		}
		var dpTotal float64
		for i, idx := range picked {
			dpTotal += scores[idx]
			if i > 0 && cands[idx].Timestamp-cands[picked[i-1]].Timestamp < minSpacing {
				t.Fatalf("DP violated spacing constraint")
			}
		}
		if best := bruteBest(cands, scores, len(picked), minSpacing); dpTotal < best-1e-9 {
			t.Fatalf("DP total %g below enumerated best %g", dpTotal, best)
		}
	})
}

package tempo

import (
	"fmt"
	"math"
	"sort"

	"github.com/cwbudde/algo-beat/beat"
	"github.com/cwbudde/algo-beat/sigproc"
)

// Alignment blends an aligned onset time with its expected grid time.
type Alignment struct {
	Onset float64
	Grid  float64
}

// Alignment rules per originating onset method.
var (
	AlignmentEnergy   = Alignment{Onset: 0.7, Grid: 0.3}
	AlignmentSpectral = Alignment{Onset: 0.4, Grid: 0.6}
	AlignmentCombined = Alignment{Onset: 0.5, Grid: 0.5}
)

// TrackBeats aligns an expected beat grid to the detected onsets. Only the
// onset-list form is supported; compute onsets first.
func (t *Tracker) TrackBeats(onsets []beat.Onset, tempo beat.Tempo, duration float64, align Alignment) ([]beat.Beat, error) {
	if duration <= 0 {
		return nil, fmt.Errorf("%w: duration must be positive: %g", sigproc.ErrInvalidArgument, duration)
	}
	interval := tempo.BeatInterval()
	if interval <= 0 {
		return nil, fmt.Errorf("%w: tempo bpm must be positive: %g", sigproc.ErrInvalidArgument, tempo.BPM)
	}

	grid := t.buildGrid(onsets, tempo, duration)
	if len(grid) == 0 {
		return nil, nil
	}

	var beats []beat.Beat
	if t.cfg.UseDP {
		beats = t.trackDP(onsets, grid, tempo, interval, align)
	} else {
		beats = t.trackTemplate(onsets, grid, tempo, interval)
	}

	beats = enforceSpacing(beats, 0.7*interval*1000)
	if t.cfg.ConfidenceThreshold > 0 {
		kept := beats[:0]
		for _, b := range beats {
			if b.Confidence >= t.cfg.ConfidenceThreshold {
				kept = append(kept, b)
			}
		}
		beats = kept
	}
	return beats, nil
}

// buildGrid generates expected beat times, optionally re-estimating the
// local interval from the median inter-onset gap every four beats.
func (t *Tracker) buildGrid(onsets []beat.Onset, tempo beat.Tempo, duration float64) []float64 {
	interval := tempo.BeatInterval()
	var grid []float64
	pos := tempo.Phase
	count := 0
	for pos < duration {
		grid = append(grid, pos)
		count++
		if t.cfg.VariableTempo && count%4 == 0 {
			if local, ok := medianIOI(onsets, pos-4*interval, pos); ok {
				change := math.Abs(local-interval) / interval
				if change < 0.10 {
					interval = 0.9*interval + 0.1*local
				}
			}
		}
		pos += interval
	}
	return grid
}

// medianIOI returns the median inter-onset interval inside [lo, hi].
func medianIOI(onsets []beat.Onset, lo float64, hi float64) (float64, bool) {
	var times []float64
	for _, o := range onsets {
		if o.Time >= lo && o.Time <= hi {
			times = append(times, o.Time)
		}
	}
	if len(times) < 3 {
		return 0, false
	}
	gaps := make([]float64, 0, len(times)-1)
	for i := 1; i < len(times); i++ {
		gaps = append(gaps, times[i]-times[i-1])
	}
	sort.Float64s(gaps)
	return gaps[len(gaps)/2], true
}

// trackDP aligns onsets to grid positions with dynamic programming: each
// onset is either skipped or bound to the next free grid slot.
func (t *Tracker) trackDP(onsets []beat.Onset, grid []float64, tempo beat.Tempo, interval float64, align Alignment) []beat.Beat {
	n := len(onsets)
	m := len(grid)
	if n == 0 || m == 0 {
		return nil
	}
	tolerance := 0.25 * interval

	maxStrength := eps
	for _, o := range onsets {
		if o.Strength > maxStrength {
			maxStrength = o.Strength
		}
	}

	// Local tempo agreement: the onset follows another one beat earlier.
	tempoMatch := make([]bool, n)
	for i := 1; i < n; i++ {
		for k := i - 1; k >= 0; k-- {
			gap := onsets[i].Time - onsets[k].Time
			if gap > interval*1.2 {
				break
			}
			if math.Abs(gap-interval) < 0.10*interval {
				tempoMatch[i] = true
				break
			}
		}
	}

	score := func(i, j int) float64 {
		dt := math.Abs(onsets[i].Time - grid[j])
		if dt > tolerance {
			return math.Inf(-1)
		}
		s := 0.5*(onsets[i].Strength/maxStrength) + 0.3*(1-dt/tolerance) + 0.2*onsets[i].Confidence
		if onsets[i].Confidence < t.cfg.ConfidenceThreshold {
			s *= 0.5
		}
		if tempoMatch[i] {
			s *= 1.1
		}
		return s
	}

	const unset = math.MaxInt32
	dp := make([][]float64, n+1)
	choice := make([][]int, n+1) // onset index aligned at (i,j), or unset
	for i := range dp {
		dp[i] = make([]float64, m+1)
		choice[i] = make([]int, m+1)
		for j := range dp[i] {
			dp[i][j] = math.Inf(-1)
			choice[i][j] = unset
		}
	}
	for i := 0; i <= n; i++ {
		dp[i][0] = 0
	}

	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			// Skip onset i.
			if dp[i-1][j] > dp[i][j] {
				dp[i][j] = dp[i-1][j]
				choice[i][j] = unset
			}
			// Grid position j left empty.
			if dp[i][j-1] > dp[i][j] {
				dp[i][j] = dp[i][j-1]
				choice[i][j] = -1
			}
			// Align onset i to grid position j.
			if s := score(i-1, j-1); !math.IsInf(s, -1) && dp[i-1][j-1]+s > dp[i][j] {
				dp[i][j] = dp[i-1][j-1] + s
				choice[i][j] = i - 1
			}
		}
	}

	// Backtrack.
	type pair struct{ onset, grid int }
	var aligned []pair
	i, j := n, m
	for i > 0 && j > 0 {
		switch c := choice[i][j]; {
		case c == unset:
			i--
		case c == -1:
			j--
		default:
			aligned = append(aligned, pair{c, j - 1})
			i--
			j--
		}
	}

	beats := make([]beat.Beat, 0, len(aligned))
	for k := len(aligned) - 1; k >= 0; k-- {
		p := aligned[k]
		o := onsets[p.onset]
		ts := align.Onset*o.Time + align.Grid*grid[p.grid]
		beats = append(beats, gridBeat(ts, o.Strength, o.Confidence, p.grid, tempo, false))
	}
	return beats
}

// trackTemplate binds each grid position to the best onset within reach,
// interpolating a low-confidence beat when variable tempo is on and no
// onset is found.
func (t *Tracker) trackTemplate(onsets []beat.Onset, grid []float64, tempo beat.Tempo, interval float64) []beat.Beat {
	searchSpan := 0.35 * interval
	var beats []beat.Beat
	for j, g := range grid {
		bestIdx := -1
		bestScore := math.Inf(-1)
		for i, o := range onsets {
			dt := math.Abs(o.Time - g)
			if dt > searchSpan {
				continue
			}
			s := 0.5*(1-dt/searchSpan) + 0.3*o.Strength + 0.2*o.Confidence
			if s > bestScore {
				bestScore = s
				bestIdx = i
			}
		}
		if bestIdx >= 0 {
			o := onsets[bestIdx]
			beats = append(beats, gridBeat(o.Time, o.Strength, o.Confidence, j, tempo, false))
			continue
		}
		if t.cfg.VariableTempo {
			beats = append(beats, gridBeat(g, 0.2, tempo.Confidence*0.3, j, tempo, true))
		}
	}
	return beats
}

// gridBeat builds a Beat at ts seconds for grid index j.
func gridBeat(ts float64, strength float64, confidence float64, j int, tempo beat.Tempo, synthetic bool) beat.Beat {
	b := beat.Beat{
		Timestamp:  ts * 1000,
		Strength:   strength,
		Confidence: clamp01(confidence),
	}
	num := 4
	if tempo.TimeSignature != nil && tempo.TimeSignature.Numerator > 0 {
		num = tempo.TimeSignature.Numerator
	}
	if j%num == 0 {
		b.Classification = beat.ClassDownbeat
	} else {
		b.Classification = beat.ClassBeat
	}
	b.Metadata = &beat.Metadata{
		BeatNumber:    j%num + 1,
		MeasureNumber: j/num + 1,
		Phase:         tempo.Phase,
		Synthetic:     synthetic,
	}
	return b
}

// enforceSpacing drops the weaker of any pair of beats closer than
// minGapMS milliseconds.
func enforceSpacing(beats []beat.Beat, minGapMS float64) []beat.Beat {
	if len(beats) < 2 {
		return beats
	}
	sort.Slice(beats, func(i, j int) bool { return beats[i].Timestamp < beats[j].Timestamp })
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

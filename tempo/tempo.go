// Package tempo estimates tempo from an onset function via autocorrelation,
// infers phase and time signature, and aligns a beat grid to detected
// onsets with dynamic programming or template matching.
package tempo

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-approx"

	"github.com/cwbudde/algo-beat/beat"
	"github.com/cwbudde/algo-beat/sigproc"
)

const (
	rhythmHop    = 256
	rhythmWindow = 1024
	rhythmBand   = 0.3 // lower fraction of the spectrum used for rhythm
	rhythmLPHz   = 20.0

	defaultBPM = 120.0

	minACFPeak = 0.1
)

// Config parameterizes a Tracker.
type Config struct {
	SampleRate int
	MinBPM     float64
	MaxBPM     float64

	// MultiScale runs the autocorrelation additionally on 2x and 4x
	// downsampled onset functions.
	MultiScale bool

	// UseDP selects dynamic-programming beat alignment; when false the
	// template matcher is used.
	UseDP bool

	// VariableTempo lets beat tracking follow local tempo drift and lets
	// the template matcher interpolate missing beats.
	VariableTempo bool

	// ConfidenceThreshold filters tracked beats; zero keeps everything.
	ConfidenceThreshold float64

	// InferTimeSignature toggles meter estimation.
	InferTimeSignature bool
}

// Tracker holds immutable per-instance tempo analysis state.
type Tracker struct {
	cfg Config
	win []float64
}

// NewTracker validates cfg and builds a tracker.
func NewTracker(cfg Config) (*Tracker, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate must be positive: %d", sigproc.ErrInvalidArgument, cfg.SampleRate)
	}
	if cfg.MinBPM <= 0 || cfg.MaxBPM <= 0 || cfg.MinBPM >= cfg.MaxBPM {
		return nil, fmt.Errorf("%w: bpm range invalid: [%g, %g]", sigproc.ErrInvalidArgument, cfg.MinBPM, cfg.MaxBPM)
	}
	win, err := sigproc.Window(sigproc.WindowHann, rhythmWindow)
	if err != nil {
		return nil, err
	}
	return &Tracker{cfg: cfg, win: win}, nil
}

// RhythmFunction computes the tempo-oriented onset function: half-wave
// rectified spectral flux restricted to the lower rhythm band, low-passed
// at 20 Hz. Returns the function and its frame rate.
func (t *Tracker) RhythmFunction(samples []float64) ([]float64, float64, error) {
	if len(samples) < rhythmWindow {
		return nil, 0, fmt.Errorf("%w: input shorter than one rhythm window: %d", sigproc.ErrInvalidArgument, len(samples))
	}
	fr, err := sigproc.NewFramer(samples, rhythmWindow, rhythmHop, false)
	if err != nil {
		return nil, 0, err
	}
	frameRate := float64(t.cfg.SampleRate) / float64(rhythmHop)

	bins := rhythmWindow / 2
	hi := int(rhythmBand * float64(bins))
	n := fr.Count()
	fn := make([]float64, n)
	prev := make([]float64, bins)
	for i := 0; i < n; i++ {
		frame := fr.Frame(i)
		_ = sigproc.ApplyWindow(frame, frame, t.win)
		mags, err := sigproc.Magnitude(frame)
		if err != nil {
			continue
		}
		if i > 0 {
			var sum float64
			for k := 1; k < hi; k++ {
				d := mags[k] - prev[k]
				if d > 0 {
					sum += d
				}
			}
			fn[i] = sum
		}
		copy(prev, mags)
	}

	// One-pole low-pass at 20 Hz smooths the function without delaying
	// peaks beyond a frame.
	a := expApprox(-2 * math.Pi * rhythmLPHz / frameRate)
	var state float64
	for i, v := range fn {
		state = a*state + (1-a)*v
		fn[i] = state
	}
	return fn, frameRate, nil
}

// Track estimates tempo directly from mono samples.
func (t *Tracker) Track(samples []float64) (beat.Tempo, error) {
	fn, frameRate, err := t.RhythmFunction(samples)
	if err != nil {
		return beat.Tempo{}, err
	}
	return t.TrackFunction(fn, frameRate)
}

// TrackFunction estimates tempo from a precomputed onset function.
func (t *Tracker) TrackFunction(fn []float64, frameRate float64) (beat.Tempo, error) {
	if len(fn) == 0 {
		return beat.Tempo{}, fmt.Errorf("%w: empty onset function", sigproc.ErrInvalidArgument)
	}
	if frameRate <= 0 {
		return beat.Tempo{}, fmt.Errorf("%w: frame rate must be positive: %g", sigproc.ErrInvalidArgument, frameRate)
	}

	hyps := t.hypotheses(fn, frameRate)
	hyps = append(hyps, multiples(hyps)...)
	for i := range hyps {
		hyps[i].Phase = bestPhase(fn, frameRate, hyps[i].BPM)
		hyps[i].Confidence = clamp01(refineConfidence(hyps[i]))
	}
	sortByConfidence(hyps)

	if len(hyps) == 0 || hyps[0].Confidence <= 0 {
		return beat.Tempo{BPM: defaultBPM, Confidence: 0}, nil
	}

	best := hyps[0]
	result := beat.Tempo{
		BPM:        best.BPM,
		Confidence: best.Confidence,
		Phase:      best.Phase,
	}
	for _, h := range hyps[1:] {
		result.Alternatives = append(result.Alternatives, h)
		if len(result.Alternatives) == 3 {
			break
		}
	}
	if t.cfg.InferTimeSignature {
		sig := t.inferTimeSignature(fn, frameRate, result)
		result.TimeSignature = &sig
	}
	return result, nil
}

// expApprox evaluates a smoothing coefficient; setup-time constants do not
// need full float64 transcendental precision.
func expApprox(x float64) float64 {
	return float64(approx.FastExp(float32(x)))
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

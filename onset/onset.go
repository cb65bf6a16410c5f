// Package onset implements onset detection over mono audio: four onset
// functions (spectral flux, energy difference, complex domain and a
// reliability-weighted combination), adaptive peak picking and sample-level
// timing refinement.
package onset

import (
	"fmt"

	"github.com/cwbudde/algo-beat/beat"
	"github.com/cwbudde/algo-beat/sigproc"
)

// Method selects the onset function. The set is closed.
type Method int

const (
	MethodCombined Method = iota
	MethodSpectralFlux
	MethodEnergy
	MethodComplex
)

func (m Method) String() string {
	switch m {
	case MethodSpectralFlux:
		return "spectral-flux"
	case MethodEnergy:
		return "energy"
	case MethodComplex:
		return "complex"
	default:
		return "combined"
	}
}

const (
	silenceRMS      = 0.001
	noisyZCRHz      = 3000.0
	defaultInterval = 0.05

	phaseWeight = 0.6
	magWeight   = 0.4
)

// Combined-method fusion weights.
const (
	weightFlux    = 0.35
	weightEnergy  = 0.25
	weightComplex = 0.25
	weightHFC     = 0.15
)

// Config parameterizes a Detector.
type Config struct {
	SampleRate int
	FrameSize  int // power of two
	HopSize    int
	Method     Method

	// MinInterval is the minimum spacing between accepted onsets in
	// seconds. Zero means the 50 ms default.
	MinInterval float64

	// LogCompress applies log(1+|S|) before spectral flux differencing.
	LogCompress bool

	// ThresholdScale scales the adaptive peak threshold. Zero means 1.
	ThresholdScale float64
}

// Detector computes onset functions and picks onsets from them.
type Detector struct {
	cfg       Config
	win       []float64
	frameRate float64
}

// NewDetector validates cfg and builds a detector.
func NewDetector(cfg Config) (*Detector, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate must be positive: %d", sigproc.ErrInvalidArgument, cfg.SampleRate)
	}
	if cfg.FrameSize <= 0 || cfg.HopSize <= 0 || cfg.HopSize > cfg.FrameSize {
		return nil, fmt.Errorf("%w: frame=%d hop=%d", sigproc.ErrInvalidArgument, cfg.FrameSize, cfg.HopSize)
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = defaultInterval
	}
	if cfg.ThresholdScale <= 0 {
		cfg.ThresholdScale = 1
	}
	win, err := sigproc.Window(sigproc.WindowHann, cfg.FrameSize)
	if err != nil {
		return nil, err
	}
	return &Detector{
		cfg:       cfg,
		win:       win,
		frameRate: float64(cfg.SampleRate) / float64(cfg.HopSize),
	}, nil
}

// FrameRate returns onset-function samples per second.
func (d *Detector) FrameRate() float64 {
	return d.frameRate
}

// Function computes the configured onset function, one value per frame.
func (d *Detector) Function(samples []float64) ([]float64, error) {
	fr, err := sigproc.NewFramer(samples, d.cfg.FrameSize, d.cfg.HopSize, false)
	if err != nil {
		return nil, err
	}
	switch d.cfg.Method {
	case MethodSpectralFlux:
		fn, _ := d.spectralFlux(fr)
		return fn, nil
	case MethodEnergy:
		return d.energyDifference(fr), nil
	case MethodComplex:
		return d.complexDomain(fr), nil
	default:
		fn, _, _, err := d.combined(samples, fr)
		return fn, err
	}
}

// Detect runs the full pipeline: onset function, peak picking, timing
// refinement and close-pair pruning. Silent input yields no onsets.
func (d *Detector) Detect(samples []float64) ([]beat.Onset, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: empty input", sigproc.ErrInvalidArgument)
	}
	if len(samples) < d.cfg.FrameSize {
		return nil, fmt.Errorf("%w: input shorter than one frame: %d < %d", sigproc.ErrInvalidArgument, len(samples), d.cfg.FrameSize)
	}

	rms, err := sigproc.RMS(samples)
	if err != nil {
		return nil, err
	}
	if rms < silenceRMS {
		return nil, nil
	}

	fr, err := sigproc.NewFramer(samples, d.cfg.FrameSize, d.cfg.HopSize, false)
	if err != nil {
		return nil, err
	}

	thresholdScale := d.cfg.ThresholdScale
	minInterval := d.cfg.MinInterval

	var fn []float64
	var peakiness float64
	switch d.cfg.Method {
	case MethodSpectralFlux:
		fn, peakiness = d.spectralFlux(fr)
	case MethodEnergy:
		fn = d.energyDifference(fr)
		peakiness = maxMeanRatio(fn)
		if maxValue(fn) < rawFluxFloor {
			peakiness = 0
		}
	case MethodComplex:
		fn = d.complexDomain(fr)
		peakiness = maxMeanRatio(fn)
	default:
		var noisy bool
		fn, noisy, peakiness, err = d.combined(samples, fr)
		if err != nil {
			return nil, err
		}
		if noisy {
			thresholdScale *= 1.5
			minInterval *= 1.2
		}
	}

	onsets := pickPeaks(fn, d.frameRate, thresholdScale, minInterval)
	d.refine(samples, onsets)

	// Scale confidence by transient clarity: stationary input (a held
	// tone) produces threshold-grazing numerical peaks that must not be
	// reported as confident onsets.
	clarity := clarityFactor(peakiness)
	for i := range onsets {
		onsets[i].Confidence *= clarity
	}
	return prunePairs(onsets, defaultInterval), nil
}

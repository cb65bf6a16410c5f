// Package sigproc provides the signal primitives the analysis pipeline is
// built from: FFT magnitude/phase spectra, window generation, biquad filter
// cascades, resampling, framing and scalar spectral features. All functions
// are deterministic and never return NaN or infinity.
package sigproc

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
	"math/cmplx"
	"sync"

	algofft "github.com/cwbudde/algo-fft"
)

// ErrInvalidArgument is wrapped by every argument-validation failure in this
// package.
var ErrInvalidArgument = errors.New("sigproc: invalid argument")

var fftPlanCache sync.Map // map[int]*fftPlan

type fftPlan struct {
	mu   sync.Mutex
	n    int
	fast *algofft.FastPlanReal64
	safe *algofft.PlanRealT[float64, complex128]
	spec []complex128
}

func getFFTPlan(n int) (*fftPlan, error) {
	if v, ok := fftPlanCache.Load(n); ok {
		return v.(*fftPlan), nil
	}

	p := &fftPlan{
		n:    n,
		spec: make([]complex128, n/2+1),
	}

	fast, err := algofft.NewFastPlanReal64(n)
	if err == nil {
		p.fast = fast
	} else if !errors.Is(err, algofft.ErrNotImplemented) {
		// Ignore fast-plan setup errors and rely on the safe plan.
	}

	safe, err := algofft.NewPlanReal64(n)
	if err != nil {
		if p.fast == nil {
			return nil, err
		}
	} else {
		p.safe = safe
	}

	actual, _ := fftPlanCache.LoadOrStore(n, p)
	return actual.(*fftPlan), nil
}

func (p *fftPlan) forward(dst []complex128, src []float64) error {
	if p.fast != nil {
		p.fast.Forward(dst, src)
		return nil
	}
	if p.safe != nil {
		return p.safe.Forward(dst, src)
	}
	return errors.New("sigproc: missing FFT forward plan")
}

func checkFrame(frame []float64) error {
	if len(frame) == 0 {
		return fmt.Errorf("%w: empty frame", ErrInvalidArgument)
	}
	if bits.OnesCount(uint(len(frame))) != 1 {
		return fmt.Errorf("%w: frame length must be a power of two: %d", ErrInvalidArgument, len(frame))
	}
	return nil
}

// Magnitude computes the magnitude spectrum of frame. The frame length must
// be a power of two; the result has length N/2. The frame is assumed to be
// windowed already.
func Magnitude(frame []float64) ([]float64, error) {
	if err := checkFrame(frame); err != nil {
		return nil, err
	}
	n := len(frame)
	plan, err := getFFTPlan(n)
	if err != nil {
		return nil, err
	}

	plan.mu.Lock()
	defer plan.mu.Unlock()

	if err := plan.forward(plan.spec, frame); err != nil {
		return nil, err
	}
	mags := make([]float64, n/2)
	for k := 0; k < n/2; k++ {
		mags[k] = sanitize(cmplx.Abs(plan.spec[k]))
	}
	return mags, nil
}

// Complex computes magnitude and phase spectra of frame, each of length N/2.
// Phases are wrapped to [-pi, pi].
func Complex(frame []float64) (mags []float64, phases []float64, err error) {
	if err := checkFrame(frame); err != nil {
		return nil, nil, err
	}
	n := len(frame)
	plan, err := getFFTPlan(n)
	if err != nil {
		return nil, nil, err
	}

	plan.mu.Lock()
	defer plan.mu.Unlock()

	if err := plan.forward(plan.spec, frame); err != nil {
		return nil, nil, err
	}
	mags = make([]float64, n/2)
	phases = make([]float64, n/2)
	for k := 0; k < n/2; k++ {
		c := plan.spec[k]
		mags[k] = sanitize(cmplx.Abs(c))
		phases[k] = sanitize(math.Atan2(imag(c), real(c)))
	}
	return mags, phases, nil
}

// WrapPhase wraps an angle to [-pi, pi].
func WrapPhase(phi float64) float64 {
	for phi > math.Pi {
		phi -= 2 * math.Pi
	}
	for phi < -math.Pi {
		phi += 2 * math.Pi
	}
	return phi
}

// sanitize clamps NaN and infinities to zero so numeric anomalies in one
// frame never propagate.
func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

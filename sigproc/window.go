package sigproc

import (
	"fmt"

	dspwindow "github.com/cwbudde/algo-dsp/dsp/window"
)

// WindowKind selects an analysis window shape.
type WindowKind int

const (
	WindowHann WindowKind = iota
	WindowHamming
	WindowBlackman
	WindowRectangular
)

func (k WindowKind) String() string {
	switch k {
	case WindowHamming:
		return "hamming"
	case WindowBlackman:
		return "blackman"
	case WindowRectangular:
		return "rectangular"
	default:
		return "hann"
	}
}

// Window returns n coefficients of the requested window.
func Window(kind WindowKind, n int) ([]float64, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: window size must be positive: %d", ErrInvalidArgument, n)
	}
	switch kind {
	case WindowHann:
		return dspwindow.Generate(dspwindow.TypeHann, n, dspwindow.WithPeriodic()), nil
	case WindowHamming:
		return dspwindow.Generate(dspwindow.TypeHamming, n, dspwindow.WithPeriodic()), nil
	case WindowBlackman:
		return dspwindow.Generate(dspwindow.TypeBlackman, n, dspwindow.WithPeriodic()), nil
	case WindowRectangular:
		w := make([]float64, n)
		for i := range w {
			w[i] = 1
		}
		return w, nil
	}
	return nil, fmt.Errorf("%w: unknown window kind %d", ErrInvalidArgument, kind)
}

// ApplyWindow multiplies src by win into dst, which must have the same
// length as src. dst and src may alias.
func ApplyWindow(dst []float64, src []float64, win []float64) error {
	if len(src) != len(win) || len(dst) != len(src) {
		return fmt.Errorf("%w: window/frame length mismatch: %d vs %d", ErrInvalidArgument, len(src), len(win))
	}
	for i := range src {
		dst[i] = src[i] * win[i]
	}
	return nil
}

package sigproc

import (
	"fmt"

	dspresample "github.com/cwbudde/algo-dsp/dsp/resample"
)

// Resample converts x from fromRate to toRate, preserving duration within
// one sample. Returns x unchanged when the rates match.
func Resample(x []float64, fromRate int, toRate int) ([]float64, error) {
	if len(x) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrInvalidArgument)
	}
	if fromRate <= 0 || toRate <= 0 {
		return nil, fmt.Errorf("%w: rates must be positive: %d -> %d", ErrInvalidArgument, fromRate, toRate)
	}
	if fromRate == toRate {
		return x, nil
	}
	r, err := dspresample.NewForRates(
		float64(fromRate),
		float64(toRate),
		dspresample.WithQuality(dspresample.QualityBest),
	)
	if err != nil {
		return nil, err
	}
	out := r.Process(x)
	for i, v := range out {
		out[i] = sanitize(v)
	}
	return out, nil
}

package sigproc

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
	"github.com/cwbudde/algo-dsp/dsp/filter/design"
)

// Chain is a cascade of biquad sections sharing one design.
type Chain struct {
	sections []*biquad.Section
}

type filterShape int

const (
	shapeLowpass filterShape = iota
	shapeHighpass
	shapeBandpass
)

func newChain(shape filterShape, cutoff float64, sampleRate float64, order int) (*Chain, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate must be positive: %g", ErrInvalidArgument, sampleRate)
	}
	if cutoff <= 0 || cutoff >= sampleRate/2 {
		return nil, fmt.Errorf("%w: cutoff %g outside (0, %g)", ErrInvalidArgument, cutoff, sampleRate/2)
	}
	if order <= 0 {
		return nil, fmt.Errorf("%w: order must be positive: %d", ErrInvalidArgument, order)
	}

	nSections := (order + 1) / 2
	q := 1 / math.Sqrt2
	c := &Chain{sections: make([]*biquad.Section, 0, nSections)}
	for i := 0; i < nSections; i++ {
		switch shape {
		case shapeLowpass:
			c.sections = append(c.sections, biquad.NewSection(design.Lowpass(cutoff, q, sampleRate)))
		case shapeHighpass:
			c.sections = append(c.sections, biquad.NewSection(design.Highpass(cutoff, q, sampleRate)))
		case shapeBandpass:
			c.sections = append(c.sections, biquad.NewSection(design.Bandpass(cutoff, q, sampleRate)))
		}
	}
	return c, nil
}

// Lowpass builds a low-pass cascade of the given order.
func Lowpass(cutoff float64, sampleRate float64, order int) (*Chain, error) {
	return newChain(shapeLowpass, cutoff, sampleRate, order)
}

// Highpass builds a high-pass cascade of the given order.
func Highpass(cutoff float64, sampleRate float64, order int) (*Chain, error) {
	return newChain(shapeHighpass, cutoff, sampleRate, order)
}

// Bandpass builds a band-pass cascade centered on cutoff.
func Bandpass(center float64, sampleRate float64, order int) (*Chain, error) {
	return newChain(shapeBandpass, center, sampleRate, order)
}

// ProcessSample runs one sample through the cascade.
func (c *Chain) ProcessSample(x float64) float64 {
	for _, s := range c.sections {
		x = s.ProcessSample(x)
	}
	return sanitize(x)
}

// Process filters x into a new slice, leaving x untouched.
func (c *Chain) Process(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = c.ProcessSample(v)
	}
	return out
}

// Reset clears all section state.
func (c *Chain) Reset() {
	for _, s := range c.sections {
		s.Reset()
	}
}

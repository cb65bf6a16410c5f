package onset

import (
	"math"

	"github.com/cwbudde/algo-beat/sigproc"
)

const eps = 1e-9

// perceptualWeight emphasizes the rhythmically informative mid band. The
// bin position is expressed as a fraction of Nyquist.
func perceptualWeight(bin int, bins int) float64 {
	f := float64(bin) / float64(bins)
	switch {
	case f < 0.1:
		return 0.5
	case f <= 0.5:
		return 1.0
	default:
		return 0.7
	}
}

// spectralFlux accumulates positive per-bin magnitude differences, squared
// and perceptually weighted, over bins 1..0.8*N/2, then locally normalizes.
// The returned peakiness is the max/mean ratio of the raw function before
// normalization; steady tones score low, real transients score high.
func (d *Detector) spectralFlux(fr *sigproc.Framer) ([]float64, float64) {
	n := fr.Count()
	bins := d.cfg.FrameSize / 2
	hi := int(0.8 * float64(bins))
	out := make([]float64, n)
	prev := make([]float64, bins)
	cur := make([]float64, bins)

	for i := 0; i < n; i++ {
		frame := fr.Frame(i)
		_ = sigproc.ApplyWindow(frame, frame, d.win)
		mags, err := sigproc.Magnitude(frame)
		if err != nil {
			out[i] = 0
			continue
		}
		copy(cur, mags)
		if d.cfg.LogCompress {
			for k := range cur {
				cur[k] = math.Log1p(cur[k])
			}
		}
		if i > 0 {
			var sum float64
			for k := 1; k < hi; k++ {
				diff := cur[k] - prev[k]
				if diff > 0 {
					sum += diff * diff * perceptualWeight(k, bins)
				}
			}
			out[i] = math.Sqrt(sum)
		}
		prev, cur = cur, prev
	}

	peakiness := maxMeanRatio(out)
	if maxValue(out) < rawFluxFloor {
		// Residual numerical leakage, not transients.
		peakiness = 0
	}
	localNormalize(out, 7)
	return out, peakiness
}

// rawFluxFloor separates genuine magnitude jumps from FFT leakage noise on
// peak-normalized input.
const rawFluxFloor = 1e-3

func maxValue(f []float64) float64 {
	maxV := 0.0
	for _, v := range f {
		if v > maxV {
			maxV = v
		}
	}
	return maxV
}

// maxMeanRatio measures how much a function's peak stands out of its mean.
func maxMeanRatio(f []float64) float64 {
	if len(f) == 0 {
		return 0
	}
	maxV := 0.0
	var sum float64
	for _, v := range f {
		sum += v
		if v > maxV {
			maxV = v
		}
	}
	mean := sum / float64(len(f))
	return maxV / (mean + eps)
}

// clarityFactor maps raw-function peakiness to a confidence scale in
// [0, 1]. Below ratio 2 the function is essentially flat.
func clarityFactor(peakiness float64) float64 {
	c := (peakiness - 2) / 4
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// energyDifference rates relative frame-energy growth, with a
// high-frequency energy term and an adaptive activity gate.
func (d *Detector) energyDifference(fr *sigproc.Framer) []float64 {
	n := fr.Count()
	bins := d.cfg.FrameSize / 2
	hfStart := int(0.3 * float64(bins))

	energy := make([]float64, n)
	hf := make([]float64, n)
	for i := 0; i < n; i++ {
		frame := fr.Frame(i)
		var e float64
		for _, v := range frame {
			e += v * v
		}
		energy[i] = e

		_ = sigproc.ApplyWindow(frame, frame, d.win)
		mags, err := sigproc.Magnitude(frame)
		if err != nil {
			continue
		}
		var h float64
		for k := hfStart; k < bins; k++ {
			h += mags[k] * mags[k]
		}
		hf[i] = h
	}

	energy = movingAverage(energy, 5)
	hf = movingAverage(hf, 5)

	out := make([]float64, n)
	for i := 1; i < n; i++ {
		de := energy[i] - energy[i-1]
		if de < 0 {
			de = 0
		}
		dh := hf[i] - hf[i-1]
		if dh < 0 {
			dh = 0
		}
		out[i] = de/(energy[i-1]+eps) + 0.5*dh/(hf[i-1]+eps)
	}

	// Activity gate: emphasize onsets inside energetic regions, suppress
	// spurious jumps in quiet ones.
	for i := range out {
		mu, sigma := localMeanStd(energy, i, 10)
		if energy[i] > mu+0.5*sigma {
			out[i] *= 1.5
		} else {
			out[i] *= 0.5
		}
	}
	return out
}

// complexDomain scores each frame by phase-prediction error weighted by
// magnitude plus positive magnitude change.
func (d *Detector) complexDomain(fr *sigproc.Framer) []float64 {
	n := fr.Count()
	bins := d.cfg.FrameSize / 2
	advance := 2 * math.Pi * float64(d.cfg.HopSize) / float64(d.cfg.FrameSize)

	out := make([]float64, n)
	prevMag := make([]float64, bins)
	prevPhase := make([]float64, bins)
	prevPrevPhase := make([]float64, bins)

	for i := 0; i < n; i++ {
		frame := fr.Frame(i)
		_ = sigproc.ApplyWindow(frame, frame, d.win)
		mags, phases, err := sigproc.Complex(frame)
		if err != nil {
			out[i] = 0
			continue
		}
		if i > 0 {
			var sum float64
			for k := 1; k < bins; k++ {
				var expected float64
				if i >= 2 {
					// Second-order: extrapolate the last phase delta.
					expected = prevPhase[k] + sigproc.WrapPhase(prevPhase[k]-prevPrevPhase[k])
				} else {
					expected = prevPhase[k] + float64(k)*advance
				}
				phaseErr := math.Abs(sigproc.WrapPhase(phases[k] - expected))
				dm := mags[k] - prevMag[k]
				if dm < 0 {
					dm = 0
				}
				sum += perceptualWeight(k, bins) * (mags[k]*phaseErr*phaseWeight + dm*magWeight)
			}
			out[i] = sum
		}
		copy(prevPrevPhase, prevPhase)
		copy(prevPhase, phases)
		copy(prevMag, mags)
	}
	return out
}

// combined fuses the three detection functions plus a cross-function
// variance signal, weighting each by static weight, overall reliability and
// per-sample dynamic confidence. The noisy flag is set for high-ZCR input;
// peakiness carries the raw-flux transient clarity.
func (d *Detector) combined(samples []float64, fr *sigproc.Framer) (fn []float64, noisy bool, peakiness float64, err error) {
	zcr, zerr := sigproc.ZeroCrossingRate(samples, d.cfg.SampleRate)
	if zerr == nil && zcr > noisyZCRHz {
		noisy = true
	}

	rawFlux, fluxPeakiness := d.spectralFlux(fr)
	peakiness = fluxPeakiness
	flux := normalize01(rawFlux)
	energy := normalize01(d.energyDifference(fr))
	complexFn := normalize01(d.complexDomain(fr))

	n := len(flux)
	hfc := make([]float64, n)
	for i := 0; i < n; i++ {
		mean := (flux[i] + energy[i] + complexFn[i]) / 3
		v := (flux[i]-mean)*(flux[i]-mean) + (energy[i]-mean)*(energy[i]-mean) + (complexFn[i]-mean)*(complexFn[i]-mean)
		hfc[i] = v / 3
	}
	hfc = normalize01(hfc)

	funcs := [][]float64{flux, energy, complexFn, hfc}
	weights := []float64{weightFlux, weightEnergy, weightComplex, weightHFC}
	reliability := make([]float64, len(funcs))
	for j, f := range funcs {
		reliability[j] = snr(f)
	}

	out := make([]float64, n)
	for i := 0; i < n; i++ {
		var num, den float64
		for j, f := range funcs {
			c := localZScore(f, i, 10)
			w := weights[j] * reliability[j] * c
			num += f[i] * w
			den += w
		}
		if den > eps {
			out[i] = num / den
		}
	}
	return out, noisy, peakiness, nil
}

// snr is the mean/std ratio of f clipped to [0.1, 1].
func snr(f []float64) float64 {
	mu, sigma := meanStd(f)
	if sigma < eps {
		return 0.1
	}
	r := mu / sigma
	if r < 0.1 {
		return 0.1
	}
	if r > 1 {
		return 1
	}
	return r
}

// localZScore maps f[i]'s local z-score to [0, 1].
func localZScore(f []float64, i int, radius int) float64 {
	mu, sigma := localMeanStd(f, i, radius)
	if sigma < eps {
		return 0
	}
	z := (f[i] - mu) / sigma
	if z < 0 {
		return 0
	}
	if z > 1 {
		return 1
	}
	return z
}

func meanStd(f []float64) (float64, float64) {
	if len(f) == 0 {
		return 0, 0
	}
	var mu float64
	for _, v := range f {
		mu += v
	}
	mu /= float64(len(f))
	var variance float64
	for _, v := range f {
		d := v - mu
		variance += d * d
	}
	return mu, math.Sqrt(variance / float64(len(f)))
}

func localMeanStd(f []float64, i int, radius int) (float64, float64) {
	lo := i - radius
	if lo < 0 {
		lo = 0
	}
	hi := i + radius + 1
	if hi > len(f) {
		hi = len(f)
	}
	if lo >= hi {
		return 0, 0
	}
	return meanStd(f[lo:hi])
}

func movingAverage(f []float64, width int) []float64 {
	if width <= 1 || len(f) == 0 {
		return f
	}
	half := width / 2
	out := make([]float64, len(f))
	for i := range f {
		lo := i - half
		if lo < 0 {
			lo = 0
		}
		hi := i + half + 1
		if hi > len(f) {
			hi = len(f)
		}
		var sum float64
		for j := lo; j < hi; j++ {
			sum += f[j]
		}
		out[i] = sum / float64(hi-lo)
	}
	return out
}

// localNormalize divides each sample by the max over a centered window.
func localNormalize(f []float64, width int) {
	if len(f) == 0 {
		return
	}
	half := width / 2
	orig := append([]float64(nil), f...)
	for i := range f {
		lo := i - half
		if lo < 0 {
			lo = 0
		}
		hi := i + half + 1
		if hi > len(orig) {
			hi = len(orig)
		}
		localMax := eps
		for j := lo; j < hi; j++ {
			if orig[j] > localMax {
				localMax = orig[j]
			}
		}
		f[i] = orig[i] / localMax
	}
}

func normalize01(f []float64) []float64 {
	maxV := 0.0
	for _, v := range f {
		if v > maxV {
			maxV = v
		}
	}
	if maxV < eps {
		return f
	}
	out := make([]float64, len(f))
	for i, v := range f {
		out[i] = v / maxV
	}
	return out
}

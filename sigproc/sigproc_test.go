package sigproc

import (
	"errors"
	"math"
	"testing"

	"pgregory.net/rapid"
)

func sineWave(freq float64, sampleRate int, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Sin(2 * math.Pi * freq * float64(i) / float64(sampleRate))
	}
	return out
}

func TestMagnitudePeaksAtSineBin(t *testing.T) {
	const (
		sampleRate = 44100
		n          = 2048
	)
	// Pick a frequency centered exactly on a bin so leakage is minimal.
	bin := 64
	freq := float64(bin) * float64(sampleRate) / float64(n)
	frame := sineWave(freq, sampleRate, n)

	win, err := Window(WindowHann, n)
	if err != nil {
		t.Fatalf("Window failed: %v", err)
	}
	if err := ApplyWindow(frame, frame, win); err != nil {
		t.Fatalf("ApplyWindow failed: %v", err)
	}

	mags, err := Magnitude(frame)
	if err != nil {
		t.Fatalf("Magnitude failed: %v", err)
	}
	if len(mags) != n/2 {
		t.Fatalf("expected %d bins, got %d", n/2, len(mags))
	}

	peak := 0
	for k, m := range mags {
		if m > mags[peak] {
			peak = k
		}
		_ = m
	}
	if peak < bin-1 || peak > bin+1 {
		t.Fatalf("expected peak near bin %d, got %d", bin, peak)
	}
}

func TestMagnitudeRejectsBadInput(t *testing.T) {
	if _, err := Magnitude(nil); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for empty frame, got %v", err)
	}
	if _, err := Magnitude(make([]float64, 1000)); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for non-power-of-two frame, got %v", err)
	}
}

func TestComplexPhasesWrapped(t *testing.T) {
	frame := sineWave(440, 44100, 1024)
	mags, phases, err := Complex(frame)
	if err != nil {
		t.Fatalf("Complex failed: %v", err)
	}
	if len(mags) != 512 || len(phases) != 512 {
		t.Fatalf("unexpected spectrum lengths: %d, %d", len(mags), len(phases))
	}
	for k, p := range phases {
		if p < -math.Pi || p > math.Pi {
			t.Fatalf("phase %d out of range: %g", k, p)
		}
	}
	for k, m := range mags {
		if m < 0 || math.IsNaN(m) || math.IsInf(m, 0) {
			t.Fatalf("bad magnitude at bin %d: %g", k, m)
		}
	}
}

func TestWindowKinds(t *testing.T) {
	for _, kind := range []WindowKind{WindowHann, WindowHamming, WindowBlackman, WindowRectangular} {
		w, err := Window(kind, 256)
		if err != nil {
			t.Fatalf("Window(%v) failed: %v", kind, err)
		}
		if len(w) != 256 {
			t.Fatalf("Window(%v) length = %d", kind, len(w))
		}
	}
	if _, err := Window(WindowHann, 0); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected error for zero-size window, got %v", err)
	}

	w, _ := Window(WindowRectangular, 16)
	for _, v := range w {
		if v != 1 {
			t.Fatalf("rectangular window must be all ones, got %g", v)
		}
	}
}

func TestFilterCutoffValidation(t *testing.T) {
	if _, err := Lowpass(0, 44100, 2); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected error for zero cutoff, got %v", err)
	}
	if _, err := Highpass(30000, 44100, 2); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected error for cutoff above Nyquist, got %v", err)
	}
	if _, err := Bandpass(1000, 44100, 0); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected error for zero order, got %v", err)
	}
}

func TestLowpassAttenuatesHighFrequency(t *testing.T) {
	const sampleRate = 44100
	lp, err := Lowpass(500, sampleRate, 4)
	if err != nil {
		t.Fatalf("Lowpass failed: %v", err)
	}
	high := sineWave(10000, sampleRate, 8192)
	out := lp.Process(high)

	// Compare steady-state RMS, skipping the transient.
	inRMS, _ := RMS(high[4096:])
	outRMS, _ := RMS(out[4096:])
	if outRMS > inRMS*0.1 {
		t.Fatalf("10 kHz tone not attenuated by 500 Hz lowpass: in=%g out=%g", inRMS, outRMS)
	}
}

func TestResamplePreservesDuration(t *testing.T) {
	in := sineWave(440, 44100, 44100)
	out, err := Resample(in, 44100, 22050)
	if err != nil {
		t.Fatalf("Resample failed: %v", err)
	}
	if d := len(out) - 22050; d < -32 || d > 32 {
		t.Fatalf("resampled length %d not close to 22050", len(out))
	}
}

func TestScalarFeatures(t *testing.T) {
	x := []float64{1, -1, 1, -1, 1, -1, 1, -1}
	r, err := RMS(x)
	if err != nil || math.Abs(r-1) > 1e-12 {
		t.Fatalf("RMS = %g, %v", r, err)
	}
	z, err := ZeroCrossingRate(x, 8)
	if err != nil || z < 6 {
		t.Fatalf("ZCR = %g, %v", z, err)
	}

	if _, err := RMS(nil); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected error for empty RMS input")
	}
	if _, err := SpectralCentroid(nil, 44100); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected error for empty centroid input")
	}
}

func TestSpectralRolloffOrdering(t *testing.T) {
	// Energy concentrated in the lowest bins: rolloff must sit low.
	mags := make([]float64, 512)
	for k := 0; k < 16; k++ {
		mags[k] = 1
	}
	low, err := SpectralRolloff(mags, 44100, 0)
	if err != nil {
		t.Fatalf("SpectralRolloff failed: %v", err)
	}
	// Flat spectrum: rolloff near the threshold fraction of Nyquist.
	for k := range mags {
		mags[k] = 1
	}
	flat, err := SpectralRolloff(mags, 44100, 0)
	if err != nil {
		t.Fatalf("SpectralRolloff failed: %v", err)
	}
	if low >= flat {
		t.Fatalf("expected low-concentrated rolloff (%g) below flat rolloff (%g)", low, flat)
	}
}

func TestFramerValidation(t *testing.T) {
	samples := make([]float64, 100)
	if _, err := NewFramer(samples, 0, 10, false); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected error for zero frame size")
	}
	if _, err := NewFramer(samples, 10, 0, false); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected error for zero hop")
	}
	if _, err := NewFramer(samples, 200, 10, false); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected error for frame exceeding input")
	}
}

func TestFramerPadLast(t *testing.T) {
	samples := make([]float64, 100)
	for i := range samples {
		samples[i] = 1
	}

	fr, err := NewFramer(samples, 64, 32, false)
	if err != nil {
		t.Fatalf("NewFramer failed: %v", err)
	}
	if fr.Count() != 2 {
		t.Fatalf("expected 2 full frames, got %d", fr.Count())
	}

	fr, err = NewFramer(samples, 64, 32, true)
	if err != nil {
		t.Fatalf("NewFramer failed: %v", err)
	}
	if fr.Count() != 3 {
		t.Fatalf("expected 3 frames with padding, got %d", fr.Count())
	}
	last := fr.Frame(2)
	if last[0] != 1 {
		t.Fatalf("padded frame should start with data")
	}
	if last[63] != 0 {
		t.Fatalf("padded frame should end with zeros, got %g", last[63])
	}
}

func TestFramerProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		length := rapid.IntRange(16, 4096).Draw(t, "length")
		frame := rapid.IntRange(1, length).Draw(t, "frame")
		hop := rapid.IntRange(1, frame).Draw(t, "hop")

		samples := make([]float64, length)
		for i := range samples {
			samples[i] = float64(i)
		}
		fr, err := NewFramer(samples, frame, hop, false)
		if err != nil {
			t.Fatalf("NewFramer failed: %v", err)
		}
		want := (length-frame)/hop + 1
		if fr.Count() != want {
			t.Fatalf("Count = %d, want %d", fr.Count(), want)
		}
		// Every frame starts at i*hop and is a faithful copy.
		for i := 0; i < fr.Count(); i++ {
			f := fr.Frame(i)
			if f[0] != float64(i*hop) {
				t.Fatalf("frame %d starts with %g, want %d", i, f[0], i*hop)
			}
			if f[len(f)-1] != float64(i*hop+frame-1) {
				t.Fatalf("frame %d ends with %g, want %d", i, f[len(f)-1], i*hop+frame-1)
			}
		}
	})
}

package onset

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/cwbudde/algo-beat/sigproc"
)

const testRate = 44100

// clickTrack synthesizes decaying tone bursts at the given times over a
// quiet noise floor.
func clickTrack(times []float64, durationSec float64, noise float64, seed int64) []float64 {
	n := int(durationSec * testRate)
	out := make([]float64, n)
	rng := rand.New(rand.NewSource(seed))
	if noise > 0 {
		for i := range out {
			out[i] = (rng.Float64()*2 - 1) * noise
		}
	}
	for _, t := range times {
		start := int(t * testRate)
		length := testRate / 100
		for i := 0; i < length && start+i < n; i++ {
			env := 1 - float64(i)/float64(length)
			out[start+i] += 0.9 * env * math.Sin(2*math.Pi*1000*float64(i)/testRate)
		}
	}
	return out
}

func newTestDetector(t *testing.T, method Method) *Detector {
	t.Helper()
	d, err := NewDetector(Config{
		SampleRate:  testRate,
		FrameSize:   2048,
		HopSize:     512,
		Method:      method,
		LogCompress: true,
	})
	if err != nil {
		t.Fatalf("NewDetector failed: %v", err)
	}
	return d
}

func TestDetectorValidation(t *testing.T) {
	if _, err := NewDetector(Config{SampleRate: 0, FrameSize: 1024, HopSize: 256}); !errors.Is(err, sigproc.ErrInvalidArgument) {
		t.Fatalf("expected error for zero sample rate, got %v", err)
	}
	if _, err := NewDetector(Config{SampleRate: testRate, FrameSize: 512, HopSize: 1024}); !errors.Is(err, sigproc.ErrInvalidArgument) {
		t.Fatalf("expected error for hop > frame, got %v", err)
	}

	d := newTestDetector(t, MethodCombined)
	if _, err := d.Detect(nil); !errors.Is(err, sigproc.ErrInvalidArgument) {
		t.Fatalf("expected error for empty input, got %v", err)
	}
	if _, err := d.Detect(make([]float64, 100)); !errors.Is(err, sigproc.ErrInvalidArgument) {
		t.Fatalf("expected error for sub-frame input, got %v", err)
	}
}

func TestSilenceYieldsNoOnsets(t *testing.T) {
	d := newTestDetector(t, MethodCombined)
	silent := make([]float64, 2*testRate)
	onsets, err := d.Detect(silent)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(onsets) != 0 {
		t.Fatalf("expected no onsets on silence, got %d", len(onsets))
	}
}

func TestDetectClickTrain(t *testing.T) {
	times := []float64{0.5, 1.0, 1.5, 2.0, 2.5, 3.0, 3.5}
	samples := clickTrack(times, 4.0, 0.02, 7)

	for _, method := range []Method{MethodCombined, MethodSpectralFlux, MethodEnergy, MethodComplex} {
		d := newTestDetector(t, method)
		onsets, err := d.Detect(samples)
		if err != nil {
			t.Fatalf("%v: Detect failed: %v", method, err)
		}
		if len(onsets) < len(times)-1 {
			t.Fatalf("%v: expected at least %d onsets, got %d", method, len(times)-1, len(onsets))
		}

		// Every ground-truth click should have a detection within 50 ms.
		matched := 0
		for _, want := range times {
			for _, o := range onsets {
				if math.Abs(o.Time-want) <= 0.05 {
					matched++
					break
				}
			}
		}
		if matched < len(times)-1 {
			t.Fatalf("%v: only %d/%d clicks matched within 50 ms", method, matched, len(times))
		}
	}
}

func TestOnsetInvariants(t *testing.T) {
	times := []float64{0.25, 0.75, 1.3, 1.9, 2.4, 3.1}
	samples := clickTrack(times, 4.0, 0.02, 11)

	d := newTestDetector(t, MethodCombined)
	onsets, err := d.Detect(samples)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	for i, o := range onsets {
		if o.Time < 0 {
			t.Fatalf("negative time at %d: %g", i, o.Time)
		}
		if o.Strength < 0 || math.IsNaN(o.Strength) || math.IsInf(o.Strength, 0) {
			t.Fatalf("bad strength at %d: %g", i, o.Strength)
		}
		if o.Confidence < 0 || o.Confidence > 1 {
			t.Fatalf("confidence outside [0,1] at %d: %g", i, o.Confidence)
		}
		if i > 0 {
			gap := o.Time - onsets[i-1].Time
			if gap < 0.05 {
				t.Fatalf("onsets %d and %d closer than 50 ms: %g", i-1, i, gap)
			}
		}
	}
}

func TestFunctionLengthMatchesFrameCount(t *testing.T) {
	samples := clickTrack([]float64{0.5, 1.0}, 2.0, 0, 1)
	d := newTestDetector(t, MethodSpectralFlux)

	fn, err := d.Function(samples)
	if err != nil {
		t.Fatalf("Function failed: %v", err)
	}
	fr, err := sigproc.NewFramer(samples, 2048, 512, false)
	if err != nil {
		t.Fatalf("NewFramer failed: %v", err)
	}
	if len(fn) != fr.Count() {
		t.Fatalf("function length %d, frame count %d", len(fn), fr.Count())
	}
	for i, v := range fn {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("bad onset-function value at %d: %g", i, v)
		}
	}
}

func TestDeterministicDetection(t *testing.T) {
	samples := clickTrack([]float64{0.5, 1.1, 1.7}, 2.5, 0.02, 3)
	d := newTestDetector(t, MethodCombined)

	a, err := d.Detect(samples)
	if err != nil {
		t.Fatalf("first Detect failed: %v", err)
	}
	b, err := d.Detect(samples)
	if err != nil {
		t.Fatalf("second Detect failed: %v", err)
	}
	if len(a) != len(b) {
		t.Fatalf("detection count differs: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("detection %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestMovingAverageAndNormalize(t *testing.T) {
	f := []float64{0, 0, 0, 0, 10, 0, 0, 0, 0}
	avg := movingAverage(f, 5)
	if avg[4] <= avg[0] {
		t.Fatalf("moving average should keep the peak centered: %v", avg)
	}

	n := normalize01([]float64{0, 2, 4})
	if n[2] != 1 || n[1] != 0.5 {
		t.Fatalf("normalize01 wrong: %v", n)
	}
}

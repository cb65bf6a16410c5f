package main

import (
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"

	"github.com/cwbudde/algo-beat/internal/wavio"
)

func main() {
	bpm := flag.Float64("bpm", 120, "Tempo of the synthesized pattern")
	duration := flag.Float64("duration", 10.0, "Duration in seconds")
	sampleRate := flag.Int("sample-rate", 44100, "Sample rate in Hz")
	pattern := flag.String("pattern", "click", "Pattern: click, impulses, four-on-floor")
	noise := flag.Float64("noise", 0.0, "Background noise amplitude (e.g. 0.02)")
	seed := flag.Int64("seed", 1, "Noise RNG seed")
	output := flag.String("output", "output.wav", "Output WAV file path")
	flag.Parse()

	if *bpm <= 0 || *duration <= 0 || *sampleRate <= 0 {
		fmt.Fprintln(os.Stderr, "bpm, duration and sample-rate must be positive")
		os.Exit(2)
	}

	total := int(*duration * float64(*sampleRate))
	samples := make([]float32, total)

	if *noise > 0 {
		rng := rand.New(rand.NewSource(*seed))
		for i := range samples {
			samples[i] = float32((rng.Float64()*2 - 1) * *noise)
		}
	}

	interval := 60.0 / *bpm
	beats := 0
	switch *pattern {
	case "click":
		for t := 0.0; t < *duration; t += interval {
			addClick(samples, *sampleRate, t, 0.9, 1000)
			beats++
		}
	case "impulses":
		for t := 0.5; t < *duration; t += interval {
			addImpulse(samples, *sampleRate, t, 0.9)
			beats++
		}
	case "four-on-floor":
		beatIdx := 0
		for t := 0.0; t < *duration; t += interval {
			addClick(samples, *sampleRate, t, 0.9, 150) // kick
			if beatIdx%4 == 1 || beatIdx%4 == 3 {
				addClick(samples, *sampleRate, t, 0.6, 2500) // snare
			}
			beatIdx++
		}
		beats = beatIdx
	default:
		fmt.Fprintf(os.Stderr, "unknown pattern %q\n", *pattern)
		os.Exit(2)
	}

	if err := wavio.WriteMonoWAV(*output, samples, *sampleRate); err != nil {
		fmt.Fprintf(os.Stderr, "writing %s: %v\n", *output, err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %s: %s at %.1f bpm, %.1f s, %d beats\n", *output, *pattern, *bpm, *duration, beats)
}

// addClick mixes a short decaying tone burst at time t seconds.
func addClick(samples []float32, sampleRate int, t float64, amplitude float64, freq float64) {
	start := int(t * float64(sampleRate))
	length := sampleRate / 100 // 10 ms
	for i := 0; i < length && start+i < len(samples); i++ {
		env := 1 - float64(i)/float64(length)
		phase := 2 * math.Pi * freq * float64(i) / float64(sampleRate)
		samples[start+i] += float32(amplitude * env * math.Sin(phase))
	}
}

// addImpulse mixes a single-sample spike with a short tail at t seconds.
func addImpulse(samples []float32, sampleRate int, t float64, amplitude float64) {
	start := int(t * float64(sampleRate))
	if start >= len(samples) {
		return
	}
	samples[start] += float32(amplitude)
	for i := 1; i < 32 && start+i < len(samples); i++ {
		samples[start+i] += float32(amplitude * math.Exp(-float64(i)/8))
	}
}

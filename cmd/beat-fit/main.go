package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/cwbudde/algo-beat/analysis"
	"github.com/cwbudde/algo-beat/beat"
	"github.com/cwbudde/algo-beat/internal/wavio"
	"github.com/cwbudde/algo-beat/parser"
	"github.com/cwbudde/algo-beat/preset"
)

func main() {
	referencePath := flag.String("reference", "", "Reference WAV file")
	annotationsPath := flag.String("annotations", "", "JSON array of reference beat timestamps in ms")
	presetPath := flag.String("preset", "", "Base preset JSON (optional)")
	outputPreset := flag.String("output-preset", "fitted.json", "Where to write the fitted preset")
	maxEvals := flag.Int("max-evals", 200, "Evaluation budget")
	pop := flag.Int("pop", 10, "Mayfly population size")
	variant := flag.String("variant", "ma", "Mayfly variant: ma, desma, olce, eobbma, gsasma, mpma, aoblmoa")
	seed := flag.Int64("seed", 1, "RNG seed")
	targetCount := flag.Int("count", 0, "Target beat count (default: annotation count)")
	tolerance := flag.Float64("tolerance-ms", analysis.DefaultToleranceMS, "Hit window in milliseconds")
	reportEvery := flag.Int("report-every", 20, "Progress print interval in evaluations")
	flag.Parse()

	if *referencePath == "" || *annotationsPath == "" {
		fmt.Fprintln(os.Stderr, "both -reference and -annotations are required")
		flag.Usage()
		os.Exit(2)
	}

	samples64, rate, err := wavio.ReadMonoWAV(*referencePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading reference %q: %v\n", *referencePath, err)
		os.Exit(1)
	}
	samples := make([]float32, len(samples64))
	for i, v := range samples64 {
		samples[i] = float32(v)
	}

	annotations, err := loadAnnotations(*annotationsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading annotations %q: %v\n", *annotationsPath, err)
		os.Exit(1)
	}
	if len(annotations) == 0 {
		fmt.Fprintln(os.Stderr, "annotation list is empty")
		os.Exit(1)
	}

	baseCfg := beat.NewDefaultConfig()
	var baseOpts beat.ParseOptions
	if *presetPath != "" {
		baseCfg, baseOpts, err = preset.LoadJSON(*presetPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading preset %q: %v\n", *presetPath, err)
			os.Exit(1)
		}
	}
	baseOpts.TargetCount = *targetCount
	if baseOpts.TargetCount <= 0 {
		baseOpts.TargetCount = len(annotations)
	}

	fmt.Printf("Fitting %d knobs against %d annotated beats (%d evals, variant %s)...\n",
		len(knobDefs), len(annotations), *maxEvals, *variant)

	evaluate := func(c candidate) (analysis.Metrics, error) {
		cfg, opts, err := c.apply(baseCfg, baseOpts)
		if err != nil {
			return analysis.Metrics{}, err
		}
		p, err := parser.New(cfg)
		if err != nil {
			return analysis.Metrics{}, err
		}
		result, err := p.ParseBuffer(context.Background(), samples, rate, opts)
		if err != nil {
			return analysis.Metrics{}, err
		}
		return analysis.Compare(annotations, result.Beats, *tolerance), nil
	}

	result, err := runOptimization(&optimizationConfig{
		evaluate:    evaluate,
		seed:        *seed,
		maxEvals:    *maxEvals,
		pop:         *pop,
		variant:     *variant,
		reportEvery: *reportEvery,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Optimization failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Done: %d evals in %.1fs, best score %.4f (similarity %.2f%%)\n",
		result.evals, result.elapsed, result.bestMetrics.Score, result.bestMetrics.Similarity*100)
	for name, v := range result.best.knobMap() {
		fmt.Printf("  %s = %.4f\n", name, v)
	}

	if err := writeFittedPreset(*outputPreset, result.best, baseOpts); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing preset %q: %v\n", *outputPreset, err)
		os.Exit(1)
	}
	fmt.Printf("Wrote fitted preset to %s\n", *outputPreset)
}

// loadAnnotations accepts either a bare JSON array of timestamps or an
// object with a "beats_ms" field.
func loadAnnotations(path string) ([]float64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var direct []float64
	if err := json.Unmarshal(b, &direct); err == nil {
		return direct, nil
	}
	var wrapped struct {
		BeatsMS []float64 `json:"beats_ms"`
	}
	if err := json.Unmarshal(b, &wrapped); err != nil {
		return nil, err
	}
	return wrapped.BeatsMS, nil
}

func writeFittedPreset(path string, c candidate, opts beat.ParseOptions) error {
	knobs := c.knobMap()
	onsetW := knobs["onset_weight"]
	tempoW := knobs["tempo_weight"]
	spectralW := knobs["spectral_weight"]
	confThreshold := knobs["confidence_threshold"]
	minConf := knobs["min_confidence"]
	strategy := opts.Strategy.String()

	f := preset.File{
		OnsetWeight:         &onsetW,
		TempoWeight:         &tempoW,
		SpectralWeight:      &spectralW,
		ConfidenceThreshold: &confThreshold,
		Options: &preset.OptionsFile{
			MinConfidence: &minConf,
			Strategy:      &strategy,
		},
	}
	b, err := json.MarshalIndent(&f, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0o644)
}

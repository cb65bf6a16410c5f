package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	charmlog "github.com/charmbracelet/log"

	"github.com/cwbudde/algo-beat/beat"
	"github.com/cwbudde/algo-beat/parser"
	"github.com/cwbudde/algo-beat/preset"
)

func main() {
	input := flag.String("input", "", "Input audio file (.wav or .mp3)")
	presetPath := flag.String("preset", "", "Preset JSON file path (optional)")
	count := flag.Int("count", 0, "Target beat count (overrides preset)")
	strategy := flag.String("strategy", "", "Selection strategy: energy, regular, musical, adaptive")
	minConfidence := flag.Float64("min-confidence", 0, "Minimum candidate confidence (overrides preset)")
	format := flag.String("format", "json", "Output format: json or csv")
	output := flag.String("output", "", "Output file path (default stdout)")
	verbose := flag.Bool("verbose", false, "Log pipeline stages")
	flag.Parse()

	logger := charmlog.NewWithOptions(os.Stderr, charmlog.Options{Prefix: "beat-parse"})
	if *input == "" {
		logger.Error("missing -input")
		flag.Usage()
		os.Exit(2)
	}

	cfg := beat.NewDefaultConfig()
	var opts beat.ParseOptions
	if *presetPath != "" {
		var err error
		cfg, opts, err = preset.LoadJSON(*presetPath)
		if err != nil {
			logger.Error("loading preset", "path", *presetPath, "err", err)
			os.Exit(1)
		}
	}
	if *count > 0 {
		opts.TargetCount = *count
	}
	if *strategy != "" {
		s, err := beat.ParseStrategy(*strategy)
		if err != nil {
			logger.Error("parsing strategy", "err", err)
			os.Exit(2)
		}
		opts.Strategy = s
	}
	if *minConfidence > 0 {
		opts.MinConfidence = *minConfidence
	}

	var parserOpts []parser.Option
	if *verbose {
		parserOpts = append(parserOpts, parser.WithStageFunc(func(stage string, percent float64) {
			if percent == 100 {
				logger.Info("stage done", "stage", stage)
			}
		}))
	}
	p, err := parser.New(cfg, parserOpts...)
	if err != nil {
		logger.Error("parser setup", "err", err)
		os.Exit(1)
	}
	defer p.Close()

	result, err := p.ParseFile(context.Background(), *input, opts)
	if err != nil {
		logger.Error("parse failed", "input", *input, "err", err)
		os.Exit(1)
	}
	logger.Info("parsed",
		"beats", len(result.Beats),
		"duration_s", fmt.Sprintf("%.2f", result.Metadata.AudioLengthSec),
		"processing_ms", fmt.Sprintf("%.1f", result.Metadata.ProcessingMS),
	)
	if result.Tempo != nil {
		logger.Info("tempo", "bpm", fmt.Sprintf("%.1f", result.Tempo.BPM), "confidence", fmt.Sprintf("%.2f", result.Tempo.Confidence))
	}

	var w io.Writer = os.Stdout
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			logger.Error("creating output", "err", err)
			os.Exit(1)
		}
		defer f.Close()
		w = f
	}

	switch *format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			logger.Error("encoding result", "err", err)
			os.Exit(1)
		}
	case "csv":
		if err := writeCSV(w, result); err != nil {
			logger.Error("encoding result", "err", err)
			os.Exit(1)
		}
	default:
		logger.Error("unknown format", "format", *format)
		os.Exit(2)
	}
}

func writeCSV(w io.Writer, result *beat.ParseResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"timestamp_ms", "strength", "confidence", "type"}); err != nil {
		return err
	}
	for _, b := range result.Beats {
		rec := []string{
			fmt.Sprintf("%.3f", b.Timestamp),
			fmt.Sprintf("%.6f", b.Strength),
			fmt.Sprintf("%.6f", b.Confidence),
			string(b.Classification),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

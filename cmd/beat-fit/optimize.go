package main

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/cwbudde/mayfly"

	"github.com/cwbudde/algo-beat/analysis"
)

type optimizationConfig struct {
	evaluate    func(candidate) (analysis.Metrics, error)
	seed        int64
	maxEvals    int
	pop         int
	variant     string
	reportEvery int
}

type optimizationResult struct {
	best        candidate
	bestMetrics analysis.Metrics
	evals       int
	elapsed     float64
}

type optimizationState struct {
	mu          sync.Mutex
	best        candidate
	bestMetrics analysis.Metrics
	evals       int
	improves    int
}

func runOptimization(cfg *optimizationConfig) (*optimizationResult, error) {
	start := time.Now()

	iters := cfg.maxEvals / (2 * cfg.pop)
	if iters < 1 {
		iters = 1
	}
	mayflyConfig, err := newMayflyConfig(cfg.variant, cfg.pop, len(knobDefs), iters)
	if err != nil {
		return nil, err
	}
	mayflyConfig.Rand = rand.New(rand.NewSource(cfg.seed))

	state := &optimizationState{}
	state.bestMetrics.Score = 1.0

	mayflyConfig.ObjectiveFunc = func(pos []float64) float64 {
		state.mu.Lock()
		state.evals++
		evalNum := state.evals
		bestScore := state.bestMetrics.Score
		state.mu.Unlock()
		if evalNum > cfg.maxEvals {
			return bestScore + 1.0
		}

		cand := fromNormalized(pos, knobDefs)
		m, err := cfg.evaluate(cand)
		if err != nil {
			return bestScore + 0.8
		}

		state.mu.Lock()
		if m.Score < state.bestMetrics.Score {
			state.best = cloneCandidate(cand)
			state.bestMetrics = m
			state.improves++
			fmt.Printf("Improved #%d eval=%d score=%.4f sim=%.2f%% f=%.3f\n",
				state.improves, evalNum, m.Score, m.Similarity*100.0, m.FMeasure)
		}
		state.mu.Unlock()

		if cfg.reportEvery > 0 && evalNum%cfg.reportEvery == 0 {
			fmt.Printf("Progress eval=%d elapsed=%.1fs best=%.4f\n", evalNum, time.Since(start).Seconds(), state.bestMetrics.Score)
		}
		return m.Score
	}

	if _, err := runMayfly(mayflyConfig); err != nil {
		return nil, err
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	return &optimizationResult{
		best:        cloneCandidate(state.best),
		bestMetrics: state.bestMetrics,
		evals:       state.evals,
		elapsed:     time.Since(start).Seconds(),
	}, nil
}

func newMayflyConfig(variant string, pop int, dims int, iters int) (*mayfly.Config, error) {
	var cfg *mayfly.Config
	switch variant {
	case "ma":
		cfg = mayfly.NewDefaultConfig()
	case "desma":
		cfg = mayfly.NewDESMAConfig()
	case "olce":
		cfg = mayfly.NewOLCEConfig()
	case "eobbma":
		cfg = mayfly.NewEOBBMAConfig()
	case "gsasma":
		cfg = mayfly.NewGSASMAConfig()
	case "mpma":
		cfg = mayfly.NewMPMAConfig()
	case "aoblmoa":
		cfg = mayfly.NewAOBLMOAConfig()
	default:
		return nil, fmt.Errorf("unsupported variant %q", variant)
	}
	cfg.ProblemSize = dims
	cfg.LowerBound = 0.0
	cfg.UpperBound = 1.0
	cfg.MaxIterations = iters
	cfg.NPop = pop
	cfg.NPopF = pop
	cfg.NC = 2 * pop
	nm := pop / 20
	if nm < 1 {
		nm = 1
	}
	cfg.NM = nm
	return cfg, nil
}

func runMayfly(cfg *mayfly.Config) (_ *mayfly.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("mayfly panic: %v", r)
		}
	}()
	return mayfly.Optimize(cfg)
}

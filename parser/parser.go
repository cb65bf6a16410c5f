// Package parser is the orchestrator: it composes onset detection, tempo
// tracking and beat tracking into a hybrid detector, runs plugin hooks,
// drives buffer, stream and file entry points, and assembles results.
package parser

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/cwbudde/algo-beat/beat"
	"github.com/cwbudde/algo-beat/internal/decode"
	"github.com/cwbudde/algo-beat/onset"
	"github.com/cwbudde/algo-beat/selector"
	"github.com/cwbudde/algo-beat/sigproc"
	"github.com/cwbudde/algo-beat/tempo"
)

// LibraryVersion identifies the analysis pipeline in results.
const LibraryVersion = "1.0.0"

// Stage names reported through the progress hook.
const (
	StageLoad     = "load"
	StageOnset    = "onset"
	StageTempo    = "tempo"
	StageBeat     = "beat"
	StageSelect   = "select"
	StageFinalize = "finalize"
)

// DecoderFunc decodes a file into mono samples and a sample rate. The
// default handles WAV and MP3 natively.
type DecoderFunc func(path string) ([]float64, int, error)

// StageFunc observes pipeline progress.
type StageFunc func(stage string, percent float64)

// Option configures a Parser at construction.
type Option func(*Parser)

// WithPlugins registers processors, run in registration order.
func WithPlugins(plugins ...Plugin) Option {
	return func(p *Parser) {
		p.plugins = append(p.plugins, plugins...)
	}
}

// WithDecoder overrides the file decoder, e.g. to add FLAC or OGG support
// through an external tool.
func WithDecoder(fn DecoderFunc) Option {
	return func(p *Parser) {
		p.decoder = fn
	}
}

// WithStageFunc installs a progress observer.
func WithStageFunc(fn StageFunc) Option {
	return func(p *Parser) {
		p.stage = fn
	}
}

// Parser runs the analysis pipeline. A Parser is safe for sequential reuse;
// use one Parser per goroutine for concurrent parses.
type Parser struct {
	cfg     beat.Config
	plugins []Plugin
	decoder DecoderFunc
	stage   StageFunc

	mu          sync.Mutex
	initialized bool

	det     *onset.Detector
	fluxDet *onset.Detector
	tracker *tempo.Tracker
}

// New snapshots cfg, validates it, and builds the pipeline components.
// The configuration is frozen from here on.
func New(cfg beat.Config, opts ...Option) (*Parser, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Parser{
		cfg:     cfg,
		decoder: decode.ReadFileMono,
	}
	for _, opt := range opts {
		opt(p)
	}

	det, err := onset.NewDetector(onset.Config{
		SampleRate:  cfg.SampleRate,
		FrameSize:   cfg.FrameSize,
		HopSize:     cfg.HopSize,
		Method:      onset.MethodCombined,
		LogCompress: true,
	})
	if err != nil {
		return nil, beat.Wrap(beat.ErrInvalidConfig, "onset", err, "detector setup")
	}
	tracker, err := tempo.NewTracker(tempo.Config{
		SampleRate:          cfg.SampleRate,
		MinBPM:              cfg.MinBPM,
		MaxBPM:              cfg.MaxBPM,
		MultiScale:          cfg.MultiPass,
		UseDP:               true,
		VariableTempo:       cfg.GenreAdaptive,
		ConfidenceThreshold: 0,
		InferTimeSignature:  true,
	})
	if err != nil {
		return nil, beat.Wrap(beat.ErrInvalidConfig, "tempo", err, "tracker setup")
	}
	p.det = det
	p.tracker = tracker
	if cfg.SpectralWeight > 0 {
		fluxDet, err := newFluxDetector(cfg)
		if err != nil {
			return nil, beat.Wrap(beat.ErrInvalidConfig, "onset", err, "spectral detector setup")
		}
		p.fluxDet = fluxDet
	}
	return p, nil
}

// Version returns the library version string.
func Version() string {
	return LibraryVersion
}

// SupportedExtensions lists container formats accepted by ParseFile. WAV
// and MP3 decode natively; the rest need WithDecoder.
func SupportedExtensions() []string {
	return []string{".wav", ".mp3", ".flac", ".ogg", ".m4a"}
}

// Close runs plugin cleanup. The parser must not be used afterwards.
func (p *Parser) Close() error {
	var first error
	for _, pl := range p.plugins {
		if c, ok := pl.(Closer); ok {
			if err := c.Close(); err != nil && first == nil {
				first = beat.Wrap(beat.ErrPluginFailure, "close", err, "plugin %s", pl.Name())
			}
		}
	}
	return first
}

// ParseBuffer analyzes a mono sample buffer.
func (p *Parser) ParseBuffer(ctx context.Context, samples []float32, sampleRate int, opts beat.ParseOptions) (*beat.ParseResult, error) {
	if err := p.ensureInitialized(ctx); err != nil {
		return nil, err
	}
	start := time.Now()

	mono, err := p.prepare(samples, sampleRate)
	if err != nil {
		return nil, err
	}
	opts = opts.Normalized(p.cfg.SampleRate)

	candidates, tp, err := p.analyze(ctx, mono)
	if err != nil {
		return nil, err
	}
	duration := float64(len(mono)) / float64(p.cfg.SampleRate)
	return p.finalize(ctx, candidates, tp, duration, int64(len(samples)), 0, opts, start)
}

// ParseFile decodes path with the configured decoder, resamples to the
// configured rate if needed, and analyzes the result.
func (p *Parser) ParseFile(ctx context.Context, path string, opts beat.ParseOptions) (*beat.ParseResult, error) {
	if err := p.ensureInitialized(ctx); err != nil {
		return nil, err
	}
	start := time.Now()
	p.report(StageLoad, 0)

	mono, rate, err := p.decoder(path)
	if err != nil {
		return nil, err
	}
	if rate != p.cfg.SampleRate {
		mono, err = sigproc.Resample(mono, rate, p.cfg.SampleRate)
		if err != nil {
			return nil, beat.Wrap(beat.ErrDecoderFailure, "decode", err, "resample %d -> %d", rate, p.cfg.SampleRate)
		}
	}
	p.report(StageLoad, 100)

	if err := validateSamples(mono, p.cfg.FrameSize); err != nil {
		return nil, err
	}
	mono = p.preprocess(mono)
	if opts.Filename == "" {
		opts.Filename = path
	}
	opts = opts.Normalized(p.cfg.SampleRate)

	candidates, tp, err := p.analyze(ctx, mono)
	if err != nil {
		return nil, err
	}
	duration := float64(len(mono)) / float64(p.cfg.SampleRate)
	return p.finalize(ctx, candidates, tp, duration, int64(len(mono)), 0, opts, start)
}

// ensureInitialized runs plugin Init hooks exactly once.
func (p *Parser) ensureInitialized(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.initialized {
		return nil
	}
	for _, pl := range p.plugins {
		if ini, ok := pl.(Initializer); ok {
			if err := ini.Init(ctx); err != nil {
				return beat.Wrap(beat.ErrPluginFailure, "init", err, "plugin %s", pl.Name())
			}
		}
	}
	p.initialized = true
	return nil
}

// prepare validates, converts and preprocesses an input buffer.
func (p *Parser) prepare(samples []float32, sampleRate int) ([]float64, error) {
	if len(samples) == 0 {
		return nil, beat.Errorf(beat.ErrInvalidAudio, "input", "empty sample buffer")
	}
	mono := make([]float64, len(samples))
	for i, v := range samples {
		mono[i] = float64(v)
	}
	if sampleRate > 0 && sampleRate != p.cfg.SampleRate {
		var err error
		mono, err = sigproc.Resample(mono, sampleRate, p.cfg.SampleRate)
		if err != nil {
			return nil, beat.Wrap(beat.ErrInvalidAudio, "input", err, "resample %d -> %d", sampleRate, p.cfg.SampleRate)
		}
	}
	if err := validateSamples(mono, p.cfg.FrameSize); err != nil {
		return nil, err
	}
	return p.preprocess(mono), nil
}

func validateSamples(samples []float64, frameSize int) error {
	if len(samples) == 0 {
		return beat.Errorf(beat.ErrInvalidAudio, "input", "empty sample buffer")
	}
	limit := len(samples)
	if limit > 1000 {
		limit = 1000
	}
	for i := 0; i < limit; i++ {
		if math.IsNaN(samples[i]) || math.IsInf(samples[i], 0) {
			return beat.Errorf(beat.ErrInvalidAudio, "input", "non-finite sample at index %d", i)
		}
	}
	if len(samples) < frameSize {
		return beat.Errorf(beat.ErrInvalidAudio, "input", "buffer shorter than one frame: %d < %d", len(samples), frameSize)
	}
	return nil
}

// preprocess optionally peak-normalizes and high-passes the input.
func (p *Parser) preprocess(samples []float64) []float64 {
	if p.cfg.Normalize {
		peak := 0.0
		for _, v := range samples {
			if a := math.Abs(v); a > peak {
				peak = a
			}
		}
		if peak > 1e-9 && peak != 1 {
			g := 1 / peak
			for i := range samples {
				samples[i] *= g
			}
		}
	}
	if p.cfg.HighPass {
		hp, err := sigproc.Highpass(80, float64(p.cfg.SampleRate), 2)
		if err == nil {
			samples = hp.Process(samples)
		}
	}
	return samples
}

// finalize runs pre-selection hooks, selection and result assembly.
func (p *Parser) finalize(ctx context.Context, candidates []beat.Candidate, tp beat.Tempo, duration float64, samplesProcessed int64, chunks int, opts beat.ParseOptions, start time.Time) (*beat.ParseResult, error) {
	var err error
	candidates, err = p.runCandidateHooks(ctx, candidates)
	if err != nil {
		return nil, err
	}

	p.report(StageSelect, 0)
	sel, err := selector.Select(candidates, selector.Options{
		Count:         opts.TargetCount,
		Strategy:      opts.Strategy,
		MinConfidence: opts.MinConfidence,
		DurationSec:   duration,
		Tempo:         &tp,
		Synthesize:    opts.Strategy == beat.StrategyAdaptive,
	})
	if err != nil {
		return nil, beat.Wrap(beat.ErrComputationFailure, "select", err, "beat selection")
	}
	p.report(StageSelect, 100)

	p.report(StageFinalize, 0)
	result := &beat.ParseResult{
		Version:   LibraryVersion,
		Timestamp: time.Now().UTC(),
		Beats:     sel.Beats,
		Metadata: beat.ResultMetadata{
			ProcessingMS:     float64(time.Since(start).Microseconds()) / 1000,
			SamplesProcessed: samplesProcessed,
			AudioLengthSec:   duration,
			SampleRate:       p.cfg.SampleRate,
			Parameters:       opts,
			Algorithms:       []string{"onset:combined", "tempo:acf", "beats:dp", "select:" + opts.Strategy.String()},
			Chunks:           chunks,
		},
	}
	if p.cfg.IncludeTempo {
		t := tp
		result.Tempo = &t
	}
	if p.cfg.IncludeAnalysis {
		q := sel.Quality
		result.Metadata.Analysis = &q
	}
	for _, pl := range p.plugins {
		result.Metadata.Plugins = append(result.Metadata.Plugins, pl.Name()+"@"+pl.Version())
	}
	p.report(StageFinalize, 100)
	return result, nil
}

func (p *Parser) runAudioHooks(ctx context.Context, samples []float64) ([]float64, error) {
	for _, pl := range p.plugins {
		tr, ok := pl.(AudioTransformer)
		if !ok {
			continue
		}
		out, err := tr.TransformAudio(ctx, samples)
		if err != nil {
			return nil, beat.Wrap(beat.ErrPluginFailure, "pre-audio", err, "plugin %s", pl.Name())
		}
		samples = out
	}
	return samples, nil
}

func (p *Parser) runCandidateHooks(ctx context.Context, candidates []beat.Candidate) ([]beat.Candidate, error) {
	for _, pl := range p.plugins {
		tr, ok := pl.(CandidateTransformer)
		if !ok {
			continue
		}
		out, err := tr.TransformCandidates(ctx, candidates)
		if err != nil {
			return nil, beat.Wrap(beat.ErrPluginFailure, "pre-selection", err, "plugin %s", pl.Name())
		}
		candidates = out
	}
	return candidates, nil
}

func (p *Parser) report(stage string, percent float64) {
	if p.stage != nil {
		p.stage(stage, percent)
	}
}

package parser

import (
	"context"

	"github.com/cwbudde/algo-beat/beat"
)

// Plugin is the minimal identity every processor carries. Capability
// interfaces below are optional; a plugin implements either or both.
type Plugin interface {
	Name() string
	Version() string
}

// AudioTransformer rewrites the sample stream before analysis.
type AudioTransformer interface {
	Plugin
	TransformAudio(ctx context.Context, samples []float64) ([]float64, error)
}

// CandidateTransformer rewrites the merged candidate list before selection.
type CandidateTransformer interface {
	Plugin
	TransformCandidates(ctx context.Context, candidates []beat.Candidate) ([]beat.Candidate, error)
}

// Initializer runs once before the first parse. Initialization failure
// fails the whole parser; there is no partial initialization.
type Initializer interface {
	Init(ctx context.Context) error
}

// Closer runs once at parser teardown.
type Closer interface {
	Close() error
}

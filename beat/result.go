package beat

import "time"

// QualityReport scores a selection. All fields except BeatDensity are in
// [0,1].
type QualityReport struct {
	Coverage    float64 `json:"coverage"`
	Diversity   float64 `json:"diversity"`
	Spacing     float64 `json:"spacing"`
	Overall     float64 `json:"overall"`
	BeatDensity float64 `json:"beat_density"` // beats per second
}

// ResultMetadata describes how a result was produced.
type ResultMetadata struct {
	ProcessingMS     float64        `json:"processing_ms"`
	SamplesProcessed int64          `json:"samples_processed"`
	AudioLengthSec   float64        `json:"audio_length_sec"`
	SampleRate       int            `json:"sample_rate"`
	Parameters       ParseOptions   `json:"parameters"`
	Algorithms       []string       `json:"algorithms,omitempty"`
	Plugins          []string       `json:"plugins,omitempty"`
	Chunks           int            `json:"chunks,omitempty"` // stream mode only
	Analysis         *QualityReport `json:"analysis,omitempty"`
}

// ParseResult is the canonical output of one parse.
type ParseResult struct {
	Version   string         `json:"version"`
	Timestamp time.Time      `json:"timestamp"`
	Beats     []Beat         `json:"beats"`
	Tempo     *Tempo         `json:"tempo,omitempty"`
	Metadata  ResultMetadata `json:"metadata"`
}

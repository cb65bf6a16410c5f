// Package beat defines the value types shared by the analysis pipeline:
// onsets, tempo hypotheses, beats, candidates and parse results. All types
// are plain values, copyable and immutable after construction.
package beat

// Classification labels a beat's role within the inferred meter.
type Classification string

const (
	ClassDownbeat   Classification = "downbeat"
	ClassBeat       Classification = "beat"
	ClassOffbeat    Classification = "offbeat"
	ClassSyncopated Classification = "syncopated"
)

// Source tags where a beat candidate originated.
type Source string

const (
	SourceOnset    Source = "onset"
	SourceTempo    Source = "tempo"
	SourceSpectral Source = "spectral"
	SourceHybrid   Source = "hybrid"
)

// Onset is a detected event start.
type Onset struct {
	Time       float64 `json:"time"`       // seconds, >= 0
	Strength   float64 `json:"strength"`   // >= 0
	Confidence float64 `json:"confidence"` // in [0,1]
}

// TempoHypothesis is one tempo candidate with its supporting evidence.
type TempoHypothesis struct {
	BPM        float64 `json:"bpm"`
	Confidence float64 `json:"confidence"`
	Phase      float64 `json:"phase"` // seconds, in [0, 60/bpm)
	Strength   float64 `json:"strength"`
	ACFPeak    float64 `json:"acf_peak"`
}

// TimeSignature describes beat grouping per measure.
type TimeSignature struct {
	Numerator   int `json:"numerator"`   // one of 2, 3, 4, 6, 8
	Denominator int `json:"denominator"` // 4 or 8
}

// Tempo is the selected tempo estimate.
type Tempo struct {
	BPM           float64           `json:"bpm"`
	Confidence    float64           `json:"confidence"`
	TimeSignature *TimeSignature    `json:"time_signature,omitempty"`
	Phase         float64           `json:"phase"` // seconds, in [0, 60/bpm)
	Alternatives  []TempoHypothesis `json:"alternatives,omitempty"`
}

// BeatInterval returns the beat period in seconds, or 0 for a zero tempo.
func (t Tempo) BeatInterval() float64 {
	if t.BPM <= 0 {
		return 0
	}
	return 60.0 / t.BPM
}

// Metadata carries optional per-beat context.
type Metadata struct {
	BeatNumber    int     `json:"beat_number,omitempty"`
	MeasureNumber int     `json:"measure_number,omitempty"`
	Phase         float64 `json:"phase,omitempty"`
	Synthetic     bool    `json:"synthetic,omitempty"`
}

// Beat is one rhythmic event in the final (or candidate) list.
type Beat struct {
	Timestamp      float64        `json:"timestamp"` // milliseconds, >= 0
	Strength       float64        `json:"strength"`
	Confidence     float64        `json:"confidence"`
	Classification Classification `json:"type,omitempty"`
	Metadata       *Metadata      `json:"metadata,omitempty"`
}

// Candidate is a Beat plus its originating detector.
type Candidate struct {
	Beat
	Source Source `json:"source"`
}

package parser

import (
	"context"

	"github.com/cwbudde/algo-beat/beat"
	"github.com/cwbudde/algo-beat/onset"
	"github.com/cwbudde/algo-beat/tempo"
)

// analyze runs pre-audio hooks and the three detectors over one prepared
// buffer, returning merged candidates and the tempo estimate.
func (p *Parser) analyze(ctx context.Context, mono []float64) ([]beat.Candidate, beat.Tempo, error) {
	var zero beat.Tempo

	mono, err := p.runAudioHooks(ctx, mono)
	if err != nil {
		return nil, zero, err
	}
	if err := ctx.Err(); err != nil {
		return nil, zero, err
	}

	p.report(StageOnset, 0)
	onsets, err := p.det.Detect(mono)
	if err != nil {
		return nil, zero, beat.Wrap(beat.ErrComputationFailure, "onset", err, "onset detection")
	}
	p.report(StageOnset, 100)
	if err := ctx.Err(); err != nil {
		return nil, zero, err
	}

	p.report(StageTempo, 0)
	tp, err := p.tracker.Track(mono)
	if err != nil {
		return nil, zero, beat.Wrap(beat.ErrComputationFailure, "tempo", err, "tempo tracking")
	}
	p.report(StageTempo, 100)
	if err := ctx.Err(); err != nil {
		return nil, zero, err
	}

	p.report(StageBeat, 0)
	duration := float64(len(mono)) / float64(p.cfg.SampleRate)
	var tracked []beat.Beat
	if tp.Confidence > 0 {
		tracked, err = p.tracker.TrackBeats(onsets, tp, duration, tempo.AlignmentCombined)
		if err != nil {
			return nil, zero, beat.Wrap(beat.ErrComputationFailure, "beat", err, "beat tracking")
		}
	}
	p.report(StageBeat, 100)

	candidates := p.mergeCandidates(mono, onsets, tracked)
	return candidates, tp, nil
}

// mergeCandidates fuses the detector outputs into one tagged candidate
// set. Source confidences are scaled by the configured fusion weights,
// normalized so the strongest source keeps its confidence intact.
func (p *Parser) mergeCandidates(mono []float64, onsets []beat.Onset, tracked []beat.Beat) []beat.Candidate {
	maxW := p.cfg.OnsetWeight
	if p.cfg.TempoWeight > maxW {
		maxW = p.cfg.TempoWeight
	}
	if p.cfg.SpectralWeight > maxW {
		maxW = p.cfg.SpectralWeight
	}
	if maxW <= 0 {
		maxW = 1
	}
	wOnset := p.cfg.OnsetWeight / maxW
	wTempo := p.cfg.TempoWeight / maxW
	wSpectral := p.cfg.SpectralWeight / maxW

	var candidates []beat.Candidate
	if wOnset > 0 {
		for _, o := range onsets {
			candidates = append(candidates, beat.Candidate{
				Beat: beat.Beat{
					Timestamp:  o.Time * 1000,
					Strength:   o.Strength,
					Confidence: clampUnit(o.Confidence * wOnset),
				},
				Source: beat.SourceOnset,
			})
		}
	}
	if wTempo > 0 {
		for _, b := range tracked {
			b.Confidence = clampUnit(b.Confidence * wTempo)
			candidates = append(candidates, beat.Candidate{Beat: b, Source: beat.SourceTempo})
		}
	}
	if wSpectral > 0 && p.fluxDet != nil {
		if spectral, err := p.fluxDet.Detect(mono); err == nil {
			for _, o := range spectral {
				candidates = append(candidates, beat.Candidate{
					Beat: beat.Beat{
						Timestamp:  o.Time * 1000,
						Strength:   o.Strength,
						Confidence: clampUnit(o.Confidence * wSpectral),
					},
					Source: beat.SourceSpectral,
				})
			}
		}
	}
	return candidates
}

func newFluxDetector(cfg beat.Config) (*onset.Detector, error) {
	return onset.NewDetector(onset.Config{
		SampleRate:  cfg.SampleRate,
		FrameSize:   cfg.FrameSize,
		HopSize:     cfg.HopSize,
		Method:      onset.MethodSpectralFlux,
		LogCompress: true,
	})
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

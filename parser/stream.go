package parser

import (
	"context"
	"errors"
	"io"
	"math"
	"sort"
	"time"

	dspcore "github.com/cwbudde/algo-dsp/dsp/core"

	"github.com/cwbudde/algo-beat/beat"
)

// ChunkProducer supplies fixed-size sample chunks. Next returns io.EOF at
// end of stream; any other error aborts the parse.
type ChunkProducer interface {
	Next(ctx context.Context) ([]float32, error)
}

// SliceProducer adapts an in-memory chunk list to ChunkProducer.
type SliceProducer struct {
	chunks [][]float32
	pos    int
}

// NewSliceProducer wraps pre-sliced chunks.
func NewSliceProducer(chunks [][]float32) *SliceProducer {
	return &SliceProducer{chunks: chunks}
}

// Next implements ChunkProducer.
func (s *SliceProducer) Next(ctx context.Context) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.chunks) {
		return nil, io.EOF
	}
	c := s.chunks[s.pos]
	s.pos++
	return c, nil
}

const dedupGapMS = 50.0

// ParseStream consumes the producer chunk by chunk, reanalyzing each chunk
// prefixed with the previous chunk's tail, dedupes candidates detected
// twice in the overlap zone, and runs one final selection pass.
func (p *Parser) ParseStream(ctx context.Context, producer ChunkProducer, opts beat.ParseOptions) (*beat.ParseResult, error) {
	if err := p.ensureInitialized(ctx); err != nil {
		return nil, err
	}
	start := time.Now()
	opts = opts.Normalized(p.cfg.SampleRate)

	overlap := int(math.Ceil(float64(opts.ChunkSize) * opts.OverlapFraction))

	var (
		candidates []beat.Candidate
		bestTempo  beat.Tempo
		tail       []float64
		pending    []float64 // carried when a block is shorter than a frame
		consumed   int64
		chunks     int
	)

	for {
		if err := ctx.Err(); err != nil {
			return nil, beat.Wrap(beat.ErrStreamAborted, "stream", err, "cancelled after %d chunks", chunks)
		}
		chunk, err := producer.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, beat.Wrap(beat.ErrStreamAborted, "stream", err, "producer failed after %d chunks", chunks)
		}
		if len(chunk) == 0 {
			continue
		}

		block := make([]float64, 0, len(tail)+len(pending)+len(chunk))
		block = append(block, tail...)
		block = append(block, pending...)
		for _, v := range chunk {
			block = append(block, dspcore.FlushDenormals(float64(v)))
		}
		blockOffset := consumed - int64(len(tail)) - int64(len(pending))

		consumed += int64(len(chunk))
		chunks++
		if opts.Progress != nil {
			opts.Progress(consumed)
		}

		if len(block) < p.cfg.FrameSize {
			pending = append(pending[:0], block[len(tail):]...)
			continue
		}
		pending = nil

		work := append([]float64(nil), block...)
		if err := validateSamples(work, p.cfg.FrameSize); err != nil {
			return nil, err
		}
		work = p.preprocess(work)

		blockCands, tp, err := p.analyze(ctx, work)
		if err != nil {
			return nil, err
		}
		if tp.Confidence > bestTempo.Confidence {
			bestTempo = tp
		}

		offsetMS := float64(blockOffset) / float64(p.cfg.SampleRate) * 1000
		for _, c := range blockCands {
			c.Timestamp += offsetMS
			candidates = append(candidates, c)
		}

		if overlap > 0 && len(block) >= overlap {
			tail = append(tail[:0], block[len(block)-overlap:]...)
		}
	}

	if consumed == 0 {
		return nil, beat.Errorf(beat.ErrStreamAborted, "stream", "producer terminated before any samples arrived")
	}

	candidates = dedupeCandidates(candidates)
	duration := float64(consumed) / float64(p.cfg.SampleRate)
	return p.finalize(ctx, candidates, bestTempo, duration, consumed, chunks, opts, start)
}

// dedupeCandidates sorts by time and collapses same-source pairs closer
// than 50 ms, retaining the higher confidence.
func dedupeCandidates(candidates []beat.Candidate) []beat.Candidate {
	if len(candidates) < 2 {
		return candidates
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Timestamp < candidates[j].Timestamp
	})
	out := candidates[:0]
	for _, c := range candidates {
		merged := false
		for k := len(out) - 1; k >= 0; k-- {
			if c.Timestamp-out[k].Timestamp >= dedupGapMS {
				break
			}
			if out[k].Source != c.Source {
				continue
			}
			if c.Confidence > out[k].Confidence {
				out[k] = c
			}
			merged = true
			break
		}
		if !merged {
			out = append(out, c)
		}
	}
	return out
}

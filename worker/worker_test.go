package worker

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/algo-beat/beat"
	"github.com/cwbudde/algo-beat/parser"
)

const testRate = 44100

func clickBuffer(durationSec float64, bpm float64, seed int64) []float32 {
	n := int(durationSec * testRate)
	out := make([]float32, n)
	rng := rand.New(rand.NewSource(seed))
	for i := range out {
		out[i] = float32((rng.Float64()*2 - 1) * 0.02)
	}
	interval := 60 / bpm
	for t := 0.0; t < durationSec; t += interval {
		start := int(t * testRate)
		length := testRate / 100
		for i := 0; i < length && start+i < n; i++ {
			env := 1 - float64(i)/float64(length)
			out[start+i] += float32(0.9 * env * math.Sin(2*math.Pi*1000*float64(i)/testRate))
		}
	}
	return out
}

func newTestDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(beat.NewDefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, d.Close())
	})
	return d
}

func TestParseBufferRequest(t *testing.T) {
	d := newTestDispatcher(t)

	resp := d.Do(context.Background(), Request{
		ID:         "req-1",
		Kind:       KindParseBuffer,
		Samples:    clickBuffer(4, 120, 1),
		SampleRate: testRate,
		Options:    beat.ParseOptions{TargetCount: 6},
	})
	require.Nil(t, resp.Err, "unexpected error: %+v", resp.Err)
	assert.Equal(t, "req-1", resp.ID)
	require.NotNil(t, resp.Result)
	assert.NotEmpty(t, resp.Result.Beats)
	assert.LessOrEqual(t, len(resp.Result.Beats), 6)
}

func TestCorrelationIDGenerated(t *testing.T) {
	d := newTestDispatcher(t)

	resp := d.Do(context.Background(), Request{
		Kind:       KindParseBuffer,
		Samples:    clickBuffer(2, 120, 2),
		SampleRate: testRate,
	})
	assert.NotEmpty(t, resp.ID)
}

func TestErrorCodeMapping(t *testing.T) {
	d := newTestDispatcher(t)

	resp := d.Do(context.Background(), Request{
		Kind:       KindParseBuffer,
		Samples:    nil,
		SampleRate: testRate,
	})
	require.NotNil(t, resp.Err)
	assert.Equal(t, "INVALID_AUDIO", resp.Err.Code)
	assert.Contains(t, resp.Err.Message, "empty")
}

func TestUnknownKindRejected(t *testing.T) {
	d := newTestDispatcher(t)
	resp := d.Do(context.Background(), Request{Kind: "bogus"})
	require.NotNil(t, resp.Err)
	assert.Equal(t, "INVALID_CONFIG", resp.Err.Code)
}

func TestBatchRequest(t *testing.T) {
	d := newTestDispatcher(t)

	resp := d.Do(context.Background(), Request{
		Kind: KindParseBatch,
		Batch: [][]float32{
			clickBuffer(2, 120, 3),
			clickBuffer(2, 100, 4),
		},
		SampleRate: testRate,
		Options:    beat.ParseOptions{TargetCount: 4},
	})
	require.Nil(t, resp.Err, "unexpected error: %+v", resp.Err)
	require.Len(t, resp.Results, 2)
	for _, r := range resp.Results {
		assert.LessOrEqual(t, len(r.Beats), 4)
	}
}

func TestBatchStopsOnFirstFailure(t *testing.T) {
	d := newTestDispatcher(t)

	resp := d.Do(context.Background(), Request{
		Kind: KindParseBatch,
		Batch: [][]float32{
			clickBuffer(2, 120, 5),
			nil, // invalid payload
		},
		SampleRate: testRate,
	})
	require.NotNil(t, resp.Err)
	assert.Equal(t, "INVALID_AUDIO", resp.Err.Code)
	assert.Empty(t, resp.Results)
}

func TestStreamRequestWithoutProducer(t *testing.T) {
	d := newTestDispatcher(t)
	resp := d.Do(context.Background(), Request{Kind: KindParseStream})
	require.NotNil(t, resp.Err)
	assert.Equal(t, "STREAM_ABORTED", resp.Err.Code)
}

func TestProgressEmitted(t *testing.T) {
	d := newTestDispatcher(t)

	resp := d.Do(context.Background(), Request{
		Kind:       KindParseBuffer,
		Samples:    clickBuffer(3, 120, 6),
		SampleRate: testRate,
	})
	require.Nil(t, resp.Err)

	stages := map[string]bool{}
	for draining := true; draining; {
		select {
		case p := <-d.Progress():
			stages[p.Stage] = true
		default:
			draining = false
		}
	}
	assert.True(t, stages[parser.StageOnset] || stages[parser.StageTempo] || stages[parser.StageSelect],
		"expected at least one pipeline stage report, got %v", stages)
}

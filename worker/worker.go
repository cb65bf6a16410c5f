// Package worker wraps the parser in an asynchronous request/response
// contract: correlation ids, per-request timeouts, stage progress and batch
// execution. One dispatcher owns one parser and serializes requests.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cwbudde/algo-beat/beat"
	"github.com/cwbudde/algo-beat/parser"
)

// Kind selects the operation a request performs.
type Kind string

const (
	KindParseBuffer Kind = "parse_buffer"
	KindParseStream Kind = "parse_stream"
	KindParseBatch  Kind = "parse_batch"
)

// Request is one unit of work. ID is generated when empty.
type Request struct {
	ID         string
	Kind       Kind
	Samples    []float32
	Batch      [][]float32
	Producer   parser.ChunkProducer
	SampleRate int
	Options    beat.ParseOptions
	TimeoutMS  int
}

// ErrorInfo is the serializable failure shape.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Response carries either results or an error for a request.
type Response struct {
	ID      string              `json:"id"`
	Result  *beat.ParseResult   `json:"result,omitempty"`
	Results []*beat.ParseResult `json:"results,omitempty"`
	Err     *ErrorInfo          `json:"error,omitempty"`
}

// Progress reports pipeline stage completion between request and response.
type Progress struct {
	ID         string  `json:"id"`
	Stage      string  `json:"stage"`
	Percentage float64 `json:"percentage"`
}

// Dispatcher executes requests sequentially on its own parser instance.
type Dispatcher struct {
	p        *parser.Parser
	requests chan job
	progress chan Progress
	done     chan struct{}

	mu        sync.Mutex
	currentID string
}

func (d *Dispatcher) setCurrentID(id string) {
	d.mu.Lock()
	d.currentID = id
	d.mu.Unlock()
}

func (d *Dispatcher) getCurrentID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.currentID
}

type job struct {
	ctx context.Context
	req Request
	out chan Response
}

// NewDispatcher builds a parser from cfg and starts the request loop.
func NewDispatcher(cfg beat.Config, opts ...parser.Option) (*Dispatcher, error) {
	d := &Dispatcher{
		requests: make(chan job, 16),
		progress: make(chan Progress, 64),
		done:     make(chan struct{}),
	}
	opts = append(opts, parser.WithStageFunc(func(stage string, percent float64) {
		select {
		case d.progress <- Progress{ID: d.getCurrentID(), Stage: stage, Percentage: percent}:
		default:
		}
	}))
	p, err := parser.New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	d.p = p
	go d.loop()
	return d, nil
}

// Progress exposes the stage progress channel.
func (d *Dispatcher) Progress() <-chan Progress {
	return d.progress
}

// Close stops the request loop and tears down the parser.
func (d *Dispatcher) Close() error {
	close(d.requests)
	<-d.done
	return d.p.Close()
}

// Submit enqueues a request; the response arrives on the returned channel.
func (d *Dispatcher) Submit(ctx context.Context, req Request) <-chan Response {
	out := make(chan Response, 1)
	d.requests <- job{ctx: ctx, req: req, out: out}
	return out
}

// Do runs a request synchronously.
func (d *Dispatcher) Do(ctx context.Context, req Request) Response {
	return <-d.Submit(ctx, req)
}

func (d *Dispatcher) loop() {
	defer close(d.done)
	for j := range d.requests {
		j.out <- d.execute(j.ctx, j.req)
	}
}

func (d *Dispatcher) execute(ctx context.Context, req Request) Response {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	d.setCurrentID(req.ID)

	if req.TimeoutMS > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.TimeoutMS)*time.Millisecond)
		defer cancel()
	}

	type outcome struct {
		result  *beat.ParseResult
		results []*beat.ParseResult
		err     error
	}
	ch := make(chan outcome, 1)
	go func() {
		var o outcome
		switch req.Kind {
		case KindParseBuffer:
			o.result, o.err = d.p.ParseBuffer(ctx, req.Samples, req.SampleRate, req.Options)
		case KindParseStream:
			if req.Producer == nil {
				o.err = beat.Errorf(beat.ErrStreamAborted, "worker", "no chunk producer supplied")
				break
			}
			o.result, o.err = d.p.ParseStream(ctx, req.Producer, req.Options)
		case KindParseBatch:
			for _, samples := range req.Batch {
				r, err := d.p.ParseBuffer(ctx, samples, req.SampleRate, req.Options)
				if err != nil {
					o.err = err
					o.results = nil
					break
				}
				o.results = append(o.results, r)
			}
		default:
			o.err = beat.Errorf(beat.ErrInvalidConfig, "worker", "unknown operation kind %q", req.Kind)
		}
		ch <- o
	}()

	select {
	case o := <-ch:
		if o.err != nil {
			return Response{ID: req.ID, Err: errorInfo(o.err)}
		}
		return Response{ID: req.ID, Result: o.result, Results: o.results}
	case <-ctx.Done():
		// The pending parse is abandoned; its eventual result is discarded.
		return Response{ID: req.ID, Err: errorInfo(beat.Wrap(beat.ErrStreamAborted, "worker", ctx.Err(), "request timed out"))}
	}
}

// errorInfo maps typed error kinds to stable wire codes.
func errorInfo(err error) *ErrorInfo {
	code := "INTERNAL"
	for _, m := range []struct {
		kind error
		code string
	}{
		{beat.ErrInvalidAudio, "INVALID_AUDIO"},
		{beat.ErrInvalidConfig, "INVALID_CONFIG"},
		{beat.ErrInvalidFormat, "INVALID_FORMAT"},
		{beat.ErrFileNotFound, "FILE_NOT_FOUND"},
		{beat.ErrUnsupportedFormat, "UNSUPPORTED_FORMAT"},
		{beat.ErrDecoderFailure, "DECODER_FAILURE"},
		{beat.ErrPluginFailure, "PLUGIN_FAILURE"},
		{beat.ErrStreamAborted, "STREAM_ABORTED"},
		{beat.ErrComputationFailure, "COMPUTATION_FAILURE"},
	} {
		if errors.Is(err, m.kind) {
			code = m.code
			break
		}
	}
	return &ErrorInfo{Code: code, Message: err.Error()}
}

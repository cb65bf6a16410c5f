package parser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/cwbudde/algo-beat/beat"
)

type gainPlugin struct {
	gain   float64
	inited bool
	closed bool
}

func (g *gainPlugin) Name() string    { return "gain" }
func (g *gainPlugin) Version() string { return "1.0" }

func (g *gainPlugin) Init(ctx context.Context) error {
	g.inited = true
	return nil
}

func (g *gainPlugin) Close() error {
	g.closed = true
	return nil
}

func (g *gainPlugin) TransformAudio(ctx context.Context, samples []float64) ([]float64, error) {
	out := make([]float64, len(samples))
	for i, v := range samples {
		out[i] = v * g.gain
	}
	return out, nil
}

type halvePlugin struct{}

func (halvePlugin) Name() string    { return "halve" }
func (halvePlugin) Version() string { return "1.0" }

func (halvePlugin) TransformCandidates(ctx context.Context, candidates []beat.Candidate) ([]beat.Candidate, error) {
	return candidates[:len(candidates)/2], nil
}

type failingPlugin struct {
	failInit bool
}

func (failingPlugin) Name() string    { return "broken" }
func (failingPlugin) Version() string { return "0.1" }

func (f failingPlugin) Init(ctx context.Context) error {
	if f.failInit {
		return fmt.Errorf("bad state")
	}
	return nil
}

func (failingPlugin) TransformAudio(ctx context.Context, samples []float64) ([]float64, error) {
	return nil, fmt.Errorf("transform exploded")
}

func TestPluginLifecycle(t *testing.T) {
	g := &gainPlugin{gain: 1.0}
	p := newTestParser(t, WithPlugins(g))

	samples := clickTrack(beatTimes(120, 2), 2.0, 0.02, 21)
	if _, err := p.ParseBuffer(context.Background(), samples, testRate, beat.ParseOptions{}); err != nil {
		t.Fatalf("ParseBuffer failed: %v", err)
	}
	if !g.inited {
		t.Fatalf("plugin Init must run before the first parse")
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !g.closed {
		t.Fatalf("plugin Close must run at teardown")
	}
}

func TestPluginNamesInMetadata(t *testing.T) {
	p := newTestParser(t, WithPlugins(&gainPlugin{gain: 1.0}, halvePlugin{}))
	samples := clickTrack(beatTimes(120, 2), 2.0, 0.02, 22)
	result, err := p.ParseBuffer(context.Background(), samples, testRate, beat.ParseOptions{})
	if err != nil {
		t.Fatalf("ParseBuffer failed: %v", err)
	}
	if len(result.Metadata.Plugins) != 2 {
		t.Fatalf("expected 2 plugin entries, got %v", result.Metadata.Plugins)
	}
	if result.Metadata.Plugins[0] != "gain@1.0" {
		t.Fatalf("plugin entry wrong: %q", result.Metadata.Plugins[0])
	}
}

func TestCandidateHookReducesSelection(t *testing.T) {
	samples := clickTrack(beatTimes(120, 4), 4.0, 0.02, 23)

	plain := newTestParser(t)
	base, err := plain.ParseBuffer(context.Background(), samples, testRate, beat.ParseOptions{TargetCount: 10})
	if err != nil {
		t.Fatalf("ParseBuffer failed: %v", err)
	}

	hooked := newTestParser(t, WithPlugins(halvePlugin{}))
	halved, err := hooked.ParseBuffer(context.Background(), samples, testRate, beat.ParseOptions{TargetCount: 10})
	if err != nil {
		t.Fatalf("hooked ParseBuffer failed: %v", err)
	}
	if len(halved.Beats) > len(base.Beats) {
		t.Fatalf("dropping half the candidates must not grow the selection: %d vs %d", len(halved.Beats), len(base.Beats))
	}
}

func TestPluginFailureAbortsParse(t *testing.T) {
	p := newTestParser(t, WithPlugins(failingPlugin{}))
	samples := clickTrack(beatTimes(120, 2), 2.0, 0.02, 24)
	_, err := p.ParseBuffer(context.Background(), samples, testRate, beat.ParseOptions{})
	if !errors.Is(err, beat.ErrPluginFailure) {
		t.Fatalf("expected ErrPluginFailure, got %v", err)
	}
	if !strings.Contains(err.Error(), "broken") {
		t.Fatalf("failure must name the plugin: %q", err.Error())
	}
}

func TestPluginInitFailureFailsParser(t *testing.T) {
	p := newTestParser(t, WithPlugins(failingPlugin{failInit: true}))
	samples := clickTrack(beatTimes(120, 2), 2.0, 0.02, 25)
	_, err := p.ParseBuffer(context.Background(), samples, testRate, beat.ParseOptions{})
	if !errors.Is(err, beat.ErrPluginFailure) {
		t.Fatalf("expected ErrPluginFailure from Init, got %v", err)
	}
}

package waveform

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dougsko/siggen/pkg/hardware"
	"github.com/dougsko/siggen/pkg/logging"
	"github.com/dougsko/siggen/pkg/params"
	"hz.tools/sdr"
)

// DefaultBufferSize is the number of samples moved per data path step
const DefaultBufferSize = 8192

// idlePoll is how often the data path checks for a variant while the
// graph is uninitialized
const idlePoll = 10 * time.Millisecond

// Graph holds the active variant and its connections to the sink. The
// reconfiguration lock is held for a whole rebuild and while the data
// path fills a buffer, so samples never come from a half-built graph.
// The sink write happens outside it, under writeMutex, so a paced sink
// does not stall reconfiguration.
type Graph struct {
	mutex      sync.Mutex
	writeMutex sync.Mutex
	sink       hardware.SampleWriter
	variant Variant
	edges   []Edge
	params  Params

	buffer   sdr.SamplesC64
	tap      func(sdr.SamplesC64)
	rebuilds int
}

// GraphOption configures a Graph
type GraphOption func(*Graph)

// WithBufferSize sets the samples per data path step
func WithBufferSize(n int) GraphOption {
	return func(g *Graph) {
		if n > 0 {
			g.buffer = make(sdr.SamplesC64, n)
		}
	}
}

// WithTap receives a view of every buffer written to the sink. The slice
// is only valid for the duration of the call.
func WithTap(fn func(sdr.SamplesC64)) GraphOption {
	return func(g *Graph) {
		g.tap = fn
	}
}

// NewGraph creates an uninitialized graph feeding sink
func NewGraph(sink hardware.SampleWriter, opts ...GraphOption) *Graph {
	g := &Graph{
		sink:   sink,
		buffer: make(sdr.SamplesC64, DefaultBufferSize),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Rebuild replaces the active variant with a new one of type t. An
// unknown type leaves the graph untouched.
func (g *Graph) Rebuild(t Type, p Params) error {
	if !t.Valid() {
		return &UnknownWaveformError{Type: string(t)}
	}

	g.mutex.Lock()
	defer g.mutex.Unlock()
	return g.rebuildLocked(t, p)
}

// ForceRebuild rebuilds the active variant with new parameters
func (g *Graph) ForceRebuild(p Params) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if g.variant == nil {
		return ErrUninitialized
	}
	return g.rebuildLocked(g.variant.Type(), p)
}

func (g *Graph) rebuildLocked(t Type, p Params) error {
	g.disconnectAll()

	v, err := build(t, p)
	if err != nil {
		return err
	}

	g.variant = v
	g.params = p
	g.edges = append(v.Edges(), Edge{From: v.Output(), To: NodeSink})
	g.rebuilds++

	logging.Debugf("waveform", "Set baseband modulation to: %s", t.Description())
	switch t {
	case Sine:
		logging.Debugf("waveform", "Modulation frequency: %gHz, initial phase: %g", p.Freq, p.Offset)
	case TwoTone:
		logging.Debugf("waveform", "Tone 1: %gHz, tone 2: %gHz", p.Freq, p.Freq2)
	case Sweep:
		logging.Debugf("waveform", "Sweeping across %gHz to %gHz at %gHz", -p.Freq/2, p.Freq/2, p.Freq2)
	}
	logging.Debugf("waveform", "TX amplitude: %g", p.Amplitude)
	return nil
}

// disconnectAll tears down the active variant and removes every edge.
// Must be called with the lock held.
func (g *Graph) disconnectAll() {
	if g.variant != nil {
		g.variant.teardown()
		g.variant = nil
	}
	g.edges = nil
}

// Update routes a live parameter change to the active variant. It
// returns false when the variant needs a rebuild to honor the change.
// With no active variant there is nothing to update.
func (g *Graph) Update(key params.Key, v float64) bool {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if g.variant == nil {
		return true
	}
	handled := g.variant.Update(key, v)
	if handled {
		g.params.set(key, v)
	}
	return handled
}

func (p *Params) set(key params.Key, v float64) {
	switch key {
	case params.SampleRate:
		p.SampleRate = v
	case params.Amplitude:
		p.Amplitude = v
	case params.WaveformFreq:
		p.Freq = v
	case params.Waveform2Freq:
		p.Freq2 = v
	case params.WaveformOffset:
		p.Offset = v
	}
}

// Type returns the active type, or "" when uninitialized
func (g *Graph) Type() Type {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	if g.variant == nil {
		return ""
	}
	return g.variant.Type()
}

// Params returns the parameters the active variant runs with
func (g *Graph) Params() Params {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	return g.params
}

// Describe reports the live block settings of the active variant
func (g *Graph) Describe() map[string]float64 {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	if g.variant == nil {
		return nil
	}
	return g.variant.Describe()
}

// Rebuilds returns how many times a variant has been built
func (g *Graph) Rebuilds() int {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	return g.rebuilds
}

// Connections returns a copy of every edge in the graph
func (g *Graph) Connections() []Edge {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	return append([]Edge(nil), g.edges...)
}

// SinkConnections counts edges into the sink
func (g *Graph) SinkConnections() int {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	n := 0
	for _, e := range g.edges {
		if e.To == NodeSink {
			n++
		}
	}
	return n
}

// Step moves one buffer from the active variant to the sink. It returns
// false without writing when the graph is uninitialized.
func (g *Graph) Step() (bool, error) {
	return g.step(context.Background())
}

func (g *Graph) step(ctx context.Context) (bool, error) {
	g.writeMutex.Lock()
	defer g.writeMutex.Unlock()

	g.mutex.Lock()
	if g.variant == nil {
		g.mutex.Unlock()
		return false, nil
	}
	g.variant.Work(g.buffer)
	g.mutex.Unlock()

	var err error
	if cw, ok := g.sink.(hardware.ContextWriter); ok {
		_, err = cw.WriteContext(ctx, g.buffer)
	} else {
		_, err = g.sink.Write(g.buffer)
	}
	if err != nil {
		return true, fmt.Errorf("sink write: %w", err)
	}
	if g.tap != nil {
		g.tap(g.buffer)
	}
	return true, nil
}

// Run is the data path. It moves samples until ctx is cancelled or the
// sink fails.
func (g *Graph) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		wrote, err := g.step(ctx)
		if err != nil {
			return err
		}
		if !wrote {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(idlePoll):
			}
		}
	}
}

// Teardown removes the active variant, leaving the graph uninitialized
func (g *Graph) Teardown() {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	g.disconnectAll()
}

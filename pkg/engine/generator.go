package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dougsko/siggen/pkg/hardware"
	"github.com/dougsko/siggen/pkg/logging"
	"github.com/dougsko/siggen/pkg/params"
	"github.com/dougsko/siggen/pkg/waveform"
	"hz.tools/sdr"
)

// ErrRunning is returned by Start when the data path is already running
var ErrRunning = errors.New("generator already running")

// Generator ties the parameter store to the hardware sink and the
// waveform graph. Every write from outside goes through one mutex, so a
// write and all the reactions it triggers finish before the next starts.
type Generator struct {
	mutex sync.Mutex
	store *params.Store
	sink  hardware.Sink
	graph *waveform.Graph
	seed  uint64

	recorder Recorder
	tap      func(sdr.SamplesC64)

	runMutex  sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	runErr    error
	startTime time.Time
}

// New builds a generator on sink and applies every initial value. The
// waveform type is applied last. Any error aborts construction; the caller
// still owns sink.
func New(sink hardware.Sink, opts Options, options ...Option) (*Generator, error) {
	if opts.Type == "" {
		opts.Type = waveform.Sine
	}
	if _, err := waveform.ParseType(string(opts.Type)); err != nil {
		return nil, err
	}
	seed := opts.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	g := &Generator{
		store: params.NewStore(),
		sink:  sink,
		seed:  seed,
	}
	for _, opt := range options {
		opt(g)
	}

	var graphOpts []waveform.GraphOption
	if opts.BufferSize > 0 {
		graphOpts = append(graphOpts, waveform.WithBufferSize(opts.BufferSize))
	}
	if g.tap != nil {
		graphOpts = append(graphOpts, waveform.WithTap(g.tap))
	}
	g.graph = waveform.NewGraph(sink, graphOpts...)

	if err := g.setupSink(opts); err != nil {
		return nil, err
	}
	if err := g.seedValues(opts); err != nil {
		return nil, err
	}
	if err := g.subscribe(); err != nil {
		return nil, err
	}

	// push every value through its reaction, then the type
	for _, key := range params.ApplyOrder() {
		if err := g.store.Reapply(key); err != nil {
			return nil, fmt.Errorf("apply %s: %w", key, err)
		}
	}
	if err := g.store.Set(params.Type, string(opts.Type)); err != nil {
		return nil, fmt.Errorf("apply %s: %w", params.Type, err)
	}

	return g, nil
}

func (g *Generator) setupSink(opts Options) error {
	if _, err := g.sink.SetSampleRate(opts.SampleRate); err != nil {
		return err
	}
	if opts.Antenna != "" {
		if _, err := g.sink.SetAntenna(opts.Antenna); err != nil {
			return err
		}
	}

	publish := map[params.Key]params.Getter{
		params.FreqRange: func() (any, error) {
			r, err := g.sink.FrequencyRange()
			return params.RangeOf(r), err
		},
		params.GainRange: func() (any, error) {
			r, err := g.sink.GainRange(hardware.StageRF)
			return params.RangeOf(r), err
		},
		params.IFGainRange: func() (any, error) {
			r, err := g.sink.GainRange(hardware.StageIF)
			return params.RangeOf(r), err
		},
		params.BandwidthRange: func() (any, error) {
			r, err := g.sink.BandwidthRange()
			return params.RangeOf(r), err
		},
		params.AmplitudeRange: func() (any, error) {
			return params.Range{Low: 0, High: 1}, nil
		},
		params.Gain: func() (any, error) {
			return g.sink.Gain(hardware.StageRF)
		},
		params.IFGain: func() (any, error) {
			return g.sink.Gain(hardware.StageIF)
		},
		params.Bandwidth: func() (any, error) {
			return g.sink.Bandwidth()
		},
	}
	for key, fn := range publish {
		if err := g.store.Publish(key, fn); err != nil {
			return err
		}
	}
	return nil
}

func (g *Generator) seedValues(opts Options) error {
	initial := []struct {
		key   params.Key
		value any
	}{
		{params.SampleRate, opts.SampleRate},
		{params.Gain, optional(opts.Gain)},
		{params.IFGain, optional(opts.IFGain)},
		{params.Bandwidth, optional(opts.Bandwidth)},
		{params.TxFreq, optional(opts.TxFreq)},
		{params.FreqCorr, optionalInt(opts.FreqCorr)},
		{params.Amplitude, opts.Amplitude},
		{params.WaveformFreq, opts.WaveformFreq},
		{params.WaveformOffset, opts.Offset},
		{params.Waveform2Freq, optional(opts.Waveform2Freq)},
	}
	for _, v := range initial {
		if err := g.store.Set(v.key, v.value); err != nil {
			return fmt.Errorf("initial %s: %w", v.key, err)
		}
	}
	return nil
}

// Set writes a value on behalf of an external actor
func (g *Generator) Set(key params.Key, v any) error {
	return g.SetFrom("api", key, v)
}

// SetFrom writes a value and journals it under source
func (g *Generator) SetFrom(source string, key params.Key, v any) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	err := g.set(key, v)
	g.record(source, key, v, err)
	return err
}

func (g *Generator) set(key params.Key, v any) error {
	// reject bad type names before they reach the store
	if key == params.Type {
		if s, ok := v.(string); ok {
			if _, err := waveform.ParseType(s); err != nil {
				return err
			}
		}
	}
	prev, had := g.store.Stored(key)
	err := g.store.Set(key, v)
	if errors.Is(err, hardware.ErrHardware) {
		// the device kept its old setting, so the store does too
		g.store.Restore(key, prev, had)
		logging.Warnf("engine", "%s rejected by device, keeping %s", key, params.FormatValue(prev))
	}
	return err
}

// Apply writes a set of values in the startup order, type last. It stops
// at the first error.
func (g *Generator) Apply(source string, values map[params.Key]any) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	keys := append(params.ApplyOrder(), params.Type)
	for _, key := range keys {
		v, ok := values[key]
		if !ok {
			continue
		}
		err := g.set(key, v)
		g.record(source, key, v, err)
		if err != nil {
			return fmt.Errorf("apply %s: %w", key, err)
		}
	}
	return nil
}

func (g *Generator) record(source string, key params.Key, v any, err error) {
	if g.recorder == nil {
		return
	}
	change := params.Change{
		Time:   time.Now(),
		Key:    key,
		Value:  params.FormatValue(v),
		Source: source,
	}
	if err != nil {
		change.Error = err.Error()
	}
	if rerr := g.recorder.Record(change); rerr != nil {
		logging.Warnf("engine", "failed to record change of %s: %v", key, rerr)
	}
}

// Get returns the current value of key
func (g *Generator) Get(key params.Key) (any, error) {
	return g.store.Get(key)
}

// Params returns every initialized value
func (g *Generator) Params() map[params.Key]any {
	return g.store.Snapshot()
}

// ForceRebuild rebuilds the active waveform from the current values
func (g *Generator) ForceRebuild() error {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	return g.forceRebuild()
}

// Graph returns the waveform graph
func (g *Generator) Graph() *waveform.Graph {
	return g.graph
}

// Sink returns the hardware sink
func (g *Generator) Sink() hardware.Sink {
	return g.sink
}

// Start launches the data path
func (g *Generator) Start(ctx context.Context) error {
	g.runMutex.Lock()
	defer g.runMutex.Unlock()

	if g.done != nil {
		return ErrRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	g.cancel = cancel
	g.done = done
	g.runErr = nil
	g.startTime = time.Now()

	go func() {
		defer close(done)
		if err := g.graph.Run(ctx); err != nil {
			logging.Errorf("engine", "data path stopped: %v", err)
			g.runMutex.Lock()
			g.runErr = err
			g.runMutex.Unlock()
		}
	}()

	logging.Infof("engine", "transmitting %s", g.graph.Type().Description())
	return nil
}

// Running reports whether the data path is active
func (g *Generator) Running() bool {
	g.runMutex.Lock()
	done := g.done
	g.runMutex.Unlock()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

// Wait blocks until the data path exits and returns its error
func (g *Generator) Wait() error {
	g.runMutex.Lock()
	done := g.done
	g.runMutex.Unlock()
	if done == nil {
		return nil
	}
	<-done

	g.runMutex.Lock()
	defer g.runMutex.Unlock()
	return g.runErr
}

// Stop halts the data path and waits for it to exit
func (g *Generator) Stop() error {
	g.runMutex.Lock()
	cancel := g.cancel
	g.runMutex.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	err := g.Wait()

	g.runMutex.Lock()
	g.cancel = nil
	g.done = nil
	g.runMutex.Unlock()
	return err
}

// Close stops the data path, tears down the graph and closes the sink
func (g *Generator) Close() error {
	err := g.Stop()
	g.graph.Teardown()
	if cerr := g.sink.Close(); err == nil {
		err = cerr
	}
	return err
}

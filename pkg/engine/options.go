package engine

import (
	"github.com/dougsko/siggen/pkg/params"
	"github.com/dougsko/siggen/pkg/waveform"
	"hz.tools/sdr"
)

// Options are the initial values the generator is constructed with. Nil
// pointers select the automatic default.
type Options struct {
	Antenna       string
	SampleRate    float64
	Gain          *float64
	IFGain        *float64
	Bandwidth     *float64
	TxFreq        *float64
	FreqCorr      *int
	WaveformFreq  float64
	Waveform2Freq *float64
	Offset        float64
	Amplitude     float64
	Type          waveform.Type
	BufferSize    int
	Seed          uint64
}

// DefaultOptions match the command line defaults
func DefaultOptions() Options {
	return Options{
		SampleRate: 1e6,
		Amplitude:  0.3,
		Type:       waveform.Sine,
		BufferSize: waveform.DefaultBufferSize,
	}
}

// Float returns a pointer to v, for optional Options fields
func Float(v float64) *float64 {
	return &v
}

// Int returns a pointer to v, for optional Options fields
func Int(v int) *int {
	return &v
}

// Recorder journals external parameter writes
type Recorder interface {
	Record(change params.Change) error
}

// Option configures a Generator
type Option func(*Generator)

// WithRecorder journals every external write
func WithRecorder(r Recorder) Option {
	return func(g *Generator) {
		g.recorder = r
	}
}

// WithTap receives every buffer written to the sink
func WithTap(fn func(sdr.SamplesC64)) Option {
	return func(g *Generator) {
		g.tap = fn
	}
}

func optional(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func optionalInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

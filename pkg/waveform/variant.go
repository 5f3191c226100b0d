package waveform

import (
	"math"

	"github.com/dougsko/siggen/pkg/dsp"
	"github.com/dougsko/siggen/pkg/params"
	"hz.tools/sdr"
)

// Block names used in the connection list
const (
	NodeSink          = "sink"
	NodeSigSource     = "sig_source"
	NodeSigSource1    = "sig_source_1"
	NodeSigSource2    = "sig_source_2"
	NodeNoiseSource   = "noise_source"
	NodeAdd           = "add"
	NodeTriSource     = "tri_source"
	NodeFreqModulator = "freq_modulator"
	NodeMultiply      = "multiply_const"
)

// DefaultSweepRate is the triangle rate used when no sweep rate is set
const DefaultSweepRate = 0.1

// Edge is a connection between two blocks. Port is the input index on To.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
	Port int    `json:"port"`
}

// Params are the resolved values a variant is built from
type Params struct {
	SampleRate float64
	Freq       float64 // waveform_freq; sweep width for Sweep
	Freq2      float64 // waveform2_freq; sweep rate for Sweep
	Amplitude  float64
	Offset     float64 // phase offset in radians
	Seed       uint64
}

// Variant is one waveform mode. Implementations live in this package only.
type Variant interface {
	Type() Type

	// Update applies a live parameter change. It returns false when the
	// change cannot be applied without a rebuild.
	Update(key params.Key, v float64) bool

	// Work fills out with the next samples
	Work(out sdr.SamplesC64)

	// Output names the block wired to the sink
	Output() string

	// Edges lists the internal connections of the variant
	Edges() []Edge

	// Describe reports the live block settings
	Describe() map[string]float64

	teardown()
}

func build(t Type, p Params) (Variant, error) {
	switch t {
	case Sine, Const:
		shape := dsp.ShapeSine
		if t == Const {
			shape = dsp.ShapeConst
		}
		return &toneVariant{
			kind: t,
			src:  dsp.NewSigSource(p.SampleRate, shape, p.Freq, p.Amplitude, p.Offset),
		}, nil
	case Gaussian, Uniform:
		dist := dsp.Gaussian
		if t == Uniform {
			dist = dsp.Uniform
		}
		return &noiseVariant{
			kind: t,
			src:  dsp.NewNoiseSource(dist, p.Amplitude, p.Seed),
		}, nil
	case TwoTone:
		v := &twoToneVariant{
			src1: dsp.NewSigSource(p.SampleRate, dsp.ShapeSine, p.Freq, p.Amplitude/2, 0),
			src2: dsp.NewSigSource(p.SampleRate, dsp.ShapeSine, p.Freq2, p.Amplitude/2, 0),
		}
		v.add = dsp.NewAdd(v.src1, v.src2)
		return v, nil
	case Sweep:
		v := &sweepVariant{width: p.Freq, sampleRate: p.SampleRate}
		v.tri = dsp.NewTriangleSource(p.SampleRate, p.Freq2, 1, -0.5)
		v.fm = dsp.NewFrequencyModulator(v.tri, v.sensitivity())
		v.mult = dsp.NewMultiplyConst(v.fm, p.Amplitude)
		return v, nil
	default:
		return nil, &UnknownWaveformError{Type: string(t)}
	}
}

// toneVariant covers Sine and Const, one complex source
type toneVariant struct {
	kind Type
	src  *dsp.SigSource
}

func (v *toneVariant) Type() Type     { return v.kind }
func (v *toneVariant) Output() string { return NodeSigSource }
func (v *toneVariant) Edges() []Edge  { return nil }

func (v *toneVariant) Work(out sdr.SamplesC64) { v.src.Work(out) }

func (v *toneVariant) Update(key params.Key, x float64) bool {
	switch key {
	case params.SampleRate:
		v.src.SetSamplingFreq(x)
	case params.Amplitude:
		v.src.SetAmplitude(x)
	case params.WaveformFreq:
		v.src.SetFrequency(x)
	case params.WaveformOffset:
		v.src.SetOffset(x)
	}
	return true
}

func (v *toneVariant) Describe() map[string]float64 {
	return map[string]float64{
		"sample_rate": v.src.SampleRate(),
		"frequency":   v.src.Frequency(),
		"amplitude":   v.src.Amplitude(),
	}
}

func (v *toneVariant) teardown() { v.src = nil }

// noiseVariant covers Gaussian and Uniform, one noise source
type noiseVariant struct {
	kind Type
	src  *dsp.NoiseSource
}

func (v *noiseVariant) Type() Type     { return v.kind }
func (v *noiseVariant) Output() string { return NodeNoiseSource }
func (v *noiseVariant) Edges() []Edge  { return nil }

func (v *noiseVariant) Work(out sdr.SamplesC64) { v.src.Work(out) }

// Update ignores everything but amplitude
func (v *noiseVariant) Update(key params.Key, x float64) bool {
	if key == params.Amplitude {
		v.src.SetAmplitude(x)
	}
	return true
}

func (v *noiseVariant) Describe() map[string]float64 {
	return map[string]float64{"amplitude": v.src.Amplitude()}
}

func (v *noiseVariant) teardown() { v.src = nil }

// twoToneVariant sums two sines at half amplitude each
type twoToneVariant struct {
	src1, src2 *dsp.SigSource
	add        *dsp.Add
}

func (v *twoToneVariant) Type() Type     { return TwoTone }
func (v *twoToneVariant) Output() string { return NodeAdd }

func (v *twoToneVariant) Edges() []Edge {
	return []Edge{
		{From: NodeSigSource1, To: NodeAdd, Port: 0},
		{From: NodeSigSource2, To: NodeAdd, Port: 1},
	}
}

func (v *twoToneVariant) Work(out sdr.SamplesC64) { v.add.Work(out) }

func (v *twoToneVariant) Update(key params.Key, x float64) bool {
	switch key {
	case params.SampleRate:
		v.src1.SetSamplingFreq(x)
		v.src2.SetSamplingFreq(x)
	case params.Amplitude:
		v.src1.SetAmplitude(x / 2)
		v.src2.SetAmplitude(x / 2)
	case params.WaveformFreq:
		v.src1.SetFrequency(x)
	case params.Waveform2Freq:
		v.src2.SetFrequency(x)
	}
	return true
}

func (v *twoToneVariant) Describe() map[string]float64 {
	return map[string]float64{
		"sample_rate": v.src1.SampleRate(),
		"tone1":       v.src1.Frequency(),
		"tone2":       v.src2.Frequency(),
		"amplitude":   v.src1.Amplitude() + v.src2.Amplitude(),
	}
}

func (v *twoToneVariant) teardown() {
	v.src1, v.src2, v.add = nil, nil, nil
}

// sweepVariant drives a frequency modulator with a triangle so the output
// sweeps width Hz centered on the carrier at the triangle rate.
type sweepVariant struct {
	width      float64
	sampleRate float64

	tri  *dsp.TriangleSource
	fm   *dsp.FrequencyModulator
	mult *dsp.MultiplyConst
}

func (v *sweepVariant) sensitivity() float64 {
	if v.sampleRate <= 0 {
		return 0
	}
	return v.width * 2 * math.Pi / v.sampleRate
}

func (v *sweepVariant) Type() Type     { return Sweep }
func (v *sweepVariant) Output() string { return NodeMultiply }

func (v *sweepVariant) Edges() []Edge {
	return []Edge{
		{From: NodeTriSource, To: NodeFreqModulator},
		{From: NodeFreqModulator, To: NodeMultiply},
	}
}

func (v *sweepVariant) Work(out sdr.SamplesC64) { v.mult.Work(out) }

// Update cannot change the sweep width in place; the modulator
// sensitivity is fixed at build time except for sample rate changes.
func (v *sweepVariant) Update(key params.Key, x float64) bool {
	switch key {
	case params.SampleRate:
		v.sampleRate = x
		v.tri.SetSamplingFreq(x)
		v.fm.SetSensitivity(v.sensitivity())
	case params.Amplitude:
		v.mult.SetK(x)
	case params.Waveform2Freq:
		v.tri.SetFrequency(x)
	case params.WaveformFreq:
		return false
	}
	return true
}

func (v *sweepVariant) Describe() map[string]float64 {
	return map[string]float64{
		"sample_rate": v.sampleRate,
		"width":       v.width,
		"rate":        v.tri.Frequency(),
		"sensitivity": v.fm.Sensitivity(),
		"amplitude":   v.mult.K(),
	}
}

func (v *sweepVariant) teardown() {
	v.tri, v.fm, v.mult = nil, nil, nil
}

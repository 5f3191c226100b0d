// Package dsp contains the small signal-processing blocks the waveform
// graph is built from. Blocks are pulled: a consumer hands a buffer to
// Work and the block fills it. Blocks are not safe for concurrent use.
package dsp

import (
	"math"

	"hz.tools/sdr"
)

const tau = 2 * math.Pi

// ComplexSource produces complex baseband samples
type ComplexSource interface {
	Work(out sdr.SamplesC64)
}

// FloatSource produces real samples
type FloatSource interface {
	WorkFloat(out []float32)
}

// Add sums two complex inputs
type Add struct {
	a, b    ComplexSource
	scratch sdr.SamplesC64
}

// NewAdd creates an adder over a and b
func NewAdd(a, b ComplexSource) *Add {
	return &Add{a: a, b: b}
}

// Work implements ComplexSource
func (s *Add) Work(out sdr.SamplesC64) {
	if cap(s.scratch) < len(out) {
		s.scratch = make(sdr.SamplesC64, len(out))
	}
	tmp := s.scratch[:len(out)]
	s.a.Work(out)
	s.b.Work(tmp)
	for i := range out {
		out[i] += tmp[i]
	}
}

// MultiplyConst scales a complex input by a real constant
type MultiplyConst struct {
	in ComplexSource
	k  float32
}

// NewMultiplyConst creates a multiplier with gain k
func NewMultiplyConst(in ComplexSource, k float64) *MultiplyConst {
	return &MultiplyConst{in: in, k: float32(k)}
}

// SetK changes the gain
func (m *MultiplyConst) SetK(k float64) {
	m.k = float32(k)
}

// K returns the gain
func (m *MultiplyConst) K() float64 {
	return float64(m.k)
}

// Work implements ComplexSource
func (m *MultiplyConst) Work(out sdr.SamplesC64) {
	m.in.Work(out)
	k := complex(m.k, 0)
	for i := range out {
		out[i] *= k
	}
}

// FrequencyModulator integrates a real input into phase and emits the
// unit phasor: phase[n] = phase[n-1] + sensitivity*x[n].
type FrequencyModulator struct {
	in          FloatSource
	sensitivity float64
	phase       float64
	scratch     []float32
}

// NewFrequencyModulator creates a modulator with the given sensitivity in
// radians per sample per unit input
func NewFrequencyModulator(in FloatSource, sensitivity float64) *FrequencyModulator {
	return &FrequencyModulator{in: in, sensitivity: sensitivity}
}

// SetSensitivity changes the modulator sensitivity
func (f *FrequencyModulator) SetSensitivity(sensitivity float64) {
	f.sensitivity = sensitivity
}

// Sensitivity returns the modulator sensitivity
func (f *FrequencyModulator) Sensitivity() float64 {
	return f.sensitivity
}

// Work implements ComplexSource
func (f *FrequencyModulator) Work(out sdr.SamplesC64) {
	if cap(f.scratch) < len(out) {
		f.scratch = make([]float32, len(out))
	}
	x := f.scratch[:len(out)]
	f.in.WorkFloat(x)
	for i := range out {
		f.phase = math.Mod(f.phase+f.sensitivity*float64(x[i]), tau)
		s, c := math.Sincos(f.phase)
		out[i] = complex(float32(c), float32(s))
	}
}

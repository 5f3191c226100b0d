package dsp

import (
	"math"

	"hz.tools/sdr"
)

// Shape selects the output of a SigSource
type Shape int

const (
	ShapeSine Shape = iota
	ShapeConst
)

// SigSource is a complex oscillator:
//
//	sine:  amplitude * exp(j*(2*pi*freq*n/sampleRate + offset))
//	const: amplitude * exp(j*offset)
//
// Changing the frequency keeps the accumulated phase so the output stays
// continuous.
type SigSource struct {
	shape      Shape
	sampleRate float64
	freq       float64
	amplitude  float64
	offset     float64

	phase float64
	omega float64
}

// NewSigSource creates an oscillator
func NewSigSource(sampleRate float64, shape Shape, freq, amplitude, offset float64) *SigSource {
	s := &SigSource{
		shape:      shape,
		sampleRate: sampleRate,
		freq:       freq,
		amplitude:  amplitude,
		offset:     offset,
	}
	s.update()
	return s
}

func (s *SigSource) update() {
	if s.sampleRate <= 0 {
		s.omega = 0
		return
	}
	s.omega = tau * s.freq / s.sampleRate
}

// SetSamplingFreq changes the sample rate
func (s *SigSource) SetSamplingFreq(rate float64) {
	s.sampleRate = rate
	s.update()
}

// SetFrequency changes the tone frequency
func (s *SigSource) SetFrequency(freq float64) {
	s.freq = freq
	s.update()
}

// SetAmplitude changes the output amplitude
func (s *SigSource) SetAmplitude(amplitude float64) {
	s.amplitude = amplitude
}

// SetOffset changes the phase offset in radians
func (s *SigSource) SetOffset(offset float64) {
	s.offset = offset
}

// Frequency returns the tone frequency
func (s *SigSource) Frequency() float64 { return s.freq }

// Amplitude returns the output amplitude
func (s *SigSource) Amplitude() float64 { return s.amplitude }

// SampleRate returns the sample rate
func (s *SigSource) SampleRate() float64 { return s.sampleRate }

// Work implements ComplexSource
func (s *SigSource) Work(out sdr.SamplesC64) {
	if s.shape == ShapeConst {
		sin, cos := math.Sincos(s.offset)
		v := complex(float32(s.amplitude*cos), float32(s.amplitude*sin))
		for i := range out {
			out[i] = v
		}
		return
	}
	for i := range out {
		sin, cos := math.Sincos(s.phase + s.offset)
		out[i] = complex(float32(s.amplitude*cos), float32(s.amplitude*sin))
		s.phase = math.Mod(s.phase+s.omega, tau)
	}
}

// TriangleSource is a real triangle wave between offset and
// offset+amplitude with the given period frequency.
type TriangleSource struct {
	sampleRate float64
	freq       float64
	amplitude  float64
	offset     float64

	t float64 // position within the period, [0, 1)
}

// NewTriangleSource creates a triangle generator
func NewTriangleSource(sampleRate, freq, amplitude, offset float64) *TriangleSource {
	return &TriangleSource{
		sampleRate: sampleRate,
		freq:       freq,
		amplitude:  amplitude,
		offset:     offset,
	}
}

// SetSamplingFreq changes the sample rate
func (s *TriangleSource) SetSamplingFreq(rate float64) { s.sampleRate = rate }

// SetFrequency changes the period frequency
func (s *TriangleSource) SetFrequency(freq float64) { s.freq = freq }

// Frequency returns the period frequency
func (s *TriangleSource) Frequency() float64 { return s.freq }

// WorkFloat implements FloatSource
func (s *TriangleSource) WorkFloat(out []float32) {
	step := 0.0
	if s.sampleRate > 0 {
		step = s.freq / s.sampleRate
	}
	for i := range out {
		tri := 1 - math.Abs(2*s.t-1)
		out[i] = float32(s.amplitude*tri + s.offset)
		s.t += step
		s.t -= math.Floor(s.t)
	}
}

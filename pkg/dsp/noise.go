package dsp

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
	"hz.tools/sdr"
)

// Distribution selects the noise statistics
type Distribution int

const (
	Gaussian Distribution = iota
	Uniform
)

// NoiseSource emits complex noise. Gaussian noise has total power
// amplitude^2 split evenly between I and Q; uniform noise draws each
// component from [-amplitude, amplitude).
type NoiseSource struct {
	dist      Distribution
	amplitude float64
	sample    func() float64
}

// NewNoiseSource creates a noise generator with a fixed seed
func NewNoiseSource(dist Distribution, amplitude float64, seed uint64) *NoiseSource {
	src := rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
	n := &NoiseSource{dist: dist, amplitude: amplitude}
	switch dist {
	case Uniform:
		n.sample = distuv.Uniform{Min: -1, Max: 1, Src: src}.Rand
	default:
		n.sample = distuv.Normal{Mu: 0, Sigma: math.Sqrt(0.5), Src: src}.Rand
	}
	return n
}

// SetAmplitude changes the noise amplitude
func (n *NoiseSource) SetAmplitude(amplitude float64) {
	n.amplitude = amplitude
}

// Amplitude returns the noise amplitude
func (n *NoiseSource) Amplitude() float64 {
	return n.amplitude
}

// Work implements ComplexSource
func (n *NoiseSource) Work(out sdr.SamplesC64) {
	for i := range out {
		re := n.amplitude * n.sample()
		im := n.amplitude * n.sample()
		out[i] = complex(float32(re), float32(im))
	}
}

package dsp

import (
	"math"
	"math/cmplx"
	"testing"

	"github.com/mjibson/go-dsp/fft"
	"hz.tools/sdr"
)

// peakBin returns the FFT bin with the most energy, in signed form
func peakBin(samples sdr.SamplesC64) int {
	in := make([]complex128, len(samples))
	for i, s := range samples {
		in[i] = complex128(s)
	}
	out := fft.FFT(in)
	best, bestMag := 0, 0.0
	for i, v := range out {
		if m := cmplx.Abs(v); m > bestMag {
			best, bestMag = i, m
		}
	}
	if best > len(out)/2 {
		best -= len(out)
	}
	return best
}

func TestSigSource(t *testing.T) {
	const rate = 1024.0

	t.Run("Tone Lands In Expected Bin", func(t *testing.T) {
		for _, freq := range []float64{64, -100, 0} {
			src := NewSigSource(rate, ShapeSine, freq, 1, 0)
			buf := make(sdr.SamplesC64, 1024)
			src.Work(buf)
			if got := peakBin(buf); got != int(freq) {
				t.Errorf("freq %g: peak bin %d", freq, got)
			}
		}
	})

	t.Run("Amplitude", func(t *testing.T) {
		src := NewSigSource(rate, ShapeSine, 10, 0.3, 0)
		buf := make(sdr.SamplesC64, 256)
		src.Work(buf)
		for i, s := range buf {
			if m := cmplx.Abs(complex128(s)); math.Abs(m-0.3) > 1e-5 {
				t.Fatalf("sample %d magnitude %g", i, m)
			}
		}
	})

	t.Run("Phase Continuous Across Retune", func(t *testing.T) {
		src := NewSigSource(rate, ShapeSine, 10, 1, 0)
		buf := make(sdr.SamplesC64, 100)
		src.Work(buf)
		last := buf[len(buf)-1]
		src.SetFrequency(20)
		src.Work(buf[:1])
		// one step of the old frequency from the last sample
		step := tau * 10 / rate
		want := complex128(last) * cmplx.Exp(complex(0, step))
		if cmplx.Abs(complex128(buf[0])-want) > 1e-4 {
			t.Errorf("Expected %v, got %v", want, buf[0])
		}
	})

	t.Run("Const With Offset", func(t *testing.T) {
		src := NewSigSource(rate, ShapeConst, 1000, 0.5, math.Pi/2)
		buf := make(sdr.SamplesC64, 8)
		src.Work(buf)
		for _, s := range buf {
			if math.Abs(float64(real(s))) > 1e-6 || math.Abs(float64(imag(s))-0.5) > 1e-6 {
				t.Fatalf("Expected 0.5j, got %v", s)
			}
		}
	})
}

func TestTriangleSource(t *testing.T) {
	src := NewTriangleSource(100, 1, 1, -0.5)
	buf := make([]float32, 200)
	src.WorkFloat(buf)

	lo, hi := float32(1), float32(-1)
	for _, v := range buf {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	if lo != -0.5 || hi < 0.49 || hi > 0.5 {
		t.Errorf("Expected range [-0.5, 0.5], got [%g, %g]", lo, hi)
	}
	if buf[0] != -0.5 || math.Abs(float64(buf[100])+0.5) > 1e-6 {
		t.Errorf("Expected period of 100 samples, got %g %g", buf[0], buf[100])
	}
}

func TestFrequencyModulator(t *testing.T) {
	const rate = 1024.0
	// constant input of 0.25 with sensitivity 2*pi*256/rate gives a 64 Hz tone
	in := constFloat(0.25)
	fm := NewFrequencyModulator(in, tau*256/rate)
	buf := make(sdr.SamplesC64, 1024)
	fm.Work(buf)
	if got := peakBin(buf); got != 64 {
		t.Errorf("Expected bin 64, got %d", got)
	}
	for _, s := range buf {
		if m := cmplx.Abs(complex128(s)); math.Abs(m-1) > 1e-5 {
			t.Fatalf("Expected unit magnitude, got %g", m)
		}
	}
}

func TestSweepExcursion(t *testing.T) {
	const rate = 1e4
	const width = 1000.0
	tri := NewTriangleSource(rate, 1, 1, -0.5)
	fm := NewFrequencyModulator(tri, width*tau/rate)
	out := NewMultiplyConst(fm, 0.5)

	buf := make(sdr.SamplesC64, int(rate))
	out.Work(buf)

	// instantaneous frequency from the phase difference
	lo, hi := math.Inf(1), math.Inf(-1)
	for i := 1; i < len(buf); i++ {
		d := cmplx.Phase(complex128(buf[i]) * cmplx.Conj(complex128(buf[i-1])))
		f := d * rate / tau
		lo = math.Min(lo, f)
		hi = math.Max(hi, f)
	}
	if math.Abs(lo+width/2) > 1 || math.Abs(hi-width/2) > 1 {
		t.Errorf("Expected sweep of +/-%g Hz, got [%g, %g]", width/2, lo, hi)
	}
	if m := cmplx.Abs(complex128(buf[10])); math.Abs(m-0.5) > 1e-5 {
		t.Errorf("Expected magnitude 0.5, got %g", m)
	}
}

func TestAdd(t *testing.T) {
	a := NewSigSource(1024, ShapeSine, 32, 0.25, 0)
	b := NewSigSource(1024, ShapeSine, -32, 0.25, 0)
	buf := make(sdr.SamplesC64, 1024)
	NewAdd(a, b).Work(buf)

	in := make([]complex128, len(buf))
	for i, s := range buf {
		in[i] = complex128(s)
	}
	spec := fft.FFT(in)
	pos := cmplx.Abs(spec[32])
	neg := cmplx.Abs(spec[1024-32])
	if math.Abs(pos-neg) > 1e-2*pos || pos < 100 {
		t.Errorf("Expected two equal tones, got %g and %g", pos, neg)
	}
}

func TestNoiseSource(t *testing.T) {
	t.Run("Gaussian Power", func(t *testing.T) {
		n := NewNoiseSource(Gaussian, 0.5, 1)
		buf := make(sdr.SamplesC64, 1<<16)
		n.Work(buf)
		var power float64
		for _, s := range buf {
			power += real(complex128(s) * cmplx.Conj(complex128(s)))
		}
		power /= float64(len(buf))
		if math.Abs(power-0.25) > 0.01 {
			t.Errorf("Expected power 0.25, got %g", power)
		}
	})

	t.Run("Uniform Bounds", func(t *testing.T) {
		n := NewNoiseSource(Uniform, 0.3, 2)
		buf := make(sdr.SamplesC64, 4096)
		n.Work(buf)
		for _, s := range buf {
			if math.Abs(float64(real(s))) > 0.3+1e-6 || math.Abs(float64(imag(s))) > 0.3+1e-6 {
				t.Fatalf("Sample %v outside amplitude", s)
			}
		}
	})

	t.Run("Deterministic Seed", func(t *testing.T) {
		a := make(sdr.SamplesC64, 16)
		b := make(sdr.SamplesC64, 16)
		NewNoiseSource(Gaussian, 1, 7).Work(a)
		NewNoiseSource(Gaussian, 1, 7).Work(b)
		for i := range a {
			if a[i] != b[i] {
				t.Fatalf("Sample %d differs", i)
			}
		}
	})
}

type constFloat float32

func (c constFloat) WorkFloat(out []float32) {
	for i := range out {
		out[i] = float32(c)
	}
}

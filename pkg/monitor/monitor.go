// Package monitor measures the IQ stream on its way to the hardware sink.
package monitor

import (
	"math"
	"math/cmplx"
	"sync"
	"time"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
	"gonum.org/v1/gonum/floats"
	"hz.tools/sdr"
)

// DefaultFFTSize is used when the configured size is not a power of two
const DefaultFFTSize = 1024

// Floor is reported for silent signals
const Floor = -200.0

const peakHoldTime = 2 * time.Second

// Levels are the signal levels of the last buffer, relative to full scale
type Levels struct {
	Timestamp int64   `json:"timestamp"`
	RMS       float64 `json:"rms_dbfs"`
	Peak      float64 `json:"peak_dbfs"`
	PeakHold  float64 `json:"peak_hold_dbfs"`
	Clipping  bool    `json:"clipping"`
}

// Spectrum is an FFT-shifted magnitude spectrum in dBFS. Bin 0 is
// -SampleRate/2.
type Spectrum struct {
	Timestamp  int64     `json:"timestamp"`
	SampleRate float64   `json:"sample_rate"`
	FreqStep   float64   `json:"freq_step"`
	PeakFreq   float64   `json:"peak_freq"`
	MeanLevel  float64   `json:"mean_dbfs"`
	Bins       []float32 `json:"bins"`
}

// Snapshot combines levels, spectrum and counters
type Snapshot struct {
	Levels
	Spectrum  Spectrum `json:"spectrum"`
	Samples   int64    `json:"samples"`
	ClipCount int64    `json:"clip_count"`
}

// LevelMonitor accumulates the most recent samples written to the sink
type LevelMonitor struct {
	mutex sync.RWMutex

	fftSize int
	rate    func() float64

	rms          float64
	peak         float64
	peakHold     float64
	peakHoldTime time.Time
	clipping     bool
	updated      time.Time

	ring   []complex128
	head   int
	filled bool
	window []float64
	gain   float64

	sampleCount int64
	clipCount   int64
}

// NewLevelMonitor creates a monitor with an FFT of fftSize points. rate
// reports the current sample rate and may be nil.
func NewLevelMonitor(fftSize int, rate func() float64) *LevelMonitor {
	if fftSize < 2 || fftSize&(fftSize-1) != 0 {
		fftSize = DefaultFFTSize
	}
	w := window.Hann(fftSize)
	return &LevelMonitor{
		fftSize:  fftSize,
		rate:     rate,
		rms:      Floor,
		peak:     Floor,
		peakHold: Floor,
		ring:     make([]complex128, fftSize),
		window:   w,
		gain:     floats.Sum(w),
	}
}

// FFTSize returns the number of spectrum bins
func (m *LevelMonitor) FFTSize() int {
	return m.fftSize
}

// Process measures a buffer. It copies what it keeps, so samples may be
// reused by the caller.
func (m *LevelMonitor) Process(samples sdr.SamplesC64) {
	if len(samples) == 0 {
		return
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	var sumSquares, peak float64
	clipping := false
	for _, s := range samples {
		i, q := float64(real(s)), float64(imag(s))
		if math.Abs(i) > 1 || math.Abs(q) > 1 {
			clipping = true
			m.clipCount++
		}
		p := i*i + q*q
		sumSquares += p
		if p > peak {
			peak = p
		}

		m.ring[m.head] = complex(i, q)
		m.head++
		if m.head == m.fftSize {
			m.head = 0
			m.filled = true
		}
	}

	now := time.Now()
	m.rms = powerDB(sumSquares / float64(len(samples)))
	m.peak = powerDB(peak)
	if m.peak > m.peakHold || now.Sub(m.peakHoldTime) > peakHoldTime {
		m.peakHold = m.peak
		m.peakHoldTime = now
	}
	m.clipping = clipping
	m.updated = now
	m.sampleCount += int64(len(samples))
}

func powerDB(p float64) float64 {
	if p <= 0 {
		return Floor
	}
	return math.Max(10*math.Log10(p), Floor)
}

// Levels returns the current levels
func (m *LevelMonitor) Levels() Levels {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.levels()
}

func (m *LevelMonitor) levels() Levels {
	return Levels{
		Timestamp: m.updated.UnixMilli(),
		RMS:       m.rms,
		Peak:      m.peak,
		PeakHold:  m.peakHold,
		Clipping:  m.clipping,
	}
}

// Spectrum computes the spectrum of the last FFTSize samples. It returns
// an empty spectrum until that many samples have been seen.
func (m *LevelMonitor) Spectrum() Spectrum {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.spectrum()
}

func (m *LevelMonitor) spectrum() Spectrum {
	sp := Spectrum{
		Timestamp: m.updated.UnixMilli(),
		MeanLevel: Floor,
	}
	if m.rate != nil {
		sp.SampleRate = m.rate()
		sp.FreqStep = sp.SampleRate / float64(m.fftSize)
	}
	if !m.filled {
		return sp
	}

	n := m.fftSize
	buf := make([]complex128, n)
	for i := 0; i < n; i++ {
		// oldest sample first
		buf[i] = m.ring[(m.head+i)%n] * complex(m.window[i], 0)
	}
	out := fft.FFT(buf)

	mags := make([]float64, n)
	for i := range out {
		// shift so that DC sits in the middle
		mags[(i+n/2)%n] = cmplx.Abs(out[i]) / m.gain
	}

	peakBin := floats.MaxIdx(mags)
	sp.PeakFreq = float64(peakBin-n/2) * sp.FreqStep
	sp.MeanLevel = powerDB(floats.Dot(mags, mags) / float64(n))
	sp.Bins = make([]float32, n)
	for i, mag := range mags {
		sp.Bins[i] = float32(powerDB(mag * mag))
	}
	return sp
}

// Snapshot returns levels, spectrum and counters at once
func (m *LevelMonitor) Snapshot() Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return Snapshot{
		Levels:    m.levels(),
		Spectrum:  m.spectrum(),
		Samples:   m.sampleCount,
		ClipCount: m.clipCount,
	}
}

// Reset clears all measurements
func (m *LevelMonitor) Reset() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.rms, m.peak, m.peakHold = Floor, Floor, Floor
	m.clipping = false
	m.head = 0
	m.filled = false
	m.sampleCount = 0
	m.clipCount = 0
	for i := range m.ring {
		m.ring[i] = 0
	}
}

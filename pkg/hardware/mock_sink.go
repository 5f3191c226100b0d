package hardware

import (
	"context"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/dougsko/siggen/pkg/logging"
	"hz.tools/rf"
	"hz.tools/sdr"
)

// Operation names used for failure injection and error reporting
const (
	OpSetSampleRate      = "set_sample_rate"
	OpSetCenterFrequency = "set_center_freq"
	OpSetGain            = "set_gain"
	OpSetBandwidth       = "set_bandwidth"
	OpSetFreqCorr        = "set_freq_corr"
	OpSetAntenna         = "set_antenna"
	OpFrequencyRange     = "get_freq_range"
	OpGainRange          = "get_gain_range"
	OpBandwidthRange     = "get_bandwidth_range"
	OpWrite              = "write"
)

// MockConfig describes the capabilities of a MockSink
type MockConfig struct {
	FreqRange      Range
	GainRange      Range
	IFGainRange    Range
	BandwidthRange Range
	GainStep       float64 // gains snap to multiples of this, 0 disables
	MaxSampleRate  float64
	Antennas       []string
	Throttle       bool      // pace Write at the configured sample rate
	Capture        io.Writer // receives interleaved float32 IQ when set
}

// DefaultMockConfig returns a HackRF-like device description
func DefaultMockConfig() MockConfig {
	return MockConfig{
		FreqRange:      Range{Low: 1e6, High: 6e9},
		GainRange:      Range{Low: 0, High: 47},
		IFGainRange:    Range{Low: 0, High: 40},
		BandwidthRange: Range{Low: 1.75e6, High: 28e6},
		GainStep:       1,
		MaxSampleRate:  20e6,
		Antennas:       []string{"TX/RX"},
	}
}

// MockSink implements Sink in memory for tests and dry runs
type MockSink struct {
	config MockConfig
	mutex  sync.RWMutex

	// device state
	closed     bool
	sampleRate float64
	frequency  rf.Hz
	gains      map[GainStage]float64
	bandwidth  float64
	ppm        int
	antenna    string

	// data path
	samples  uint64
	writes   uint64
	capture  *CaptureWriter
	deadline time.Time

	failures map[string]error
	calls    map[string]int
}

// NewMockSink creates a mock sink with the given capabilities
func NewMockSink(config MockConfig) *MockSink {
	m := &MockSink{
		config:     config,
		sampleRate: 1e6,
		gains:      make(map[GainStage]float64),
		failures:   make(map[string]error),
		calls:      make(map[string]int),
	}
	if len(config.Antennas) > 0 {
		m.antenna = config.Antennas[0]
	}
	m.bandwidth = config.BandwidthRange.Low
	if config.Capture != nil {
		m.capture = NewCaptureWriter(config.Capture)
	}
	return m
}

// FailOn makes every later call of op fail with err. A nil err clears it.
func (m *MockSink) FailOn(op string, err error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err == nil {
		delete(m.failures, op)
		return
	}
	m.failures[op] = err
}

// Calls returns how many times op was invoked
func (m *MockSink) Calls(op string) int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.calls[op]
}

// Samples returns the number of samples written so far
func (m *MockSink) Samples() uint64 {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.samples
}

// FrequencyCorrection returns the applied ppm correction
func (m *MockSink) FrequencyCorrection() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.ppm
}

// Antenna returns the selected antenna
func (m *MockSink) Antenna() string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.antenna
}

// begin records a call and returns the injected or closed error, if any.
// Must be called with the lock held.
func (m *MockSink) begin(op string) error {
	m.calls[op]++
	if m.closed {
		return opError(op, ErrClosed)
	}
	if err, ok := m.failures[op]; ok {
		return opError(op, err)
	}
	return nil
}

func (m *MockSink) logf(format string, args ...interface{}) {
	logging.Debugf("mock", format, args...)
}

// Info describes the mock device
func (m *MockSink) Info() Info {
	return Info{
		Driver:   "mock",
		Serial:   "00000000",
		Antennas: append([]string(nil), m.config.Antennas...),
	}
}

// FrequencyRange returns the supported carrier range
func (m *MockSink) FrequencyRange() (Range, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.begin(OpFrequencyRange); err != nil {
		return Range{}, err
	}
	return m.config.FreqRange, nil
}

// GainRange returns the supported gain of a stage
func (m *MockSink) GainRange(stage GainStage) (Range, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.begin(OpGainRange); err != nil {
		return Range{}, err
	}
	return m.stageRange(stage)
}

func (m *MockSink) stageRange(stage GainStage) (Range, error) {
	switch stage {
	case StageRF:
		return m.config.GainRange, nil
	case StageIF:
		return m.config.IFGainRange, nil
	default:
		return Range{}, opError(OpGainRange, fmt.Errorf("unknown gain stage %q", stage))
	}
}

// BandwidthRange returns the supported filter bandwidths
func (m *MockSink) BandwidthRange() (Range, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.begin(OpBandwidthRange); err != nil {
		return Range{}, err
	}
	return m.config.BandwidthRange, nil
}

// SetSampleRate sets the DAC rate
func (m *MockSink) SetSampleRate(rate float64) (float64, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.begin(OpSetSampleRate); err != nil {
		return 0, err
	}
	if !(rate > 0) || math.IsInf(rate, 0) || (m.config.MaxSampleRate > 0 && rate > m.config.MaxSampleRate) {
		return 0, opError(OpSetSampleRate, fmt.Errorf("unsupported sample rate %g", rate))
	}
	m.sampleRate = rate
	m.deadline = time.Time{}
	m.logf("sample rate %g", rate)
	return rate, nil
}

// SampleRate returns the current DAC rate
func (m *MockSink) SampleRate() float64 {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.sampleRate
}

// SetCenterFrequency tunes the carrier, clamping to the supported range
func (m *MockSink) SetCenterFrequency(freq rf.Hz) (rf.Hz, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.begin(OpSetCenterFrequency); err != nil {
		return 0, err
	}
	r := m.config.FreqRange
	m.frequency = rf.Hz(math.Max(r.Low, math.Min(float64(freq), r.High)))
	freq = m.frequency
	m.logf("center frequency %s", freq)
	return freq, nil
}

// CenterFrequency returns the tuned carrier
func (m *MockSink) CenterFrequency() rf.Hz {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.frequency
}

// SetGain clamps db to the stage range and snaps it to the gain step
func (m *MockSink) SetGain(db float64, stage GainStage) (float64, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.begin(OpSetGain); err != nil {
		return 0, err
	}
	r, err := m.stageRange(stage)
	if err != nil {
		return 0, err
	}
	applied := math.Max(r.Low, math.Min(db, r.High))
	if step := m.config.GainStep; step > 0 {
		applied = r.Low + math.Round((applied-r.Low)/step)*step
		applied = math.Min(applied, r.High)
	}
	m.gains[stage] = applied
	m.logf("%s gain %g dB", stage, applied)
	return applied, nil
}

// Gain returns the applied gain of a stage
func (m *MockSink) Gain(stage GainStage) (float64, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	if _, err := m.stageRange(stage); err != nil {
		return 0, err
	}
	return m.gains[stage], nil
}

// SetBandwidth clamps hz to the filter range. Zero selects the
// narrowest filter that passes the current sample rate.
func (m *MockSink) SetBandwidth(hz float64) (float64, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.begin(OpSetBandwidth); err != nil {
		return 0, err
	}
	r := m.config.BandwidthRange
	if hz == 0 {
		hz = m.sampleRate
	}
	m.bandwidth = math.Max(r.Low, math.Min(hz, r.High))
	m.logf("bandwidth %g", m.bandwidth)
	return m.bandwidth, nil
}

// Bandwidth returns the applied filter bandwidth
func (m *MockSink) Bandwidth() (float64, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.bandwidth, nil
}

// SetFrequencyCorrection applies a ppm correction
func (m *MockSink) SetFrequencyCorrection(ppm int) (int, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.begin(OpSetFreqCorr); err != nil {
		return 0, err
	}
	m.ppm = ppm
	return ppm, nil
}

// SetAntenna selects a named antenna port
func (m *MockSink) SetAntenna(name string) (string, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.begin(OpSetAntenna); err != nil {
		return "", err
	}
	for _, a := range m.config.Antennas {
		if a == name {
			m.antenna = name
			return name, nil
		}
	}
	return "", opError(OpSetAntenna, fmt.Errorf("no antenna named %q", name))
}

// Write consumes samples, optionally capturing and pacing them
func (m *MockSink) Write(samples sdr.SamplesC64) (int, error) {
	return m.WriteContext(context.Background(), samples)
}

// WriteContext is Write with a pacing wait that returns once ctx is done.
// The samples count as written either way.
func (m *MockSink) WriteContext(ctx context.Context, samples sdr.SamplesC64) (int, error) {
	m.mutex.Lock()
	if err := m.begin(OpWrite); err != nil {
		m.mutex.Unlock()
		return 0, err
	}
	m.samples += uint64(len(samples))
	m.writes++
	if m.capture != nil {
		if err := m.capture.Write(samples); err != nil {
			m.mutex.Unlock()
			return 0, opError(OpWrite, err)
		}
	}
	var wait time.Duration
	if m.config.Throttle && m.sampleRate > 0 {
		now := time.Now()
		if m.deadline.IsZero() || m.deadline.Before(now) {
			m.deadline = now
		}
		m.deadline = m.deadline.Add(time.Duration(float64(len(samples)) / m.sampleRate * float64(time.Second)))
		wait = time.Until(m.deadline)
	}
	m.mutex.Unlock()

	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
		}
	}
	return len(samples), nil
}

// Close flushes the capture and rejects later calls
func (m *MockSink) Close() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	m.logf("closed after %d samples in %d writes", m.samples, m.writes)
	if m.capture != nil {
		return m.capture.Close()
	}
	return nil
}

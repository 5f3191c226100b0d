package hardware

import (
	"context"
	"errors"
	"fmt"

	"hz.tools/rf"
	"hz.tools/sdr"
)

// ErrHardware is matched by every *HardwareError
var ErrHardware = errors.New("hardware error")

// ErrClosed is returned by a sink after Close
var ErrClosed = errors.New("sink closed")

// HardwareError reports a rejected or failed device call
type HardwareError struct {
	Op  string
	Err error
}

func (e *HardwareError) Error() string {
	return fmt.Sprintf("hardware: %s: %v", e.Op, e.Err)
}

func (e *HardwareError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrHardware) match
func (e *HardwareError) Is(target error) bool {
	return target == ErrHardware
}

func opError(op string, err error) error {
	return &HardwareError{Op: op, Err: err}
}

// GainStage selects an amplifier in the transmit chain
type GainStage string

const (
	StageRF GainStage = "RF"
	StageIF GainStage = "IF"
)

// Range is an inclusive (Low, High) pair reported by the device
type Range struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// Bounds returns the range limits
func (r Range) Bounds() (float64, float64) {
	return r.Low, r.High
}

// Mid returns the midpoint of the range
func (r Range) Mid() float64 {
	return (r.Low + r.High) / 2
}

// Contains reports whether v is inside the range
func (r Range) Contains(v float64) bool {
	return v >= r.Low && v <= r.High
}

// RangeQuery reports the valid parameter ranges of a device. Ranges are
// queried fresh on every call since device state may change.
type RangeQuery interface {
	FrequencyRange() (Range, error)
	GainRange(stage GainStage) (Range, error)
	BandwidthRange() (Range, error)
}

// Tuner commits parameters to a device. Every setter returns the value
// the device actually applied, which may be snapped to a supported one.
type Tuner interface {
	SetSampleRate(rate float64) (float64, error)
	SampleRate() float64

	SetCenterFrequency(freq rf.Hz) (rf.Hz, error)
	CenterFrequency() rf.Hz

	SetGain(db float64, stage GainStage) (float64, error)
	Gain(stage GainStage) (float64, error)

	SetBandwidth(hz float64) (float64, error)
	Bandwidth() (float64, error)

	SetFrequencyCorrection(ppm int) (int, error)
	SetAntenna(name string) (string, error)
}

// SampleWriter accepts baseband IQ samples for transmission
type SampleWriter interface {
	Write(samples sdr.SamplesC64) (int, error)
}

// ContextWriter is a SampleWriter whose pacing wait ends early when ctx
// is done
type ContextWriter interface {
	WriteContext(ctx context.Context, samples sdr.SamplesC64) (int, error)
}

// Sink is a transmit device
type Sink interface {
	RangeQuery
	Tuner
	SampleWriter
	Info() Info
	Close() error
}

// Info describes a sink
type Info struct {
	Driver   string   `json:"driver"`
	Serial   string   `json:"serial"`
	Antennas []string `json:"antennas"`
}

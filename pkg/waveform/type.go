// Package waveform owns the active waveform subgraph and its connection to
// the hardware sink.
package waveform

import (
	"errors"
	"fmt"
	"strings"
)

// Type names a waveform variant
type Type string

const (
	Sine     Type = "sine"
	Const    Type = "const"
	Gaussian Type = "gaussian"
	Uniform  Type = "uniform"
	TwoTone  Type = "2tone"
	Sweep    Type = "sweep"
)

var descriptions = map[Type]string{
	Sine:     "Complex Sinusoid",
	Const:    "Constant",
	Gaussian: "Gaussian Noise",
	Uniform:  "Uniform Noise",
	TwoTone:  "Two Tone",
	Sweep:    "Sweep",
}

// Types returns every supported type
func Types() []Type {
	return []Type{Sine, Const, Gaussian, Uniform, TwoTone, Sweep}
}

// Description returns the human readable name of t
func (t Type) Description() string {
	if d, ok := descriptions[t]; ok {
		return d
	}
	return string(t)
}

// Valid reports whether t names a supported variant
func (t Type) Valid() bool {
	_, ok := descriptions[t]
	return ok
}

// ParseType validates a type name
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", &UnknownWaveformError{Type: s}
	}
	return t, nil
}

// UnknownWaveformError reports an unsupported type tag
type UnknownWaveformError struct {
	Type string
}

func (e *UnknownWaveformError) Error() string {
	return fmt.Sprintf("unknown waveform type %q", e.Type)
}

// ErrUninitialized is returned when an operation needs an active variant
var ErrUninitialized = errors.New("waveform not yet set")

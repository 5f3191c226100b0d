package hardware

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

// Args holds parsed device arguments of the form
// "driver,key=value,key=value". A leading bare word, or "driver=name",
// selects the driver.
type Args struct {
	Driver string
	Values map[string]string
}

// ParseArgs splits a device argument string
func ParseArgs(s string) (Args, error) {
	args := Args{Values: make(map[string]string)}
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		key, value, hasValue := strings.Cut(field, "=")
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if !hasValue {
			if args.Driver != "" {
				return Args{}, fmt.Errorf("device args: unexpected %q", field)
			}
			args.Driver = key
			continue
		}
		if key == "" {
			return Args{}, fmt.Errorf("device args: empty key in %q", field)
		}
		if key == "driver" {
			args.Driver = value
			continue
		}
		args.Values[key] = value
	}
	if args.Driver == "" {
		args.Driver = "mock"
	}
	return args, nil
}

// Open creates the sink described by a device argument string. Only the
// mock driver is built in.
func Open(s string) (Sink, error) {
	args, err := ParseArgs(s)
	if err != nil {
		return nil, err
	}
	switch args.Driver {
	case "mock", "null", "file":
		cfg, err := mockConfigFromArgs(args)
		if err != nil {
			return nil, err
		}
		return NewMockSink(cfg), nil
	default:
		return nil, fmt.Errorf("no supported device for driver %q", args.Driver)
	}
}

func mockConfigFromArgs(args Args) (MockConfig, error) {
	cfg := DefaultMockConfig()
	var capture string
	for key, value := range args.Values {
		var err error
		switch key {
		case "freq_range":
			cfg.FreqRange, err = parseRange(value)
		case "gain_range":
			cfg.GainRange, err = parseRange(value)
		case "if_gain_range":
			cfg.IFGainRange, err = parseRange(value)
		case "bwidth_range", "bandwidth_range":
			cfg.BandwidthRange, err = parseRange(value)
		case "gain_step":
			cfg.GainStep, err = strconv.ParseFloat(value, 64)
		case "max_rate":
			cfg.MaxSampleRate, err = strconv.ParseFloat(value, 64)
		case "antennas":
			cfg.Antennas = strings.Split(value, "|")
		case "throttle":
			cfg.Throttle, err = strconv.ParseBool(value)
		case "capture":
			capture = value
		default:
			return MockConfig{}, fmt.Errorf("device args: unknown option %q for mock driver", key)
		}
		if err != nil {
			return MockConfig{}, fmt.Errorf("device args: %s: %w", key, err)
		}
	}

	// opened last so a bad option never leaves the file behind
	if capture != "" {
		f, err := os.Create(capture)
		if err != nil {
			return MockConfig{}, fmt.Errorf("device args: capture: %w", err)
		}
		cfg.Capture = f
	}
	return cfg, nil
}

func parseRange(s string) (Range, error) {
	lo, hi, ok := strings.Cut(s, ":")
	if !ok {
		return Range{}, fmt.Errorf("range %q must be low:high", s)
	}
	low, err := strconv.ParseFloat(lo, 64)
	if err != nil {
		return Range{}, err
	}
	high, err := strconv.ParseFloat(hi, 64)
	if err != nil {
		return Range{}, err
	}
	if math.IsNaN(low) || math.IsNaN(high) || math.IsInf(low, 0) || math.IsInf(high, 0) {
		return Range{}, fmt.Errorf("range %q must be finite", s)
	}
	if low > high {
		return Range{}, fmt.Errorf("range %q is inverted", s)
	}
	return Range{Low: low, High: high}, nil
}

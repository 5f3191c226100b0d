package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "siggen.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("Valid Config", func(t *testing.T) {
		path := writeConfig(t, `
device:
  args: "mock,freq_range=100e6:200e6"
  antenna: "TX/RX"

signal:
  type: 2tone
  samp_rate: 2M
  tx_freq: 433.92MHz
  gain: 15
  freq_corr: -2
  waveform_freq: 1k
  amplitude: 0.5

api:
  enabled: true
  port: 9090
  unix_socket: /tmp/siggen.sock

storage:
  database_path: /tmp/siggen.db

logging:
  level: debug
  console: true
`)
		config, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}

		if config.Device.Args != "mock,freq_range=100e6:200e6" {
			t.Errorf("Unexpected device args %q", config.Device.Args)
		}
		if config.Signal.Type != "2tone" {
			t.Errorf("Expected 2tone, got %q", config.Signal.Type)
		}
		if config.Signal.SampleRate != 2e6 {
			t.Errorf("Expected 2e6, got %g", float64(config.Signal.SampleRate))
		}
		if config.Signal.TxFreq == nil || *config.Signal.TxFreq != 433.92e6 {
			t.Errorf("Expected tx_freq 433.92e6, got %v", config.Signal.TxFreq)
		}
		if config.Signal.FreqCorr == nil || *config.Signal.FreqCorr != -2 {
			t.Errorf("Expected freq_corr -2, got %v", config.Signal.FreqCorr)
		}
		if config.Signal.WaveformFreq != 1000 {
			t.Errorf("Expected 1000, got %g", float64(config.Signal.WaveformFreq))
		}
		if config.Signal.IFGain != nil {
			t.Error("Expected if_gain to stay unset")
		}
		if config.Signal.Waveform2Freq.Float() != nil {
			t.Error("Expected waveform2_freq to stay unset")
		}
		if config.API.Port != 9090 || !config.API.Enabled {
			t.Errorf("Unexpected API section %+v", config.API)
		}
		if config.Logging.Level != "debug" || !config.Logging.Console {
			t.Errorf("Unexpected logging section %+v", config.Logging)
		}
		if err := config.Validate(); err != nil {
			t.Errorf("Expected valid config, got %v", err)
		}
	})

	t.Run("Defaults", func(t *testing.T) {
		config, err := LoadConfig(writeConfig(t, "device: {}\n"))
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if config.Signal.Type != "sine" {
			t.Errorf("Expected default type sine, got %q", config.Signal.Type)
		}
		if config.Signal.SampleRate != 1e6 {
			t.Errorf("Expected default sample rate 1e6, got %g", float64(config.Signal.SampleRate))
		}
		if config.Signal.Amplitude == nil || *config.Signal.Amplitude != 0.3 {
			t.Errorf("Expected default amplitude 0.3, got %v", config.Signal.Amplitude)
		}
		if config.API.Port != 8080 || config.API.BindAddress != "127.0.0.1" {
			t.Errorf("Unexpected API defaults %+v", config.API)
		}
		if config.Device.BufferSize != 8192 {
			t.Errorf("Expected buffer size 8192, got %d", config.Device.BufferSize)
		}
		if config.Monitor.FFTSize != 1024 {
			t.Errorf("Expected FFT size 1024, got %d", config.Monitor.FFTSize)
		}
	})

	t.Run("Missing File", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		if err == nil || !strings.Contains(err.Error(), "failed to read config file") {
			t.Errorf("Expected read error, got %v", err)
		}
	})

	t.Run("Bad Number", func(t *testing.T) {
		_, err := LoadConfig(writeConfig(t, "signal:\n  samp_rate: fast\n"))
		if err == nil {
			t.Error("Expected parse error")
		}
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"Unknown Type", func(c *Config) { c.Signal.Type = "square" }, "unknown waveform type"},
		{"Zero Rate", func(c *Config) { c.Signal.SampleRate = -1 }, "sample rate"},
		{"Loud Amplitude", func(c *Config) { a := Number(1.5); c.Signal.Amplitude = &a }, "amplitude"},
		{"Bad Port", func(c *Config) { c.API.Port = 70000 }, "port"},
		{"FFT Size", func(c *Config) { c.Monitor.FFTSize = 1000 }, "power of two"},
		{"Log Level", func(c *Config) { c.Logging.Level = "loud" }, "log level"},
	}

	if err := Default().Validate(); err != nil {
		t.Fatalf("Default config invalid: %v", err)
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			config := Default()
			tc.mutate(config)
			err := config.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.errMsg) {
				t.Errorf("Expected error containing %q, got %v", tc.errMsg, err)
			}
		})
	}
}

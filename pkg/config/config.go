package config

import (
	"fmt"
	"os"

	"github.com/dougsko/siggen/pkg/logging"
	"github.com/dougsko/siggen/pkg/params"
	"github.com/dougsko/siggen/pkg/waveform"
	"gopkg.in/yaml.v2"
)

// Number is a float that may be written in engineering notation in YAML,
// e.g. 433.92M or "2.4GHz".
type Number float64

// UnmarshalYAML implements yaml.Unmarshaler
func (n *Number) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var f float64
	if err := unmarshal(&f); err == nil {
		*n = Number(f)
		return nil
	}
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	f, err := params.ParseNumber(s, true)
	if err != nil {
		return err
	}
	*n = Number(f)
	return nil
}

// Float returns n as a float64, or nil when n is nil
func (n *Number) Float() any {
	if n == nil {
		return nil
	}
	return float64(*n)
}

// Config represents the siggen configuration. Pointer fields in Signal are
// optional: nil leaves the value to the automatic default.
type Config struct {
	Device struct {
		Args       string `yaml:"args"`
		Antenna    string `yaml:"antenna"`
		BufferSize int    `yaml:"buffer_size"`
	} `yaml:"device"`

	Signal struct {
		Type          string  `yaml:"type"`
		SampleRate    Number  `yaml:"samp_rate"`
		TxFreq        *Number `yaml:"tx_freq"`
		Gain          *Number `yaml:"gain"`
		IFGain        *Number `yaml:"if_gain"`
		Bandwidth     *Number `yaml:"bandwidth"`
		FreqCorr      *int    `yaml:"freq_corr"`
		WaveformFreq  Number  `yaml:"waveform_freq"`
		Waveform2Freq *Number `yaml:"waveform2_freq"`
		Offset        Number  `yaml:"offset"`
		Amplitude     *Number `yaml:"amplitude"`
	} `yaml:"signal"`

	API struct {
		Enabled     bool   `yaml:"enabled"`
		BindAddress string `yaml:"bind_address"`
		Port        int    `yaml:"port"`
		UnixSocket  string `yaml:"unix_socket"`
		MDNS        bool   `yaml:"mdns"`
		Instance    string `yaml:"instance"`
	} `yaml:"api"`

	Storage struct {
		DatabasePath string `yaml:"database_path"`
		MaxHistory   int    `yaml:"max_history"`
	} `yaml:"storage"`

	Monitor struct {
		FFTSize int `yaml:"fft_size"`
	} `yaml:"monitor"`

	Logging logging.Config `yaml:"logging"`
}

// Default returns a configuration with every default filled in
func Default() *Config {
	var config Config
	config.applyDefaults()
	return &config
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	config.applyDefaults()

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Device.BufferSize == 0 {
		c.Device.BufferSize = waveform.DefaultBufferSize
	}
	if c.Signal.Type == "" {
		c.Signal.Type = string(waveform.Sine)
	}
	if c.Signal.SampleRate == 0 {
		c.Signal.SampleRate = 1e6
	}
	if c.Signal.Amplitude == nil {
		a := Number(0.3)
		c.Signal.Amplitude = &a
	}
	if c.API.BindAddress == "" {
		c.API.BindAddress = "127.0.0.1"
	}
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.API.Instance == "" {
		c.API.Instance = "siggen"
	}
	if c.Storage.MaxHistory == 0 {
		c.Storage.MaxHistory = 10000
	}
	if c.Monitor.FFTSize == 0 {
		c.Monitor.FFTSize = 1024
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.MaxSize == 0 {
		c.Logging.MaxSize = 10
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = 3
	}
	if c.Logging.MaxAge == 0 {
		c.Logging.MaxAge = 28
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if _, err := waveform.ParseType(c.Signal.Type); err != nil {
		return err
	}
	if c.Signal.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %g", float64(c.Signal.SampleRate))
	}
	if a := c.Signal.Amplitude; a != nil && (*a < 0 || *a > 1) {
		return fmt.Errorf("amplitude %g out of range [0, 1]", float64(*a))
	}
	if c.Device.BufferSize <= 0 {
		return fmt.Errorf("buffer size must be positive, got %d", c.Device.BufferSize)
	}
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("invalid API port %d", c.API.Port)
	}
	if c.Monitor.FFTSize&(c.Monitor.FFTSize-1) != 0 {
		return fmt.Errorf("monitor FFT size must be a power of two, got %d", c.Monitor.FFTSize)
	}
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("invalid log level %q", c.Logging.Level)
	}
	return nil
}

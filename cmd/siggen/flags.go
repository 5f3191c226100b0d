package main

import (
	"fmt"
	"strconv"

	"github.com/dougsko/siggen/pkg/config"
	"github.com/dougsko/siggen/pkg/engine"
	"github.com/dougsko/siggen/pkg/params"
	"github.com/dougsko/siggen/pkg/waveform"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// engFloat is a float flag that accepts engineering notation such as
// 433.92M or 2.4GHz
type engFloat struct {
	value *float64
}

func newEngFloat(def float64, p *float64) *engFloat {
	*p = def
	return &engFloat{value: p}
}

func (f *engFloat) String() string {
	if f.value == nil {
		return "0"
	}
	return strconv.FormatFloat(*f.value, 'g', -1, 64)
}

func (f *engFloat) Set(s string) error {
	v, err := params.ParseNumber(s, true)
	if err != nil {
		return err
	}
	*f.value = v
	return nil
}

func (f *engFloat) Type() string {
	return "float"
}

var _ pflag.Value = (*engFloat)(nil)

// typeFlags maps each waveform selector flag to its type
var typeFlags = []struct {
	name string
	t    waveform.Type
}{
	{"sine", waveform.Sine},
	{"const", waveform.Const},
	{"gaussian", waveform.Gaussian},
	{"uniform", waveform.Uniform},
	{"2tone", waveform.TwoTone},
	{"sweep", waveform.Sweep},
}

// cliFlags holds every command line value
type cliFlags struct {
	args       string
	antenna    string
	sampRate   float64
	gain       float64
	ifGain     float64
	bandwidth  float64
	txFreq     float64
	freqCorr   int
	wfreq      float64
	wfreq2     float64
	offset     float64
	amplitude  float64
	types      map[string]*bool
	verbose    bool
	bufferSize int

	configPath string
	logLevel   string
	logFile    string
	httpAddr   string
	socketPath string
	dbPath     string
	scriptPath string
	mdns       bool
}

func registerFlags(cmd *cobra.Command) *cliFlags {
	f := &cliFlags{types: make(map[string]*bool)}
	flags := cmd.Flags()

	flags.StringVarP(&f.args, "args", "a", "mock,throttle=true", "Device arguments")
	flags.StringVarP(&f.antenna, "antenna", "A", "", "Select antenna")
	flags.VarP(newEngFloat(1e6, &f.sampRate), "samp-rate", "s", "Sample rate")
	flags.VarP(newEngFloat(0, &f.gain), "gain", "g", "Set RF gain (default: midpoint)")
	flags.Var(newEngFloat(0, &f.ifGain), "if-gain", "Set IF gain (default: midpoint)")
	flags.Var(newEngFloat(0, &f.bandwidth), "bandwidth", "Set analog bandwidth (default: device)")
	flags.VarP(newEngFloat(0, &f.txFreq), "tx-freq", "f", "Set carrier frequency (default: midpoint)")
	flags.IntVarP(&f.freqCorr, "freq-corr", "c", 0, "Frequency correction in ppm")
	flags.VarP(newEngFloat(0, &f.wfreq), "waveform-freq", "x", "Set baseband waveform frequency")
	flags.VarP(newEngFloat(0, &f.wfreq2), "waveform2-freq", "y", "Set 2nd waveform frequency")
	flags.Var(newEngFloat(0, &f.offset), "offset", "Waveform phase offset")
	flags.Var(newEngFloat(0.3, &f.amplitude), "amplitude", "Set output amplitude")
	flags.BoolVarP(&f.verbose, "verbose", "v", false, "Verbose output")
	flags.IntVar(&f.bufferSize, "buffer-size", waveform.DefaultBufferSize, "Samples per sink write")

	names := make([]string, 0, len(typeFlags))
	for _, tf := range typeFlags {
		f.types[tf.name] = flags.Bool(tf.name, false, fmt.Sprintf("Generate %s", tf.t.Description()))
		names = append(names, tf.name)
	}
	cmd.MarkFlagsMutuallyExclusive(names...)

	flags.StringVar(&f.configPath, "config", "", "Configuration file path")
	flags.StringVar(&f.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flags.StringVar(&f.logFile, "log-file", "", "Write logs to a rotated file")
	flags.StringVar(&f.httpAddr, "http", "", "Serve the HTTP API on this address")
	flags.StringVar(&f.socketPath, "socket", "", "Control socket path (empty disables when given)")
	flags.StringVar(&f.dbPath, "db", "", "SQLite database for presets and history")
	flags.StringVar(&f.scriptPath, "script", "", "Run a Lua script after startup")
	flags.BoolVar(&f.mdns, "mdns", false, "Announce the HTTP API over mDNS")

	return f
}

// loadConfig reads the configuration file when one is named and lets the
// command line override it
func (f *cliFlags) loadConfig(flags *pflag.FlagSet) (*config.Config, error) {
	cfg := config.Default()
	if f.configPath != "" {
		var err error
		if cfg, err = config.LoadConfig(f.configPath); err != nil {
			return nil, err
		}
	}

	if flags.Changed("args") || cfg.Device.Args == "" {
		cfg.Device.Args = f.args
	}
	if flags.Changed("antenna") {
		cfg.Device.Antenna = f.antenna
	}
	if flags.Changed("buffer-size") {
		cfg.Device.BufferSize = f.bufferSize
	}

	sig := &cfg.Signal
	setNumber := func(name string, v float64, dst **config.Number) {
		if flags.Changed(name) {
			n := config.Number(v)
			*dst = &n
		}
	}
	if flags.Changed("samp-rate") {
		sig.SampleRate = config.Number(f.sampRate)
	}
	setNumber("gain", f.gain, &sig.Gain)
	setNumber("if-gain", f.ifGain, &sig.IFGain)
	setNumber("bandwidth", f.bandwidth, &sig.Bandwidth)
	setNumber("tx-freq", f.txFreq, &sig.TxFreq)
	setNumber("waveform2-freq", f.wfreq2, &sig.Waveform2Freq)
	setNumber("amplitude", f.amplitude, &sig.Amplitude)
	if flags.Changed("freq-corr") {
		ppm := f.freqCorr
		sig.FreqCorr = &ppm
	}
	if flags.Changed("waveform-freq") {
		sig.WaveformFreq = config.Number(f.wfreq)
	}
	if flags.Changed("offset") {
		sig.Offset = config.Number(f.offset)
	}
	for _, tf := range typeFlags {
		if *f.types[tf.name] {
			sig.Type = string(tf.t)
		}
	}

	if f.verbose {
		cfg.Logging.Level = "debug"
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = f.logLevel
	}
	if flags.Changed("log-file") {
		cfg.Logging.File = f.logFile
	}

	if flags.Changed("http") {
		cfg.API.Enabled = f.httpAddr != ""
	}
	if flags.Changed("socket") {
		cfg.API.UnixSocket = f.socketPath
	} else if cfg.API.UnixSocket == "" {
		cfg.API.UnixSocket = defaultSocketPath
	}
	if flags.Changed("mdns") {
		cfg.API.MDNS = f.mdns
	}
	if flags.Changed("db") {
		cfg.Storage.DatabasePath = f.dbPath
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// httpAddress returns the API listen address, or "" when disabled
func (f *cliFlags) httpAddress(cfg *config.Config) string {
	if f.httpAddr != "" {
		return f.httpAddr
	}
	if !cfg.API.Enabled {
		return ""
	}
	return fmt.Sprintf("%s:%d", cfg.API.BindAddress, cfg.API.Port)
}

// engineOptions converts the signal section into generator options
func engineOptions(cfg *config.Config) engine.Options {
	sig := cfg.Signal
	opts := engine.DefaultOptions()
	opts.Antenna = cfg.Device.Antenna
	opts.BufferSize = cfg.Device.BufferSize
	opts.Type = waveform.Type(sig.Type)
	opts.SampleRate = float64(sig.SampleRate)
	opts.Gain = numberPtr(sig.Gain)
	opts.IFGain = numberPtr(sig.IFGain)
	opts.Bandwidth = numberPtr(sig.Bandwidth)
	opts.TxFreq = numberPtr(sig.TxFreq)
	opts.FreqCorr = sig.FreqCorr
	opts.WaveformFreq = float64(sig.WaveformFreq)
	opts.Waveform2Freq = numberPtr(sig.Waveform2Freq)
	opts.Offset = float64(sig.Offset)
	if sig.Amplitude != nil {
		opts.Amplitude = float64(*sig.Amplitude)
	}
	return opts
}

func numberPtr(n *config.Number) *float64 {
	if n == nil {
		return nil
	}
	return engine.Float(float64(*n))
}

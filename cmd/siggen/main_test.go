package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dougsko/siggen/pkg/client"
	"github.com/dougsko/siggen/pkg/params"
	"github.com/dougsko/siggen/pkg/waveform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngFloat(t *testing.T) {
	var v float64
	f := newEngFloat(1e6, &v)
	assert.Equal(t, "1e+06", f.String())

	tests := []struct {
		in   string
		want float64
	}{
		{"433.92M", 433.92e6},
		{"2.4GHz", 2.4e9},
		{"250k", 250e3},
		{"0.5", 0.5},
		{"-1e3", -1000},
	}
	for _, tt := range tests {
		require.NoError(t, f.Set(tt.in), tt.in)
		assert.InDelta(t, tt.want, v, 1e-6, tt.in)
	}

	assert.Error(t, f.Set("fast"))
	assert.Error(t, f.Set("nan"))
	assert.Error(t, f.Set("-inf"))
	assert.Equal(t, "float", f.Type())
}

func TestLoadConfigDefaults(t *testing.T) {
	cmd, f := newRootCmd()
	require.NoError(t, cmd.Flags().Parse(nil))

	cfg, err := f.loadConfig(cmd.Flags())
	require.NoError(t, err)

	opts := engineOptions(cfg)
	assert.Equal(t, 1e6, opts.SampleRate)
	assert.Equal(t, 0.3, opts.Amplitude)
	assert.Equal(t, waveform.Sine, opts.Type)
	assert.Nil(t, opts.Gain)
	assert.Nil(t, opts.TxFreq)
	assert.Nil(t, opts.FreqCorr)
	assert.Nil(t, opts.Waveform2Freq)
	assert.Equal(t, "mock,throttle=true", cfg.Device.Args)
	assert.Equal(t, defaultSocketPath, cfg.API.UnixSocket)
	assert.Empty(t, f.httpAddress(cfg))
	assert.Empty(t, cfg.Storage.DatabasePath)
}

func TestLoadConfigFlags(t *testing.T) {
	cmd, f := newRootCmd()
	require.NoError(t, cmd.Flags().Parse([]string{
		"-s", "2M", "-f", "433.92M", "-g", "10", "--if-gain", "20",
		"-c", "-3", "-x", "5k", "-y", "1k", "--2tone",
		"--amplitude", "0.5", "--offset", "1.5", "-v",
		"--http", "127.0.0.1:0", "--socket", "", "--db", "x.db",
	}))

	cfg, err := f.loadConfig(cmd.Flags())
	require.NoError(t, err)
	opts := engineOptions(cfg)

	assert.Equal(t, 2e6, opts.SampleRate)
	require.NotNil(t, opts.TxFreq)
	assert.InDelta(t, 433.92e6, *opts.TxFreq, 1e-3)
	require.NotNil(t, opts.Gain)
	assert.Equal(t, 10.0, *opts.Gain)
	require.NotNil(t, opts.IFGain)
	assert.Equal(t, 20.0, *opts.IFGain)
	require.NotNil(t, opts.FreqCorr)
	assert.Equal(t, -3, *opts.FreqCorr)
	assert.Equal(t, 5000.0, opts.WaveformFreq)
	require.NotNil(t, opts.Waveform2Freq)
	assert.Equal(t, 1000.0, *opts.Waveform2Freq)
	assert.Equal(t, waveform.TwoTone, opts.Type)
	assert.Equal(t, 0.5, opts.Amplitude)
	assert.Equal(t, 1.5, opts.Offset)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "127.0.0.1:0", f.httpAddress(cfg))
	assert.Empty(t, cfg.API.UnixSocket)
	assert.Equal(t, "x.db", cfg.Storage.DatabasePath)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "siggen.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
device:
  args: mock,gain_range=0:20
signal:
  type: sweep
  tx_freq: 915M
  waveform_freq: 100k
logging:
  level: warn
`), 0644))

	cmd, f := newRootCmd()
	require.NoError(t, cmd.Flags().Parse([]string{"--config", path, "--log-level", "error", "--sine"}))

	cfg, err := f.loadConfig(cmd.Flags())
	require.NoError(t, err)
	opts := engineOptions(cfg)

	assert.Equal(t, "mock,gain_range=0:20", cfg.Device.Args)
	require.NotNil(t, opts.TxFreq)
	assert.Equal(t, 915e6, *opts.TxFreq)
	assert.Equal(t, 100e3, opts.WaveformFreq)
	assert.Equal(t, waveform.Sine, opts.Type, "flags override the file")
	assert.Equal(t, "error", cfg.Logging.Level)
}

func TestLoadConfigErrors(t *testing.T) {
	cmd, f := newRootCmd()
	require.NoError(t, cmd.Flags().Parse([]string{"--amplitude", "2"}))
	_, err := f.loadConfig(cmd.Flags())
	assert.Error(t, err)

	cmd, f = newRootCmd()
	require.NoError(t, cmd.Flags().Parse([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")}))
	_, err = f.loadConfig(cmd.Flags())
	assert.Error(t, err)
}

func TestExclusiveTypes(t *testing.T) {
	cmd, _ := newRootCmd()
	cmd.SetArgs([]string{"--sine", "--sweep"})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	assert.Error(t, cmd.Execute())
}

func newTestApp(t *testing.T, args ...string) *App {
	t.Helper()
	dir, err := os.MkdirTemp("", "sga")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	cmd, f := newRootCmd()
	base := []string{
		"-a", "mock", "-x", "1k",
		"--socket", filepath.Join(dir, "s.sock"),
		"--db", filepath.Join(dir, "siggen.db"),
	}
	require.NoError(t, cmd.Flags().Parse(append(base, args...)))

	cfg, err := f.loadConfig(cmd.Flags())
	require.NoError(t, err)

	app, err := NewApp(cfg, f.httpAddress(cfg))
	require.NoError(t, err)
	t.Cleanup(func() { app.Close() })
	return app
}

func TestConsole(t *testing.T) {
	app := newTestApp(t)

	var out bytes.Buffer
	in := strings.NewReader("set tx_freq 100M\nget tx_freq\nbogus\n\nset gain 3\n")
	runConsole(context.Background(), in, &out, app.Dispatcher(), true)

	text := out.String()
	assert.Contains(t, text, consolePrompt)
	assert.Contains(t, text, `"1e+08"`)
	assert.Contains(t, text, "parse error")

	// the empty line ended the console before the gain write
	v, err := app.Generator().Get(params.Gain)
	require.NoError(t, err)
	assert.NotEqual(t, 3.0, v)
}

func TestConsoleQuitAndEOF(t *testing.T) {
	app := newTestApp(t)

	var out bytes.Buffer
	runConsole(context.Background(), strings.NewReader("quit\nset gain 3\n"), &out, app.Dispatcher(), false)
	assert.NotContains(t, out.String(), consolePrompt)
	assert.Equal(t, 1, strings.Count(out.String(), "\n"))

	// interactive end of input
	runConsole(context.Background(), strings.NewReader("ping\n"), io.Discard, app.Dispatcher(), true)

	// piped end of input waits for cancellation
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		runConsole(ctx, strings.NewReader("ping\n"), io.Discard, app.Dispatcher(), false)
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("Expected piped console to keep running after end of input")
	case <-time.After(50 * time.Millisecond):
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Expected console to end on cancellation")
	}
}

func TestAppLifecycle(t *testing.T) {
	app := newTestApp(t, "--http", "127.0.0.1:0", "--sweep")
	require.NoError(t, app.Start())

	assert.True(t, app.Generator().Running())
	assert.Equal(t, waveform.Sweep, app.Generator().Graph().Type())

	c := client.NewSocketClient(app.config.API.UnixSocket)
	require.NoError(t, c.Ping())

	applied, err := c.Set(params.Amplitude, "0.7")
	require.NoError(t, err)
	assert.Equal(t, "0.7", applied)

	history, err := c.History(1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "socket", history[0].Source)

	require.NoError(t, app.Close())
	assert.False(t, app.Generator().Running())
	assert.NoError(t, app.Err())
	assert.NoError(t, app.Close(), "close is idempotent")

	_, err = os.Stat(app.config.API.UnixSocket)
	assert.True(t, os.IsNotExist(err), "socket removed on close")
}

func TestAppScript(t *testing.T) {
	app := newTestApp(t)
	require.NoError(t, app.Start())

	path := filepath.Join(t.TempDir(), "set.lua")
	require.NoError(t, os.WriteFile(path, []byte(`set("type", "gaussian")`), 0644))
	app.RunScript(path)

	assert.Eventually(t, func() bool {
		return app.Generator().Graph().Type() == waveform.Gaussian
	}, 2*time.Second, 10*time.Millisecond)
}

func TestAppBadDevice(t *testing.T) {
	cmd, f := newRootCmd()
	require.NoError(t, cmd.Flags().Parse([]string{"-a", "uhd", "--socket", ""}))
	cfg, err := f.loadConfig(cmd.Flags())
	require.NoError(t, err)

	_, err = NewApp(cfg, "")
	assert.Error(t, err)
}

package script

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dougsko/siggen/pkg/engine"
	"github.com/dougsko/siggen/pkg/hardware"
	"github.com/dougsko/siggen/pkg/params"
	"github.com/dougsko/siggen/pkg/waveform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRecorder struct {
	mutex   sync.Mutex
	changes []params.Change
}

func (m *memRecorder) Record(c params.Change) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.changes = append(m.changes, c)
	return nil
}

func newGenerator(t *testing.T, options ...engine.Option) *engine.Generator {
	t.Helper()
	opts := engine.DefaultOptions()
	opts.WaveformFreq = 1000
	opts.BufferSize = 1024
	gen, err := engine.New(hardware.NewMockSink(hardware.DefaultMockConfig()), opts, options...)
	require.NoError(t, err)
	t.Cleanup(func() { gen.Close() })
	return gen
}

func TestSetAndGet(t *testing.T) {
	rec := &memRecorder{}
	gen := newGenerator(t, engine.WithRecorder(rec))

	err := NewRunner(gen).RunString(context.Background(), `
		set("tx_freq", "433MHz")
		set("freq_corr", 5)
		set("amplitude", 0.5)
		set("type", "2tone")

		assert(get("tx_freq") == 433e6)
		assert(get("freq_corr") == 5)
		assert(get("type") == "2tone")

		local lo, hi = get("gain_range")
		assert(lo == 0 and hi == 47, "gain range " .. lo .. ":" .. hi)

		local p = params()
		assert(p.samp_rate == "1e+06", p.samp_rate)
		log("configured", get("tx_freq"))
	`)
	require.NoError(t, err)

	assert.Equal(t, waveform.TwoTone, gen.Graph().Type())
	v, err := gen.Get(params.FreqCorr)
	require.NoError(t, err)
	assert.Equal(t, 5, v)

	require.Len(t, rec.changes, 4)
	for _, c := range rec.changes {
		assert.Equal(t, DefaultSource, c.Source)
	}
}

func TestSetNil(t *testing.T) {
	gen := newGenerator(t)

	err := NewRunner(gen).RunString(context.Background(), `
		set("tx_freq", nil)
		assert(get("tx_freq") == 3000.5e6, tostring(get("tx_freq")))
	`)
	require.NoError(t, err)
}

func TestRebuild(t *testing.T) {
	gen := newGenerator(t)
	before := gen.Graph().Rebuilds()

	require.NoError(t, NewRunner(gen).RunString(context.Background(), `rebuild() rebuild()`))
	assert.Equal(t, before+2, gen.Graph().Rebuilds())
}

func TestErrors(t *testing.T) {
	gen := newGenerator(t)
	runner := NewRunner(gen)

	tests := []struct {
		name string
		code string
	}{
		{"unknown key", `set("bogus", 1)`},
		{"out of range", `set("amplitude", 3)`},
		{"read only", `set("freq_range", "1:2")`},
		{"unknown type", `set("type", "square")`},
		{"fractional int", `set("freq_corr", 1.5)`},
		{"bad value", `set("tx_freq", {})`},
		{"nan", `set("tx_freq", 0/0)`},
		{"infinite gain", `set("gain", 1/0)`},
		{"infinite int", `set("freq_corr", -1/0)`},
		{"nan text", `set("tx_freq", "nan")`},
		{"syntax", `set(`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, runner.RunString(context.Background(), tt.code))
		})
	}

	// errors are catchable from Lua
	err := runner.RunString(context.Background(), `
		local ok = pcall(set, "amplitude", 3)
		assert(not ok)
	`)
	assert.NoError(t, err)
}

func TestCancellation(t *testing.T) {
	gen := newGenerator(t)
	runner := NewRunner(gen)

	t.Run("Sleep", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		start := time.Now()
		err := runner.RunString(ctx, `sleep(10)`)
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
		assert.Less(t, time.Since(start), 5*time.Second)
	})

	t.Run("Busy Loop", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(50*time.Millisecond, cancel)

		err := runner.RunString(ctx, `while true do end`)
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
	})

	t.Run("Short Sleep", func(t *testing.T) {
		assert.NoError(t, runner.RunString(context.Background(), `sleep(0.01) sleep(0)`))
	})
}

func TestRunFile(t *testing.T) {
	rec := &memRecorder{}
	gen := newGenerator(t, engine.WithRecorder(rec))

	path := filepath.Join(t.TempDir(), "sweep.lua")
	code := `
		set("type", "sweep")
		for i = 1, 3 do
			set("waveform_freq", i * 1000)
		end
	`
	require.NoError(t, os.WriteFile(path, []byte(code), 0644))

	require.NoError(t, NewRunner(gen).WithSource("test").RunFile(context.Background(), path))
	assert.Equal(t, waveform.Sweep, gen.Graph().Type())
	require.Len(t, rec.changes, 4)
	assert.Equal(t, "test", rec.changes[0].Source)
	assert.Equal(t, "3000", rec.changes[3].Value)

	assert.Error(t, NewRunner(gen).RunFile(context.Background(), filepath.Join(t.TempDir(), "missing.lua")))
}

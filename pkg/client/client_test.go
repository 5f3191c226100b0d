package client

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dougsko/siggen/pkg/control"
	"github.com/dougsko/siggen/pkg/engine"
	"github.com/dougsko/siggen/pkg/hardware"
	"github.com/dougsko/siggen/pkg/params"
	"github.com/dougsko/siggen/pkg/storage"
	"github.com/dougsko/siggen/pkg/waveform"
)

func startServer(t *testing.T) (*SocketClient, *engine.Generator) {
	t.Helper()

	dir, err := os.MkdirTemp("", "sgc")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	store, err := storage.NewStore(filepath.Join(dir, "client.db"), 0)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	opts := engine.DefaultOptions()
	opts.WaveformFreq = 1000
	gen, err := engine.New(hardware.NewMockSink(hardware.DefaultMockConfig()), opts, engine.WithRecorder(store))
	if err != nil {
		t.Fatalf("Failed to create generator: %v", err)
	}
	t.Cleanup(func() { gen.Close() })

	server := control.NewServer(control.NewDispatcher(gen, store, "test"), filepath.Join(dir, "s.sock"))
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() { server.Stop() })

	return NewSocketClient(server.SocketPath()), gen
}

func TestSocketClient(t *testing.T) {
	c, gen := startServer(t)

	t.Run("Ping", func(t *testing.T) {
		if err := c.Ping(); err != nil {
			t.Fatalf("Expected ping to succeed, got: %v", err)
		}
		if !c.IsConnected() {
			t.Error("Expected client to be connected")
		}
	})

	t.Run("Set And Get", func(t *testing.T) {
		applied, err := c.Set(params.TxFreq, "433MHz")
		if err != nil {
			t.Fatalf("Expected set to succeed, got: %v", err)
		}
		if applied != "4.33e+08" {
			t.Errorf("Expected applied 4.33e+08, got %s", applied)
		}

		value, err := c.Get(params.TxFreq)
		if err != nil {
			t.Fatalf("Expected get to succeed, got: %v", err)
		}
		if value != applied {
			t.Errorf("Expected %s, got %s", applied, value)
		}
	})

	t.Run("Set Error", func(t *testing.T) {
		if _, err := c.Set(params.Amplitude, "7"); err == nil {
			t.Error("Expected out of range amplitude to fail")
		}
	})

	t.Run("Status", func(t *testing.T) {
		if _, err := c.Set(params.Type, "gaussian"); err != nil {
			t.Fatalf("Expected set to succeed, got: %v", err)
		}
		status, err := c.GetStatus()
		if err != nil {
			t.Fatalf("Expected status, got: %v", err)
		}
		if status.Type != waveform.Gaussian {
			t.Errorf("Expected gaussian, got %s", status.Type)
		}
		if status.SinkConnections != 1 {
			t.Errorf("Expected 1 sink connection, got %d", status.SinkConnections)
		}
		if status.Params["type"] != "gaussian" {
			t.Errorf("Expected params type gaussian, got %s", status.Params["type"])
		}
	})

	t.Run("Params", func(t *testing.T) {
		values, err := c.GetParams()
		if err != nil {
			t.Fatalf("Expected params, got: %v", err)
		}
		if values["samp_rate"] != "1e+06" {
			t.Errorf("Expected samp_rate 1e+06, got %s", values["samp_rate"])
		}
	})

	t.Run("Rebuild", func(t *testing.T) {
		before := gen.Graph().Rebuilds()
		if err := c.Rebuild(); err != nil {
			t.Fatalf("Expected rebuild to succeed, got: %v", err)
		}
		if gen.Graph().Rebuilds() != before+1 {
			t.Errorf("Expected one more rebuild")
		}
	})

	t.Run("Presets", func(t *testing.T) {
		if err := c.SavePreset("noise"); err != nil {
			t.Fatalf("Expected save to succeed, got: %v", err)
		}
		if _, err := c.Set(params.Type, "sine"); err != nil {
			t.Fatalf("Expected set to succeed, got: %v", err)
		}

		presets, err := c.ListPresets()
		if err != nil {
			t.Fatalf("Expected list to succeed, got: %v", err)
		}
		if len(presets) != 1 || presets[0].Name != "noise" {
			t.Fatalf("Expected one preset named noise, got %+v", presets)
		}
		if presets[0].Values["type"] != "gaussian" {
			t.Errorf("Expected saved type gaussian, got %s", presets[0].Values["type"])
		}

		if err := c.LoadPreset("noise"); err != nil {
			t.Fatalf("Expected load to succeed, got: %v", err)
		}
		if gen.Graph().Type() != waveform.Gaussian {
			t.Errorf("Expected gaussian after load, got %s", gen.Graph().Type())
		}

		if err := c.DeletePreset("noise"); err != nil {
			t.Fatalf("Expected delete to succeed, got: %v", err)
		}
		if err := c.LoadPreset("noise"); err == nil {
			t.Error("Expected load of deleted preset to fail")
		}
	})

	t.Run("History", func(t *testing.T) {
		changes, err := c.History(2)
		if err != nil {
			t.Fatalf("Expected history, got: %v", err)
		}
		if len(changes) != 2 {
			t.Fatalf("Expected 2 changes, got %d", len(changes))
		}
		if changes[0].Source != "socket:noise" {
			t.Errorf("Expected newest change from the preset load, got %+v", changes[0])
		}
	})
}

func TestSocketClientNotRunning(t *testing.T) {
	c := NewSocketClient(filepath.Join(t.TempDir(), "missing.sock"))
	c.SetTimeout(100 * time.Millisecond)

	if c.IsConnected() {
		t.Error("Expected client to be disconnected")
	}
	if _, err := c.GetStatus(); err == nil {
		t.Error("Expected status to fail without a server")
	}
}

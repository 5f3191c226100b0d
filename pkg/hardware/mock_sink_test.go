package hardware

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"hz.tools/rf"
	"hz.tools/sdr"
)

func testConfig() MockConfig {
	cfg := DefaultMockConfig()
	cfg.FreqRange = Range{Low: 100e6, High: 200e6}
	cfg.GainRange = Range{Low: 0, High: 30}
	return cfg
}

func TestMockSink(t *testing.T) {
	sink := NewMockSink(testConfig())

	t.Run("Ranges", func(t *testing.T) {
		r, err := sink.FrequencyRange()
		if err != nil {
			t.Fatalf("FrequencyRange: %v", err)
		}
		if r.Mid() != 150e6 {
			t.Errorf("Expected midpoint 150e6, got %g", r.Mid())
		}
		g, err := sink.GainRange(StageRF)
		if err != nil {
			t.Fatalf("GainRange: %v", err)
		}
		if g.Low != 0 || g.High != 30 {
			t.Errorf("Unexpected gain range %+v", g)
		}
		if _, err := sink.GainRange(GainStage("BB")); err == nil {
			t.Error("Expected error for unknown gain stage")
		}
	})

	t.Run("Center Frequency", func(t *testing.T) {
		got, err := sink.SetCenterFrequency(150 * rf.MHz)
		if err != nil {
			t.Fatalf("SetCenterFrequency: %v", err)
		}
		if got != 150*rf.MHz || sink.CenterFrequency() != 150*rf.MHz {
			t.Errorf("Expected 150 MHz, got %s", got)
		}

		got, err = sink.SetCenterFrequency(rf.GHz)
		if err != nil {
			t.Fatalf("SetCenterFrequency: %v", err)
		}
		if got != 200*rf.MHz {
			t.Errorf("Expected clamp to 200 MHz, got %s", got)
		}
	})

	t.Run("Gain Snapping", func(t *testing.T) {
		tests := []struct {
			request float64
			want    float64
		}{
			{15, 15},
			{14.6, 15},
			{-3, 0},
			{45, 30},
		}
		for _, tc := range tests {
			got, err := sink.SetGain(tc.request, StageRF)
			if err != nil {
				t.Fatalf("SetGain(%g): %v", tc.request, err)
			}
			if got != tc.want {
				t.Errorf("SetGain(%g) = %g, want %g", tc.request, got, tc.want)
			}
			if live, _ := sink.Gain(StageRF); live != tc.want {
				t.Errorf("Gain() = %g, want %g", live, tc.want)
			}
		}
	})

	t.Run("Sample Rate", func(t *testing.T) {
		if _, err := sink.SetSampleRate(2e6); err != nil {
			t.Fatalf("SetSampleRate: %v", err)
		}
		if sink.SampleRate() != 2e6 {
			t.Errorf("Expected 2e6, got %g", sink.SampleRate())
		}
		for _, rate := range []float64{0, math.NaN(), math.Inf(1)} {
			_, err := sink.SetSampleRate(rate)
			if !errors.Is(err, ErrHardware) {
				t.Errorf("SetSampleRate(%g): expected hardware error, got %v", rate, err)
			}
		}
		if sink.SampleRate() != 2e6 {
			t.Errorf("Rejected rate changed the sink to %g", sink.SampleRate())
		}
	})

	t.Run("Bandwidth Auto", func(t *testing.T) {
		bw, err := sink.SetBandwidth(0)
		if err != nil {
			t.Fatalf("SetBandwidth: %v", err)
		}
		if bw != 2e6 {
			t.Errorf("Expected bandwidth to follow sample rate, got %g", bw)
		}
	})

	t.Run("Antenna", func(t *testing.T) {
		if _, err := sink.SetAntenna("TX/RX"); err != nil {
			t.Errorf("SetAntenna: %v", err)
		}
		if _, err := sink.SetAntenna("RX2"); err == nil {
			t.Error("Expected error for unknown antenna")
		}
	})

	t.Run("Write Counts Samples", func(t *testing.T) {
		n, err := sink.Write(make(sdr.SamplesC64, 512))
		if err != nil || n != 512 {
			t.Fatalf("Write = %d, %v", n, err)
		}
		if sink.Samples() != 512 {
			t.Errorf("Expected 512 samples, got %d", sink.Samples())
		}
	})

	t.Run("Closed", func(t *testing.T) {
		if err := sink.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
		_, err := sink.Write(make(sdr.SamplesC64, 1))
		if !errors.Is(err, ErrClosed) {
			t.Errorf("Expected ErrClosed, got %v", err)
		}
		if err := sink.Close(); err != nil {
			t.Errorf("Second Close: %v", err)
		}
	})
}

func TestMockSinkFailureInjection(t *testing.T) {
	sink := NewMockSink(testConfig())
	boom := errors.New("usb disconnected")
	sink.FailOn(OpSetCenterFrequency, boom)

	_, err := sink.SetCenterFrequency(150 * rf.MHz)
	var herr *HardwareError
	if !errors.As(err, &herr) {
		t.Fatalf("Expected *HardwareError, got %v", err)
	}
	if herr.Op != OpSetCenterFrequency || !errors.Is(err, boom) {
		t.Errorf("Unexpected error %v", err)
	}
	if sink.Calls(OpSetCenterFrequency) != 1 {
		t.Errorf("Expected 1 call, got %d", sink.Calls(OpSetCenterFrequency))
	}

	sink.FailOn(OpSetCenterFrequency, nil)
	if _, err := sink.SetCenterFrequency(150 * rf.MHz); err != nil {
		t.Errorf("Expected success after clearing failure, got %v", err)
	}
}

func TestCapture(t *testing.T) {
	var buf bytes.Buffer
	cfg := testConfig()
	cfg.Capture = &buf
	sink := NewMockSink(cfg)

	in := sdr.SamplesC64{complex(0.5, -0.25), complex(-1, 1), 0}
	if _, err := sink.Write(in); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if buf.Len() != len(in)*8 {
		t.Fatalf("Expected %d bytes, got %d", len(in)*8, buf.Len())
	}

	out, err := ReadCapture(&buf)
	if err != nil {
		t.Fatalf("ReadCapture: %v", err)
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("Sample %d: got %v, want %v", i, out[i], in[i])
		}
	}
}

func TestOpen(t *testing.T) {
	t.Run("Mock With Ranges", func(t *testing.T) {
		sink, err := Open("mock,freq_range=100e6:200e6,gain_range=0:30")
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		defer sink.Close()

		r, _ := sink.FrequencyRange()
		if r.Low != 100e6 || r.High != 200e6 {
			t.Errorf("Unexpected frequency range %+v", r)
		}
		g, _ := sink.GainRange(StageRF)
		if g.High != 30 {
			t.Errorf("Unexpected gain range %+v", g)
		}
	})

	t.Run("Empty Args Default To Mock", func(t *testing.T) {
		sink, err := Open("")
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		if sink.Info().Driver != "mock" {
			t.Errorf("Expected mock driver, got %q", sink.Info().Driver)
		}
		sink.Close()
	})

	t.Run("Capture File", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "out.cf32")
		sink, err := Open("driver=mock,capture=" + path)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		sink.Write(make(sdr.SamplesC64, 16))
		if err := sink.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("Stat: %v", err)
		}
		if info.Size() != 16*8 {
			t.Errorf("Expected 128 bytes, got %d", info.Size())
		}
	})

	t.Run("Bad Option Leaves No Capture", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "out.cf32")
		for i := 0; i < 10; i++ {
			if _, err := Open("mock,capture=" + path + ",bogus=1"); err == nil {
				t.Fatal("Expected error for unknown option")
			}
		}
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("Expected no capture file, got %v", err)
		}
	})

	t.Run("Errors", func(t *testing.T) {
		for _, args := range []string{
			"hackrf=0",
			"mock,freq_range=200e6:100e6",
			"mock,gain_range=abc",
			"mock,bogus=1",
			"mock,rtl",
			"mock,freq_range=0:nan",
		} {
			if _, err := Open(args); err == nil {
				t.Errorf("Open(%q): expected error", args)
			}
		}
	})
}

func TestWriteContext(t *testing.T) {
	cfg := testConfig()
	cfg.Throttle = true
	sink := NewMockSink(cfg)
	defer sink.Close()
	if _, err := sink.SetSampleRate(1000); err != nil {
		t.Fatalf("SetSampleRate: %v", err)
	}

	// 1000 samples at 1 kS/s would pace for a second
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	n, err := sink.WriteContext(ctx, make(sdr.SamplesC64, 1000))
	if err != nil {
		t.Fatalf("WriteContext: %v", err)
	}
	if n != 1000 {
		t.Errorf("Expected 1000 samples written, got %d", n)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Expected pacing to end with the context, took %v", elapsed)
	}
	if sink.Samples() != 1000 {
		t.Errorf("Expected 1000 samples counted, got %d", sink.Samples())
	}
}

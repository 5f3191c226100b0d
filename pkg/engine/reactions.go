package engine

import (
	"fmt"

	"github.com/dougsko/siggen/pkg/hardware"
	"github.com/dougsko/siggen/pkg/logging"
	"github.com/dougsko/siggen/pkg/params"
	"github.com/dougsko/siggen/pkg/waveform"
	"hz.tools/rf"
)

// defaultAmplitudeFraction places an unset amplitude within its range
const defaultAmplitudeFraction = 0.3

func (g *Generator) subscribe() error {
	reactions := map[params.Key]params.Reaction{
		params.SampleRate:     g.setSampleRate,
		params.Gain:           g.gainReaction(params.Gain, params.GainRange, hardware.StageRF),
		params.IFGain:         g.gainReaction(params.IFGain, params.IFGainRange, hardware.StageIF),
		params.Bandwidth:      g.setBandwidth,
		params.TxFreq:         g.setFreq,
		params.FreqCorr:       g.setFreqCorr,
		params.Amplitude:      g.setAmplitude,
		params.WaveformFreq:   g.setWaveformFreq,
		params.WaveformOffset: g.setWaveformOffset,
		params.Waveform2Freq:  g.setWaveform2Freq,
		params.Type:           g.setWaveform,
	}
	for key, r := range reactions {
		if err := g.store.Subscribe(key, r); err != nil {
			return err
		}
	}
	return nil
}

func asFloat(key params.Key, v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case int:
		return float64(x), nil
	}
	return 0, &params.TypeError{Key: key, Want: params.KindFloat, Value: v}
}

// clampOrSet applies the auto-default policy for a ranged key: nil becomes
// the range midpoint and out-of-range values are pulled to the nearest
// edge. It reports whether it wrote a substitute value.
func (g *Generator) clampOrSet(key, rangeKey params.Key, v any) (bool, float64, error) {
	r, err := g.store.Range(rangeKey)
	if err != nil {
		return true, 0, err
	}
	if v == nil {
		mid := r.Mid()
		logging.Debugf("engine", "Using auto-calculated mid-point %s %g", key, mid)
		return true, 0, g.store.Set(key, mid)
	}
	f, err := asFloat(key, v)
	if err != nil {
		return true, 0, err
	}
	if !r.Contains(f) {
		clamped := r.Clamp(f)
		if !r.Contains(clamped) {
			return true, 0, &params.OutOfRangeError{Key: key, Value: f, Low: r.Low, High: r.High}
		}
		logging.Warnf("engine", "%s %g outside [%g, %g], using %g", key, f, r.Low, r.High, clamped)
		return true, 0, g.store.Set(key, clamped)
	}
	return false, f, nil
}

func (g *Generator) setSampleRate(v any) error {
	if v == nil {
		return fmt.Errorf("%s cannot be automatic", params.SampleRate)
	}
	sr, err := asFloat(params.SampleRate, v)
	if err != nil {
		return err
	}
	applied, err := g.sink.SetSampleRate(sr)
	if err != nil {
		return err
	}
	if applied != sr {
		logging.Infof("engine", "device snapped sample rate %g to %g", sr, applied)
		g.store.Restore(params.SampleRate, applied, true)
	}
	if !g.graph.Update(params.SampleRate, applied) {
		return g.forceRebuild()
	}
	logging.Debugf("engine", "Set sample rate to: %g", applied)
	return nil
}

func (g *Generator) gainReaction(key, rangeKey params.Key, stage hardware.GainStage) params.Reaction {
	return func(v any) error {
		done, gain, err := g.clampOrSet(key, rangeKey, v)
		if done {
			return err
		}
		applied, err := g.sink.SetGain(gain, stage)
		if err != nil {
			return err
		}
		logging.Debugf("engine", "Set %s gain to: %g", stage, applied)
		return nil
	}
}

func (g *Generator) setBandwidth(v any) error {
	if v == nil {
		// zero lets the device pick a filter for the sample rate
		applied, err := g.sink.SetBandwidth(0)
		if err != nil {
			return err
		}
		logging.Debugf("engine", "Set bandwidth to: %g (auto)", applied)
		return nil
	}
	done, bw, err := g.clampOrSet(params.Bandwidth, params.BandwidthRange, v)
	if done {
		return err
	}
	applied, err := g.sink.SetBandwidth(bw)
	if err != nil {
		return err
	}
	logging.Debugf("engine", "Set bandwidth to: %g", applied)
	return nil
}

func (g *Generator) setFreq(v any) error {
	done, freq, err := g.clampOrSet(params.TxFreq, params.FreqRange, v)
	if done {
		return err
	}
	tuned, err := g.sink.SetCenterFrequency(rf.Hz(freq))
	if err != nil {
		logging.Warnf("engine", "Failed to set freq: %v", err)
		return err
	}
	logging.Infof("engine", "Set center frequency to %s", tuned)
	return nil
}

func (g *Generator) setFreqCorr(v any) error {
	if v == nil {
		logging.Debugf("engine", "Setting freq correction to 0")
		return g.store.Set(params.FreqCorr, 0)
	}
	ppm, ok := v.(int)
	if !ok {
		return &params.TypeError{Key: params.FreqCorr, Want: params.KindInt, Value: v}
	}
	applied, err := g.sink.SetFrequencyCorrection(ppm)
	if err != nil {
		return err
	}
	logging.Debugf("engine", "Set freq correction to: %d", applied)
	return nil
}

func (g *Generator) setAmplitude(v any) error {
	if v == nil {
		r, err := g.store.Range(params.AmplitudeRange)
		if err != nil {
			return err
		}
		return g.store.Set(params.Amplitude, r.Low+(r.High-r.Low)*defaultAmplitudeFraction)
	}
	a, err := asFloat(params.Amplitude, v)
	if err != nil {
		return err
	}
	g.graph.Update(params.Amplitude, a)
	logging.Debugf("engine", "Set amplitude to: %g", a)
	return nil
}

func (g *Generator) setWaveformFreq(v any) error {
	if v == nil {
		return g.store.Set(params.WaveformFreq, 0.0)
	}
	f, err := asFloat(params.WaveformFreq, v)
	if err != nil {
		return err
	}
	if !g.graph.Update(params.WaveformFreq, f) {
		return g.forceRebuild()
	}
	return nil
}

func (g *Generator) setWaveformOffset(v any) error {
	if v == nil {
		return g.store.Set(params.WaveformOffset, 0.0)
	}
	f, err := asFloat(params.WaveformOffset, v)
	if err != nil {
		return err
	}
	g.graph.Update(params.WaveformOffset, f)
	return nil
}

func (g *Generator) setWaveform2Freq(v any) error {
	if v == nil {
		// derived when the type is known; until then it stays unset
		t := g.graph.Type()
		if t == "" {
			return nil
		}
		def, err := g.defaultFreq2(t)
		if err != nil {
			return err
		}
		return g.store.Set(params.Waveform2Freq, def)
	}
	f, err := asFloat(params.Waveform2Freq, v)
	if err != nil {
		return err
	}
	if !g.graph.Update(params.Waveform2Freq, f) {
		return g.forceRebuild()
	}
	return nil
}

// defaultFreq2 is the second tone at the mirror of the first, or the
// default sweep rate
func (g *Generator) defaultFreq2(t waveform.Type) (float64, error) {
	if t == waveform.Sweep {
		return waveform.DefaultSweepRate, nil
	}
	f, _, err := g.store.Float(params.WaveformFreq)
	if err != nil {
		return 0, err
	}
	return -f, nil
}

func (g *Generator) setWaveform(v any) error {
	name, ok := v.(string)
	if !ok {
		return &params.TypeError{Key: params.Type, Want: params.KindEnum, Value: v}
	}
	t, err := waveform.ParseType(name)
	if err != nil {
		return err
	}
	p, err := g.resolve(t)
	if err != nil {
		return err
	}
	return g.graph.Rebuild(t, p)
}

func (g *Generator) forceRebuild() error {
	t := g.graph.Type()
	if t == "" {
		return nil
	}
	p, err := g.resolve(t)
	if err != nil {
		return err
	}
	return g.graph.ForceRebuild(p)
}

// resolve gathers the build parameters of type t from the store. The
// second frequency is defaulted first when the type needs one.
func (g *Generator) resolve(t waveform.Type) (waveform.Params, error) {
	if t == waveform.TwoTone || t == waveform.Sweep {
		if _, ok, err := g.store.Float(params.Waveform2Freq); err != nil {
			return waveform.Params{}, err
		} else if !ok {
			def, err := g.defaultFreq2(t)
			if err != nil {
				return waveform.Params{}, err
			}
			if err := g.store.Set(params.Waveform2Freq, def); err != nil {
				return waveform.Params{}, err
			}
		}
	}

	p := waveform.Params{Seed: g.seed}
	fields := []struct {
		key params.Key
		dst *float64
	}{
		{params.SampleRate, &p.SampleRate},
		{params.WaveformFreq, &p.Freq},
		{params.Waveform2Freq, &p.Freq2},
		{params.Amplitude, &p.Amplitude},
		{params.WaveformOffset, &p.Offset},
	}
	for _, f := range fields {
		v, _, err := g.store.Float(f.key)
		if err != nil {
			return waveform.Params{}, err
		}
		*f.dst = v
	}
	return p, nil
}

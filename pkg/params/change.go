package params

import "time"

// Change records one external write to the store
type Change struct {
	ID     int64     `json:"id,omitempty"`
	Time   time.Time `json:"time"`
	Key    Key       `json:"key"`
	Value  string    `json:"value"`
	Source string    `json:"source"`
	Error  string    `json:"error,omitempty"`
}

// ApplyOrder is the order writable keys are re-applied in when a whole
// set of values is pushed at once. Type is not included; it always goes
// last.
func ApplyOrder() []Key {
	return []Key{
		SampleRate, Gain, IFGain, Bandwidth, TxFreq, FreqCorr,
		Amplitude, WaveformFreq, WaveformOffset, Waveform2Freq,
	}
}

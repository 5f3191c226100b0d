package params

// Key identifies a tunable or computed parameter of the generator
type Key string

// Writable keys
const (
	SampleRate     Key = "samp_rate"
	LinkRate       Key = "link_rate"
	Gain           Key = "gain"
	IFGain         Key = "if_gain"
	Bandwidth      Key = "bwidth"
	TxFreq         Key = "tx_freq"
	FreqCorr       Key = "freq_corr"
	Amplitude      Key = "amplitude"
	WaveformFreq   Key = "waveform_freq"
	WaveformOffset Key = "waveform_offset"
	Waveform2Freq  Key = "waveform2_freq"
	Type           Key = "type"
)

// Read-only range keys, computed on every read
const (
	FreqRange      Key = "freq_range"
	GainRange      Key = "gain_range"
	IFGainRange    Key = "if_gain_range"
	BandwidthRange Key = "bwidth_range"
	AmplitudeRange Key = "ampl_range"
)

// Kind is the declared value type of a key
type Kind int

const (
	KindFloat Kind = iota
	KindInt
	KindEnum
	KindRange
)

// String returns the name of the kind
func (k Kind) String() string {
	switch k {
	case KindFloat:
		return "float"
	case KindInt:
		return "int"
	case KindEnum:
		return "enum"
	case KindRange:
		return "range"
	default:
		return "unknown"
	}
}

// Decl describes a declared key
type Decl struct {
	Kind Kind

	// RangeKey names the read-only key bounding this one, if any.
	RangeKey Key

	// Strict rejects writes outside RangeKey instead of leaving the
	// decision to the reaction.
	Strict bool

	// Hz marks frequency-valued keys; their text form accepts unit suffixes.
	Hz bool

	Help string
}

var decls = map[Key]Decl{
	SampleRate:     {Kind: KindFloat, Hz: true, Help: "sample rate in samples/s"},
	LinkRate:       {Kind: KindFloat, Hz: true, Help: "host link rate"},
	Gain:           {Kind: KindFloat, RangeKey: GainRange, Help: "RF gain in dB"},
	IFGain:         {Kind: KindFloat, RangeKey: IFGainRange, Help: "IF gain in dB"},
	Bandwidth:      {Kind: KindFloat, RangeKey: BandwidthRange, Hz: true, Help: "analog filter bandwidth"},
	TxFreq:         {Kind: KindFloat, RangeKey: FreqRange, Hz: true, Help: "carrier frequency"},
	FreqCorr:       {Kind: KindInt, Help: "frequency correction in ppm"},
	Amplitude:      {Kind: KindFloat, RangeKey: AmplitudeRange, Strict: true, Help: "output amplitude (0.0-1.0)"},
	WaveformFreq:   {Kind: KindFloat, Hz: true, Help: "baseband waveform frequency, or sweep width"},
	WaveformOffset: {Kind: KindFloat, Help: "waveform phase offset in radians"},
	Waveform2Freq:  {Kind: KindFloat, Hz: true, Help: "second tone frequency, or sweep rate"},
	Type:           {Kind: KindEnum, Help: "waveform type"},
	FreqRange:      {Kind: KindRange, Help: "supported carrier frequencies"},
	GainRange:      {Kind: KindRange, Help: "supported RF gain"},
	IFGainRange:    {Kind: KindRange, Help: "supported IF gain"},
	BandwidthRange: {Kind: KindRange, Help: "supported bandwidths"},
	AmplitudeRange: {Kind: KindRange, Help: "valid amplitude"},
}

// Lookup returns the declaration of key
func Lookup(key Key) (Decl, bool) {
	d, ok := decls[key]
	return d, ok
}

// ReadOnly reports whether key is a computed range key
func (d Decl) ReadOnly() bool {
	return d.Kind == KindRange
}

// AllKeys returns every declared key in a stable order
func AllKeys() []Key {
	return []Key{
		SampleRate, LinkRate, Gain, IFGain, Bandwidth, TxFreq, FreqCorr,
		Amplitude, WaveformFreq, WaveformOffset, Waveform2Freq, Type,
		FreqRange, GainRange, IFGainRange, BandwidthRange, AmplitudeRange,
	}
}

// ParseKey validates a key name
func ParseKey(name string) (Key, error) {
	k := Key(name)
	if _, ok := decls[k]; !ok {
		return "", &UnknownKeyError{Key: k}
	}
	return k, nil
}

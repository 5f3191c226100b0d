package params

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"hz.tools/rf"
)

// Bounded is implemented by range values
type Bounded interface {
	Bounds() (low, high float64)
}

// Range is an inclusive [Low, High] interval
type Range struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// Bounds implements Bounded
func (r Range) Bounds() (float64, float64) {
	return r.Low, r.High
}

// Mid returns the arithmetic midpoint
func (r Range) Mid() float64 {
	return (r.Low + r.High) / 2
}

// Contains reports whether v lies inside the range
func (r Range) Contains(v float64) bool {
	return v >= r.Low && v <= r.High
}

// Clamp limits v to the range
func (r Range) Clamp(v float64) float64 {
	return math.Max(r.Low, math.Min(v, r.High))
}

// RangeOf converts any Bounded value into a Range
func RangeOf(b Bounded) Range {
	lo, hi := b.Bounds()
	return Range{Low: lo, High: hi}
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// notFinite rejects NaN and infinities, which no range can contain
func notFinite(key Key, f float64) error {
	return &OutOfRangeError{Key: key, Value: f, Low: -math.MaxFloat64, High: math.MaxFloat64}
}

// normalize checks v against the declared kind and converts numeric
// variants to the canonical Go type of that kind.
func normalize(key Key, d Decl, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch d.Kind {
	case KindFloat:
		var f float64
		switch x := v.(type) {
		case float64:
			f = x
		case float32:
			f = float64(x)
		case int:
			return float64(x), nil
		case int64:
			return float64(x), nil
		case rf.Hz:
			f = float64(x)
		default:
			return nil, &TypeError{Key: key, Want: d.Kind, Value: v}
		}
		if !finite(f) {
			return nil, notFinite(key, f)
		}
		return f, nil
	case KindInt:
		switch x := v.(type) {
		case int:
			return x, nil
		case int64:
			return int(x), nil
		case float64:
			if !finite(x) {
				return nil, notFinite(key, x)
			}
			if x == math.Trunc(x) {
				return int(x), nil
			}
		}
	case KindEnum:
		switch x := v.(type) {
		case string:
			return x, nil
		case fmt.Stringer:
			return x.String(), nil
		}
	case KindRange:
		if b, ok := v.(Bounded); ok {
			return RangeOf(b), nil
		}
	}
	return nil, &TypeError{Key: key, Want: d.Kind, Value: v}
}

// ParseValue decodes the text form of a value for key. The words
// "auto", "none" and "unset" decode to nil.
func ParseValue(key Key, text string) (any, error) {
	d, ok := decls[key]
	if !ok {
		return nil, &UnknownKeyError{Key: key}
	}
	text = strings.TrimSpace(text)
	switch strings.ToLower(text) {
	case "", "auto", "none", "unset", "null":
		return nil, nil
	}

	switch d.Kind {
	case KindFloat:
		return parseFloat(d, text)
	case KindInt:
		n, err := strconv.Atoi(text)
		if err != nil {
			f, ferr := parseFloat(d, text)
			if ferr != nil || f != math.Trunc(f) {
				return nil, fmt.Errorf("invalid integer for %s: %q", key, text)
			}
			return int(f), nil
		}
		return n, nil
	case KindEnum:
		return strings.ToLower(text), nil
	default:
		return nil, &ReadOnlyKeyError{Key: key}
	}
}

var engSuffixes = map[byte]float64{
	'p': 1e-12, 'n': 1e-9, 'u': 1e-6, 'm': 1e-3,
	'k': 1e3, 'K': 1e3, 'M': 1e6, 'G': 1e9, 'T': 1e12,
}

func parseFloat(d Decl, text string) (float64, error) {
	return ParseNumber(text, d.Hz)
}

// ParseNumber parses plain, scientific or engineering notation. With hz
// set, unit forms such as 433.92MHz are accepted too.
func ParseNumber(text string, hz bool) (float64, error) {
	text = strings.TrimSpace(text)
	f, err := parseNumber(text, hz)
	if err != nil {
		return 0, err
	}
	if !finite(f) {
		return 0, fmt.Errorf("invalid number %q: not finite", text)
	}
	return f, nil
}

func parseNumber(text string, hz bool) (float64, error) {
	if f, err := strconv.ParseFloat(text, 64); err == nil {
		return f, nil
	}
	// engineering notation, e.g. 2.4G or 250k
	if n := len(text); n > 1 {
		if mult, ok := engSuffixes[text[n-1]]; ok {
			if f, err := strconv.ParseFloat(text[:n-1], 64); err == nil {
				return f * mult, nil
			}
		}
	}
	// unit form, e.g. 433.92MHz
	if hz {
		if n := len(text); n > 2 && strings.EqualFold(text[n-2:], "hz") {
			if f, err := parseNumber(text[:n-2], false); err == nil {
				return f, nil
			}
		}
		if f, err := rf.ParseHz(text); err == nil {
			return float64(f), nil
		}
	}
	return 0, fmt.Errorf("invalid number %q", text)
}

// FormatValue renders a value in the form ParseValue accepts
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "auto"
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case int:
		return strconv.Itoa(x)
	case string:
		return x
	case Range:
		return fmt.Sprintf("%s:%s",
			strconv.FormatFloat(x.Low, 'g', -1, 64),
			strconv.FormatFloat(x.High, 'g', -1, 64))
	default:
		return fmt.Sprint(x)
	}
}

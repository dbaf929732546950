package model

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Inputs holds indicator parameters as loaded from configuration. Values are
// numbers or strings.
type Inputs map[string]any

// Has reports whether key is present.
func (in Inputs) Has(key string) bool {
	_, ok := in[key]
	return ok
}

// Number returns the numeric value of key. Numeric strings are accepted.
// ok is false when the key is absent; err is set when it is present but not
// a number.
func (in Inputs) Number(key string) (v float64, ok bool, err error) {
	raw, ok := in[key]
	if !ok {
		return 0, false, nil
	}
	switch x := raw.(type) {
	case float64:
		return x, true, nil
	case float32:
		return float64(x), true, nil
	case int:
		return float64(x), true, nil
	case int32:
		return float64(x), true, nil
	case int64:
		return float64(x), true, nil
	case uint:
		return float64(x), true, nil
	case uint32:
		return float64(x), true, nil
	case uint64:
		return float64(x), true, nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, true, fmt.Errorf("input %q: %w", key, err)
		}
		return f, true, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, true, fmt.Errorf("input %q: not a number: %q", key, x)
		}
		return f, true, nil
	default:
		return 0, true, fmt.Errorf("input %q: unsupported type %T", key, raw)
	}
}

// String returns the value of key formatted as a string.
func (in Inputs) String(key string) (string, bool) {
	raw, ok := in[key]
	if !ok {
		return "", false
	}
	return formatInput(raw), true
}

// Clone returns a shallow copy.
func (in Inputs) Clone() Inputs {
	out := make(Inputs, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Spec identifies one indicator parameterization on one timeframe.
type Spec struct {
	Name      string `json:"name" yaml:"name"`
	Inputs    Inputs `json:"inputs" yaml:"inputs"`
	Timeframe string `json:"timeframe" yaml:"timeframe"`
}

// ID returns the canonical spec id.
func (s Spec) ID() string {
	return CanonicalID(s.Name, s.Inputs, s.Timeframe)
}

func (s Spec) String() string { return s.ID() }

// CanonicalID builds the order-independent identity of an indicator
// parameterization: lowercase(name) + "_" + sorted "k:v" pairs joined by ","
// + "@" + timeframe.
func CanonicalID(name string, inputs Inputs, tf string) string {
	keys := make([]string, 0, len(inputs))
	for k := range inputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(strings.ToLower(name))
	sb.WriteByte('_')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteByte(':')
		sb.WriteString(formatInput(inputs[k]))
	}
	sb.WriteByte('@')
	sb.WriteString(tf)
	return sb.String()
}

// formatInput renders numbers in shortest round-trip form so that 20, 20.0
// and int64(20) produce the same id.
func formatInput(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint:
		return strconv.FormatUint(uint64(x), 10)
	case uint32:
		return strconv.FormatUint(uint64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

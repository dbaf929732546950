package indicator

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"trading-indicators/internal/model"
)

// Source selects the scalar series an indicator operates on.
type Source string

const (
	SourceOpen   Source = "open"
	SourceHigh   Source = "high"
	SourceLow    Source = "low"
	SourceClose  Source = "close"
	SourceVolume Source = "volume"
	SourceHL2    Source = "hl2"
	SourceHLC3   Source = "hlc3"
	SourceOHLC4  Source = "ohlc4"

	// SourceDerived reads the first dependency output attached to the bar.
	// Adapters with dependencies select it themselves; it is never parsed
	// from spec inputs.
	SourceDerived Source = "derived"
)

// maxPeriod bounds window lengths read from spec inputs.
const maxPeriod = 10000

// ParseSource maps a selector to a bar field, case-insensitively.
// Unrecognized strings, including "derived", fall back to close.
func ParseSource(s string) Source {
	switch src := Source(strings.ToLower(strings.TrimSpace(s))); src {
	case SourceOpen, SourceHigh, SourceLow, SourceClose, SourceVolume,
		SourceHL2, SourceHLC3, SourceOHLC4:
		return src
	default:
		return SourceClose
	}
}

// Value extracts the source value from a bar. Only SourceDerived can be null.
func (s Source) Value(b model.Bar) model.Value {
	switch s {
	case SourceOpen:
		return model.Float(b.O)
	case SourceHigh:
		return model.Float(b.H)
	case SourceLow:
		return model.Float(b.L)
	case SourceVolume:
		return model.Float(b.V)
	case SourceHL2:
		return model.Float((b.H + b.L) / 2)
	case SourceHLC3:
		return model.Float((b.H + b.L + b.C) / 3)
	case SourceOHLC4:
		return model.Float((b.O + b.H + b.L + b.C) / 4)
	case SourceDerived:
		if len(b.Derived) == 0 {
			return model.Null
		}
		return b.Derived[0]
	default:
		return model.Float(b.C)
	}
}

// float returns the source value with null mapped to NaN, for arithmetic that
// must propagate "undefined" identically on both compute paths.
func (s Source) float(b model.Bar) float64 {
	return s.Value(b).Or(math.NaN())
}

// sourceSeries extracts the source series of a bar slice.
func sourceSeries(bars []model.Bar, src Source) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = src.float(b)
	}
	return out
}

// ValidationResult is the outcome of ValidateIndicatorParams.
type ValidationResult struct {
	Valid   bool
	Missing []string
}

// ValidateIndicatorParams checks that every required key is present in
// inputs. Missing keys are reported in the order they were required.
func ValidateIndicatorParams(inputs model.Inputs, requiredKeys []string) ValidationResult {
	res := ValidationResult{Valid: true}
	for _, k := range requiredKeys {
		if !inputs.Has(k) {
			res.Missing = append(res.Missing, k)
		}
	}
	res.Valid = len(res.Missing) == 0
	return res
}

// paramReader decodes an adapter's typed parameters from spec inputs,
// collecting every problem instead of stopping at the first.
type paramReader struct {
	name     string
	in       model.Inputs
	missing  []string
	problems []string
}

// newParamReader validates required keys up front.
func newParamReader(name string, in model.Inputs, required ...string) *paramReader {
	r := &paramReader{name: name, in: in}
	if res := ValidateIndicatorParams(in, required); !res.Valid {
		r.missing = res.Missing
	}
	return r
}

// period reads a positive integer no larger than maxPeriod.
func (r *paramReader) period(key string, def int) int {
	v, ok, err := r.in.Number(key)
	if !ok {
		return def
	}
	if err != nil {
		r.problems = append(r.problems, err.Error())
		return def
	}
	if v < 1 || v != math.Trunc(v) {
		r.problems = append(r.problems, fmt.Sprintf("input %q: must be a positive integer, got %v", key, v))
		return def
	}
	if v > maxPeriod {
		r.problems = append(r.problems, fmt.Sprintf("input %q: must be at most %d, got %v", key, maxPeriod, v))
		return def
	}
	return int(v)
}

// nonNegative reads a finite float >= 0.
func (r *paramReader) nonNegative(key string, def float64) float64 {
	v, ok, err := r.in.Number(key)
	if !ok {
		return def
	}
	if err != nil {
		r.problems = append(r.problems, err.Error())
		return def
	}
	if v < 0 || math.IsInf(v, 0) || math.IsNaN(v) {
		r.problems = append(r.problems, fmt.Sprintf("input %q: must be a finite number >= 0, got %v", key, v))
		return def
	}
	return v
}

func (r *paramReader) source(key string) Source {
	s, ok := r.in.String(key)
	if !ok {
		return SourceClose
	}
	return ParseSource(s)
}

func (r *paramReader) err() error {
	if len(r.missing) == 0 && len(r.problems) == 0 {
		return nil
	}
	return &ValidationError{Indicator: r.name, Missing: r.missing, Problems: r.problems}
}

// slotKey namespaces a state slot per indicator parameterization, e.g.
// "bb_variance_20" or "bb_variance_20_hl2" for a non-close source.
func slotKey(prefix string, period int, src Source) string {
	key := prefix + "_" + strconv.Itoa(period)
	if src != SourceClose {
		key += "_" + string(src)
	}
	return key
}

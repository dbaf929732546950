package model

import "encoding/json"

// Bar is one OHLCV bar of a symbol+timeframe stream. T is the bar open time
// in unix milliseconds.
//
// A stream delivers strictly increasing T across final bars. While a bar is
// open the producer may repeat the same T with IsPartial=true any number of
// times, followed by exactly one tick with the same T and IsPartial=false.
type Bar struct {
	T         int64   `json:"t"`
	O         float64 `json:"o"`
	H         float64 `json:"h"`
	L         float64 `json:"l"`
	C         float64 `json:"c"`
	V         float64 `json:"v"`
	IsPartial bool    `json:"isPartial,omitempty"`

	// Derived holds synthetic input sources attached by the compute registry
	// (the primary output of each dependency, in dependency order).
	// Producers leave it empty.
	Derived []Value `json:"-"`
}

// Final returns a copy of the bar marked as closed.
func (b Bar) Final() Bar {
	b.IsPartial = false
	return b
}

// WithDerived returns a copy of the bar carrying the given dependency values.
func (b Bar) WithDerived(vals []Value) Bar {
	b.Derived = vals
	return b
}

// JSON returns the JSON-encoded bar (ignoring errors for hot-path usage).
func (b *Bar) JSON() []byte {
	data, _ := json.Marshal(b)
	return data
}

package model

import (
	"encoding/json"
	"math"
	"strconv"
)

// Value is a nullable indicator value. The zero Value is null.
type Value struct {
	V     float64
	Valid bool
}

// Null is the undefined value.
var Null = Value{}

// Float returns a defined value.
func Float(v float64) Value {
	return Value{V: v, Valid: true}
}

// FromFloat maps a computed number to a Value. NaN and ±Inf are undefined
// and become Null.
func FromFloat(v float64) Value {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Null
	}
	return Float(v)
}

// Or returns the value, or def when null.
func (v Value) Or(def float64) float64 {
	if !v.Valid {
		return def
	}
	return v.V
}

func (v Value) String() string {
	if !v.Valid {
		return "null"
	}
	return strconv.FormatFloat(v.V, 'f', -1, 64)
}

// MarshalJSON encodes null values as JSON null.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(v.V)
}

// UnmarshalJSON decodes JSON null as Null.
func (v *Value) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = Null
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*v = Float(f)
	return nil
}

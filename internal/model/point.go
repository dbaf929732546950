package model

import "encoding/json"

// Status tells whether a point belongs to the open bar or a closed one.
type Status string

const (
	StatusPartial Status = "partial"
	StatusFinal   Status = "final"
)

// StatusOf returns the point status matching a bar tick.
func StatusOf(b Bar) Status {
	if b.IsPartial {
		return StatusPartial
	}
	return StatusFinal
}

// Point is one indicator output row aligned to a bar.
type Point struct {
	T      int64            `json:"t"`
	Values map[string]Value `json:"values"`
	Status Status           `json:"status"`
}

// NullPoint returns a point with every named output set to null.
func NullPoint(t int64, status Status, outputs []string) Point {
	vals := make(map[string]Value, len(outputs))
	for _, name := range outputs {
		vals[name] = Null
	}
	return Point{T: t, Values: vals, Status: status}
}

// Value returns the named output, Null if absent.
func (p Point) Value(name string) Value {
	return p.Values[name]
}

// AllNull reports whether every value of the point is null.
func (p Point) AllNull() bool {
	for _, v := range p.Values {
		if v.Valid {
			return false
		}
	}
	return true
}

// Masked returns a copy of the point with every value nulled.
func (p Point) Masked() Point {
	vals := make(map[string]Value, len(p.Values))
	for name := range p.Values {
		vals[name] = Null
	}
	return Point{T: p.T, Values: vals, Status: p.Status}
}

// IndicatorResult is a point delta tagged with its session identity, as
// forwarded to the rendering collaborator.
type IndicatorResult struct {
	SpecID string  `json:"spec_id"` // canonical spec id
	Symbol string  `json:"symbol"`
	Points []Point `json:"points"`
}

// StreamKey returns the pub/sub channel: "ind:{specID}:{symbol}".
func (r *IndicatorResult) StreamKey() string {
	return "ind:" + r.SpecID + ":" + r.Symbol
}

// JSON returns the JSON-encoded result.
func (r *IndicatorResult) JSON() ([]byte, error) {
	return json.Marshal(r)
}

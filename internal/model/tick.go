package model

// Tick is one bar update for a symbol on a timeframe, as delivered by the
// live transport.
type Tick struct {
	Symbol    string `json:"symbol"`
	Timeframe string `json:"tf"`
	Bar       Bar    `json:"bar"`
}

// Key returns "tf:symbol".
func (t *Tick) Key() string {
	return t.Timeframe + ":" + t.Symbol
}

// StreamKey returns the Redis stream key: "bar:{tf}:{symbol}".
func (t *Tick) StreamKey() string {
	return BarStreamKey(t.Timeframe, t.Symbol)
}

// BarStreamKey returns the Redis stream key for a symbol+timeframe bar stream.
func BarStreamKey(tf, symbol string) string {
	return "bar:" + tf + ":" + symbol
}

package redis

import (
	"encoding/json"
	"fmt"
	"strings"

	"trading-indicators/internal/model"
)

const barPrefix = "bar:"

// ParseBarStreamKey splits "bar:{tf}:{symbol}" into its parts. Symbols may
// themselves contain colons ("NSE:INFY").
func ParseBarStreamKey(key string) (tf, symbol string, err error) {
	rest, ok := strings.CutPrefix(key, barPrefix)
	if !ok {
		return "", "", fmt.Errorf("not a bar stream key: %q", key)
	}
	tf, symbol, ok = strings.Cut(rest, ":")
	if !ok || tf == "" || symbol == "" {
		return "", "", fmt.Errorf("malformed bar stream key: %q", key)
	}
	return tf, symbol, nil
}

// decodeTick builds a Tick from one stream entry. The entry carries the bar
// JSON under "data"; symbol and timeframe come from the stream key.
func decodeTick(stream string, values map[string]interface{}) (model.Tick, error) {
	tf, symbol, err := ParseBarStreamKey(stream)
	if err != nil {
		return model.Tick{}, err
	}
	data, ok := values["data"].(string)
	if !ok {
		return model.Tick{}, fmt.Errorf("stream %s: entry has no data field", stream)
	}
	var bar model.Bar
	if err := json.Unmarshal([]byte(data), &bar); err != nil {
		return model.Tick{}, fmt.Errorf("stream %s: unmarshal bar: %w", stream, err)
	}
	return model.Tick{Symbol: symbol, Timeframe: tf, Bar: bar}, nil
}

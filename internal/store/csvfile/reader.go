// Package csvfile reads OHLCV bars from CSV files for offline batch runs and
// SQLite imports.
package csvfile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"trading-indicators/internal/model"
)

var columns = []string{"t", "o", "h", "l", "c", "v"}

// ReadFile reads bars from the CSV file at path.
func ReadFile(path string) ([]model.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	//nolint:errcheck // read only
	defer f.Close()
	return ReadBars(f)
}

// ReadBars decodes a CSV stream with a header row naming the columns
// t (unix ms), o, h, l, c and optionally v, in any order. Header names are
// case-insensitive; "time", "open", "high", "low", "close" and "volume" are
// accepted as well. Rows are returned sorted by T.
func ReadBars(r io.Reader) ([]model.Bar, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("csv header: %w", err)
	}
	idx, err := columnIndex(header)
	if err != nil {
		return nil, err
	}

	var bars []model.Bar
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		b, err := decodeRow(rec, idx)
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		bars = append(bars, b)
	}
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].T < bars[j].T })
	return bars, nil
}

var aliases = map[string]string{
	"time": "t", "timestamp": "t",
	"open": "o", "high": "h", "low": "l", "close": "c", "volume": "v",
}

func columnIndex(header []string) (map[string]int, error) {
	idx := make(map[string]int, len(columns))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(name))
		if a, ok := aliases[name]; ok {
			name = a
		}
		idx[name] = i
	}
	for _, c := range columns[:5] {
		if _, ok := idx[c]; !ok {
			return nil, fmt.Errorf("csv header: missing column %q", c)
		}
	}
	return idx, nil
}

func decodeRow(rec []string, idx map[string]int) (model.Bar, error) {
	var b model.Bar
	t, err := strconv.ParseInt(strings.TrimSpace(rec[idx["t"]]), 10, 64)
	if err != nil {
		return b, fmt.Errorf("t: %w", err)
	}
	b.T = t

	fields := []*float64{nil, &b.O, &b.H, &b.L, &b.C, &b.V}
	for i, c := range columns[1:] {
		j, ok := idx[c]
		if !ok {
			continue
		}
		if j >= len(rec) {
			return b, fmt.Errorf("%s: missing field", c)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[j]), 64)
		if err != nil {
			return b, fmt.Errorf("%s: %w", c, err)
		}
		*fields[i+1] = v
	}
	return b, nil
}

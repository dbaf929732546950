package indicator

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"trading-indicators/internal/model"
)

const eps = 1e-8

// randomWalk builds n final bars of a seeded random walk with consistent
// OHLC ranges.
func randomWalk(seed int64, n int) []model.Bar {
	rng := rand.New(rand.NewSource(seed))
	bars := make([]model.Bar, n)
	price := 100.0
	for i := range bars {
		open := price
		price += rng.NormFloat64()
		hi := math.Max(open, price) + rng.Float64()
		lo := math.Min(open, price) - rng.Float64()
		bars[i] = model.Bar{
			T: int64(i+1) * 60_000,
			O: open, H: hi, L: lo, C: price,
			V: 1000 + rng.Float64()*500,
		}
	}
	return bars
}

func closes(vals ...float64) []model.Bar {
	bars := make([]model.Bar, len(vals))
	for i, v := range vals {
		bars[i] = model.Bar{T: int64(i+1) * 60_000, O: v, H: v, L: v, C: v, V: 1}
	}
	return bars
}

// withRevisions interleaves up to three partial revisions before each final
// bar. The revisions differ from the final values.
func withRevisions(seed int64, bars []model.Bar) []model.Bar {
	rng := rand.New(rand.NewSource(seed))
	out := make([]model.Bar, 0, len(bars)*3)
	for _, b := range bars {
		for r := rng.Intn(4); r > 0; r-- {
			p := b
			p.C += rng.NormFloat64()
			p.H = math.Max(p.H, p.C)
			p.L = math.Min(p.L, p.C)
			p.IsPartial = true
			out = append(out, p)
		}
		out = append(out, b)
	}
	return out
}

// replay feeds ticks through Registry.Incremental and keeps final points.
func replay(t *testing.T, reg *Registry, spec model.Spec, ticks []model.Bar) []model.Point {
	t.Helper()
	st, err := reg.NewState(spec)
	require.NoError(t, err)
	var finals []model.Point
	for _, b := range ticks {
		d, err := reg.Incremental(spec, st, b)
		require.NoError(t, err)
		require.Len(t, d.Points, 1)
		st = d.Next
		if !b.IsPartial {
			finals = append(finals, d.Points[0])
		}
	}
	return finals
}

func requirePointsClose(t *testing.T, want, got []model.Point) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		require.Equal(t, want[i].T, got[i].T, "index %d", i)
		require.Len(t, got[i].Values, len(want[i].Values), "index %d", i)
		for name, w := range want[i].Values {
			g := got[i].Values[name]
			require.Equal(t, w.Valid, g.Valid, "index %d output %s", i, name)
			if w.Valid {
				require.InDelta(t, w.V, g.V, eps, "index %d output %s", i, name)
			}
		}
	}
}

func spec(name string, tf string, kv ...any) model.Spec {
	in := model.Inputs{}
	for i := 0; i+1 < len(kv); i += 2 {
		in[kv[i].(string)] = kv[i+1]
	}
	return model.Spec{Name: name, Inputs: in, Timeframe: tf}
}

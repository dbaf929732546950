package indicator

import (
	"math"
	"strconv"

	"trading-indicators/internal/model"
	"trading-indicators/internal/rollmath"
)

// stochNeutral is the %K reported when the window's high equals its low.
const stochNeutral = 50.0

// Stoch is the stochastic oscillator %K:
// 100 * (close - lowest low) / (highest high - lowest low) over period bars.
type Stoch struct{}

type stochParams struct {
	Period int
}

type stochSlots struct {
	highs string
	lows  string
}

func (Stoch) Key() string { return "stoch" }

func (Stoch) Outputs() []string { return []string{"k"} }

func (s Stoch) params(spec model.Spec) (stochParams, error) {
	r := newParamReader(s.Key(), spec.Inputs)
	p := stochParams{Period: r.period("period", 14)}
	return p, r.err()
}

func (p stochParams) slots() stochSlots {
	return stochSlots{
		highs: "stoch_highs_" + strconv.Itoa(p.Period),
		lows:  "stoch_lows_" + strconv.Itoa(p.Period),
	}
}

func (s Stoch) Warmup(spec model.Spec) (int, error) {
	p, err := s.params(spec)
	if err != nil {
		return 0, err
	}
	return p.Period - 1, nil
}

func (s Stoch) Dependencies(spec model.Spec) ([]model.Spec, error) {
	_, err := s.params(spec)
	return nil, err
}

func (s Stoch) Batch(spec model.Spec, bars []model.Bar) ([]model.Point, error) {
	p, err := s.params(spec)
	if err != nil {
		return nil, err
	}
	highs := sourceSeries(bars, SourceHigh)
	lows := sourceSeries(bars, SourceLow)

	out := make([]model.Point, len(bars))
	for i, bar := range bars {
		k := math.NaN()
		if i >= p.Period-1 {
			k = percentK(bar.C, highs[i-p.Period+1:i+1], lows[i-p.Period+1:i+1])
		}
		out[i] = scalarPoint(bar, "k", k)
	}
	return out, nil
}

func (s Stoch) NewState(spec model.Spec, st *State) error {
	p, err := s.params(spec)
	if err != nil {
		return err
	}
	keys := p.slots()
	st.put(keys.highs, rollmath.NewWindow(p.Period))
	st.put(keys.lows, rollmath.NewWindow(p.Period))
	return nil
}

func (s Stoch) Incremental(spec model.Spec, st *State, bar model.Bar) (Delta, error) {
	p, err := s.params(spec)
	if err != nil {
		return Delta{}, err
	}
	keys := p.slots()
	highs, err := slot[*rollmath.Window](st, keys.highs)
	if err != nil {
		return Delta{}, err
	}
	lows, err := slot[*rollmath.Window](st, keys.lows)
	if err != nil {
		return Delta{}, err
	}

	var hs, ls []float64
	if bar.IsPartial {
		hs, ls = highs.With(bar.H), lows.With(bar.L)
	} else {
		highs.Push(bar.H)
		lows.Push(bar.L)
		hs, ls = highs.Values(), lows.Values()
	}

	k := math.NaN()
	if len(hs) == p.Period {
		k = percentK(bar.C, hs, ls)
	}
	return single(st, scalarPoint(bar, "k", k)), nil
}

// percentK resolves a zero range to stochNeutral instead of dividing by zero.
func percentK(close float64, highs, lows []float64) float64 {
	hh, ll := highs[0], lows[0]
	for i := 1; i < len(highs); i++ {
		hh = math.Max(hh, highs[i])
		ll = math.Min(ll, lows[i])
	}
	rng := hh - ll
	if rng == 0 {
		return stochNeutral
	}
	return 100 * (close - ll) / rng
}

package indicator

import (
	"math"

	"trading-indicators/internal/model"
	"trading-indicators/internal/rollmath"
)

// EMA is the exponential moving average with multiplier 2/(period+1),
// seeded with the first source value. The first period-1 points are null.
// O(1) per update.
type EMA struct{}

type emaSlot struct {
	Value float64
	Count int // closed bars consumed
}

func (EMA) Key() string { return "ema" }

func (EMA) Outputs() []string { return []string{"ema"} }

func (e EMA) params(spec model.Spec) (maParams, error) {
	r := newParamReader(e.Key(), spec.Inputs)
	p := maParams{Period: r.period("period", 20), Source: r.source("source")}
	return p, r.err()
}

func (e EMA) Warmup(spec model.Spec) (int, error) {
	p, err := e.params(spec)
	if err != nil {
		return 0, err
	}
	return p.Period - 1, nil
}

func (e EMA) Dependencies(spec model.Spec) ([]model.Spec, error) {
	_, err := e.params(spec)
	return nil, err
}

func (e EMA) Batch(spec model.Spec, bars []model.Bar) ([]model.Point, error) {
	p, err := e.params(spec)
	if err != nil {
		return nil, err
	}
	series := rollmath.EMA(sourceSeries(bars, p.Source), p.Period)
	out := make([]model.Point, len(bars))
	for i, bar := range bars {
		v := series[i]
		if i < p.Period-1 {
			v = math.NaN()
		}
		out[i] = scalarPoint(bar, "ema", v)
	}
	return out, nil
}

func (e EMA) NewState(spec model.Spec, st *State) error {
	p, err := e.params(spec)
	if err != nil {
		return err
	}
	st.put(slotKey("ema", p.Period, p.Source), &emaSlot{})
	return nil
}

func (e EMA) Incremental(spec model.Spec, st *State, bar model.Bar) (Delta, error) {
	p, err := e.params(spec)
	if err != nil {
		return Delta{}, err
	}
	s, err := slot[*emaSlot](st, slotKey("ema", p.Period, p.Source))
	if err != nil {
		return Delta{}, err
	}

	x := p.Source.float(bar)
	v := x
	if s.Count > 0 {
		v = rollmath.EMAStep(s.Value, x, rollmath.EMAMultiplier(p.Period))
	}
	out := v
	if s.Count < p.Period-1 {
		out = math.NaN()
	}
	if !bar.IsPartial {
		s.Value = v
		s.Count++
	}
	return single(st, scalarPoint(bar, "ema", out)), nil
}

package indicator

import (
	"math"

	"trading-indicators/internal/model"
	"trading-indicators/internal/rollmath"
)

// SMMA is the smoothed moving average (Wilder-style smoothing). The first
// value is the SMA of the first period values at index period-1, then
// smma += (price - smma) / period.
type SMMA struct{}

type smmaSlot struct {
	Seed  []float64 // first period-1 values, until seeded
	Value float64
	Count int
}

func (SMMA) Key() string { return "smma" }

func (SMMA) Outputs() []string { return []string{"smma"} }

func (s SMMA) params(spec model.Spec) (maParams, error) {
	r := newParamReader(s.Key(), spec.Inputs)
	p := maParams{Period: r.period("period", 14), Source: r.source("source")}
	return p, r.err()
}

func (s SMMA) Warmup(spec model.Spec) (int, error) {
	p, err := s.params(spec)
	if err != nil {
		return 0, err
	}
	return p.Period - 1, nil
}

func (s SMMA) Dependencies(spec model.Spec) ([]model.Spec, error) {
	_, err := s.params(spec)
	return nil, err
}

func (s SMMA) Batch(spec model.Spec, bars []model.Bar) ([]model.Point, error) {
	p, err := s.params(spec)
	if err != nil {
		return nil, err
	}
	vals := sourceSeries(bars, p.Source)
	out := make([]model.Point, len(bars))
	cur := math.NaN()
	for i, bar := range bars {
		switch {
		case i < p.Period-1:
		case i == p.Period-1:
			cur = rollmath.Mean(vals[:p.Period])
		default:
			cur = rollmath.WilderStep(cur, vals[i], p.Period)
		}
		out[i] = scalarPoint(bar, "smma", cur)
	}
	return out, nil
}

func (s SMMA) NewState(spec model.Spec, st *State) error {
	p, err := s.params(spec)
	if err != nil {
		return err
	}
	st.put(slotKey("smma", p.Period, p.Source), &smmaSlot{Seed: make([]float64, 0, p.Period)})
	return nil
}

func (s SMMA) Incremental(spec model.Spec, st *State, bar model.Bar) (Delta, error) {
	p, err := s.params(spec)
	if err != nil {
		return Delta{}, err
	}
	sl, err := slot[*smmaSlot](st, slotKey("smma", p.Period, p.Source))
	if err != nil {
		return Delta{}, err
	}

	x := p.Source.float(bar)
	v := math.NaN()
	switch {
	case sl.Count < p.Period-1:
	case sl.Count == p.Period-1:
		seed := make([]float64, len(sl.Seed), p.Period)
		copy(seed, sl.Seed)
		v = rollmath.Mean(append(seed, x))
	default:
		v = rollmath.WilderStep(sl.Value, x, p.Period)
	}

	if !bar.IsPartial {
		if sl.Count < p.Period-1 {
			sl.Seed = append(sl.Seed, x)
		} else {
			sl.Value = v
			sl.Seed = nil
		}
		sl.Count++
	}
	return single(st, scalarPoint(bar, "smma", v)), nil
}

package indicator

import (
	"math"
	"strconv"

	"trading-indicators/internal/model"
	"trading-indicators/internal/rollmath"
)

// ATR is the Average True Range with Wilder smoothing, seeded by the mean of
// the first period true ranges. The first bar's true range is high-low.
type ATR struct{}

type atrParams struct {
	Period int
}

type atrSlot struct {
	Seed      []float64 // true ranges until seeded
	Value     float64
	PrevClose float64
	Count     int
}

func (ATR) Key() string { return "atr" }

func (ATR) Outputs() []string { return []string{"atr"} }

func (a ATR) params(spec model.Spec) (atrParams, error) {
	r := newParamReader(a.Key(), spec.Inputs)
	p := atrParams{Period: r.period("period", 14)}
	return p, r.err()
}

func (a ATR) Warmup(spec model.Spec) (int, error) {
	p, err := a.params(spec)
	if err != nil {
		return 0, err
	}
	return p.Period - 1, nil
}

func (a ATR) Dependencies(spec model.Spec) ([]model.Spec, error) {
	_, err := a.params(spec)
	return nil, err
}

// trueRange of bar given the previous close; first bar uses high-low.
func trueRange(bar model.Bar, prevClose float64, first bool) float64 {
	hl := bar.H - bar.L
	if first {
		return hl
	}
	return math.Max(hl, math.Max(math.Abs(bar.H-prevClose), math.Abs(bar.L-prevClose)))
}

func (a ATR) Batch(spec model.Spec, bars []model.Bar) ([]model.Point, error) {
	p, err := a.params(spec)
	if err != nil {
		return nil, err
	}
	trs := make([]float64, len(bars))
	for i, bar := range bars {
		prev := 0.0
		if i > 0 {
			prev = bars[i-1].C
		}
		trs[i] = trueRange(bar, prev, i == 0)
	}

	out := make([]model.Point, len(bars))
	cur := math.NaN()
	for i, bar := range bars {
		switch {
		case i < p.Period-1:
		case i == p.Period-1:
			cur = rollmath.Mean(trs[:p.Period])
		default:
			cur = rollmath.WilderStep(cur, trs[i], p.Period)
		}
		out[i] = scalarPoint(bar, "atr", cur)
	}
	return out, nil
}

func (a ATR) NewState(spec model.Spec, st *State) error {
	p, err := a.params(spec)
	if err != nil {
		return err
	}
	st.put("atr_"+strconv.Itoa(p.Period), &atrSlot{Seed: make([]float64, 0, p.Period)})
	return nil
}

func (a ATR) Incremental(spec model.Spec, st *State, bar model.Bar) (Delta, error) {
	p, err := a.params(spec)
	if err != nil {
		return Delta{}, err
	}
	s, err := slot[*atrSlot](st, "atr_"+strconv.Itoa(p.Period))
	if err != nil {
		return Delta{}, err
	}

	tr := trueRange(bar, s.PrevClose, s.Count == 0)
	v := math.NaN()
	switch {
	case s.Count < p.Period-1:
	case s.Count == p.Period-1:
		seed := make([]float64, len(s.Seed), p.Period)
		copy(seed, s.Seed)
		v = rollmath.Mean(append(seed, tr))
	default:
		v = rollmath.WilderStep(s.Value, tr, p.Period)
	}

	if !bar.IsPartial {
		if s.Count < p.Period-1 {
			s.Seed = append(s.Seed, tr)
		} else {
			s.Value = v
			s.Seed = nil
		}
		s.PrevClose = bar.C
		s.Count++
	}
	return single(st, scalarPoint(bar, "atr", v)), nil
}

package indicator

import (
	"math"
	"strconv"

	"trading-indicators/internal/model"
	"trading-indicators/internal/rollmath"
)

// RSIEMA is an EMA signal line over the RSI series. It depends on
// rsi{period, source} and reads that output through SourceDerived, seeding
// the EMA with the first defined RSI value.
type RSIEMA struct{}

type rsiEMAParams struct {
	Period int
	Signal int
	Source Source
}

type rsiEMASlot struct {
	Value  float64
	Seeded bool
	Count  int
}

func (RSIEMA) Key() string { return "rsi_ema" }

func (RSIEMA) Outputs() []string { return []string{"signal"} }

func (r RSIEMA) params(spec model.Spec) (rsiEMAParams, error) {
	pr := newParamReader(r.Key(), spec.Inputs)
	p := rsiEMAParams{
		Period: pr.period("period", 14),
		Signal: pr.period("signal", 9),
		Source: pr.source("source"),
	}
	return p, pr.err()
}

func (p rsiEMAParams) slot() string {
	return "rsi_ema_" + strconv.Itoa(p.Period) + "_" + strconv.Itoa(p.Signal) + "_" + string(p.Source)
}

// Warmup is the adapter's own requirement (signal-1); the registry raises it
// to the RSI dependency's warmup when that is longer.
func (r RSIEMA) Warmup(spec model.Spec) (int, error) {
	p, err := r.params(spec)
	if err != nil {
		return 0, err
	}
	return p.Signal - 1, nil
}

func (r RSIEMA) Dependencies(spec model.Spec) ([]model.Spec, error) {
	p, err := r.params(spec)
	if err != nil {
		return nil, err
	}
	return []model.Spec{{
		Name:      RSI{}.Key(),
		Inputs:    model.Inputs{"period": p.Period, "source": string(p.Source)},
		Timeframe: spec.Timeframe,
	}}, nil
}

func (r RSIEMA) Batch(spec model.Spec, bars []model.Bar) ([]model.Point, error) {
	p, err := r.params(spec)
	if err != nil {
		return nil, err
	}
	mult := rollmath.EMAMultiplier(p.Signal)
	out := make([]model.Point, len(bars))
	s := rsiEMASlot{}
	for i, bar := range bars {
		v := r.step(&s, SourceDerived.Value(bar), mult)
		if i < p.Signal-1 {
			v = math.NaN()
		}
		out[i] = scalarPoint(bar, "signal", v)
	}
	return out, nil
}

func (r RSIEMA) NewState(spec model.Spec, st *State) error {
	p, err := r.params(spec)
	if err != nil {
		return err
	}
	st.put(p.slot(), &rsiEMASlot{})
	return nil
}

func (r RSIEMA) Incremental(spec model.Spec, st *State, bar model.Bar) (Delta, error) {
	p, err := r.params(spec)
	if err != nil {
		return Delta{}, err
	}
	s, err := slot[*rsiEMASlot](st, p.slot())
	if err != nil {
		return Delta{}, err
	}

	next := *s
	v := r.step(&next, SourceDerived.Value(bar), rollmath.EMAMultiplier(p.Signal))
	if s.Count < p.Signal-1 {
		v = math.NaN()
	}
	if !bar.IsPartial {
		*s = next
	}
	return single(st, scalarPoint(bar, "signal", v)), nil
}

// step advances s by one bar. A null input leaves the average untouched and
// yields NaN.
func (r RSIEMA) step(s *rsiEMASlot, in model.Value, mult float64) float64 {
	s.Count++
	if !in.Valid {
		return math.NaN()
	}
	if !s.Seeded {
		s.Value, s.Seeded = in.V, true
	} else {
		s.Value = rollmath.EMAStep(s.Value, in.V, mult)
	}
	return s.Value
}

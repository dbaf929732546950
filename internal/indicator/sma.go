package indicator

import (
	"math"

	"trading-indicators/internal/model"
	"trading-indicators/internal/rollmath"
)

// SMA is the simple moving average over a trailing window.
// Incremental keeps a preallocated circular buffer of the last period values.
type SMA struct{}

type maParams struct {
	Period int
	Source Source
}

func (SMA) Key() string { return "sma" }

func (SMA) Outputs() []string { return []string{"sma"} }

func (s SMA) params(spec model.Spec) (maParams, error) {
	r := newParamReader(s.Key(), spec.Inputs)
	p := maParams{Period: r.period("period", 20), Source: r.source("source")}
	return p, r.err()
}

func (s SMA) Warmup(spec model.Spec) (int, error) {
	p, err := s.params(spec)
	if err != nil {
		return 0, err
	}
	return p.Period - 1, nil
}

func (s SMA) Dependencies(spec model.Spec) ([]model.Spec, error) {
	_, err := s.params(spec)
	return nil, err
}

func (s SMA) Batch(spec model.Spec, bars []model.Bar) ([]model.Point, error) {
	p, err := s.params(spec)
	if err != nil {
		return nil, err
	}
	means := rollmath.RollingMean(sourceSeries(bars, p.Source), p.Period)
	out := make([]model.Point, len(bars))
	for i, bar := range bars {
		out[i] = scalarPoint(bar, "sma", means[i])
	}
	return out, nil
}

func (s SMA) NewState(spec model.Spec, st *State) error {
	p, err := s.params(spec)
	if err != nil {
		return err
	}
	st.put(slotKey("sma_values", p.Period, p.Source), rollmath.NewWindow(p.Period))
	return nil
}

func (s SMA) Incremental(spec model.Spec, st *State, bar model.Bar) (Delta, error) {
	p, err := s.params(spec)
	if err != nil {
		return Delta{}, err
	}
	win, err := slot[*rollmath.Window](st, slotKey("sma_values", p.Period, p.Source))
	if err != nil {
		return Delta{}, err
	}

	x := p.Source.float(bar)
	mean := math.NaN()
	if bar.IsPartial {
		if vals := win.With(x); len(vals) == p.Period {
			mean = rollmath.Mean(vals)
		}
		return single(st, scalarPoint(bar, "sma", mean)), nil
	}

	win.Push(x)
	if win.Full() {
		mean = rollmath.Mean(win.Values())
	}
	return single(st, scalarPoint(bar, "sma", mean)), nil
}

// scalarPoint builds a one-output point; NaN becomes null.
func scalarPoint(bar model.Bar, name string, v float64) model.Point {
	return model.Point{
		T:      bar.T,
		Values: map[string]model.Value{name: model.FromFloat(v)},
		Status: model.StatusOf(bar),
	}
}

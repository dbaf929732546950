package indicator

import (
	"math"

	"trading-indicators/internal/model"
	"trading-indicators/internal/rollmath"
)

// Bollinger Bands: middle = SMA(period), upper/lower = middle ± k·stddev,
// population standard deviation over the same window.
type Bollinger struct{}

type bollParams struct {
	Period int
	K      float64
	Source Source
}

type bollSlots struct {
	variance  string
	values    string
	finalized string
}

func (Bollinger) Key() string { return "bb" }

func (Bollinger) Outputs() []string { return []string{"middle", "upper", "lower"} }

func (b Bollinger) params(spec model.Spec) (bollParams, error) {
	r := newParamReader(b.Key(), spec.Inputs)
	p := bollParams{
		Period: r.period("period", 20),
		K:      r.nonNegative("k", 2),
		Source: r.source("source"),
	}
	return p, r.err()
}

func (p bollParams) slots() bollSlots {
	return bollSlots{
		variance:  slotKey("bb_variance", p.Period, p.Source),
		values:    slotKey("bb_values", p.Period, p.Source),
		finalized: slotKey("bb_finalized", p.Period, p.Source),
	}
}

func (b Bollinger) Warmup(spec model.Spec) (int, error) {
	p, err := b.params(spec)
	if err != nil {
		return 0, err
	}
	return p.Period - 1, nil
}

func (b Bollinger) Dependencies(spec model.Spec) ([]model.Spec, error) {
	_, err := b.params(spec)
	return nil, err
}

func (b Bollinger) Batch(spec model.Spec, bars []model.Bar) ([]model.Point, error) {
	p, err := b.params(spec)
	if err != nil {
		return nil, err
	}

	vals := sourceSeries(bars, p.Source)
	means := rollmath.RollingMean(vals, p.Period)
	vars := rollmath.RollingVariance(vals, p.Period)

	out := make([]model.Point, len(bars))
	for i, bar := range bars {
		out[i] = b.point(bar, means[i], vars[i], p.K)
	}
	return out, nil
}

func (b Bollinger) NewState(spec model.Spec, st *State) error {
	p, err := b.params(spec)
	if err != nil {
		return err
	}
	keys := p.slots()
	st.put(keys.variance, rollmath.NewVarianceState(p.Period))
	st.put(keys.values, rollmath.NewWindow(p.Period))
	st.put(keys.finalized, &counter{})
	return nil
}

func (b Bollinger) Incremental(spec model.Spec, st *State, bar model.Bar) (Delta, error) {
	p, err := b.params(spec)
	if err != nil {
		return Delta{}, err
	}
	keys := p.slots()
	vs, err := slot[*rollmath.VarianceState](st, keys.variance)
	if err != nil {
		return Delta{}, err
	}
	win, err := slot[*rollmath.Window](st, keys.values)
	if err != nil {
		return Delta{}, err
	}
	fin, err := slot[*counter](st, keys.finalized)
	if err != nil {
		return Delta{}, err
	}

	x := p.Source.float(bar)
	mean, variance := math.NaN(), math.NaN()

	if bar.IsPartial {
		if v, ok := vs.Peek(x); ok {
			variance = v
			mean = rollmath.Mean(win.With(x))
		}
		return single(st, b.point(bar, mean, variance, p.K)), nil
	}

	win.Push(x)
	if v, ok := vs.Update(x); ok {
		variance = v
		mean = rollmath.Mean(win.Values())
	}
	fin.N++
	return single(st, b.point(bar, mean, variance, p.K)), nil
}

// point derives the bands identically for both compute paths.
func (b Bollinger) point(bar model.Bar, mean, variance, k float64) model.Point {
	status := model.StatusOf(bar)
	if math.IsNaN(mean) || math.IsNaN(variance) {
		return model.NullPoint(bar.T, status, b.Outputs())
	}
	sd := rollmath.ClampedSqrt(variance)
	return model.Point{
		T: bar.T,
		Values: map[string]model.Value{
			"middle": model.FromFloat(mean),
			"upper":  model.FromFloat(mean + k*sd),
			"lower":  model.FromFloat(mean - k*sd),
		},
		Status: status,
	}
}

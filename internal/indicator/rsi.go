package indicator

import (
	"strconv"

	"trading-indicators/internal/model"
	"trading-indicators/internal/rollmath"
)

// RSI is the Relative Strength Index using Wilder's smoothing. Both period
// and source are required.
//
// Bar 0 has no delta. Bars 1..period-1 accumulate gains and losses; bar
// period seeds the averages with their arithmetic mean; later bars apply one
// Wilder step each.
type RSI struct{}

type rsiParams struct {
	Period int
	Source Source
}

// rsiSlot is the committed accumulator. Partial ticks read it but never
// write it, so revisions of the open bar cannot double-apply a Wilder step.
type rsiSlot struct {
	AvgGain float64
	AvgLoss float64
	SumGain float64 // seed accumulation, bars 1..period-1
	SumLoss float64
	Prev    float64 // source value of the last closed bar
	Closed  int     // closed bars seen
}

func (RSI) Key() string { return "rsi" }

func (RSI) Outputs() []string { return []string{"rsi"} }

func (r RSI) params(spec model.Spec) (rsiParams, error) {
	pr := newParamReader(r.Key(), spec.Inputs, "period", "source")
	p := rsiParams{
		Period: pr.period("period", 14),
		Source: pr.source("source"),
	}
	return p, pr.err()
}

func (p rsiParams) slot() string {
	return "rsi_" + strconv.Itoa(p.Period) + "_" + string(p.Source)
}

func (r RSI) Warmup(spec model.Spec) (int, error) {
	p, err := r.params(spec)
	if err != nil {
		return 0, err
	}
	return p.Period, nil
}

func (r RSI) Dependencies(spec model.Spec) ([]model.Spec, error) {
	_, err := r.params(spec)
	return nil, err
}

func (r RSI) Batch(spec model.Spec, bars []model.Bar) ([]model.Point, error) {
	p, err := r.params(spec)
	if err != nil {
		return nil, err
	}

	vals := sourceSeries(bars, p.Source)
	deltas := rollmath.Deltas(vals)
	gains := make([]float64, len(vals))
	losses := make([]float64, len(vals))
	for i := 1; i < len(vals); i++ {
		gains[i], losses[i] = rollmath.GainLoss(deltas[i])
	}

	out := make([]model.Point, len(bars))
	var avgGain, avgLoss float64
	for i, bar := range bars {
		switch {
		case i < p.Period:
			out[i] = model.NullPoint(bar.T, model.StatusOf(bar), r.Outputs())
			continue
		case i == p.Period:
			avgGain = rollmath.Mean(gains[1 : p.Period+1])
			avgLoss = rollmath.Mean(losses[1 : p.Period+1])
		default:
			avgGain = rollmath.WilderStep(avgGain, gains[i], p.Period)
			avgLoss = rollmath.WilderStep(avgLoss, losses[i], p.Period)
		}
		out[i] = r.point(bar, avgGain, avgLoss)
	}
	return out, nil
}

func (r RSI) NewState(spec model.Spec, st *State) error {
	p, err := r.params(spec)
	if err != nil {
		return err
	}
	st.put(p.slot(), &rsiSlot{})
	return nil
}

func (r RSI) Incremental(spec model.Spec, st *State, bar model.Bar) (Delta, error) {
	p, err := r.params(spec)
	if err != nil {
		return Delta{}, err
	}
	s, err := slot[*rsiSlot](st, p.slot())
	if err != nil {
		return Delta{}, err
	}

	x := p.Source.float(bar)
	i := s.Closed // index of this bar

	if i == 0 {
		if !bar.IsPartial {
			s.Prev = x
			s.Closed++
		}
		return single(st, model.NullPoint(bar.T, model.StatusOf(bar), r.Outputs())), nil
	}

	// Diff against the last closed bar, never against a previous revision
	// of the open bar.
	gain, loss := rollmath.GainLoss(x - s.Prev)

	var (
		avgGain, avgLoss float64
		pt               model.Point
	)
	switch {
	case i < p.Period:
		pt = model.NullPoint(bar.T, model.StatusOf(bar), r.Outputs())
	case i == p.Period:
		avgGain = (s.SumGain + gain) / float64(p.Period)
		avgLoss = (s.SumLoss + loss) / float64(p.Period)
		pt = r.point(bar, avgGain, avgLoss)
	default:
		avgGain = rollmath.WilderStep(s.AvgGain, gain, p.Period)
		avgLoss = rollmath.WilderStep(s.AvgLoss, loss, p.Period)
		pt = r.point(bar, avgGain, avgLoss)
	}

	if bar.IsPartial {
		return single(st, pt), nil
	}

	if i < p.Period {
		s.SumGain += gain
		s.SumLoss += loss
	} else {
		s.AvgGain, s.AvgLoss = avgGain, avgLoss
	}
	s.Prev = x
	s.Closed++
	return single(st, pt), nil
}

func (r RSI) point(bar model.Bar, avgGain, avgLoss float64) model.Point {
	rsi := rollmath.RSI(rollmath.RelativeStrength(avgGain, avgLoss))
	return model.Point{
		T:      bar.T,
		Values: map[string]model.Value{"rsi": model.FromFloat(rsi)},
		Status: model.StatusOf(bar),
	}
}

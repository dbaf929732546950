package rollmath

import "math"

// WilderStep applies one step of Wilder smoothing:
// avg_t = avg_{t-1} + (x_t - avg_{t-1}) / period.
func WilderStep(avg, x float64, period int) float64 {
	return avg + (x-avg)/float64(period)
}

// EMAMultiplier returns the EMA smoothing factor 2/(period+1).
func EMAMultiplier(period int) float64 {
	return 2.0 / float64(period+1)
}

// EMAStep returns x*mult + prev*(1-mult).
func EMAStep(prev, x, mult float64) float64 {
	return x*mult + prev*(1-mult)
}

// EMA returns the EMA series of values, seeded with the first value.
func EMA(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	mult := EMAMultiplier(period)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = EMAStep(out[i-1], values[i], mult)
	}
	return out
}

// GainLoss splits a signed delta into its positive part and its negated
// negative part. Exactly one of them is non-zero unless delta is zero.
func GainLoss(delta float64) (gain, loss float64) {
	if delta > 0 {
		return delta, 0
	}
	if delta < 0 {
		return 0, -delta
	}
	return 0, 0
}

// Deltas returns per-index differences values[i]-values[i-1]. Index 0 has no
// prior value and is 0.
func Deltas(values []float64) []float64 {
	out := make([]float64, len(values))
	for i := 1; i < len(values); i++ {
		out[i] = values[i] - values[i-1]
	}
	return out
}

// RelativeStrength returns avgGain/avgLoss. A zero avgLoss yields +Inf, not
// NaN, so that RSI saturates at 100.
func RelativeStrength(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return math.Inf(1)
	}
	return avgGain / avgLoss
}

// RSI maps a relative strength to 100 - 100/(1+rs). RSI(+Inf) is exactly 100.
func RSI(rs float64) float64 {
	if math.IsInf(rs, 1) {
		return 100
	}
	return 100 - 100/(1+rs)
}

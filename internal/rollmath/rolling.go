// Package rollmath provides the rolling-statistics primitives shared by the
// indicator adapters: stateless batch functions over whole series and the
// paired incremental steps used on live ticks.
//
// Batch functions return NaN for indices that have no defined value yet.
// Incremental primitives report "undefined" with an ok flag instead. Both
// paths sum windows in chronological order through the same helpers, so a
// value computed either way is bit-identical.
package rollmath

import "math"

// Mean returns the arithmetic mean of vals, summed left to right.
// NaN for an empty slice.
func Mean(vals []float64) float64 {
	if len(vals) == 0 {
		return math.NaN()
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// PopVariance returns the population variance (N denominator) of vals using
// a two-pass mean/deviation sum. Never negative.
func PopVariance(vals []float64) float64 {
	if len(vals) == 0 {
		return math.NaN()
	}
	mean := Mean(vals)
	acc := 0.0
	for _, v := range vals {
		d := v - mean
		acc += d * d
	}
	return clamp0(acc / float64(len(vals)))
}

// ClampedSqrt returns sqrt(v), treating small negative v from floating point
// error as zero.
func ClampedSqrt(v float64) float64 {
	return math.Sqrt(clamp0(v))
}

func clamp0(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

// RollingMean returns the sliding-window mean of values over period.
// Indices < period-1 are NaN. Each window is summed from scratch, so the cost
// is O(len(values)·period).
func RollingMean(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 {
		return out
	}
	for i := period - 1; i < len(values); i++ {
		out[i] = Mean(values[i-period+1 : i+1])
	}
	return out
}

// RollingVariance returns the sliding-window population variance of values
// over period. Indices < period-1 are NaN.
func RollingVariance(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 {
		return out
	}
	for i := period - 1; i < len(values); i++ {
		out[i] = PopVariance(values[i-period+1 : i+1])
	}
	return out
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

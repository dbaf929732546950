package indicator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wilderRSI is a straightforward reference of Wilder's RSI at the last index.
func wilderRSI(vals []float64, period int) float64 {
	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		d := vals[i] - vals[i-1]
		if d > 0 {
			avgGain += d
		} else {
			avgLoss -= d
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	for i := period + 1; i < len(vals); i++ {
		d := vals[i] - vals[i-1]
		g, l := 0.0, 0.0
		if d > 0 {
			g = d
		} else {
			l = -d
		}
		avgGain = (avgGain*float64(period-1) + g) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + l) / float64(period)
	}
	if avgLoss == 0 {
		return 100
	}
	return 100 - 100/(1+avgGain/avgLoss)
}

func TestRSI_FlatThenRising(t *testing.T) {
	vals := make([]float64, 0, 30)
	for i := 0; i < 13; i++ {
		vals = append(vals, 10)
	}
	for i := 1; i <= 17; i++ {
		vals = append(vals, 10+float64(i))
	}

	reg := NewDefaultRegistry()
	s := spec("rsi", "1m", "period", 14, "source", "close")
	pts, err := reg.Batch(s, closes(vals...))
	require.NoError(t, err)
	require.Len(t, pts, 30)

	for i := 0; i <= 13; i++ {
		assert.False(t, pts[i].Value("rsi").Valid, "index %d", i)
	}
	// No losses in the seed window: RS is infinite and RSI saturates.
	prev := 0.0
	for i := 14; i < 30; i++ {
		v := pts[i].Value("rsi")
		require.True(t, v.Valid, "index %d", i)
		assert.Equal(t, 100.0, v.V, "index %d", i)
		assert.GreaterOrEqual(t, v.V, prev)
		prev = v.V
	}
}

func TestRSI_MixedSeedThenUptrendRisesStrictly(t *testing.T) {
	vals := []float64{10, 12, 11, 13, 12, 14}
	for i := 1; i <= 16; i++ {
		vals = append(vals, 14+float64(i))
	}
	reg := NewDefaultRegistry()
	s := spec("rsi", "1m", "period", 5, "source", "close")
	pts, err := reg.Batch(s, closes(vals...))
	require.NoError(t, err)

	first := pts[5].Value("rsi")
	require.True(t, first.Valid)
	assert.InDelta(t, 75.0, first.V, 1e-9)

	prev := first.V
	for i := 6; i < len(pts); i++ {
		v := pts[i].Value("rsi")
		require.True(t, v.Valid, "index %d", i)
		assert.Greater(t, v.V, prev, "index %d", i)
		assert.Less(t, v.V, 100.0, "index %d", i)
		assert.InDelta(t, wilderRSI(vals[:i+1], 5), v.V, 1e-9, "index %d", i)
		prev = v.V
	}
	requirePointsClose(t, pts, replay(t, reg, s, withRevisions(9, closes(vals...))))
}

func TestRSI_SaturatesDown(t *testing.T) {
	vals := make([]float64, 25)
	for i := range vals {
		vals[i] = 100 - float64(i)
	}
	pts, err := NewDefaultRegistry().Batch(spec("rsi", "1m", "period", 5, "source", "close"), closes(vals...))
	require.NoError(t, err)
	for i := 5; i < len(pts); i++ {
		assert.Equal(t, 0.0, pts[i].Value("rsi").V, "index %d", i)
	}
}

func TestRSI_MatchesReference(t *testing.T) {
	vals := []float64{
		44.34, 44.09, 44.15, 43.61, 44.33, 44.83, 45.10, 45.42, 45.84, 46.08,
		45.89, 46.03, 45.61, 46.28, 46.28, 46.00, 46.03, 46.41, 46.22, 45.64,
		46.21, 46.25, 45.71, 46.45, 45.78, 45.35, 44.03, 44.18, 44.22, 44.57,
	}
	reg := NewDefaultRegistry()
	s := spec("rsi", "1m", "period", 14, "source", "close")
	pts, err := reg.Batch(s, closes(vals...))
	require.NoError(t, err)

	for n := 15; n <= len(vals); n++ {
		got := pts[n-1].Value("rsi")
		require.True(t, got.Valid)
		assert.InDelta(t, wilderRSI(vals[:n], 14), got.V, 1e-9, "index %d", n-1)
	}
	assert.False(t, pts[13].Value("rsi").Valid)

	requirePointsClose(t, pts, replay(t, reg, s, withRevisions(3, closes(vals...))))
}

func TestRSI_RequiresPeriodAndSource(t *testing.T) {
	reg := NewDefaultRegistry()
	_, err := reg.Warmup(spec("rsi", "1m"))

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"period", "source"}, verr.Missing)
	assert.Contains(t, err.Error(), "period")
	assert.Contains(t, err.Error(), "source")

	_, err = reg.Warmup(spec("rsi", "1m", "period", 14))
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"source"}, verr.Missing)
}

func TestRSI_PartialDiffsAgainstLastClosed(t *testing.T) {
	reg := NewDefaultRegistry()
	s := spec("rsi", "1m", "period", 2, "source", "close")
	st, err := reg.NewState(s)
	require.NoError(t, err)

	for _, b := range closes(10, 11, 12) {
		_, err := reg.Incremental(s, st, b)
		require.NoError(t, err)
	}

	open := closes(10, 11, 12, 9)[3]
	open.IsPartial = true
	for _, c := range []float64{13, 14, 9} {
		open.C = c
		_, err := reg.Incremental(s, st, open)
		require.NoError(t, err)
	}
	open.IsPartial = false
	d, err := reg.Incremental(s, st, open)
	require.NoError(t, err)

	assert.InDelta(t, wilderRSI([]float64{10, 11, 12, 9}, 2), d.Points[0].Value("rsi").V, eps)
}

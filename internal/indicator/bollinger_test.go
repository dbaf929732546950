package indicator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"

	"trading-indicators/internal/model"
)

func TestBollinger_ConstantSeries(t *testing.T) {
	reg := NewDefaultRegistry()
	vals := make([]float64, 25)
	for i := range vals {
		vals[i] = 100
	}
	pts, err := reg.Batch(spec("bb", "1m", "period", 20, "k", 2), closes(vals...))
	require.NoError(t, err)
	require.Len(t, pts, 25)

	for i, p := range pts {
		if i < 19 {
			assert.True(t, p.AllNull(), "index %d", i)
			continue
		}
		assert.Equal(t, 100.0, p.Value("middle").V, "index %d", i)
		assert.Equal(t, 100.0, p.Value("upper").V, "index %d", i)
		assert.Equal(t, 100.0, p.Value("lower").V, "index %d", i)
	}
}

func TestBollinger_BandOrdering(t *testing.T) {
	reg := NewDefaultRegistry()
	bars := randomWalk(11, 200)
	for _, k := range []any{0, 0.5, 2, 3} {
		pts, err := reg.Batch(spec("bb", "1m", "period", 10, "k", k), bars)
		require.NoError(t, err)
		for i, p := range pts {
			if p.AllNull() {
				continue
			}
			lo, mid, up := p.Value("lower").V, p.Value("middle").V, p.Value("upper").V
			assert.LessOrEqual(t, lo, mid, "k=%v index %d", k, i)
			assert.LessOrEqual(t, mid, up, "k=%v index %d", k, i)
		}
	}
}

func TestBollinger_MatchesPopulationStdDev(t *testing.T) {
	reg := NewDefaultRegistry()
	bars := randomWalk(13, 40)
	pts, err := reg.Batch(spec("bb", "1m", "period", 20, "k", 2), bars)
	require.NoError(t, err)

	window := make([]float64, 20)
	for i := range window {
		window[i] = bars[20+i].C
	}
	mean := stat.Mean(window, nil)
	variance := stat.Variance(window, nil) * 19 / 20
	last := pts[len(pts)-1]
	assert.InDelta(t, mean, last.Value("middle").V, eps)
	assert.InDelta(t, mean+2*math.Sqrt(variance), last.Value("upper").V, 1e-7)
}

func TestBollinger_OverflowBandsAreNull(t *testing.T) {
	vals := make([]float64, 8)
	for i := range vals {
		vals[i] = 1e200
		if i%2 == 1 {
			vals[i] = -1e200
		}
	}
	pts, err := NewDefaultRegistry().Batch(spec("bb", "1m", "period", 5, "k", 2), closes(vals...))
	require.NoError(t, err)

	for i := 4; i < len(pts); i++ {
		assert.False(t, pts[i].Value("upper").Valid, "index %d", i)
		assert.False(t, pts[i].Value("lower").Valid, "index %d", i)
	}
	res := model.IndicatorResult{SpecID: "bb", Symbol: "X", Points: pts}
	data, err := res.JSON()
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestBollinger_ValidationProblems(t *testing.T) {
	reg := NewDefaultRegistry()
	_, err := reg.Batch(spec("bb", "1m", "period", 0, "k", -1), randomWalk(1, 5))

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "bb", verr.Indicator)
	assert.Len(t, verr.Problems, 2)
	assert.Contains(t, err.Error(), `"period"`)
	assert.Contains(t, err.Error(), `"k"`)
}

func TestBollinger_StateSlotsNamespaced(t *testing.T) {
	b := Bollinger{}
	st := NewState()
	require.NoError(t, b.NewState(spec("bb", "1m", "period", 20), st))
	require.NoError(t, b.NewState(spec("bb", "1m", "period", 50), st))

	assert.True(t, st.Has("bb_variance_20"))
	assert.True(t, st.Has("bb_variance_50"))
	assert.True(t, st.Has("bb_values_20"))
	assert.True(t, st.Has("bb_finalized_50"))
	assert.Equal(t, 6, st.Len())
}

func TestBollinger_MissingStateSlot(t *testing.T) {
	_, err := Bollinger{}.Incremental(spec("bb", "1m"), NewState(), model.Bar{T: 1, C: 1})
	assert.ErrorIs(t, err, ErrStateMissing)
}

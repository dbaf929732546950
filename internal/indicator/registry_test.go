package indicator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-indicators/internal/model"
)

// chainAdapter is a test adapter that depends on another key.
type chainAdapter struct {
	key string
	dep string
}

func (c chainAdapter) Key() string       { return c.key }
func (c chainAdapter) Outputs() []string { return []string{"v"} }

func (c chainAdapter) Warmup(model.Spec) (int, error) { return 0, nil }

func (c chainAdapter) Dependencies(spec model.Spec) ([]model.Spec, error) {
	if c.dep == "" {
		return nil, nil
	}
	return []model.Spec{{Name: c.dep, Timeframe: spec.Timeframe}}, nil
}

func (c chainAdapter) Batch(_ model.Spec, bars []model.Bar) ([]model.Point, error) {
	out := make([]model.Point, len(bars))
	for i, b := range bars {
		out[i] = scalarPoint(b, "v", b.C)
	}
	return out, nil
}

func (c chainAdapter) NewState(model.Spec, *State) error { return nil }

func (c chainAdapter) Incremental(_ model.Spec, st *State, bar model.Bar) (Delta, error) {
	return single(st, scalarPoint(bar, "v", bar.C)), nil
}

func TestRegistry_UnknownIndicator(t *testing.T) {
	reg := NewDefaultRegistry()
	_, err := reg.Lookup("macd")
	assert.ErrorIs(t, err, ErrUnknownIndicator)

	_, err = reg.Batch(spec("macd", "1m"), nil)
	assert.ErrorIs(t, err, ErrUnknownIndicator)

	_, err = reg.NewState(spec("macd", "1m"))
	assert.ErrorIs(t, err, ErrUnknownIndicator)
}

func TestRegistry_LookupCaseInsensitive(t *testing.T) {
	a, err := NewDefaultRegistry().Lookup("BB")
	require.NoError(t, err)
	assert.Equal(t, "bb", a.Key())
}

func TestRegistry_DuplicateAdapter(t *testing.T) {
	reg := NewDefaultRegistry()
	err := reg.Register(Bollinger{})
	assert.ErrorIs(t, err, ErrDuplicateAdapter)
	assert.Panics(t, func() { reg.MustRegister(RSI{}) })
}

func TestRegistry_DependencyCycle(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(chainAdapter{key: "a", dep: "b"})
	reg.MustRegister(chainAdapter{key: "b", dep: "c"})
	reg.MustRegister(chainAdapter{key: "c", dep: "a"})

	_, err := reg.Resolve(spec("a", "1m"))
	require.ErrorIs(t, err, ErrDependencyCycle)
	assert.Contains(t, err.Error(), "a_@1m -> b_@1m -> c_@1m -> a_@1m")

	_, err = reg.Batch(spec("b", "1m"), randomWalk(1, 3))
	assert.ErrorIs(t, err, ErrDependencyCycle)
}

func TestRegistry_SelfCycle(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(chainAdapter{key: "loop", dep: "loop"})
	_, err := reg.Warmup(spec("loop", "1m"))
	assert.True(t, errors.Is(err, ErrDependencyCycle))
}

func TestRegistry_ResolveOrder(t *testing.T) {
	reg := NewDefaultRegistry()
	plan, err := reg.Resolve(spec("rsi_ema", "5m", "period", 7, "signal", 3))
	require.NoError(t, err)
	require.Len(t, plan, 2)
	assert.Equal(t, "rsi_period:7,source:close@5m", plan[0].ID())
	assert.Equal(t, "rsi_ema_period:7,signal:3@5m", plan[1].ID())
}

func TestRegistry_WarmupAlignment(t *testing.T) {
	reg := NewDefaultRegistry()

	w, err := reg.Warmup(spec("rsi_ema", "1m", "period", 14, "signal", 9))
	require.NoError(t, err)
	assert.Equal(t, 14, w, "rsi warmup dominates")

	w, err = reg.Warmup(spec("rsi_ema", "1m", "period", 5, "signal", 20))
	require.NoError(t, err)
	assert.Equal(t, 19, w, "own warmup dominates")

	own, err := RSIEMA{}.Warmup(spec("rsi_ema", "1m", "period", 14, "signal", 9))
	require.NoError(t, err)
	assert.Equal(t, 8, own)
}

func TestRegistry_DependencyFeedsDerived(t *testing.T) {
	reg := NewDefaultRegistry()
	bars := randomWalk(21, 80)

	rsi, err := reg.Batch(spec("rsi", "1m", "period", 14, "source", "close"), bars)
	require.NoError(t, err)
	sig, err := reg.Batch(spec("rsi_ema", "1m", "period", 14, "signal", 1), bars)
	require.NoError(t, err)

	// An EMA with signal 1 reproduces its input.
	for i := range bars {
		want, got := rsi[i].Value("rsi"), sig[i].Value("signal")
		require.Equal(t, want.Valid, got.Valid, "index %d", i)
		if want.Valid {
			assert.InDelta(t, want.V, got.V, eps, "index %d", i)
		}
	}
}

func TestRegistry_IncrementalNilState(t *testing.T) {
	_, err := NewDefaultRegistry().Incremental(spec("bb", "1m"), nil, model.Bar{T: 1})
	assert.ErrorIs(t, err, ErrStateMissing)
}

func TestRegistry_NewStateCreatesPlanSlots(t *testing.T) {
	st, err := NewDefaultRegistry().NewState(spec("rsi_ema", "1m", "period", 14, "signal", 9))
	require.NoError(t, err)
	assert.True(t, st.Has("rsi_14_close"))
	assert.True(t, st.Has("rsi_ema_14_9_close"))
	assert.Equal(t, 0, st.Finalized())
}

func TestRegistry_OrderingViolations(t *testing.T) {
	reg := NewDefaultRegistry()
	s := spec("sma", "1m", "period", 3)
	st, err := reg.NewState(s)
	require.NoError(t, err)

	bars := closes(1, 2, 3)
	_, err = reg.Incremental(s, st, bars[0])
	require.NoError(t, err)

	_, err = reg.Incremental(s, st, bars[0])
	assert.ErrorIs(t, err, ErrOutOfOrder, "final repeated")

	open := bars[1]
	open.IsPartial = true
	_, err = reg.Incremental(s, st, open)
	require.NoError(t, err)

	_, err = reg.Incremental(s, st, bars[2])
	assert.ErrorIs(t, err, ErrOutOfOrder, "new bar while another is open")

	_, err = reg.Incremental(s, st, bars[1])
	require.NoError(t, err)
	assert.Equal(t, 2, st.Finalized())
}

func TestRegistry_CanonicalIDInsertionOrder(t *testing.T) {
	a := model.Spec{Name: "bb", Inputs: model.Inputs{"period": 20, "k": 2}, Timeframe: "1m"}
	b := model.Spec{Name: "BB", Inputs: model.Inputs{"k": 2.0, "period": 20.0}, Timeframe: "1m"}
	assert.Equal(t, a.ID(), b.ID())

	reg := NewDefaultRegistry()
	wa, err := reg.Warmup(a)
	require.NoError(t, err)
	wb, err := reg.Warmup(b)
	require.NoError(t, err)
	assert.Equal(t, wa, wb)
}

package indicator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"trading-indicators/internal/model"
)

type memSource struct {
	bars  map[string][]model.Bar // "tf:symbol"
	calls []int64                // afterMs per read
	err   error
}

func (m *memSource) ReadBars(_ context.Context, symbol, tf string, afterMs int64) ([]model.Bar, error) {
	m.calls = append(m.calls, afterMs)
	if m.err != nil {
		return nil, m.err
	}
	var out []model.Bar
	for _, b := range m.bars[tf+":"+symbol] {
		if b.T > afterMs {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memSource) Close() error { return nil }

func tick(symbol, tf string, b model.Bar) model.Tick {
	return model.Tick{Symbol: symbol, Timeframe: tf, Bar: b}
}

func TestEngine_ProcessPerTimeframe(t *testing.T) {
	e, err := NewEngine(NewDefaultRegistry(), []model.Spec{
		spec("sma", "1m", "period", 2),
		spec("ema", "1m", "period", 2),
		spec("sma", "5m", "period", 2),
	})
	require.NoError(t, err)

	var last []model.IndicatorResult
	for _, b := range closes(1, 2, 3) {
		last, err = e.Process(tick("AAPL", "1m", b))
		require.NoError(t, err)
	}
	require.Len(t, last, 2)
	assert.Equal(t, "sma_period:2@1m", last[0].SpecID)
	assert.Equal(t, "AAPL", last[0].Symbol)
	assert.InDelta(t, 2.5, last[0].Points[0].Value("sma").V, eps)
	assert.Equal(t, 2, e.SessionCount())

	res, err := e.Process(tick("AAPL", "1h", closes(1)[0]))
	require.NoError(t, err)
	assert.Empty(t, res, "unconfigured timeframe")
}

func TestEngine_ProcessCollectsErrors(t *testing.T) {
	e, err := NewEngine(NewDefaultRegistry(), []model.Spec{
		spec("sma", "1m", "period", 2),
		spec("ema", "1m", "period", 2),
	})
	require.NoError(t, err)
	b := closes(1)[0]
	_, err = e.Process(tick("X", "1m", b))
	require.NoError(t, err)

	res, err := e.Process(tick("X", "1m", b))
	assert.Empty(t, res)
	require.ErrorIs(t, err, ErrOutOfOrder)
	errs := multierr.Errors(err)
	require.Len(t, errs, 2)

	var serr *SessionError
	require.ErrorAs(t, errs[0], &serr)
	assert.Equal(t, "sma_period:2@1m", serr.SpecID)
	assert.Equal(t, "X", serr.Symbol)
}

func TestEngine_SymbolsIsolated(t *testing.T) {
	e, err := NewEngine(NewDefaultRegistry(), []model.Spec{spec("sma", "1m", "period", 2)})
	require.NoError(t, err)

	for _, b := range closes(1, 2) {
		_, err := e.Process(tick("A", "1m", b))
		require.NoError(t, err)
	}
	res, err := e.Process(tick("B", "1m", closes(100)[0]))
	require.NoError(t, err)
	assert.False(t, res[0].Points[0].Value("sma").Valid)

	assert.Equal(t, 1, e.Drop("A"))
	_, ok := e.Session("sma_period:2@1m", "A")
	assert.False(t, ok)
}

func TestEngine_Reload(t *testing.T) {
	reg := NewDefaultRegistry()
	sma := spec("sma", "1m", "period", 2)
	ema := spec("ema", "1m", "period", 2)
	e, err := NewEngine(reg, []model.Spec{sma, ema})
	require.NoError(t, err)
	for _, b := range closes(1, 2, 3) {
		_, err := e.Process(tick("A", "1m", b))
		require.NoError(t, err)
	}

	rsi := spec("rsi", "1m", "period", 2, "source", "close")
	preserved, created, err := e.Reload([]model.Spec{sma, rsi})
	require.NoError(t, err)
	assert.Equal(t, 1, preserved)
	assert.Equal(t, 1, created)

	s, ok := e.Session(sma.ID(), "A")
	require.True(t, ok)
	assert.Equal(t, 3, s.Finalized(), "state survives reload")
	_, ok = e.Session(ema.ID(), "A")
	assert.False(t, ok)
	assert.Len(t, e.Specs(), 2)
}

func TestEngine_ReloadRejectsInvalid(t *testing.T) {
	sma := spec("sma", "1m", "period", 2)
	e, err := NewEngine(NewDefaultRegistry(), []model.Spec{sma})
	require.NoError(t, err)

	_, _, err = e.Reload([]model.Spec{spec("nope", "1m"), spec("rsi", "1m")})
	require.Error(t, err)
	assert.Equal(t, []model.Spec{sma}, e.Specs())
}

func TestValidateSpecs_Aggregates(t *testing.T) {
	err := ValidateSpecs(NewDefaultRegistry(), []model.Spec{
		spec("bb", "1m"),
		spec("bb", "1m"),
		spec("macd", "1m"),
		spec("rsi", "1m", "period", 14),
		spec("sma", ""),
	})
	require.Error(t, err)
	errs := multierr.Errors(err)
	require.Len(t, errs, 4)
	assert.Contains(t, errs[0].Error(), "duplicate spec bb_@1m")
	assert.ErrorIs(t, errs[1], ErrUnknownIndicator)
	var verr *ValidationError
	assert.True(t, errors.As(errs[2], &verr))
	assert.Contains(t, errs[3].Error(), "timeframe is required")
}

func TestEngine_Backfill(t *testing.T) {
	reg := NewDefaultRegistry()
	s := spec("bb", "1m", "period", 5)
	e, err := NewEngine(reg, []model.Spec{s})
	require.NoError(t, err)

	hist := randomWalk(8, 30)
	src := &memSource{bars: map[string][]model.Bar{"1m:BTC": hist}}

	var published int
	n, err := e.Backfill(context.Background(), src, []string{"BTC"}, 0, func(r []model.IndicatorResult) {
		published += len(r)
	})
	require.NoError(t, err)
	assert.Equal(t, 30, n)
	assert.Equal(t, 30, published)

	sess, ok := e.Session(s.ID(), "BTC")
	require.True(t, ok)
	want, err := reg.Batch(s, hist)
	require.NoError(t, err)
	requirePointsClose(t, want, sess.Points())

	// A second backfill only reads after the session tip.
	n, err = e.Backfill(context.Background(), src, []string{"BTC"}, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, []int64{0, hist[29].T}, src.calls)
}

func TestEngine_BackfillLimitAndErrors(t *testing.T) {
	e, err := NewEngine(NewDefaultRegistry(), []model.Spec{spec("sma", "1m", "period", 3)})
	require.NoError(t, err)

	src := &memSource{bars: map[string][]model.Bar{"1m:A": randomWalk(1, 50)}}
	n, err := e.Backfill(context.Background(), src, []string{"A"}, 10, nil)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	sess, _ := e.Session("sma_period:3@1m", "A")
	assert.Equal(t, 10, sess.Finalized())

	boom := errors.New("db down")
	_, err = e.Backfill(context.Background(), &memSource{err: boom}, []string{"B"}, 0, nil)
	assert.ErrorIs(t, err, boom)
}

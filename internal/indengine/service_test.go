package indengine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-indicators/internal/indicator"
	"trading-indicators/internal/metrics"
	"trading-indicators/internal/model"
)

type fakeSink struct {
	mu      sync.Mutex
	results []model.IndicatorResult
	err     error
}

func (f *fakeSink) PublishPoints(_ context.Context, rs []model.IndicatorResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.results = append(f.results, rs...)
	return nil
}

func (f *fakeSink) Close() error { return nil }

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.results)
}

type memSource struct {
	bars map[string][]model.Bar // "tf:symbol"
}

func (m *memSource) ReadBars(_ context.Context, symbol, tf string, afterMs int64) ([]model.Bar, error) {
	var out []model.Bar
	for _, b := range m.bars[tf+":"+symbol] {
		if b.T > afterMs {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memSource) Close() error { return nil }

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sma(period int) model.Spec {
	return model.Spec{Name: "sma", Inputs: model.Inputs{"period": period}, Timeframe: "1m"}
}

func ema(period int) model.Spec {
	return model.Spec{Name: "ema", Inputs: model.Inputs{"period": period}, Timeframe: "1m"}
}

func bar(i int, c float64) model.Bar {
	return model.Bar{T: int64(i) * 60000, O: c, H: c, L: c, C: c, V: 1}
}

func newTestService(t *testing.T, specs ...model.Spec) (*Service, *fakeSink) {
	t.Helper()
	log := discard()
	engine, err := indicator.NewEngine(indicator.NewDefaultRegistry(), specs, indicator.WithLogger(log))
	require.NoError(t, err)

	svc := newService(Config{Specs: specs, RingSize: 16}, log, engine, metrics.NewMetrics(prometheus.NewRegistry()))
	sink := &fakeSink{}
	svc.sink = sink
	svc.symbols = []string{"X"}
	svc.streams = []string{model.BarStreamKey("1m", "X")}
	return svc, sink
}

func TestHandleTick_PublishesPoints(t *testing.T) {
	svc, sink := newTestService(t, sma(2))
	ctx := context.Background()

	for i, c := range []float64{1, 2, 3} {
		svc.handleTick(ctx, model.Tick{Symbol: "X", Timeframe: "1m", Bar: bar(i+1, c)})
	}

	assert.Equal(t, 3, sink.count())
	assert.Equal(t, 3.0, testutil.ToFloat64(svc.prom.PointsTotal))
	assert.Equal(t, 3.0, testutil.ToFloat64(svc.prom.TicksTotal.WithLabelValues("1m", "final")))
	assert.Equal(t, 1.0, testutil.ToFloat64(svc.prom.Sessions))

	last := sink.results[2]
	assert.Equal(t, sma(2).ID(), last.SpecID)
	assert.Equal(t, "X", last.Symbol)
	assert.Equal(t, model.StatusFinal, last.Points[0].Status)
}

func TestHandleTick_CountsRejections(t *testing.T) {
	svc, sink := newTestService(t, sma(2))
	ctx := context.Background()

	tk := model.Tick{Symbol: "X", Timeframe: "1m", Bar: bar(1, 1)}
	svc.handleTick(ctx, tk)
	svc.handleTick(ctx, tk)

	assert.Equal(t, 1, sink.count())
	assert.Equal(t, 1.0, testutil.ToFloat64(svc.prom.RejectedTicks.WithLabelValues("out_of_order")))
	assert.Equal(t, 2.0, testutil.ToFloat64(svc.prom.TicksTotal.WithLabelValues("1m", "final")))
}

func TestHandleTick_PartialAndUnconfigured(t *testing.T) {
	svc, sink := newTestService(t, sma(2))
	ctx := context.Background()

	p := bar(1, 5)
	p.IsPartial = true
	svc.handleTick(ctx, model.Tick{Symbol: "X", Timeframe: "1m", Bar: p})
	svc.handleTick(ctx, model.Tick{Symbol: "X", Timeframe: "5m", Bar: bar(1, 5)})

	assert.Equal(t, 1, sink.count())
	assert.Equal(t, model.StatusPartial, sink.results[0].Points[0].Status)
	assert.Equal(t, 1.0, testutil.ToFloat64(svc.prom.TicksTotal.WithLabelValues("1m", "partial")))
	assert.Equal(t, 1.0, testutil.ToFloat64(svc.prom.TicksTotal.WithLabelValues("5m", "final")))
}

func TestPublish_CountsErrors(t *testing.T) {
	svc, sink := newTestService(t, sma(2))
	sink.err = errors.New("down")

	svc.handleTick(context.Background(), model.Tick{Symbol: "X", Timeframe: "1m", Bar: bar(1, 1)})
	assert.Equal(t, 1.0, testutil.ToFloat64(svc.prom.PublishErrors))
}

func TestProcessLoop_TicksAndReload(t *testing.T) {
	svc, sink := newTestService(t, sma(2))
	history := []model.Bar{bar(1, 1), bar(2, 2), bar(3, 3)}
	svc.sources = []model.BarSource{&memSource{bars: map[string][]model.Bar{"1m:X": history}}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go svc.feed(ctx)
	go func() {
		svc.processLoop(ctx)
		close(done)
	}()

	for _, b := range history {
		svc.ticks <- model.Tick{Symbol: "X", Timeframe: "1m", Bar: b}
	}
	require.Eventually(t, func() bool { return sink.count() == 3 }, time.Second, time.Millisecond)

	preserved, created, err := svc.Reload(ctx, []model.Spec{sma(2), ema(2)})
	require.NoError(t, err)
	assert.Equal(t, 1, preserved)
	assert.Equal(t, 1, created)
	// the new ema session is backfilled; the sma session skips what it has seen
	assert.Equal(t, 6, sink.count())

	_, _, err = svc.Reload(ctx, []model.Spec{{Name: "nope", Timeframe: "1m"}})
	require.ErrorIs(t, err, indicator.ErrUnknownIndicator)

	svc.ticks <- model.Tick{Symbol: "X", Timeframe: "1m", Bar: bar(4, 4)}
	require.Eventually(t, func() bool { return sink.count() == 8 }, time.Second, time.Millisecond)

	cancel()
	<-done

	s, ok := svc.engine.Session(ema(2).ID(), "X")
	require.True(t, ok)
	assert.Equal(t, 4, s.Finalized())
	assert.Equal(t, 1.0, testutil.ToFloat64(svc.prom.Reloads.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(svc.prom.Reloads.WithLabelValues("rejected")))
}

func TestReload_ContextCancelled(t *testing.T) {
	svc, _ := newTestService(t, sma(2))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := svc.Reload(ctx, []model.Spec{sma(3)})
	assert.ErrorIs(t, err, context.Canceled)
}

type fakeReloader struct {
	specs []model.Spec
	err   error
}

func (f *fakeReloader) Reload(_ context.Context, specs []model.Spec) (int, int, error) {
	if f.err != nil {
		return 0, 0, f.err
	}
	f.specs = specs
	return 1, len(specs) - 1, nil
}

func TestReloadHandler(t *testing.T) {
	r := &fakeReloader{}
	h := reloadHandler(r, discard())

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/reload", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/reload", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/reload", strings.NewReader("[]")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body := `[{"name":"bb","timeframe":"1m","inputs":{"period":20,"k":2,"source":"close"}},
	          {"name":"rsi","timeframe":"1m","inputs":{"period":14,"source":"close"}}]`
	rec = httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/reload", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","preserved":1,"created":1}`, rec.Body.String())
	require.Len(t, r.specs, 2)
	assert.Equal(t, "bb_k:2,period:20,source:close@1m", r.specs[0].ID())

	r.err = indicator.ErrUnknownIndicator
	rec = httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/reload", strings.NewReader(body)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown indicator")
}

func TestHandleConfigMessage(t *testing.T) {
	ctx := context.Background()
	r := &fakeReloader{}

	require.NoError(t, handleConfigMessage(ctx, r, discard(), "sma:period=9@1m,ema:period=21@5m"))
	require.Len(t, r.specs, 2)
	assert.Equal(t, "ema_period:21@5m", r.specs[1].ID())

	require.NoError(t, handleConfigMessage(ctx, r, discard(), `[{"name":"atr","timeframe":"1h","inputs":{"period":14}}]`))
	require.Len(t, r.specs, 1)
	assert.Equal(t, "atr_period:14@1h", r.specs[0].ID())

	r.specs = nil
	assert.Error(t, handleConfigMessage(ctx, r, discard(), "sma:period=9"))
	assert.Error(t, handleConfigMessage(ctx, r, discard(), "[{"))
	assert.Nil(t, r.specs)
}

func TestTimeframes(t *testing.T) {
	specs := []model.Spec{sma(2), {Name: "atr", Timeframe: "1h"}, ema(3)}
	assert.Equal(t, []string{"1h", "1m"}, Timeframes(specs))
}

func TestParseList(t *testing.T) {
	assert.Equal(t, []string{"AAPL", "MSFT"}, parseList(" AAPL, ,MSFT "))
	assert.Nil(t, parseList(""))
}

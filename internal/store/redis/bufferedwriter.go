package redis

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"trading-indicators/internal/model"
)

// BufferedWriter guards a PointSink with a circuit breaker. While the
// breaker is open, final results are buffered locally (oldest dropped past
// maxBuf) and replayed once it closes; partial results are dropped since a
// later tick supersedes them.
type BufferedWriter struct {
	sink model.PointSink
	cb   *CircuitBreaker
	ctx  context.Context

	mu     sync.Mutex
	buffer []model.IndicatorResult
	maxBuf int

	OnBuffer func(n int)     // results buffered (metrics)
	OnFlush  func(count int) // results replayed after recovery
}

var _ model.PointSink = (*BufferedWriter)(nil)

// NewBufferedWriter wraps sink. ctx bounds background flushes.
func NewBufferedWriter(ctx context.Context, sink model.PointSink, cb *CircuitBreaker, maxBufferSize int) *BufferedWriter {
	if maxBufferSize <= 0 {
		maxBufferSize = 10000
	}
	bw := &BufferedWriter{
		sink:   sink,
		cb:     cb,
		ctx:    ctx,
		buffer: make([]model.IndicatorResult, 0, 256),
		maxBuf: maxBufferSize,
	}

	prev := cb.OnStateChange
	cb.OnStateChange = func(from, to BreakerState) {
		if prev != nil {
			prev(from, to)
		}
		if to == BreakerClosed {
			go bw.Flush()
		}
	}
	return bw
}

// PublishPoints forwards results through the breaker. A rejected or failed
// publish is buffered and reported as success.
func (bw *BufferedWriter) PublishPoints(ctx context.Context, results []model.IndicatorResult) error {
	err := bw.cb.Execute(func() error {
		return bw.sink.PublishPoints(ctx, results)
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrCircuitOpen) || bw.cb.CurrentState() == BreakerOpen {
		bw.bufferResults(results)
		return nil
	}
	return err
}

func (bw *BufferedWriter) bufferResults(results []model.IndicatorResult) {
	bw.mu.Lock()
	defer bw.mu.Unlock()

	n := 0
	for _, r := range results {
		if !hasFinal(r.Points) {
			continue
		}
		if len(bw.buffer) >= bw.maxBuf {
			bw.buffer = bw.buffer[1:]
		}
		bw.buffer = append(bw.buffer, r)
		n++
	}
	if n > 0 && bw.OnBuffer != nil {
		bw.OnBuffer(n)
	}
}

// Flush replays buffered results directly to the sink.
func (bw *BufferedWriter) Flush() {
	bw.mu.Lock()
	if len(bw.buffer) == 0 {
		bw.mu.Unlock()
		return
	}
	pending := bw.buffer
	bw.buffer = make([]model.IndicatorResult, 0, 256)
	bw.mu.Unlock()

	if err := bw.sink.PublishPoints(bw.ctx, pending); err != nil {
		slog.Warn("buffered writer flush failed, re-buffering",
			slog.Int("results", len(pending)), slog.Any("error", err))
		bw.bufferResults(pending)
		return
	}
	slog.Info("buffered writer flushed", slog.Int("results", len(pending)))
	if bw.OnFlush != nil {
		bw.OnFlush(len(pending))
	}
}

// PendingCount returns the number of buffered results.
func (bw *BufferedWriter) PendingCount() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.buffer)
}

// Close closes the wrapped sink.
func (bw *BufferedWriter) Close() error {
	return bw.sink.Close()
}

package model

import "context"

// ── Collaborator Port Interfaces ──
// The compute engine performs no I/O. These interfaces decouple the service
// host from concrete history stores and live transports (SQLite, Redis).

// BarSource reads historical final bars used to seed sessions.
type BarSource interface {
	// ReadBars returns bars for a symbol and timeframe with T > afterMs,
	// ordered by T ascending.
	ReadBars(ctx context.Context, symbol, tf string, afterMs int64) ([]Bar, error)

	// Close releases underlying resources.
	Close() error
}

// BarStream delivers live ticks (partial and final) in arrival order.
type BarStream interface {
	// ConsumeBars reads ticks from the given streams and sends them to out.
	// Blocks until ctx is cancelled.
	ConsumeBars(ctx context.Context, streams []string, out chan<- Tick) error

	// EnsureConsumerGroup creates consumer groups on streams.
	EnsureConsumerGroup(ctx context.Context, streams []string) error

	// Close releases underlying resources.
	Close() error
}

// PointSink forwards point deltas to the rendering collaborator.
type PointSink interface {
	// PublishPoints sends one batch of results.
	PublishPoints(ctx context.Context, results []IndicatorResult) error

	// Close releases underlying resources.
	Close() error
}

package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"trading-indicators/internal/model"
)

const (
	defaultLatestTTL  = 30 * time.Minute
	defaultPointsKeep = 2000
)

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int

	// PointsMaxLen caps each indicator point stream (approximate trim).
	PointsMaxLen int64
}

// Writer forwards indicator point deltas to Redis. It implements
// model.PointSink.
type Writer struct {
	client *goredis.Client
	maxLen int64
}

var _ model.PointSink = (*Writer)(nil)

// New creates a new Redis Writer and pings the server.
func New(cfg WriterConfig) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	slog.Info("redis writer connected", slog.String("addr", cfg.Addr))
	return NewWriterFromClient(client, cfg.PointsMaxLen), nil
}

// NewWriterFromClient wraps an existing client.
func NewWriterFromClient(client *goredis.Client, maxLen int64) *Writer {
	if maxLen <= 0 {
		maxLen = defaultPointsKeep
	}
	return &Writer{client: client, maxLen: maxLen}
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// PublishPoints writes a batch of results in a single pipeline.
//
// Every point is PUBLISHed on "ind:{specID}:{symbol}". Final points are also
// appended to the stream of the same name and stored under ":latest";
// partial points are transient and only published.
func (w *Writer) PublishPoints(ctx context.Context, results []model.IndicatorResult) error {
	if len(results) == 0 {
		return nil
	}

	pipe := w.client.Pipeline()
	for i := range results {
		res := &results[i]
		if len(res.Points) == 0 {
			continue
		}
		key := res.StreamKey()
		b, err := res.JSON()
		if err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}
		data := string(b)
		pipe.Publish(ctx, key, data)

		if !hasFinal(res.Points) {
			continue
		}
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: key,
			MaxLen: w.maxLen,
			Approx: true,
			Values: map[string]interface{}{"data": data},
		})
		pipe.Set(ctx, key+":latest", data, defaultLatestTTL)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis point pipeline (%d results): %w", len(results), err)
	}
	return nil
}

// AppendTicks writes ticks to their bar streams. Used by replay tooling to
// feed a live engine from recorded history.
func (w *Writer) AppendTicks(ctx context.Context, ticks []model.Tick) error {
	if len(ticks) == 0 {
		return nil
	}
	pipe := w.client.Pipeline()
	for i := range ticks {
		t := &ticks[i]
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: t.StreamKey(),
			MaxLen: w.maxLen,
			Approx: true,
			Values: map[string]interface{}{"data": string(t.Bar.JSON())},
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis tick pipeline (%d ticks): %w", len(ticks), err)
	}
	return nil
}

func hasFinal(pts []model.Point) bool {
	for _, p := range pts {
		if p.Status == model.StatusFinal {
			return true
		}
	}
	return false
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}

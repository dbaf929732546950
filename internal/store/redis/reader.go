package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"trading-indicators/internal/model"
)

// ReaderConfig configures the Redis reader.
type ReaderConfig struct {
	Addr          string
	Password      string
	DB            int
	ConsumerGroup string // consumer group name, e.g. "indengine"
	ConsumerName  string // unique consumer name, e.g. hostname
}

// Reader consumes live bar ticks from Redis Streams via consumer groups.
// It also serves stream history as a model.BarSource.
type Reader struct {
	client        *goredis.Client
	consumerGroup string
	consumerName  string
}

var (
	_ model.BarStream = (*Reader)(nil)
	_ model.BarSource = (*Reader)(nil)
)

// NewReader creates a new Redis Reader and pings the server.
func NewReader(cfg ReaderConfig) (*Reader, error) {
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

	r := NewReaderFromClient(client, cfg.ConsumerGroup, cfg.ConsumerName)
	slog.Info("redis reader connected",
		slog.String("addr", cfg.Addr),
		slog.String("group", r.consumerGroup),
		slog.String("consumer", r.consumerName))
	return r, nil
}

// NewReaderFromClient wraps an existing client.
func NewReaderFromClient(client *goredis.Client, group, consumer string) *Reader {
	if group == "" {
		group = "indengine"
	}
	if consumer == "" {
		consumer = "worker-1"
	}
	return &Reader{client: client, consumerGroup: group, consumerName: consumer}
}

// Client returns the underlying Redis client for health checks.
func (r *Reader) Client() *goredis.Client { return r.client }

// EnsureConsumerGroup creates the consumer group on each stream if it does
// not exist yet. Fresh groups start at "$" (only new entries); history is
// read through ReadBars.
func (r *Reader) EnsureConsumerGroup(ctx context.Context, streams []string) error {
	for _, stream := range streams {
		err := r.client.XGroupCreateMkStream(ctx, stream, r.consumerGroup, "$").Err()
		if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
			return fmt.Errorf("xgroup create %s: %w", stream, err)
		}
	}
	return nil
}

// ConsumeBars reads ticks with XREADGROUP and sends them to out in arrival
// order. Entries are ACKed once handed off; malformed entries are ACKed and
// dropped so they cannot block the group. Returns when ctx is cancelled.
func (r *Reader) ConsumeBars(ctx context.Context, streams []string, out chan<- model.Tick) error {
	if len(streams) == 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	// [stream1, stream2, ..., ">", ">", ...]
	args := make([]string, len(streams)*2)
	for i, s := range streams {
		args[i] = s
		args[len(streams)+i] = ">"
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		results, err := r.client.XReadGroup(ctx, &goredis.XReadGroupArgs{
			Group:    r.consumerGroup,
			Consumer: r.consumerName,
			Streams:  args,
			Count:    100,
			Block:    2 * time.Second,
		}).Result()
		if err != nil {
			if errors.Is(err, goredis.Nil) || ctx.Err() != nil {
				continue
			}
			slog.Warn("redis xreadgroup failed", slog.Any("error", err))
			time.Sleep(500 * time.Millisecond)
			continue
		}

		for _, stream := range results {
			if err := r.deliver(ctx, stream.Stream, stream.Messages, out); err != nil {
				return err
			}
		}
	}
}

// deliver decodes, forwards and ACKs a batch of entries of one stream.
func (r *Reader) deliver(ctx context.Context, stream string, msgs []goredis.XMessage, out chan<- model.Tick) error {
	for _, msg := range msgs {
		tick, err := decodeTick(stream, msg.Values)
		if err != nil {
			slog.Warn("redis dropping malformed bar entry",
				slog.String("stream", stream), slog.String("id", msg.ID), slog.Any("error", err))
			r.client.XAck(ctx, stream, r.consumerGroup, msg.ID)
			continue
		}
		select {
		case out <- tick:
		case <-ctx.Done():
			return ctx.Err()
		}
		r.client.XAck(ctx, stream, r.consumerGroup, msg.ID)
	}
	return nil
}

// RecoverPending re-delivers entries this group read but never ACKed, e.g.
// after a crash, for at-least-once delivery. Call it before ConsumeBars.
func (r *Reader) RecoverPending(ctx context.Context, streams []string, out chan<- model.Tick) (int, error) {
	total := 0
	for _, stream := range streams {
		for {
			pending, err := r.client.XPendingExt(ctx, &goredis.XPendingExtArgs{
				Stream: stream,
				Group:  r.consumerGroup,
				Start:  "-",
				End:    "+",
				Count:  100,
			}).Result()
			if err != nil || len(pending) == 0 {
				break
			}

			ids := make([]string, len(pending))
			for i, p := range pending {
				ids[i] = p.ID
			}
			claimed, err := r.client.XClaim(ctx, &goredis.XClaimArgs{
				Stream:   stream,
				Group:    r.consumerGroup,
				Consumer: r.consumerName,
				Messages: ids,
			}).Result()
			if err != nil {
				slog.Warn("redis xclaim failed", slog.String("stream", stream), slog.Any("error", err))
				break
			}
			if err := r.deliver(ctx, stream, claimed, out); err != nil {
				return total, err
			}
			total += len(claimed)
			if len(claimed) < len(ids) {
				break
			}
		}
	}
	return total, nil
}

// ReclaimStale steals entries idle longer than minIdle from other (dead)
// consumers of the group and re-delivers them.
func (r *Reader) ReclaimStale(ctx context.Context, streams []string, minIdle time.Duration, out chan<- model.Tick) (int, error) {
	total := 0
	for _, stream := range streams {
		pending, err := r.client.XPendingExt(ctx, &goredis.XPendingExtArgs{
			Stream: stream,
			Group:  r.consumerGroup,
			Start:  "-",
			End:    "+",
			Count:  50,
			Idle:   minIdle,
		}).Result()
		if err != nil {
			return total, fmt.Errorf("xpending %s: %w", stream, err)
		}

		var stale []string
		for _, p := range pending {
			if p.Consumer != r.consumerName {
				stale = append(stale, p.ID)
			}
		}
		if len(stale) == 0 {
			continue
		}

		claimed, err := r.client.XClaim(ctx, &goredis.XClaimArgs{
			Stream:   stream,
			Group:    r.consumerGroup,
			Consumer: r.consumerName,
			MinIdle:  minIdle,
			Messages: stale,
		}).Result()
		if err != nil {
			return total, fmt.Errorf("xclaim %s: %w", stream, err)
		}
		if err := r.deliver(ctx, stream, claimed, out); err != nil {
			return total, err
		}
		total += len(claimed)
	}
	return total, nil
}

// StartPELReclaimer runs ReclaimStale every interval until ctx is cancelled.
func (r *Reader) StartPELReclaimer(ctx context.Context, streams []string, interval, minIdle time.Duration, out chan<- model.Tick, onReclaim func(count int)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := r.ReclaimStale(ctx, streams, minIdle, out)
			if err != nil {
				slog.Warn("redis PEL reclaim failed", slog.Any("error", err))
			}
			if n > 0 && onReclaim != nil {
				onReclaim(n)
			}
		}
	}
}

// ReadBars returns the final bars kept in the symbol's bar stream with
// T > afterMs. Partial entries are skipped. Implements model.BarSource.
func (r *Reader) ReadBars(ctx context.Context, symbol, tf string, afterMs int64) ([]model.Bar, error) {
	stream := model.BarStreamKey(tf, symbol)
	var bars []model.Bar
	start := "-"
	for {
		msgs, err := r.client.XRangeN(ctx, stream, start, "+", 1000).Result()
		if err != nil {
			return nil, fmt.Errorf("xrange %s: %w", stream, err)
		}
		for _, msg := range msgs {
			tick, err := decodeTick(stream, msg.Values)
			if err != nil {
				continue
			}
			b := tick.Bar
			if b.IsPartial || b.T <= afterMs {
				continue
			}
			if n := len(bars); n > 0 && bars[n-1].T >= b.T {
				continue // duplicate close
			}
			bars = append(bars, b)
		}
		if len(msgs) < 1000 {
			return bars, nil
		}
		start = "(" + msgs[len(msgs)-1].ID
	}
}

// DiscoverStreams returns the bar streams that exist for the given
// timeframes and symbols.
func (r *Reader) DiscoverStreams(ctx context.Context, tfs, symbols []string) []string {
	var streams []string
	for _, tf := range tfs {
		for _, sym := range symbols {
			stream := model.BarStreamKey(tf, sym)
			n, err := r.client.Exists(ctx, stream).Result()
			if err == nil && n > 0 {
				streams = append(streams, stream)
			}
		}
	}
	return streams
}

// SubscribeChannel subscribes to a Pub/Sub channel and waits for the
// confirmation. Returns nil if the subscription failed.
func (r *Reader) SubscribeChannel(ctx context.Context, channel string) *goredis.PubSub {
	pubsub := r.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		slog.Warn("redis subscribe failed", slog.String("channel", channel), slog.Any("error", err))
		pubsub.Close()
		return nil
	}
	return pubsub
}

// Close closes the Redis client.
func (r *Reader) Close() error {
	return r.client.Close()
}

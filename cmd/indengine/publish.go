package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"trading-indicators/config"
	"trading-indicators/internal/logger"
	"trading-indicators/internal/marketdata/replay"
	"trading-indicators/internal/marketdata/tfbuilder"
	"trading-indicators/internal/model"
	redisstore "trading-indicators/internal/store/redis"
	sqlitestore "trading-indicators/internal/store/sqlite"
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Replay SQLite history into the Redis bar streams a live engine consumes",
	Long: `publish reads closed bars of one timeframe from SQLite and appends them to
the bar:{tf}:{symbol} streams. With --rollup every base bar is also resampled
into the given higher timeframes, producing partial ticks while a bucket is
forming and one final tick when it closes.`,
	RunE: runPublish,
}

func init() {
	f := publishCmd.Flags()
	f.String("db", "data/bars.db", "SQLite database")
	f.StringSlice("symbol", nil, "Symbols to publish (default: every symbol with history)")
	f.String("tf", "1m", "Base timeframe to read")
	f.StringSlice("rollup", nil, "Higher timeframes to resample into, e.g. 5m,15m")
	f.Int64("after", 0, "Only bars with T greater than this (unix ms)")
	f.Float64("speed", 0, "Playback speed multiplier (0=max, 1=realtime, 100=100x)")
	f.Int("batch", 100, "Ticks per Redis pipeline")
	rootCmd.AddCommand(publishCmd)
}

func runPublish(cmd *cobra.Command, _ []string) error {
	f := cmd.Flags()
	dbPath, _ := f.GetString("db")
	symbols, _ := f.GetStringSlice("symbol")
	tf, _ := f.GetString("tf")
	rollup, _ := f.GetStringSlice("rollup")
	after, _ := f.GetInt64("after")
	speed, _ := f.GetFloat64("speed")
	batch, _ := f.GetInt("batch")

	base := config.Load()
	log := logger.Init("indengine-publish", logger.ParseLevel(base.LogLevel))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reader, err := sqlitestore.NewReader(dbPath)
	if err != nil {
		return err
	}
	defer reader.Close()

	if len(symbols) == 0 {
		if symbols, err = reader.Symbols(ctx, tf); err != nil {
			return err
		}
	}
	if len(symbols) == 0 {
		return errors.New("no symbols to publish")
	}

	var builder *tfbuilder.Builder
	if len(rollup) > 0 {
		if builder, err = tfbuilder.New(rollup); err != nil {
			return err
		}
		builder.OnStale = func(t model.Tick) {
			log.Warn("rollup: bar behind forming bucket dropped",
				slog.String("symbol", t.Symbol), slog.Int64("t", t.Bar.T))
		}
	}

	writer, err := redisstore.New(redisstore.WriterConfig{Addr: base.RedisAddr, Password: base.RedisPassword})
	if err != nil {
		return err
	}
	defer writer.Close()

	p := &tickPublisher{sink: writer, builder: builder, batch: batch}
	n, err := replay.New(reader, log).Run(ctx, symbols, tf, after, speed, func(t model.Tick) error {
		return p.add(ctx, t)
	})
	if err != nil {
		return err
	}
	if err := p.close(ctx); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "published %d %s bars (%d ticks) for %d symbols\n", n, tf, p.sent, len(symbols))
	return nil
}

// tickAppender writes ticks to bar streams.
type tickAppender interface {
	AppendTicks(ctx context.Context, ticks []model.Tick) error
}

// tickPublisher batches base ticks and their rollups into stream appends.
type tickPublisher struct {
	sink    tickAppender
	builder *tfbuilder.Builder // nil: no rollup
	batch   int

	pending []model.Tick
	sent    int
}

func (p *tickPublisher) add(ctx context.Context, t model.Tick) error {
	p.pending = append(p.pending, t)
	if p.builder != nil {
		p.pending = append(p.pending, p.builder.Push(t)...)
	}
	if len(p.pending) >= p.batch {
		return p.flush(ctx)
	}
	return nil
}

func (p *tickPublisher) close(ctx context.Context) error {
	if p.builder != nil {
		p.pending = append(p.pending, p.builder.Flush()...)
	}
	return p.flush(ctx)
}

func (p *tickPublisher) flush(ctx context.Context) error {
	if len(p.pending) == 0 {
		return nil
	}
	if err := p.sink.AppendTicks(ctx, p.pending); err != nil {
		return err
	}
	p.sent += len(p.pending)
	p.pending = p.pending[:0]
	return nil
}

// Package replay provides a bar replayer that reads history from a bar
// source and emits it as ticks at configurable speed, for feeding a live
// engine or exercising it offline.
package replay

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"trading-indicators/internal/model"
)

// maxGap caps the simulated wait between two bars.
const maxGap = 5 * time.Second

// Replayer reads historical bars and replays them as final ticks.
type Replayer struct {
	src model.BarSource
	log *slog.Logger
}

// New creates a Replayer backed by src.
func New(src model.BarSource, log *slog.Logger) *Replayer {
	if log == nil {
		log = slog.Default()
	}
	return &Replayer{src: src, log: log}
}

// Load returns the final bars of every symbol on timeframe tf with
// T > afterMs as ticks, merged in time order (ties keep symbol order).
func (r *Replayer) Load(ctx context.Context, symbols []string, tf string, afterMs int64) ([]model.Tick, error) {
	var ticks []model.Tick
	for _, sym := range symbols {
		bars, err := r.src.ReadBars(ctx, sym, tf, afterMs)
		if err != nil {
			return nil, err
		}
		for _, b := range bars {
			ticks = append(ticks, model.Tick{Symbol: sym, Timeframe: tf, Bar: b.Final()})
		}
	}
	sort.SliceStable(ticks, func(i, j int) bool { return ticks[i].Bar.T < ticks[j].Bar.T })
	return ticks, nil
}

// Run replays the bars selected as in Load, calling emit for each tick.
// speed controls the playback rate: 1.0 = real-time, 10.0 = 10x, 0 = as
// fast as possible. Returns the number of ticks emitted.
func (r *Replayer) Run(ctx context.Context, symbols []string, tf string, afterMs int64, speed float64, emit func(model.Tick) error) (int, error) {
	ticks, err := r.Load(ctx, symbols, tf, afterMs)
	if err != nil {
		return 0, err
	}
	if len(ticks) == 0 {
		r.log.Info("replay: no bars found", slog.String("tf", tf))
		return 0, nil
	}
	r.log.Info("replay: loaded bars",
		slog.Int("bars", len(ticks)), slog.Int("symbols", len(symbols)), slog.Float64("speed", speed))

	var prevT int64
	emitted := 0
	for i, t := range ticks {
		if err := ctx.Err(); err != nil {
			r.log.Info("replay: cancelled", slog.Int("emitted", emitted))
			return emitted, err
		}

		if speed > 0 && i > 0 {
			if gap := scaledGap(t.Bar.T-prevT, speed); gap > 0 {
				select {
				case <-ctx.Done():
					return emitted, ctx.Err()
				case <-time.After(gap):
				}
			}
		}
		prevT = t.Bar.T

		if err := emit(t); err != nil {
			return emitted, err
		}
		emitted++
	}

	r.log.Info("replay: completed", slog.Int("emitted", emitted))
	return emitted, nil
}

func scaledGap(ms int64, speed float64) time.Duration {
	if ms <= 0 {
		return 0
	}
	gap := time.Duration(float64(time.Duration(ms)*time.Millisecond) / speed)
	if gap > maxGap {
		gap = maxGap
	}
	return gap
}

// Package tfbuilder resamples closed bars of a base timeframe into higher
// timeframes. Every base bar updates the forming bar of each target
// timeframe in O(1) and is echoed as a partial tick; when a base bar lands
// in a new bucket the previous bucket's bar is emitted once as final.
// The output obeys the bar stream contract: partial ticks of an open bar,
// then exactly one final tick with the same T.
package tfbuilder

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"trading-indicators/internal/model"
)

// ParseTimeframe converts a timeframe label ("30s", "1m", "4h", "1d", "1w")
// to a duration.
func ParseTimeframe(tf string) (time.Duration, error) {
	tf = strings.TrimSpace(tf)
	if n := len(tf); n > 1 {
		unit := map[byte]time.Duration{'d': 24 * time.Hour, 'w': 7 * 24 * time.Hour}[tf[n-1]]
		if unit > 0 {
			k, err := strconv.Atoi(tf[:n-1])
			if err != nil || k <= 0 {
				return 0, fmt.Errorf("timeframe %q: bad count", tf)
			}
			return time.Duration(k) * unit, nil
		}
	}
	d, err := time.ParseDuration(tf)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("timeframe %q: not a positive duration", tf)
	}
	return d, nil
}

// tfState holds the forming bar for one (symbol, TF) pair.
type tfState struct {
	bucket int64 // bucket start in unix ms
	bar    model.Bar
}

type target struct {
	tf     string
	ms     int64
	states map[string]*tfState // by symbol
}

// Builder resamples base bars into several timeframes.
// Not goroutine-safe: designed to run in a single goroutine.
type Builder struct {
	targets []target

	// Metrics hooks
	OnFinal func(t model.Tick) // called on every finalized bar (optional)
	OnStale func(t model.Tick) // called when a base bar behind the forming bucket is dropped (optional)
}

// New creates a builder for the given target timeframes.
func New(tfs []string) (*Builder, error) {
	b := &Builder{}
	for _, tf := range tfs {
		d, err := ParseTimeframe(tf)
		if err != nil {
			return nil, err
		}
		b.targets = append(b.targets, target{
			tf:     tf,
			ms:     d.Milliseconds(),
			states: make(map[string]*tfState, 64),
		})
	}
	return b, nil
}

// TFs returns the target timeframes.
func (b *Builder) TFs() []string {
	out := make([]string, len(b.targets))
	for i, t := range b.targets {
		out[i] = t.tf
	}
	return out
}

// Push folds one closed base bar into every target timeframe and returns
// the ticks it produces: for each target, the final tick of a bucket that
// just closed (if any) followed by a partial snapshot of the forming bar.
// Partial base ticks are ignored.
func (b *Builder) Push(in model.Tick) []model.Tick {
	if in.Bar.IsPartial {
		return nil
	}
	var out []model.Tick
	for i := range b.targets {
		tg := &b.targets[i]
		bucket := in.Bar.T - in.Bar.T%tg.ms

		st, exists := tg.states[in.Symbol]
		if exists && bucket < st.bucket {
			if b.OnStale != nil {
				b.OnStale(in)
			}
			continue
		}

		if exists && bucket > st.bucket {
			out = append(out, b.finalize(tg.tf, in.Symbol, st))
			exists = false
		}

		if !exists {
			st = &tfState{bucket: bucket, bar: in.Bar}
			st.bar.T = bucket
			st.bar.IsPartial = true
			tg.states[in.Symbol] = st
		} else {
			fb := &st.bar
			if in.Bar.H > fb.H {
				fb.H = in.Bar.H
			}
			if in.Bar.L < fb.L {
				fb.L = in.Bar.L
			}
			fb.C = in.Bar.C
			fb.V += in.Bar.V
		}
		out = append(out, model.Tick{Symbol: in.Symbol, Timeframe: tg.tf, Bar: st.bar})
	}
	return out
}

// Flush finalizes and returns every forming bar, then forgets them.
func (b *Builder) Flush() []model.Tick {
	var out []model.Tick
	for i := range b.targets {
		tg := &b.targets[i]
		for sym, st := range tg.states {
			out = append(out, b.finalize(tg.tf, sym, st))
			delete(tg.states, sym)
		}
	}
	return out
}

func (b *Builder) finalize(tf, symbol string, st *tfState) model.Tick {
	t := model.Tick{Symbol: symbol, Timeframe: tf, Bar: st.bar.Final()}
	if b.OnFinal != nil {
		b.OnFinal(t)
	}
	return t
}

// Run consumes base ticks from in and sends the resampled ticks to out
// until in is closed or ctx is cancelled. Forming bars are flushed on exit.
func (b *Builder) Run(ctx context.Context, in <-chan model.Tick, out chan<- model.Tick) error {
	send := func(ticks []model.Tick) error {
		for _, t := range ticks {
			select {
			case out <- t:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t, ok := <-in:
			if !ok {
				return send(b.Flush())
			}
			if err := send(b.Push(t)); err != nil {
				return err
			}
		}
	}
}

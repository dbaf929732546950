package indicator

import (
	"context"
	"log/slog"

	"go.uber.org/multierr"

	"trading-indicators/internal/model"
)

// Backfill seeds sessions from historical bars. For every configured
// timeframe and symbol it reads the bars after the oldest session tip and
// replays them into each session that has not yet seen them. Cold sessions
// are created as needed; preserved sessions only catch up.
//
// limit keeps only the most recent bars per (timeframe, symbol) when
// positive. If onResults is non-nil it receives the results of every replayed
// bar, allowing the caller to publish history.
// Returns the number of bars read.
func (e *Engine) Backfill(ctx context.Context, src model.BarSource, symbols []string, limit int, onResults func([]model.IndicatorResult)) (int, error) {
	if src == nil {
		return 0, nil
	}

	var errs error
	total := 0
	for tf, specs := range e.byTF {
		for _, symbol := range symbols {
			if err := ctx.Err(); err != nil {
				return total, err
			}

			sessions := make([]*Session, 0, len(specs))
			after := int64(-1)
			for _, spec := range specs {
				s, err := e.session(spec, symbol)
				if err != nil {
					errs = multierr.Append(errs, err)
					continue
				}
				sessions = append(sessions, s)
				tip := int64(0)
				if s.Finalized() > 0 {
					tip = s.LastFinalT()
				}
				if after < 0 || tip < after {
					after = tip
				}
			}
			if len(sessions) == 0 {
				continue
			}

			bars, err := src.ReadBars(ctx, symbol, tf, after)
			if err != nil {
				e.log.Warn("backfill: read failed",
					slog.String("tf", tf), slog.String("symbol", symbol), slog.Any("error", err))
				errs = multierr.Append(errs, err)
				continue
			}
			if limit > 0 && len(bars) > limit {
				bars = bars[len(bars)-limit:]
			}

			for _, b := range bars {
				b = b.Final()
				var results []model.IndicatorResult
				for _, s := range sessions {
					if s.Finalized() > 0 && b.T <= s.LastFinalT() {
						continue
					}
					p, err := s.Apply(b)
					if err != nil {
						errs = multierr.Append(errs, err)
						continue
					}
					results = append(results, model.IndicatorResult{
						SpecID: s.Spec().ID(),
						Symbol: symbol,
						Points: []model.Point{p},
					})
				}
				if onResults != nil && len(results) > 0 {
					onResults(results)
				}
			}
			total += len(bars)
			if len(bars) > 0 {
				e.log.Info("backfill: replayed history",
					slog.String("tf", tf), slog.String("symbol", symbol), slog.Int("bars", len(bars)))
			}
		}
	}
	return total, errs
}

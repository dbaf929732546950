package indengine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.uber.org/multierr"

	"trading-indicators/internal/indicator"
	"trading-indicators/internal/logger"
	"trading-indicators/internal/model"
)

// startConsumer starts the Redis stream XREADGROUP consumer in a goroutine.
func (svc *Service) startConsumer(ctx context.Context) {
	go func() {
		if err := svc.redisReader.ConsumeBars(ctx, svc.streams, svc.ticks); err != nil && ctx.Err() == nil {
			svc.log.Error("bar consumer stopped", slog.Any("error", err))
		}
	}()
}

// startPELReclaimer starts periodic reclamation of stale PEL messages.
func (svc *Service) startPELReclaimer(ctx context.Context) {
	go svc.redisReader.StartPELReclaimer(ctx, svc.streams,
		svc.cfg.PELInterval, svc.cfg.PELMinIdle, svc.ticks,
		func(count int) {
			svc.prom.PELMessagesReclaimed.Add(float64(count))
			svc.log.Info("reclaimed stale PEL messages", slog.Int("count", count))
		})
	svc.log.Info("PEL reclaimer started",
		slog.Duration("interval", svc.cfg.PELInterval),
		slog.Duration("min_idle", svc.cfg.PELMinIdle))
}

// feed is the ring's only producer. It moves ticks from the delivery
// channel into the ring and wakes the process loop. A full ring applies
// backpressure instead of dropping ticks.
func (svc *Service) feed(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case tick := <-svc.ticks:
			for !svc.ring.Push(tick) {
				svc.prom.RingBufOverflow.Inc()
				select {
				case <-ctx.Done():
					return
				case svc.wake <- struct{}{}:
				case <-time.After(time.Millisecond):
				}
			}
			select {
			case svc.wake <- struct{}{}:
			default:
			}
		}
	}
}

// processLoop is the ring's only consumer and the only goroutine touching
// the engine once Run has backfilled it.
func (svc *Service) processLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-svc.reloads:
			req.done <- svc.applyReload(ctx, req.specs)
			continue
		default:
		}

		tick, ok := svc.ring.Pop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case req := <-svc.reloads:
				req.done <- svc.applyReload(ctx, req.specs)
			case <-svc.wake:
			}
			continue
		}
		svc.handleTick(ctx, tick)
	}
}

// handleTick runs one tick through the engine and publishes the points.
func (svc *Service) handleTick(ctx context.Context, tick model.Tick) {
	start := time.Now()
	results, err := svc.engine.Process(tick)
	svc.prom.ComputeDur.Observe(time.Since(start).Seconds())
	svc.health.SetLastTickTime(start)

	status := "final"
	if tick.Bar.IsPartial {
		status = "partial"
	}
	svc.prom.TicksTotal.WithLabelValues(tick.Timeframe, status).Inc()

	for _, e := range multierr.Errors(err) {
		reason := "error"
		if errors.Is(e, indicator.ErrOutOfOrder) {
			reason = "out_of_order"
		}
		svc.prom.RejectedTicks.WithLabelValues(reason).Inc()

		var serr *indicator.SessionError
		if errors.As(e, &serr) {
			sctx := logger.WithSession(ctx, serr.SpecID, serr.Symbol)
			svc.log.Warn("tick rejected",
				append(logger.LogWithSession(sctx),
					slog.String("reason", reason),
					slog.Int64("t", tick.Bar.T),
					slog.Any("error", serr.Err))...)
			continue
		}
		svc.log.Warn("tick rejected", slog.String("reason", reason), slog.Any("error", e))
	}

	svc.prom.Sessions.Set(float64(svc.engine.SessionCount()))
	if len(results) == 0 {
		return
	}
	svc.prom.PointsTotal.Add(float64(len(results)))
	svc.publish(ctx, results)
}

// publish sends results to the point sink.
func (svc *Service) publish(ctx context.Context, results []model.IndicatorResult) {
	if len(results) == 0 {
		return
	}
	start := time.Now()
	err := svc.sink.PublishPoints(ctx, results)
	svc.prom.PublishDur.Observe(time.Since(start).Seconds())
	if err != nil {
		svc.prom.PublishErrors.Inc()
		svc.log.Warn("publish failed", slog.Int("results", len(results)), slog.Any("error", err))
	}
}

package indengine

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"trading-indicators/config"
	"trading-indicators/internal/model"
)

type reloadResult struct {
	Preserved int
	Created   int
	Err       error
}

type reloadRequest struct {
	specs []model.Spec
	done  chan reloadResult
}

// reloader swaps the live indicator configuration.
type reloader interface {
	Reload(ctx context.Context, specs []model.Spec) (preserved, created int, err error)
}

// Reload hands a new spec list to the process loop and waits for it to be
// applied. Safe to call from any goroutine while Run is active.
func (svc *Service) Reload(ctx context.Context, specs []model.Spec) (preserved, created int, err error) {
	req := reloadRequest{specs: specs, done: make(chan reloadResult, 1)}
	select {
	case svc.reloads <- req:
	case <-ctx.Done():
		return 0, 0, ctx.Err()
	}
	select {
	case res := <-req.done:
		return res.Preserved, res.Created, res.Err
	case <-ctx.Done():
		return 0, 0, ctx.Err()
	}
}

// applyReload runs on the process loop. New specs are backfilled from the
// configured sources before live ticks resume.
func (svc *Service) applyReload(ctx context.Context, specs []model.Spec) reloadResult {
	preserved, created, err := svc.engine.Reload(specs)
	if err != nil {
		svc.prom.Reloads.WithLabelValues("rejected").Inc()
		svc.log.Warn("reload rejected", slog.Any("error", err))
		return reloadResult{Err: err}
	}
	svc.prom.Reloads.WithLabelValues("ok").Inc()
	svc.health.SetSpecs(specIDs(svc.engine.Specs()))

	consumed := make(map[string]bool)
	for _, s := range svc.streams {
		consumed[s] = true
	}
	for _, tf := range Timeframes(specs) {
		for _, sym := range svc.symbols {
			if stream := model.BarStreamKey(tf, sym); len(svc.streams) > 0 && !consumed[stream] {
				svc.log.Warn("reload: stream not consumed until restart", slog.String("stream", stream))
			}
		}
	}

	if created > 0 {
		svc.backfill(ctx)
	}
	svc.health.SetSessions(svc.engine.SessionCount())
	return reloadResult{Preserved: preserved, Created: created}
}

// reloadHandler handles POST /reload with a JSON array of specs.
func reloadHandler(r reloader, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			http.Error(w, "POST only", http.StatusMethodNotAllowed)
			return
		}
		var specs []model.Spec
		if err := json.NewDecoder(req.Body).Decode(&specs); err != nil {
			http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
			return
		}
		if len(specs) == 0 {
			http.Error(w, "validation: no specs", http.StatusBadRequest)
			return
		}
		preserved, created, err := r.Reload(req.Context(), specs)
		if err != nil {
			http.Error(w, "validation: "+err.Error(), http.StatusBadRequest)
			return
		}
		log.Info("reload via HTTP", slog.Int("preserved", preserved), slog.Int("created", created))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":    "ok",
			"preserved": preserved,
			"created":   created,
		})
	}
}

// parseSpecPayload accepts either a JSON spec array or the inline
// "name:k=v;k=v@tf,..." form.
func parseSpecPayload(payload string) ([]model.Spec, error) {
	payload = strings.TrimSpace(payload)
	if strings.HasPrefix(payload, "[") {
		var specs []model.Spec
		if err := json.Unmarshal([]byte(payload), &specs); err != nil {
			return nil, err
		}
		return specs, nil
	}
	return config.ParseSpecs(payload)
}

// handleConfigMessage applies one config update received over Pub/Sub.
func handleConfigMessage(ctx context.Context, r reloader, log *slog.Logger, payload string) error {
	specs, err := parseSpecPayload(payload)
	if err != nil {
		log.Warn("config update ignored", slog.String("payload", payload), slog.Any("error", err))
		return err
	}
	preserved, created, err := r.Reload(ctx, specs)
	if err != nil {
		log.Warn("config update rejected", slog.Any("error", err))
		return err
	}
	log.Info("config update applied", slog.Int("preserved", preserved), slog.Int("created", created))
	return nil
}

// startConfigSubscriber listens on Redis Pub/Sub for dynamic indicator
// config updates.
func (svc *Service) startConfigSubscriber(ctx context.Context) {
	go func() {
		pubsub := svc.redisReader.SubscribeChannel(ctx, svc.cfg.ConfigChannel)
		if pubsub == nil {
			svc.log.Warn("dynamic reload disabled", slog.String("channel", svc.cfg.ConfigChannel))
			return
		}
		defer pubsub.Close()
		svc.log.Info("subscribed for dynamic reload", slog.String("channel", svc.cfg.ConfigChannel))

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				_ = handleConfigMessage(ctx, svc, svc.log, msg.Payload)
			}
		}
	}()
}

package indengine

import (
	"sort"
	"strings"
	"time"

	"trading-indicators/config"
	"trading-indicators/internal/model"
)

// Config holds all env-parsed configuration for the indicator engine service.
type Config struct {
	config.Config

	ConsumerGroup string
	ConsumerName  string
	Symbols       []string // empty: discovered from SQLite
	ConfigChannel string

	PELInterval time.Duration
	PELMinIdle  time.Duration

	RingSize      int
	MaxPoints     int // per-session point history, 0 = unbounded
	BackfillLimit int // most recent bars per (tf, symbol), 0 = all

	SinkMaxFailures  int
	SinkResetTimeout time.Duration
	SinkBufferSize   int

	Specs []model.Spec
}

// LoadConfig reads all environment variables and returns a Config.
func LoadConfig() (Config, error) {
	base := config.Load()
	specs, err := base.IndicatorSpecs()
	if err != nil {
		return Config{}, err
	}

	return Config{
		Config: *base,

		ConsumerGroup: config.GetEnv("CONSUMER_GROUP", "indengine"),
		ConsumerName:  config.GetEnv("CONSUMER_NAME", "worker-1"),
		Symbols:       parseList(config.GetEnv("SYMBOLS", "")),
		ConfigChannel: config.GetEnv("CONFIG_CHANNEL", "config:indicators"),

		PELInterval: time.Duration(config.GetEnvInt("PEL_RECLAIM_INTERVAL_SEC", 30)) * time.Second,
		PELMinIdle:  time.Duration(config.GetEnvInt("PEL_MIN_IDLE_MS", 60000)) * time.Millisecond,

		RingSize:      config.GetEnvInt("RING_SIZE", 8192),
		MaxPoints:     config.GetEnvInt("SESSION_MAX_POINTS", 5000),
		BackfillLimit: config.GetEnvInt("BACKFILL_LIMIT", 0),

		SinkMaxFailures:  config.GetEnvInt("SINK_MAX_FAILURES", 5),
		SinkResetTimeout: time.Duration(config.GetEnvInt("SINK_RESET_SEC", 10)) * time.Second,
		SinkBufferSize:   config.GetEnvInt("SINK_BUFFER_SIZE", 10000),

		Specs: specs,
	}, nil
}

// Timeframes returns the distinct timeframes of the configured specs, sorted.
func Timeframes(specs []model.Spec) []string {
	seen := make(map[string]bool, len(specs))
	var tfs []string
	for _, s := range specs {
		if !seen[s.Timeframe] {
			seen[s.Timeframe] = true
			tfs = append(tfs, s.Timeframe)
		}
	}
	sort.Strings(tfs)
	return tfs
}

// parseList splits "a, b,c" into its non-empty items.
func parseList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

package indengine

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"trading-indicators/internal/indicator"
	"trading-indicators/internal/metrics"
	"trading-indicators/internal/model"
	"trading-indicators/internal/ringbuf"
	redisstore "trading-indicators/internal/store/redis"
	sqlitestore "trading-indicators/internal/store/sqlite"
)

// Service is the top-level orchestrator for the indicator engine.
// It wires all dependencies, manages lifecycle, and coordinates goroutines.
//
// The engine is owned by a single process goroutine: ticks reach it through
// a single-producer ring, and reloads are handed to it over a channel.
type Service struct {
	cfg Config
	log *slog.Logger

	engine      *indicator.Engine
	redisReader *redisstore.Reader
	redisWriter *redisstore.Writer
	breaker     *redisstore.CircuitBreaker
	sink        model.PointSink
	sqlReader   *sqlitestore.Reader
	sources     []model.BarSource // backfill order: SQLite, then Redis streams

	prom   *metrics.Metrics
	health *metrics.HealthStatus
	server *metrics.Server

	symbols []string
	streams []string

	ticks   chan model.Tick
	ring    *ringbuf.Ring
	wake    chan struct{}
	reloads chan reloadRequest
}

// New creates a new Service from the given Config. It validates the
// indicator specs and connects to Redis and SQLite. ctx bounds the
// background flushes of the point sink.
func New(ctx context.Context, cfg Config, log *slog.Logger) (*Service, error) {
	if log == nil {
		log = slog.Default()
	}
	engine, err := indicator.NewEngine(indicator.NewDefaultRegistry(), cfg.Specs,
		indicator.WithSessionMaxPoints(cfg.MaxPoints),
		indicator.WithLogger(log))
	if err != nil {
		return nil, err
	}

	svc := newService(cfg, log, engine, metrics.NewMetrics(nil))

	// ---- Connect to Redis ----
	svc.redisReader, err = redisstore.NewReader(redisstore.ReaderConfig{
		Addr:          cfg.RedisAddr,
		Password:      cfg.RedisPassword,
		ConsumerGroup: cfg.ConsumerGroup,
		ConsumerName:  cfg.ConsumerName,
	})
	if err != nil {
		return nil, err
	}

	svc.redisWriter, err = redisstore.New(redisstore.WriterConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		svc.redisReader.Close()
		return nil, err
	}

	svc.breaker = redisstore.NewCircuitBreaker(cfg.SinkMaxFailures, cfg.SinkResetTimeout)
	svc.breaker.OnStateChange = func(from, to redisstore.BreakerState) {
		svc.prom.SinkBreakerState.Set(float64(to))
		log.Warn("point sink breaker state changed",
			slog.String("from", from.String()), slog.String("to", to.String()))
	}
	bw := redisstore.NewBufferedWriter(ctx, svc.redisWriter, svc.breaker, cfg.SinkBufferSize)
	bw.OnBuffer = func(n int) { svc.prom.SinkBuffered.Add(float64(n)) }
	bw.OnFlush = func(n int) { log.Info("point sink recovered, replayed buffer", slog.Int("results", n)) }
	svc.sink = bw

	// ---- Open SQLite ----
	svc.sqlReader, err = sqlitestore.NewReader(cfg.SQLitePath)
	if err != nil {
		log.Warn("sqlite reader init failed, continuing without SQLite backfill",
			slog.String("path", cfg.SQLitePath), slog.Any("error", err))
		svc.sqlReader = nil
	} else {
		svc.sources = append(svc.sources, svc.sqlReader)
	}
	svc.sources = append(svc.sources, svc.redisReader)

	svc.health = metrics.NewHealthStatus(svc.sqlReader != nil)
	svc.server = metrics.NewServer(cfg.MetricsAddr, svc.health, nil)
	svc.server.Handle("/reload", reloadHandler(svc, log))

	return svc, nil
}

// newService builds the parts of a Service that need no external
// connection.
func newService(cfg Config, log *slog.Logger, engine *indicator.Engine, prom *metrics.Metrics) *Service {
	ringSize := cfg.RingSize
	if ringSize <= 0 {
		ringSize = 8192
	}
	return &Service{
		cfg:     cfg,
		log:     log,
		engine:  engine,
		prom:    prom,
		health:  metrics.NewHealthStatus(false),
		ticks:   make(chan model.Tick, 1024),
		ring:    ringbuf.New(ringSize),
		wake:    make(chan struct{}, 1),
		reloads: make(chan reloadRequest),
	}
}

// Run starts all subsystems and blocks until ctx is cancelled.
func (svc *Service) Run(ctx context.Context) error {
	svc.log.Info("starting indicator engine", slog.Int("specs", len(svc.cfg.Specs)))

	// ---- Discover symbols and streams ----
	svc.symbols = svc.resolveSymbols(ctx)
	svc.streams = svc.buildStreams()
	svc.log.Info("consuming bar streams",
		slog.Int("streams", len(svc.streams)), slog.Any("symbols", svc.symbols))

	// ---- Seed sessions from history ----
	svc.backfill(ctx)

	svc.health.SetSpecs(specIDs(svc.engine.Specs()))
	svc.health.SetSessions(svc.engine.SessionCount())
	svc.health.StartLivenessChecker(ctx, svc.redisReader.Client(), svc.sqlDB(), 15*time.Second)
	svc.server.Start()

	// ---- Start the process pipeline before anything can deliver ticks ----
	go svc.feed(ctx)
	go svc.processLoop(ctx)

	if len(svc.streams) > 0 {
		if err := svc.redisReader.EnsureConsumerGroup(ctx, svc.streams); err != nil {
			svc.log.Warn("consumer group setup failed", slog.Any("error", err))
		}
		if n, err := svc.redisReader.RecoverPending(ctx, svc.streams, svc.ticks); err != nil {
			svc.log.Warn("pending recovery failed", slog.Any("error", err))
		} else if n > 0 {
			svc.log.Info("recovered pending ticks", slog.Int("count", n))
		}
		svc.startPELReclaimer(ctx)
		svc.startConsumer(ctx)
	}
	svc.startConfigSubscriber(ctx)

	svc.log.Info("all systems running",
		slog.Any("timeframes", Timeframes(svc.engine.Specs())),
		slog.String("metrics_addr", svc.cfg.MetricsAddr))

	<-ctx.Done()

	svc.shutdown()
	return nil
}

// shutdown stops the HTTP server and closes connections.
func (svc *Service) shutdown() {
	svc.log.Info("shutdown signal received")

	shutCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := svc.server.Stop(shutCtx); err != nil {
		svc.log.Warn("metrics server shutdown", slog.Any("error", err))
	}

	if svc.sqlReader != nil {
		svc.sqlReader.Close()
	}
	svc.sink.Close()
	svc.redisReader.Close()

	svc.log.Info("shutdown complete")
}

// resolveSymbols returns the configured symbols, or the symbols SQLite has
// history for on any configured timeframe.
func (svc *Service) resolveSymbols(ctx context.Context) []string {
	if len(svc.cfg.Symbols) > 0 || svc.sqlReader == nil {
		return svc.cfg.Symbols
	}
	seen := make(map[string]bool)
	var out []string
	for _, tf := range Timeframes(svc.engine.Specs()) {
		syms, err := svc.sqlReader.Symbols(ctx, tf)
		if err != nil {
			svc.log.Warn("symbol discovery failed", slog.String("tf", tf), slog.Any("error", err))
			continue
		}
		for _, s := range syms {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	return out
}

// buildStreams returns the bar stream of every (timeframe, symbol) pair.
func (svc *Service) buildStreams() []string {
	var streams []string
	for _, tf := range Timeframes(svc.engine.Specs()) {
		for _, sym := range svc.symbols {
			streams = append(streams, model.BarStreamKey(tf, sym))
		}
	}
	return streams
}

// backfill replays history from every source into the engine and
// publishes the resulting points. Later sources only add bars past what
// earlier ones delivered.
func (svc *Service) backfill(ctx context.Context) {
	publish := func(results []model.IndicatorResult) { svc.publish(ctx, results) }
	for _, src := range svc.sources {
		n, err := svc.engine.Backfill(ctx, src, svc.symbols, svc.cfg.BackfillLimit, publish)
		svc.prom.BackfillBars.Add(float64(n))
		if err != nil {
			svc.log.Warn("backfill incomplete", slog.Int("bars", n), slog.Any("error", err))
		}
	}
	svc.prom.Sessions.Set(float64(svc.engine.SessionCount()))
}

func (svc *Service) sqlDB() *sql.DB {
	if svc.sqlReader == nil {
		return nil
	}
	return svc.sqlReader.DB()
}

func specIDs(specs []model.Spec) []string {
	ids := make([]string, len(specs))
	for i, s := range specs {
		ids[i] = s.ID()
	}
	return ids
}

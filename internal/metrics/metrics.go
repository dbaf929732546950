// Package metrics exposes Prometheus metrics and the /healthz endpoint of
// the indicator engine service.
package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the indicator engine.
type Metrics struct {
	TicksTotal    *prometheus.CounterVec // labels: tf, status
	RejectedTicks *prometheus.CounterVec // labels: reason
	PointsTotal   prometheus.Counter
	ComputeDur    prometheus.Histogram
	PublishDur    prometheus.Histogram
	PublishErrors prometheus.Counter
	Sessions      prometheus.Gauge
	BackfillBars  prometheus.Counter
	Reloads       *prometheus.CounterVec // labels: result

	RingBufOverflow      prometheus.Counter
	PELMessagesReclaimed prometheus.Counter

	SinkBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	SinkBuffered     prometheus.Counter
}

// NewMetrics creates the metrics and registers them with reg, or with the
// default registerer when reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		TicksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "indengine_ticks_total",
			Help: "Bar ticks applied, by timeframe and status",
		}, []string{"tf", "status"}),
		RejectedTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "indengine_rejected_ticks_total",
			Help: "Ticks rejected by a session (out_of_order, error)",
		}, []string{"reason"}),
		PointsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indengine_points_total",
			Help: "Indicator points produced",
		}),
		ComputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "indengine_compute_duration_seconds",
			Help:    "Compute latency per tick across all specs of its timeframe",
			Buckets: []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005},
		}),
		PublishDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "indengine_publish_duration_seconds",
			Help:    "Point sink publish latency",
			Buckets: prometheus.DefBuckets,
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indengine_publish_errors_total",
			Help: "Failed point sink publishes",
		}),
		Sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "indengine_sessions",
			Help: "Live (spec, symbol) sessions",
		}),
		BackfillBars: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indengine_backfill_bars_total",
			Help: "Historical bars replayed into sessions",
		}),
		Reloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "indengine_reloads_total",
			Help: "Spec reloads by result (ok, invalid)",
		}, []string{"result"}),
		RingBufOverflow: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indengine_ringbuf_overflow_total",
			Help: "Ring buffer push overflows (dropped ticks)",
		}),
		PELMessagesReclaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indengine_pel_messages_reclaimed_total",
			Help: "Messages reclaimed from dead consumers via XCLAIM",
		}),
		SinkBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "indengine_sink_circuit_breaker_state",
			Help: "Point sink circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		SinkBuffered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indengine_sink_buffered_total",
			Help: "Results buffered while the point sink breaker was open",
		}),
	}

	reg.MustRegister(
		m.TicksTotal,
		m.RejectedTicks,
		m.PointsTotal,
		m.ComputeDur,
		m.PublishDur,
		m.PublishErrors,
		m.Sessions,
		m.BackfillBars,
		m.Reloads,
		m.RingBufOverflow,
		m.PELMessagesReclaimed,
		m.SinkBreakerState,
		m.SinkBuffered,
	)
	return m
}

// HealthStatus represents the service health.
type HealthStatus struct {
	mu sync.RWMutex

	StreamConnected bool
	SQLiteOK        bool
	LastTickTime    time.Time
	Specs           []string
	Sessions        int

	RedisLatencyMs  float64
	SQLiteLatencyMs float64
	LastCheckAt     time.Time
	StartedAt       time.Time

	sqliteRequired bool
}

// NewHealthStatus returns a default health status. When sqliteRequired is
// false a missing history store does not degrade the status.
func NewHealthStatus(sqliteRequired bool) *HealthStatus {
	return &HealthStatus{StartedAt: time.Now(), sqliteRequired: sqliteRequired}
}

func (h *HealthStatus) SetLastTickTime(t time.Time) {
	h.mu.Lock()
	h.LastTickTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetSpecs(ids []string) {
	h.mu.Lock()
	h.Specs = ids
	h.mu.Unlock()
}

func (h *HealthStatus) SetSessions(n int) {
	h.mu.Lock()
	h.Sessions = n
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency and connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.StreamConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the history store and records latency and health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs the dependency checks every interval. Nil
// dependencies are skipped.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	check := func() {
		probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if rdb != nil {
			h.CheckRedis(probeCtx, rdb)
		}
		if sqlDB != nil {
			h.CheckSQLite(probeCtx, sqlDB)
		}
	}
	go func() {
		check()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				check()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status, code := "healthy", http.StatusOK
	if !h.StreamConnected || (h.sqliteRequired && !h.SQLiteOK) {
		status, code = "degraded", http.StatusServiceUnavailable
	}

	tickAge := ""
	if !h.LastTickTime.IsZero() {
		tickAge = time.Since(h.LastTickTime).Round(time.Millisecond).String()
	}

	body := struct {
		Status          string   `json:"status"`
		Uptime          string   `json:"uptime"`
		StreamConnected bool     `json:"stream_connected"`
		RedisLatencyMs  float64  `json:"redis_latency_ms"`
		SQLiteOK        bool     `json:"sqlite_ok"`
		SQLiteLatencyMs float64  `json:"sqlite_latency_ms"`
		TickAge         string   `json:"tick_age"`
		Specs           []string `json:"specs"`
		Sessions        int      `json:"sessions"`
		LastCheckAt     string   `json:"last_check_at"`
	}{
		Status:          status,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		StreamConnected: h.StreamConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		TickAge:         tickAge,
		Specs:           h.Specs,
		Sessions:        h.Sessions,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

// Server runs an HTTP server exposing /metrics, /healthz and any extra
// handlers registered before Start.
type Server struct {
	addr string
	mux  *http.ServeMux
	srv  *http.Server
}

// NewServer creates a metrics and health server. gatherer may be nil for the
// default Prometheus registry.
func NewServer(addr string, health *HealthStatus, gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", health)

	return &Server{
		addr: addr,
		mux:  mux,
		srv:  &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second},
	}
}

// Handle registers an extra handler.
func (s *Server) Handle(pattern string, h http.Handler) {
	s.mux.Handle(pattern, h)
}

// Handler returns the server's mux.
func (s *Server) Handler() http.Handler { return s.mux }

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		slog.Info("metrics server listening", slog.String("addr", s.addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", slog.Any("error", err))
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

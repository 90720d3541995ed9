package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the chart engine.
type Metrics struct {
	// Ingest path
	CandlesFinalized  prometheus.Counter
	Revisions         prometheus.Counter
	DuplicatesDropped prometheus.Counter
	StaleRevisions    prometheus.Counter

	// Engine lifecycle
	Rebuilds         *prometheus.CounterVec // labels: reason=startup|request|structural
	ComputeDur       prometheus.Histogram
	RebuildDur       prometheus.Histogram
	IndicatorEntries *prometheus.GaugeVec // labels: indicator

	// Render-cache invalidation. Invalidations counts every delivered
	// callback (throttled and forced alike); InvalidationsForced counts
	// the subset triggered by rebuilds and structural changes.
	Invalidations       prometheus.Counter
	InvalidationsForced prometheus.Counter

	// Feed
	FeedReconnects  prometheus.Counter
	RingBufOverflow prometheus.Counter
	CandleLag       prometheus.Gauge

	// Stores
	RedisWriteDur   prometheus.Histogram
	SQLiteCommitDur prometheus.Histogram
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		CandlesFinalized: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartd_candles_finalized_total",
			Help: "Total finalized candles ingested by the indicator engines",
		}),
		Revisions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartd_revisions_total",
			Help: "Total open-candle revisions applied",
		}),
		DuplicatesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartd_duplicates_dropped_total",
			Help: "Finalized candles dropped as duplicate or out-of-order",
		}),
		StaleRevisions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartd_stale_revisions_total",
			Help: "Revisions dropped because their key was already superseded",
		}),

		Rebuilds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chartd_rebuilds_total",
			Help: "Full history rebuilds (by reason)",
		}, []string{"reason"}),
		ComputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chartd_compute_duration_seconds",
			Help:    "Indicator engine compute latency per candle event",
			Buckets: []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001},
		}),
		RebuildDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chartd_rebuild_duration_seconds",
			Help:    "Full history rebuild latency",
			Buckets: prometheus.DefBuckets,
		}),
		IndicatorEntries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "chartd_indicator_entries",
			Help: "Output series length per indicator",
		}, []string{"indicator"}),

		Invalidations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartd_invalidations_total",
			Help: "Render-cache invalidations delivered (throttled and forced)",
		}),
		InvalidationsForced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartd_invalidations_forced_total",
			Help: "Render-cache invalidations forced by structural events",
		}),

		FeedReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartd_feed_reconnects_total",
			Help: "Total feed WebSocket reconnection attempts",
		}),
		RingBufOverflow: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartd_ringbuf_overflow_total",
			Help: "Ring buffer push overflows (dropped events)",
		}),
		CandleLag: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chartd_candle_lag_seconds",
			Help: "Lag between candle key time and processing time",
		}),

		RedisWriteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chartd_redis_write_duration_seconds",
			Help:    "Redis indicator-point write latency",
			Buckets: prometheus.DefBuckets,
		}),
		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chartd_sqlite_commit_duration_seconds",
			Help:    "SQLite candle-history batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),
	}

	prometheus.MustRegister(
		m.CandlesFinalized,
		m.Revisions,
		m.DuplicatesDropped,
		m.StaleRevisions,
		m.Rebuilds,
		m.ComputeDur,
		m.RebuildDur,
		m.IndicatorEntries,
		m.Invalidations,
		m.InvalidationsForced,
		m.FeedReconnects,
		m.RingBufOverflow,
		m.CandleLag,
		m.RedisWriteDur,
		m.SQLiteCommitDur,
	)

	return m
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	FeedConnected  bool      `json:"feed_connected"`
	LastCandleTime time.Time `json:"last_candle_time"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`
	EnginesOK      bool      `json:"engines_ok"`
	Indicators     []string  `json:"indicators"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetFeedConnected(v bool) {
	h.mu.Lock()
	h.FeedConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastCandleTime(t time.Time) {
	h.mu.Lock()
	h.LastCandleTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetEnginesOK(v bool) {
	h.mu.Lock()
	h.EnginesOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetIndicators(names []string) {
	h.mu.Lock()
	h.Indicators = names
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite runs a trivial query and records latency + health.
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

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	// Determine overall status
	overallStatus := "healthy"
	httpCode := http.StatusOK

	if !h.FeedConnected || !h.RedisConnected || !h.SQLiteOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.RedisConnected && !h.SQLiteOK {
		overallStatus = "unhealthy"
	}

	// Candle age
	candleAge := ""
	if !h.LastCandleTime.IsZero() {
		candleAge = time.Since(h.LastCandleTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string   `json:"status"`
		Uptime          string   `json:"uptime"`
		FeedConnected   bool     `json:"feed_connected"`
		LastCandleTime  string   `json:"last_candle_time"`
		CandleAge       string   `json:"candle_age"`
		RedisConnected  bool     `json:"redis_connected"`
		RedisLatencyMs  float64  `json:"redis_latency_ms"`
		SQLiteOK        bool     `json:"sqlite_ok"`
		SQLiteLatencyMs float64  `json:"sqlite_latency_ms"`
		EnginesOK       bool     `json:"engines_ok"`
		Indicators      []string `json:"indicators"`
		LastCheckAt     string   `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		FeedConnected:   h.FeedConnected,
		LastCandleTime:  h.LastCandleTime.Format(time.RFC3339),
		CandleAge:       candleAge,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		EnginesOK:       h.EnginesOK,
		Indicators:      h.Indicators,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}

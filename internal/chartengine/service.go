// Package chartengine is the top-level orchestrator for the chart indicator
// service. It owns the per-session candle histories and indicator engines,
// consumes finalized candles and open-candle revisions, and publishes
// computed points downstream.
package chartengine

import (
	"context"
	"log"
	"os"
	"sync/atomic"
	"time"

	"github.com/abhijiths101/flowsurface/internal/feed"
	"github.com/abhijiths101/flowsurface/internal/metrics"
	"github.com/abhijiths101/flowsurface/internal/model"
	"github.com/abhijiths101/flowsurface/internal/ringbuf"
	"github.com/abhijiths101/flowsurface/internal/source"
	redisstore "github.com/abhijiths101/flowsurface/internal/store/redis"
	sqlitestore "github.com/abhijiths101/flowsurface/internal/store/sqlite"
)

// Service wires all dependencies, manages lifecycle, and coordinates
// goroutines. All session and engine state is owned by the single
// processing goroutine started in Run; HTTP handlers reach it through
// queryCh.
type Service struct {
	cfg Config

	sessions map[string]*session
	order    []string // session names in config order

	redisReader *redisstore.Reader
	redisWriter *redisstore.Writer
	bufWriter   *redisstore.BufferedWriter
	sqlReader   *sqlitestore.Reader
	sqlWriter   *sqlitestore.Writer

	prom   *metrics.Metrics
	health *metrics.HealthStatus

	candleCh  chan redisstore.SessionCandle
	formingCh chan redisstore.SessionCandle
	persistCh chan sqlitestore.SessionCandle
	queryCh   chan func()

	// WebSocket feed path (optional; bound to the first session).
	candleFeed  *feed.Feed
	ring        *ringbuf.Ring[model.Candle]
	ringDropped uint64 // last sampled ring overflow count

	// renderVersion increments on every render-cache invalidation; chart
	// frontends compare it to decide whether to refetch.
	renderVersion atomic.Uint64

	streams []string
}

// New creates a new Service from the given Config.
// It connects to Redis and SQLite and builds the per-session engines.
func New(cfg Config) (*Service, error) {
	svc := &Service{
		cfg:       cfg,
		sessions:  make(map[string]*session, len(cfg.Sessions)),
		prom:      metrics.NewMetrics(),
		health:    metrics.NewHealthStatus(),
		candleCh:  make(chan redisstore.SessionCandle, 5000),
		formingCh: make(chan redisstore.SessionCandle, 1024),
		persistCh: make(chan sqlitestore.SessionCandle, 5000),
		queryCh:   make(chan func(), 16),
	}

	for _, spec := range cfg.Sessions {
		svc.sessions[spec.Name] = newSession(spec, cfg.Indicators)
		svc.order = append(svc.order, spec.Name)
	}
	svc.installInvalidation()

	// ---- Connect to Redis ----
	var err error
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

	cb := redisstore.NewCircuitBreaker(5, 10*time.Second)
	cb.OnStateChange = func(from, to redisstore.State) {
		log.Printf("[chartengine] redis circuit %s -> %s", from, to)
		svc.health.SetRedisConnected(to == redisstore.StateClosed)
	}
	svc.bufWriter = redisstore.NewBufferedWriter(context.Background(), svc.redisWriter, cb, 10000)

	// ---- Open SQLite ----
	svc.sqlReader, err = sqlitestore.NewReader(cfg.SQLitePath)
	if err != nil {
		log.Printf("[chartengine] WARNING: sqlite reader init failed: %v (continuing without history)", err)
	}

	os.MkdirAll("data", 0o755)
	svc.sqlWriter, err = sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Printf("[chartengine] WARNING: sqlite writer init failed: %v", err)
	} else {
		svc.sqlWriter.OnCommit = func(took time.Duration, _ int) {
			svc.prom.SQLiteCommitDur.Observe(took.Seconds())
		}
	}

	// ---- Optional WebSocket feed ----
	if cfg.FeedURL != "" {
		svc.ring = ringbuf.New[model.Candle](cfg.RingSize)
		svc.candleFeed, err = feed.New(feed.Config{URL: cfg.FeedURL})
		if err != nil {
			return nil, err
		}
		svc.candleFeed.OnReconnect = func() { svc.prom.FeedReconnects.Inc() }
		svc.candleFeed.OnConnected = svc.health.SetFeedConnected
	} else {
		// Stream-fed deployments report the Redis consumer as the feed.
		svc.health.SetFeedConnected(true)
	}

	return svc, nil
}

// installInvalidation hooks the render-cache version counter into every
// engine's throttled invalidation callback.
func (svc *Service) installInvalidation() {
	for _, sess := range svc.sessions {
		sess.set.SetInvalidateFunc(func() {
			svc.renderVersion.Add(1)
			svc.prom.Invalidations.Inc()
		})
	}
}

// Run starts all subsystems and blocks until ctx is cancelled.
func (svc *Service) Run(ctx context.Context) error {
	cfg := svc.cfg
	log.Println("[chartengine] starting chart indicator service...")

	// ---- Rebuild from SQLite history ----
	svc.rebuildFromHistory()

	// ---- Streams and consumer groups ----
	for _, name := range svc.order {
		svc.streams = append(svc.streams, redisstore.CandleStream(name))
	}
	if err := svc.redisReader.EnsureConsumerGroup(ctx, svc.streams); err != nil {
		log.Printf("[chartengine] WARNING: consumer group setup: %v", err)
	}
	if err := svc.redisReader.RecoverPending(ctx, svc.streams, svc.candleCh); err != nil {
		log.Printf("[chartengine] pending recovery error: %v", err)
	}

	// ---- Start subsystems ----
	go func() {
		if err := svc.redisReader.ConsumeCandles(ctx, svc.streams, svc.candleCh); err != nil && ctx.Err() == nil {
			log.Printf("[chartengine] consumer error: %v", err)
		}
	}()
	go func() {
		if err := svc.redisReader.SubscribeForming(ctx, svc.formingCh); err != nil {
			log.Printf("[chartengine] forming subscription error: %v", err)
		}
	}()
	if svc.candleFeed != nil {
		go func() {
			if err := svc.candleFeed.Start(ctx, svc.ring); err != nil {
				log.Printf("[chartengine] feed error: %v", err)
			}
		}()
	}
	if svc.sqlWriter != nil {
		go svc.sqlWriter.Run(ctx, svc.persistCh)
	}

	names := make([]string, 0, len(cfg.Indicators))
	for _, is := range cfg.Indicators {
		names = append(names, is.Kind.String())
	}
	svc.health.SetIndicators(names)
	svc.health.SetEnginesOK(true)
	if svc.sqlWriter != nil {
		svc.health.StartLivenessChecker(ctx, svc.redisWriter.Client(), svc.sqlWriter.DB(), 10*time.Second)
	} else {
		svc.health.StartLivenessChecker(ctx, svc.redisWriter.Client(), nil, 10*time.Second)
	}

	metricsSrv := metrics.NewServer(cfg.MetricsAddr, svc.health)
	metricsSrv.Start()
	svc.startHTTP(ctx)

	go svc.processLoop(ctx)

	log.Printf("[chartengine] running: sessions=%v indicators=%v", svc.order, names)

	// Block until context cancelled
	<-ctx.Done()

	// ---- Graceful shutdown ----
	shutCtx, shutCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer shutCancel()
	metricsSrv.Stop(shutCtx)
	svc.shutdown()
	return nil
}

// shutdown closes connections.
func (svc *Service) shutdown() {
	log.Println("[chartengine] shutdown signal received")

	if svc.sqlReader != nil {
		svc.sqlReader.Close()
	}
	if svc.sqlWriter != nil {
		svc.sqlWriter.Close()
	}
	svc.redisWriter.Close()
	svc.redisReader.Close()

	log.Println("[chartengine] shutdown complete.")
}

// rebuildFromHistory replays each session's stored candles through its
// engines. Runs before the processing goroutine starts, so no locking.
func (svc *Service) rebuildFromHistory() {
	if svc.sqlReader == nil {
		return
	}
	for _, name := range svc.order {
		sess := svc.sessions[name]
		candles, err := svc.sqlReader.ReadCandles(name, 0)
		if err != nil {
			log.Printf("[chartengine] history read error for %s: %v", name, err)
			continue
		}
		if len(candles) == 0 {
			continue
		}
		start := time.Now()
		for _, c := range candles {
			sess.src.Apply(c)
		}
		sess.rebuild()
		svc.prom.Rebuilds.WithLabelValues("startup").Inc()
		svc.prom.RebuildDur.Observe(time.Since(start).Seconds())
		svc.prom.InvalidationsForced.Inc()
		log.Printf("[chartengine] rebuilt %s from %d stored candles in %v",
			name, len(candles), time.Since(start))
	}
}

// processLoop is the single goroutine that owns all session state. Every
// mutation and every read of the engines happens here.
func (svc *Service) processLoop(ctx context.Context) {
	// The ring has no blocking receive; poll it on a short tick when the
	// WebSocket feed is active.
	var ringTick <-chan time.Time
	if svc.ring != nil {
		t := time.NewTicker(5 * time.Millisecond)
		defer t.Stop()
		ringTick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return

		case sc, ok := <-svc.candleCh:
			if !ok {
				return
			}
			if sc.Candle.Forming {
				svc.handleRevision(sc.Session, sc.Candle)
			} else {
				svc.handleFinalized(sc.Session, sc.Candle)
			}

		case sc, ok := <-svc.formingCh:
			if !ok {
				return
			}
			svc.handleRevision(sc.Session, sc.Candle)

		case <-ringTick:
			svc.drainRing()

		case fn := <-svc.queryCh:
			fn()
		}
	}
}

// drainRing consumes feed candles from the SPSC ring. Feed candles carry
// no session, so they bind to the first configured session.
func (svc *Service) drainRing() {
	if len(svc.order) == 0 {
		return
	}
	name := svc.order[0]
	for {
		c, ok := svc.ring.Pop()
		if !ok {
			break
		}
		if c.Forming {
			svc.handleRevision(name, c)
		} else {
			svc.handleFinalized(name, c)
		}
	}
	if n := svc.ring.Overflow(); n > svc.ringDropped {
		svc.prom.RingBufOverflow.Add(float64(n - svc.ringDropped))
		svc.ringDropped = n
	}
}

func (svc *Service) handleFinalized(name string, c model.Candle) {
	sess, ok := svc.sessions[name]
	if !ok {
		return
	}
	start := time.Now()
	if !sess.applyFinalized(c) {
		svc.prom.DuplicatesDropped.Inc()
		return
	}
	svc.prom.CandlesFinalized.Inc()
	svc.prom.ComputeDur.Observe(time.Since(start).Seconds())
	svc.health.SetLastCandleTime(time.Now())
	svc.updateEntryGauges(sess)

	// Time-based keys are millisecond timestamps, so the gauge tracks how
	// far behind the stream we are. Tick keys are positions; no lag there.
	if sess.src.Kind() == source.TimeBased {
		svc.prom.CandleLag.Set(time.Since(time.UnixMilli(int64(c.Key))).Seconds())
	}

	// Persist for the next startup rebuild; best-effort under backpressure.
	if svc.sqlWriter != nil {
		select {
		case svc.persistCh <- sqlitestore.SessionCandle{Session: name, Candle: c}:
		default:
		}
	}

	svc.publish(sess.points(c.Key, false))
}

func (svc *Service) handleRevision(name string, c model.Candle) {
	sess, ok := svc.sessions[name]
	if !ok {
		return
	}
	// Superseded-key revisions would be dropped by every engine anyway;
	// count them once here and skip the fan-out.
	if last, ok := sess.src.Last(); ok && c.Key < last.Key {
		svc.prom.StaleRevisions.Inc()
		return
	}
	start := time.Now()
	sess.applyRevision(c)
	svc.prom.Revisions.Inc()
	svc.prom.ComputeDur.Observe(time.Since(start).Seconds())

	svc.publish(sess.points(c.Key, true))
}

// publish sends computed points downstream through the buffered writer.
func (svc *Service) publish(points []model.IndicatorPoint) {
	if len(points) == 0 || svc.bufWriter == nil {
		return
	}
	start := time.Now()
	svc.bufWriter.WriteBatch(points)
	svc.prom.RedisWriteDur.Observe(time.Since(start).Seconds())
}

func (svc *Service) updateEntryGauges(sess *session) {
	for _, e := range sess.set.Engines() {
		svc.prom.IndicatorEntries.WithLabelValues(e.Kind().String()).Set(float64(e.Len()))
	}
}

// onEngine runs fn on the processing goroutine and waits for it, so HTTP
// handlers never touch engine state concurrently with candle processing.
func (svc *Service) onEngine(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	wrapped := func() {
		fn()
		close(done)
	}
	select {
	case svc.queryCh <- wrapped:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

package redis

import (
	"context"
	"fmt"
	"log"
	"time"
	"unsafe"

	"github.com/abhijiths101/flowsurface/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	// Stream trimming: roughly a trading day of minute candles + buffer
	indStreamMaxLen  = 2000
	defaultLatestTTL = 30 * time.Minute
)

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Writer publishes computed indicator points to Redis.
//
// Finalized points get the full pipeline (XADD + SET latest + PUBLISH);
// live points from open-candle revisions are PubSub-only, so the streams
// record exactly the finalized series and a restart can never replay a
// tentative value.
type Writer struct {
	client *goredis.Client
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// New creates a new Redis Writer and pings the server.
func New(cfg WriterConfig) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Writer{client: client}, nil
}

// Run reads indicator points from pointCh and writes them to Redis.
// Blocks until ctx is cancelled or pointCh is closed.
func (w *Writer) Run(ctx context.Context, pointCh <-chan model.IndicatorPoint) {
	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-pointCh:
			if !ok {
				return
			}
			w.writePoint(ctx, p)
		}
	}
}

// WriteBatch writes multiple indicator points in a single Redis pipeline.
// This batches XADD + SET + PUBLISH for all points into one network
// roundtrip. Uses []byte→string zero-copy on the hot path.
func (w *Writer) WriteBatch(ctx context.Context, points []model.IndicatorPoint) {
	if len(points) == 0 {
		return
	}

	pipe := w.client.Pipeline()
	for i := range points {
		p := &points[i]

		jsonBytes := p.JSON()
		// Zero-copy []byte→string (safe: jsonBytes is not mutated after this)
		jsonData := *(*string)(unsafe.Pointer(&jsonBytes))
		pubsubCh := p.PubSubChannel()

		if p.Live {
			pipe.Publish(ctx, pubsubCh, jsonData)
			continue
		}

		// Finalized: XADD + SET + PUBLISH
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: p.StreamKey(),
			MaxLen: indStreamMaxLen,
			Approx: true,
			Values: map[string]interface{}{"data": jsonData},
		})
		latestKey := "ind:" + p.Indicator + ":latest:" + p.Session
		pipe.Set(ctx, latestKey, jsonData, defaultLatestTTL)
		pipe.Publish(ctx, pubsubCh, jsonData)
	}

	_, err := pipe.Exec(ctx)
	if err != nil {
		log.Printf("[redis] point batch pipeline error (%d points): %v", len(points), err)
	}
}

// writePoint publishes one indicator point.
func (w *Writer) writePoint(ctx context.Context, p model.IndicatorPoint) {
	jsonBytes := p.JSON()
	jsonData := *(*string)(unsafe.Pointer(&jsonBytes))
	pubsubCh := p.PubSubChannel()

	if p.Live {
		// Live/preview points: PubSub only (no XADD, no SET latest)
		w.client.Publish(ctx, pubsubCh, jsonData)
		return
	}

	pipe := w.client.Pipeline()

	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: p.StreamKey(),
		MaxLen: indStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"data": jsonData,
		},
	})

	latestKey := "ind:" + p.Indicator + ":latest:" + p.Session
	pipe.Set(ctx, latestKey, jsonData, defaultLatestTTL)

	// PUBLISH for real-time subscribers (chart frontends)
	pipe.Publish(ctx, pubsubCh, jsonData)

	_, err := pipe.Exec(ctx)
	if err != nil {
		log.Printf("[redis] point pipeline error for %s: %v", p.Indicator, err)
	}
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}

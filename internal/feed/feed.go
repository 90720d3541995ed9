// Package feed provides a WebSocket client that streams candle updates from
// an exchange adapter into the chart engine pipeline.
//
// The expected JSON message format on the wire is identical to model.Candle:
//
//	{"key":1717000000000,"open":67000.5,...,"forming":true}
//
// Forming=true marks an open-candle revision; the same key arrives once more
// with Forming=false when the bucket closes.
package feed

import (
	"context"
	"encoding/json"
	"log"
	"net/url"
	"time"

	"github.com/abhijiths101/flowsurface/internal/model"
	"github.com/abhijiths101/flowsurface/internal/ringbuf"

	"github.com/gorilla/websocket"
)

// Config holds configuration for the candle feed.
type Config struct {
	// URL of the candle WebSocket server, e.g. "ws://localhost:9001/ws"
	URL string

	// ReconnectDelay is the initial delay before reconnection attempts.
	// Defaults to 2 seconds if zero.
	ReconnectDelay time.Duration

	// MaxReconnectDelay caps the exponential backoff. Defaults to 30s.
	MaxReconnectDelay time.Duration
}

func (c *Config) defaults() {
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
}

// Feed connects to a plain-JSON WebSocket candle server and pushes
// model.Candle values into an SPSC ring buffer consumed by the engine
// goroutine.
type Feed struct {
	cfg Config

	// Optional hooks for metrics and health reporting.
	OnReconnect func()
	OnConnected func(bool)
}

// New creates a new Feed. Returns an error if the URL is unparseable.
func New(cfg Config) (*Feed, error) {
	cfg.defaults()
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, err
	}
	return &Feed{cfg: cfg}, nil
}

// Start connects to the WebSocket and streams candles into ring.
// Blocks until ctx is cancelled. Reconnects automatically on disconnect.
func (f *Feed) Start(ctx context.Context, ring *ringbuf.Ring[model.Candle]) error {
	delay := f.cfg.ReconnectDelay

	for {
		// Check context before each attempt
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		err := f.runOnce(ctx, ring)
		if err == nil {
			// Context cancelled cleanly
			return nil
		}

		log.Printf("[feed] disconnected (%v), reconnecting in %s...", err, delay)
		if f.OnConnected != nil {
			f.OnConnected(false)
		}
		if f.OnReconnect != nil {
			f.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		// Exponential backoff
		delay *= 2
		if delay > f.cfg.MaxReconnectDelay {
			delay = f.cfg.MaxReconnectDelay
		}
	}
}

// runOnce makes a single connection attempt and reads until disconnect or ctx cancel.
func (f *Feed) runOnce(ctx context.Context, ring *ringbuf.Ring[model.Candle]) error {
	dialer := websocket.DefaultDialer
	conn, _, err := dialer.DialContext(ctx, f.cfg.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	log.Printf("[feed] connected to %s", f.cfg.URL)
	if f.OnConnected != nil {
		f.OnConnected(true)
	}

	// Async context watcher — closes the connection when ctx is cancelled.
	go func() {
		<-ctx.Done()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			// Check if it's a context cancellation
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}

		var c model.Candle
		if err := json.Unmarshal(raw, &c); err != nil {
			log.Printf("[feed] parse error: %v (raw: %s)", err, raw)
			continue
		}

		if !ring.Push(c) {
			// Ring overflow is counted by the buffer itself; finalized
			// candles will be recovered from the store on the next rebuild.
			log.Println("[feed] ring full, dropping candle")
		}
	}
}

// cmd/candlesim — Demo WebSocket candle server.
// Broadcasts a simulated candle stream for testing chartd without a real
// exchange adapter.
//
// Candle JSON shape is identical to model.Candle. The open candle is
// re-broadcast with forming=true on every tick; when its bucket closes it
// is sent once more with forming=false and the next bucket opens.
//
// Config (env vars):
//
//	CANDLESIM_ADDR     — listen address (default: ":9001")
//	CANDLESIM_BUCKET_S — candle bucket length in seconds (default: "5")
//	CANDLESIM_TICK_MS  — revision broadcast interval milliseconds (default: "200")
package main

import (
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/abhijiths101/flowsurface/internal/model"
)

// ─── Hub ──────────────────────────────────────────────────────────────────────

type hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]chan []byte
}

func newHub() *hub {
	return &hub{clients: make(map[*websocket.Conn]chan []byte)}
}

func (h *hub) register(conn *websocket.Conn) chan []byte {
	ch := make(chan []byte, 256)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	return ch
}

func (h *hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	if ch, ok := h.clients[conn]; ok {
		close(ch)
		delete(h.clients, conn)
	}
	h.mu.Unlock()
}

func (h *hub) broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.clients {
		select {
		case ch <- msg:
		default: // slow client — drop update
		}
	}
}

// ─── WebSocket handler ────────────────────────────────────────────────────────

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

func wsHandler(h *hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[candlesim] upgrade error: %v", err)
			return
		}
		log.Printf("[candlesim] client connected: %s", r.RemoteAddr)

		ch := h.register(conn)
		defer func() {
			h.unregister(conn)
			conn.Close()
			log.Printf("[candlesim] client disconnected: %s", r.RemoteAddr)
		}()

		// Write pump: sends candle JSON to this client.
		for msg := range ch {
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

// ─── Candle generator ─────────────────────────────────────────────────────────

// walkPrice applies a tiny random walk (±0.1%) to simulate price movement.
func walkPrice(price float64) float64 {
	pct := (rand.Float64()*0.2 - 0.1) / 100.0
	next := price * (1 + pct)
	if next < 0.01 {
		next = 0.01
	}
	return next
}

func runGenerator(h *hub, bucketS int, tickMs int) {
	ticker := time.NewTicker(time.Duration(tickMs) * time.Millisecond)
	defer ticker.Stop()

	bucket := int64(bucketS) * 1000
	price := 67000.0
	var open model.Candle

	newBucket := func(now int64) {
		key := uint64(now - now%bucket)
		open = model.Candle{
			Key: key, Open: price, High: price, Low: price, Close: price,
			Forming: true,
		}
	}
	newBucket(time.Now().UnixMilli())

	for range ticker.C {
		now := time.Now().UnixMilli()
		key := uint64(now - now%bucket)

		if key != open.Key {
			// Bucket closed: finalize and open the next one.
			open.Forming = false
			h.broadcast(open.JSON())
			newBucket(now)
		}

		price = walkPrice(price)
		open.Close = price
		if price > open.High {
			open.High = price
		}
		if price < open.Low {
			open.Low = price
		}
		vol := rand.Float64() * 5
		if rand.Intn(2) == 0 {
			open.BuyVolume += vol
		} else {
			open.SellVolume += vol
		}

		h.broadcast(open.JSON())
	}
}

// ─── main ─────────────────────────────────────────────────────────────────────

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[candlesim] starting demo candle server...")

	addr := envOrDefault("CANDLESIM_ADDR", ":9001")
	bucketS := envIntOrDefault("CANDLESIM_BUCKET_S", 5)
	tickMs := envIntOrDefault("CANDLESIM_TICK_MS", 200)

	log.Printf("[candlesim] bucket: %ds, revision interval: %dms", bucketS, tickMs)

	h := newHub()
	go runGenerator(h, bucketS, tickMs)

	http.HandleFunc("/ws", wsHandler(h))
	http.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{"status":"ok","service":"candlesim"}`)
	})

	log.Printf("[candlesim] listening on %s (WebSocket: ws://localhost%s/ws)", addr, addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatalf("[candlesim] server error: %v", err)
	}
}

// ─── helpers ──────────────────────────────────────────────────────────────────

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

package redis

import (
	"context"
	"log"
	"sync"

	"github.com/abhijiths101/flowsurface/internal/model"
)

// BufferedWriter wraps a Redis Writer with a circuit breaker.
// During circuit-open state, finalized indicator points are buffered
// locally and flushed when the circuit closes again. Live points are
// dropped outright: they are previews, and the next revision restates
// them anyway.
type BufferedWriter struct {
	writer *Writer
	cb     *CircuitBreaker
	ctx    context.Context

	mu     sync.Mutex
	buffer []model.IndicatorPoint
	maxBuf int // max buffered writes before dropping oldest (default: 10000)

	// Callbacks
	OnBuffer func()          // called when a write is buffered (for metrics)
	OnFlush  func(count int) // called after flushing buffered writes
}

// NewBufferedWriter creates a BufferedWriter wrapping the given Writer.
func NewBufferedWriter(ctx context.Context, w *Writer, cb *CircuitBreaker, maxBufferSize int) *BufferedWriter {
	if maxBufferSize <= 0 {
		maxBufferSize = 10000
	}
	bw := &BufferedWriter{
		writer: w,
		cb:     cb,
		ctx:    ctx,
		buffer: make([]model.IndicatorPoint, 0, 256),
		maxBuf: maxBufferSize,
	}

	// Register flush on circuit close
	prevCallback := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prevCallback != nil {
			prevCallback(from, to)
		}
		if to == StateClosed {
			go bw.flush()
		}
	}

	return bw
}

// WritePoint writes an indicator point through the circuit breaker.
// If the circuit is open, finalized points are buffered locally.
func (bw *BufferedWriter) WritePoint(p model.IndicatorPoint) error {
	err := bw.cb.Execute(func() error {
		bw.writer.writePoint(bw.ctx, p)
		return nil // writePoint logs errors internally
	})
	if err == ErrCircuitOpen {
		if !p.Live {
			bw.bufferWrite(p)
		}
		return nil // buffered or intentionally dropped, not lost
	}
	return err
}

// WriteBatch writes a batch of points through the circuit breaker.
func (bw *BufferedWriter) WriteBatch(points []model.IndicatorPoint) error {
	err := bw.cb.Execute(func() error {
		bw.writer.WriteBatch(bw.ctx, points)
		return nil
	})
	if err == ErrCircuitOpen {
		for _, p := range points {
			if !p.Live {
				bw.bufferWrite(p)
			}
		}
		return nil
	}
	return err
}

func (bw *BufferedWriter) bufferWrite(p model.IndicatorPoint) {
	bw.mu.Lock()
	defer bw.mu.Unlock()

	if len(bw.buffer) >= bw.maxBuf {
		// Buffer full — drop oldest
		bw.buffer = bw.buffer[1:]
	}
	bw.buffer = append(bw.buffer, p)

	if bw.OnBuffer != nil {
		bw.OnBuffer()
	}
}

// flush replays all buffered writes through the underlying writer.
func (bw *BufferedWriter) flush() {
	bw.mu.Lock()
	if len(bw.buffer) == 0 {
		bw.mu.Unlock()
		return
	}
	// Take ownership of the buffer
	toFlush := bw.buffer
	bw.buffer = make([]model.IndicatorPoint, 0, 256)
	bw.mu.Unlock()

	bw.writer.WriteBatch(bw.ctx, toFlush)

	log.Printf("[buffered-writer] flushed %d buffered writes", len(toFlush))
	if bw.OnFlush != nil {
		bw.OnFlush(len(toFlush))
	}
}

// PendingCount returns the number of buffered writes waiting to be flushed.
func (bw *BufferedWriter) PendingCount() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.buffer)
}

// Underlying returns the underlying Redis writer for direct access.
func (bw *BufferedWriter) Underlying() *Writer {
	return bw.writer
}

package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/abhijiths101/flowsurface/internal/model"
	"github.com/abhijiths101/flowsurface/internal/source"
)

func openTestStore(t *testing.T) (*Writer, *Reader) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "candles.db")
	w, err := New(WriterConfig{DBPath: path})
	if err != nil {
		t.Fatalf("open writer: %v", err)
	}
	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("open reader: %v", err)
	}
	t.Cleanup(func() {
		r.Close()
		w.Close()
	})
	return w, r
}

func tickCandle(key uint64, close float64) model.Candle {
	return model.Candle{Key: key, Open: close, High: close, Low: close, Close: close, BuyVolume: 1}
}

// Tick sessions key their first candle at 0. A startup replay that loses it
// leaves the dense-key check rejecting every later candle, so the read
// bound must be inclusive.
func TestReadCandlesIncludesKeyZero(t *testing.T) {
	w, r := openTestStore(t)
	const sess = "ethusdt@100t"

	batch := []SessionCandle{
		{Session: sess, Candle: tickCandle(0, 1)},
		{Session: sess, Candle: tickCandle(1, 2)},
		{Session: sess, Candle: tickCandle(2, 3)},
	}
	if err := w.insertBatch(batch); err != nil {
		t.Fatalf("insert: %v", err)
	}

	candles, err := r.ReadCandles(sess, 0)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(candles) != 3 {
		t.Fatalf("got %d candles, want 3", len(candles))
	}
	if candles[0].Key != 0 {
		t.Fatalf("first candle key = %d, want 0", candles[0].Key)
	}

	src := source.NewSeries(source.TickBased)
	for _, c := range candles {
		src.Apply(c)
	}
	if src.Len() != 3 {
		t.Fatalf("tick history rebuilt with %d candles, want 3", src.Len())
	}
}

func TestReadCandlesFromKey(t *testing.T) {
	w, r := openTestStore(t)
	const sess = "btcusdt@60s"

	var batch []SessionCandle
	for k := uint64(0); k < 5; k++ {
		batch = append(batch, SessionCandle{Session: sess, Candle: tickCandle(k, float64(k))})
	}
	if err := w.insertBatch(batch); err != nil {
		t.Fatalf("insert: %v", err)
	}

	candles, err := r.ReadCandles(sess, 2)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(candles) != 3 {
		t.Fatalf("got %d candles, want 3", len(candles))
	}
	if candles[0].Key != 2 || candles[2].Key != 4 {
		t.Fatalf("got keys %d..%d, want 2..4", candles[0].Key, candles[2].Key)
	}
}

func TestWriterCommitHook(t *testing.T) {
	w, _ := openTestStore(t)
	const sess = "btcusdt@60s"

	var committed int
	w.OnCommit = func(_ time.Duration, rows int) { committed += rows }

	ch := make(chan SessionCandle, 4)
	for k := uint64(0); k < 3; k++ {
		ch <- SessionCandle{Session: sess, Candle: tickCandle(k, float64(k))}
	}
	close(ch)

	done := make(chan struct{})
	go func() {
		w.Run(context.Background(), ch)
		close(done)
	}()
	<-done

	if committed != 3 {
		t.Fatalf("commit hook saw %d rows, want 3", committed)
	}
	key, ok, err := w.LastKey(sess)
	if err != nil || !ok || key != 2 {
		t.Fatalf("LastKey = (%d, %v, %v), want (2, true, nil)", key, ok, err)
	}
}

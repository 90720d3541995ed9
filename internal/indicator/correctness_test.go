package indicator

import (
	"math"
	"testing"

	"github.com/abhijiths101/flowsurface/internal/model"
)

// ────────────────────────────────────────────────────────────
// Helpers
// ────────────────────────────────────────────────────────────

func candleAt(key uint64, close float64) model.Candle {
	return model.Candle{
		Key:  key,
		Open: close, High: close + 0.5, Low: close - 0.5, Close: close,
	}
}

func deltaCandle(key uint64, delta float64) model.Candle {
	c := model.Candle{Key: key, Close: 100}
	if delta >= 0 {
		c.BuyVolume = delta
	} else {
		c.SellVolume = -delta
	}
	return c
}

func assertClose(t *testing.T, label string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("%s: got %.10f, want %.10f", label, got, want)
	}
}

func assertAbsent[V any](t *testing.T, label string, m interface {
	Get(uint64) (V, bool)
}, key uint64) {
	t.Helper()
	if _, ok := m.Get(key); ok {
		t.Errorf("%s: unexpected entry at key %d", label, key)
	}
}

// ────────────────────────────────────────────────────────────
// SMA
// ────────────────────────────────────────────────────────────

func TestSMA_WindowWarmup(t *testing.T) {
	// Period 3, closes 1,2,3,4: no entry for keys 1-2,
	// key 3 = (1+2+3)/3 = 2.0, key 4 = (2+3+4)/3 = 3.0.
	sma := NewSMA(3)
	for i, close := range []float64{1, 2, 3, 4} {
		sma.OnFinalized(candleAt(uint64(i+1), close))
	}

	assertAbsent[float64](t, "SMA", sma.Output(), 1)
	assertAbsent[float64](t, "SMA", sma.Output(), 2)

	v, ok := sma.Output().Get(3)
	if !ok {
		t.Fatal("SMA: missing entry at key 3")
	}
	assertClose(t, "SMA key 3", v, 2.0)

	v, _ = sma.Output().Get(4)
	assertClose(t, "SMA key 4", v, 3.0)
}

func TestSMA_LongWindowEviction(t *testing.T) {
	// 1..10 with period 5: after candle 10 the window is 6..10.
	sma := NewSMA(5)
	for i := 1; i <= 10; i++ {
		sma.OnFinalized(candleAt(uint64(i), float64(i)))
	}
	v, _ := sma.Output().Get(10)
	assertClose(t, "SMA key 10", v, 8.0)
	if sma.Len() != 6 {
		t.Errorf("SMA entries = %d, want 6 (keys 5..10)", sma.Len())
	}
}

// ────────────────────────────────────────────────────────────
// EMA
// ────────────────────────────────────────────────────────────

func TestEMA_SeedAndRecurrence(t *testing.T) {
	// Period 3, multiplier 2/(3+1) = 0.5.
	// Seed at key 3 = (1+2+3)/3 = 2.0; key 4 = (4-2.0)*0.5 + 2.0 = 3.0.
	ema := NewEMA(3)
	for i, close := range []float64{1, 2, 3, 4} {
		ema.OnFinalized(candleAt(uint64(i+1), close))
	}

	assertAbsent[float64](t, "EMA", ema.Output(), 1)
	assertAbsent[float64](t, "EMA", ema.Output(), 2)

	v, ok := ema.Output().Get(3)
	if !ok {
		t.Fatal("EMA: missing seed at key 3")
	}
	assertClose(t, "EMA seed", v, 2.0)

	v, _ = ema.Output().Get(4)
	assertClose(t, "EMA key 4", v, 3.0)
}

func TestEMA_RevisionUsesFinalizedBase(t *testing.T) {
	ema := NewEMA(3)
	for i, close := range []float64{1, 2, 3} {
		ema.OnFinalized(candleAt(uint64(i+1), close))
	}

	// Open candle at key 4 ticks several times; every revision must chain
	// off the finalized EMA at key 3 (=2.0), never off an earlier revision.
	ema.OnRevision(candleAt(4, 10))
	v, _ := ema.Output().Get(4)
	assertClose(t, "EMA revision 1", v, (10-2.0)*0.5+2.0) // 6.0

	ema.OnRevision(candleAt(4, 10))
	v, _ = ema.Output().Get(4)
	assertClose(t, "EMA revision repeated", v, 6.0)

	ema.OnRevision(candleAt(4, 4))
	v, _ = ema.Output().Get(4)
	assertClose(t, "EMA revision 3", v, 3.0)

	// Finalize with the last close: identical to the pure-append result.
	ema.OnFinalized(candleAt(4, 4))
	v, _ = ema.Output().Get(4)
	assertClose(t, "EMA finalized", v, 3.0)
}

func TestEMA_RevisionCompletesSeed(t *testing.T) {
	ema := NewEMA(3)
	ema.OnFinalized(candleAt(1, 1))
	ema.OnFinalized(candleAt(2, 2))

	// The open candle would be the third of the seed window.
	ema.OnRevision(candleAt(3, 6))
	v, ok := ema.Output().Get(3)
	if !ok {
		t.Fatal("EMA: revision completing the seed should produce an entry")
	}
	assertClose(t, "EMA tentative seed", v, 3.0)

	// Finalizing with a different close overwrites the tentative seed.
	ema.OnFinalized(candleAt(3, 3))
	v, _ = ema.Output().Get(3)
	assertClose(t, "EMA finalized seed", v, 2.0)
}

// ────────────────────────────────────────────────────────────
// RSI
// ────────────────────────────────────────────────────────────

func TestRSI_AllGainsIs100(t *testing.T) {
	// Monotonic rise: zero losses over the seed window must give exactly
	// 100, not a division fault.
	rsi := NewRSI(3)
	for i := 1; i <= 6; i++ {
		rsi.OnFinalized(candleAt(uint64(i), float64(i)))
	}
	for key := uint64(4); key <= 6; key++ {
		v, ok := rsi.Output().Get(key)
		if !ok {
			t.Fatalf("RSI: missing entry at key %d", key)
		}
		if v != 100.0 {
			t.Errorf("RSI key %d = %v, want exactly 100", key, v)
		}
	}
}

func TestRSI_AllLossesIs0(t *testing.T) {
	rsi := NewRSI(3)
	for i := 1; i <= 6; i++ {
		rsi.OnFinalized(candleAt(uint64(i), float64(10-i)))
	}
	v, _ := rsi.Output().Get(6)
	assertClose(t, "RSI all losses", v, 0.0)
}

func TestRSI_WilderSmoothing(t *testing.T) {
	// Period 2, closes 1, 3, 2, 5.
	// Changes: +2, -1, +3. Seed after 2 changes:
	//   avgGain = (2+0)/2 = 1, avgLoss = (0+1)/2 = 0.5
	//   RSI(key 3) = 100 - 100/(1+2) = 66.666...
	// Key 4: avgGain = (1*1+3)/2 = 2, avgLoss = (0.5*1+0)/2 = 0.25
	//   RSI = 100 - 100/(1+8) = 88.888...
	rsi := NewRSI(2)
	for i, close := range []float64{1, 3, 2, 5} {
		rsi.OnFinalized(candleAt(uint64(i+1), close))
	}

	assertAbsent[float64](t, "RSI", rsi.Output(), 2)

	v, ok := rsi.Output().Get(3)
	if !ok {
		t.Fatal("RSI: missing seed entry at key 3")
	}
	assertClose(t, "RSI seed", v, 100.0-100.0/3.0)

	v, _ = rsi.Output().Get(4)
	assertClose(t, "RSI key 4", v, 100.0-100.0/9.0)
}

func TestRSI_RevisionIsTentative(t *testing.T) {
	rsi := NewRSI(2)
	for i, close := range []float64{1, 3, 2, 5} {
		rsi.OnFinalized(candleAt(uint64(i+1), close))
	}

	// Revisions of the open candle at key 5 never advance Wilder state.
	rsi.OnRevision(candleAt(5, 7))
	first, _ := rsi.Output().Get(5)
	rsi.OnRevision(candleAt(5, 7))
	second, _ := rsi.Output().Get(5)
	assertClose(t, "RSI revision non-drift", second, first)

	// The eventual finalized value matches a pure-append oracle.
	rsi.OnFinalized(candleAt(5, 4))

	oracle := NewRSI(2)
	for i, close := range []float64{1, 3, 2, 5, 4} {
		oracle.OnFinalized(candleAt(uint64(i+1), close))
	}
	got, _ := rsi.Output().Get(5)
	want, _ := oracle.Output().Get(5)
	assertClose(t, "RSI finalized after revisions", got, want)
}

// ────────────────────────────────────────────────────────────
// Bollinger Bands
// ────────────────────────────────────────────────────────────

func TestBollinger_HandCalculated(t *testing.T) {
	// Period 2, width 2. Closes 1, 3:
	//   seed middle = (1+3)/2 = 2; variance = (1+9)/2 - 4 = 1, σ = 1
	//   upper = 4, lower = 0.
	// Close 5 (multiplier 2/3):
	//   middle = (5-2)*2/3 + 2 = 4; window {3,5}: variance = 1, σ = 1
	//   upper = 6, lower = 2.
	bb := NewBollinger(2, 2.0)
	bb.OnFinalized(candleAt(1, 1))
	bb.OnFinalized(candleAt(2, 3))

	assertAbsent[Band](t, "Bollinger", bb.Output(), 1)

	band, ok := bb.Output().Get(2)
	if !ok {
		t.Fatal("Bollinger: missing entry at key 2")
	}
	assertClose(t, "middle key 2", band.Middle, 2.0)
	assertClose(t, "upper key 2", band.Upper, 4.0)
	assertClose(t, "lower key 2", band.Lower, 0.0)

	bb.OnFinalized(candleAt(3, 5))
	band, _ = bb.Output().Get(3)
	assertClose(t, "middle key 3", band.Middle, 4.0)
	assertClose(t, "upper key 3", band.Upper, 6.0)
	assertClose(t, "lower key 3", band.Lower, 2.0)
}

func TestBollinger_BandOrdering(t *testing.T) {
	// lower <= middle <= upper must hold for arbitrary input once defined.
	bb := NewBollinger(5, 2.0)
	closes := []float64{3, 1, 4, 1, 5, 9, 2, 6, 5, 3, 5, 8, 9, 7, 9}
	for i, c := range closes {
		bb.OnFinalized(candleAt(uint64(i+1), c))
	}
	count := 0
	bb.Output().Ascend(0, math.MaxUint64, func(k uint64, b Band) bool {
		count++
		if b.Lower > b.Middle || b.Middle > b.Upper {
			t.Errorf("key %d: band ordering violated: %+v", k, b)
		}
		return true
	})
	if count == 0 {
		t.Fatal("Bollinger produced no output")
	}
}

func TestBollinger_ConstantClosesZeroWidth(t *testing.T) {
	// Identical closes: variance cancels to ~0 and must clamp, never NaN.
	bb := NewBollinger(4, 2.0)
	for i := 1; i <= 10; i++ {
		bb.OnFinalized(candleAt(uint64(i), 42.42))
	}
	band, ok := bb.Output().Get(10)
	if !ok {
		t.Fatal("Bollinger: missing entry at key 10")
	}
	if math.IsNaN(band.Upper) || math.IsNaN(band.Lower) {
		t.Fatalf("Bollinger produced NaN bands: %+v", band)
	}
	assertClose(t, "constant closes upper", band.Upper, 42.42)
	assertClose(t, "constant closes lower", band.Lower, 42.42)
}

func TestBollinger_RevisionReplacesLast(t *testing.T) {
	bb := NewBollinger(2, 2.0)
	bb.OnFinalized(candleAt(1, 1))
	bb.OnFinalized(candleAt(2, 3))

	// Revise the already-ingested newest candle. Key 2 is the seed entry,
	// so there is no predecessor to chain the middle band from and the
	// entry stays unchanged.
	before, _ := bb.Output().Get(2)
	bb.OnRevision(candleAt(2, 5))
	after, _ := bb.Output().Get(2)
	assertClose(t, "seed revision middle", after.Middle, before.Middle)

	// With a predecessor present the revision recomputes fully.
	bb.OnFinalized(candleAt(3, 5))
	bb.OnRevision(candleAt(3, 7))
	band, _ := bb.Output().Get(3)
	// window {3,7}: mean 5, variance = (9+49)/2 - 25 = 4, σ = 2
	// middle = (7-2)*2/3 + 2 = 16/3
	assertClose(t, "revised middle", band.Middle, 16.0/3.0)
	assertClose(t, "revised upper", band.Upper, 16.0/3.0+4.0)
	assertClose(t, "revised lower", band.Lower, 16.0/3.0-4.0)
}

// ────────────────────────────────────────────────────────────
// Cumulative Volume Delta
// ────────────────────────────────────────────────────────────

func TestCumulativeDelta_PrefixSum(t *testing.T) {
	// Deltas 5, -2, 3 → cumulative 5, 3, 6.
	cvd := NewCumulativeDelta()
	cvd.OnFinalized(deltaCandle(1, 5))
	cvd.OnFinalized(deltaCandle(2, -2))
	cvd.OnFinalized(deltaCandle(3, 3))

	for _, tc := range []struct {
		key  uint64
		want float64
	}{{1, 5}, {2, 3}, {3, 6}} {
		v, ok := cvd.Output().Get(tc.key)
		if !ok {
			t.Fatalf("CVD: missing entry at key %d", tc.key)
		}
		assertClose(t, "CVD", v, tc.want)
	}
}

func TestCumulativeDelta_RevisionReplacesTail(t *testing.T) {
	cvd := NewCumulativeDelta()
	cvd.OnFinalized(deltaCandle(1, 5))
	cvd.OnFinalized(deltaCandle(2, -2))
	cvd.OnFinalized(deltaCandle(3, 3))

	// Revising the last candle's delta to 10 rewrites only its entry:
	// cumulative becomes 5, 3, 13. The old delta must not linger.
	cvd.OnRevision(deltaCandle(3, 10))

	for _, tc := range []struct {
		key  uint64
		want float64
	}{{1, 5}, {2, 3}, {3, 13}} {
		v, _ := cvd.Output().Get(tc.key)
		assertClose(t, "CVD after revision", v, tc.want)
	}

	// Repeated identical revisions do not drift.
	cvd.OnRevision(deltaCandle(3, 10))
	v, _ := cvd.Output().Get(3)
	assertClose(t, "CVD revision idempotent", v, 13)

	// The next append chains off the revised value.
	cvd.OnFinalized(deltaCandle(4, 1))
	v, _ = cvd.Output().Get(4)
	assertClose(t, "CVD append after revision", v, 14)
}

func TestCumulativeDelta_OpenCandleRevision(t *testing.T) {
	cvd := NewCumulativeDelta()
	cvd.OnFinalized(deltaCandle(1, 5))

	// The forming candle at key 2 ticks twice before closing.
	cvd.OnRevision(deltaCandle(2, 1))
	v, _ := cvd.Output().Get(2)
	assertClose(t, "CVD forming tick 1", v, 6)

	cvd.OnRevision(deltaCandle(2, 4))
	v, _ = cvd.Output().Get(2)
	assertClose(t, "CVD forming tick 2", v, 9)

	cvd.OnFinalized(deltaCandle(2, 4))
	v, _ = cvd.Output().Get(2)
	assertClose(t, "CVD finalized", v, 9)
}

package indicator

import "math"

// rollingWindow tracks the sum and sum-of-squares of the last size values
// in a preallocated circular buffer. push is O(1): the evicted value is
// subtracted from both running sums.
type rollingWindow struct {
	size  int
	buf   []float64
	idx   int // next write position; the oldest slot once full
	count int
	sum   float64
	sumSq float64
}

func newRollingWindow(size int) rollingWindow {
	return rollingWindow{size: size, buf: make([]float64, size)}
}

func (w *rollingWindow) push(v float64) {
	if w.count >= w.size {
		old := w.buf[w.idx]
		w.sum -= old
		w.sumSq -= old * old
	}
	w.buf[w.idx] = v
	w.sum += v
	w.sumSq += v * v
	w.idx = (w.idx + 1) % w.size
	w.count++
}

func (w *rollingWindow) full() bool { return w.count >= w.size }

func (w *rollingWindow) mean() float64 { return w.sum / float64(w.size) }

func (w *rollingWindow) stdDev() float64 {
	return stdDevOf(w.sum, w.sumSq, w.size)
}

// windowStats is a non-mutating what-if over a rollingWindow: the sums the
// window would hold after a hypothetical push or replace. Revision paths
// use it so repeated revisions of the open candle cannot drift the window.
type windowStats struct {
	sum   float64
	sumSq float64
	n     int // values in the hypothetical window, capped at size
	size  int
}

func (st windowStats) full() bool { return st.n >= st.size }

func (st windowStats) mean() float64 { return st.sum / float64(st.size) }

func (st windowStats) stdDev() float64 {
	return stdDevOf(st.sum, st.sumSq, st.size)
}

// previewPush returns the stats as if v were pushed, evicting the oldest
// value when the window is full.
func (w *rollingWindow) previewPush(v float64) windowStats {
	sum, sumSq := w.sum, w.sumSq
	n := w.count + 1
	if w.count >= w.size {
		old := w.buf[w.idx]
		sum -= old
		sumSq -= old * old
		n = w.size
	}
	return windowStats{sum: sum + v, sumSq: sumSq + v*v, n: n, size: w.size}
}

// previewReplace returns the stats as if the newest value were replaced
// by v, adjusting both sums by the enter/exit delta.
func (w *rollingWindow) previewReplace(v float64) windowStats {
	if w.count == 0 {
		return w.previewPush(v)
	}
	last := (w.idx - 1 + w.size) % w.size
	old := w.buf[last]
	n := w.count
	if n > w.size {
		n = w.size
	}
	return windowStats{
		sum:   w.sum - old + v,
		sumSq: w.sumSq - old*old + v*v,
		n:     n,
		size:  w.size,
	}
}

func (w *rollingWindow) reset() {
	w.idx = 0
	w.count = 0
	w.sum = 0
	w.sumSq = 0
	for i := range w.buf {
		w.buf[i] = 0
	}
}

// stdDevOf computes the population standard deviation from running sums.
// E[x²] − E[x]² can go slightly negative from floating-point cancellation;
// it is clamped to zero before the square root.
func stdDevOf(sum, sumSq float64, n int) float64 {
	mean := sum / float64(n)
	variance := sumSq/float64(n) - mean*mean
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}

// expSmoothing is the EMA recurrence with an SMA seed: the first period
// values accumulate into a plain sum, the period-th produces the seed,
// every later value applies next against the previous smoothed value.
type expSmoothing struct {
	period     int
	multiplier float64
	count      int
	seedSum    float64
	last       float64
}

func newExpSmoothing(period int) expSmoothing {
	return expSmoothing{period: period, multiplier: 2.0 / float64(period+1)}
}

// update feeds one finalized value. ok is false until the seed exists.
func (s *expSmoothing) update(v float64) (float64, bool) {
	s.count++
	if s.count < s.period {
		s.seedSum += v
		return 0, false
	}
	if s.count == s.period {
		s.seedSum += v
		s.last = s.seedSum / float64(s.period)
		return s.last, true
	}
	s.last = s.next(v, s.last)
	return s.last, true
}

// next applies the recurrence against an explicit base value. Revision
// paths pass the output value at the preceding key so that repeated
// revisions of one open candle do not compound.
func (s *expSmoothing) next(v, base float64) float64 {
	return (v-base)*s.multiplier + base
}

// previewSeed returns the seed value as if v were the period-th input.
func (s *expSmoothing) previewSeed(v float64) (float64, bool) {
	if s.count+1 != s.period {
		return 0, false
	}
	return (s.seedSum + v) / float64(s.period), true
}

func (s *expSmoothing) reset() {
	s.count = 0
	s.seedSum = 0
	s.last = 0
}

// wilderState is Wilder's smoothing over gain/loss pairs, as used by RSI.
// The first period changes accumulate into plain sums; the period-th
// finalizes the seed averages; later changes apply
// avg = (avg*(period-1) + new) / period.
type wilderState struct {
	period    int
	count     int // closes observed, not changes
	prevClose float64
	avgGain   float64
	avgLoss   float64
}

func newWilderState(period int) wilderState {
	return wilderState{period: period}
}

// seeded reports whether the seed averages are finalized.
func (w *wilderState) seeded() bool { return w.count > w.period }

// update feeds one finalized close. ok is false until the seed exists.
func (w *wilderState) update(close float64) (float64, bool) {
	w.count++
	if w.count == 1 {
		w.prevClose = close
		return 0, false
	}

	gain, loss := gainLoss(close - w.prevClose)
	w.prevClose = close

	p := float64(w.period)
	if w.count <= w.period {
		w.avgGain += gain
		w.avgLoss += loss
		return 0, false
	}
	if w.count == w.period+1 {
		// period-th change: finalize the seed averages
		w.avgGain = (w.avgGain + gain) / p
		w.avgLoss = (w.avgLoss + loss) / p
		return rsiOf(w.avgGain, w.avgLoss), true
	}

	w.avgGain = (w.avgGain*(p-1) + gain) / p
	w.avgLoss = (w.avgLoss*(p-1) + loss) / p
	return rsiOf(w.avgGain, w.avgLoss), true
}

// preview computes the RSI as if close were the next finalized value,
// applying one smoothing step against the finalized averages without
// storing it.
func (w *wilderState) preview(close float64) (float64, bool) {
	if !w.seeded() {
		return 0, false
	}
	gain, loss := gainLoss(close - w.prevClose)
	p := float64(w.period)
	g := (w.avgGain*(p-1) + gain) / p
	l := (w.avgLoss*(p-1) + loss) / p
	return rsiOf(g, l), true
}

func (w *wilderState) reset() {
	w.count = 0
	w.prevClose = 0
	w.avgGain = 0
	w.avgLoss = 0
}

func gainLoss(change float64) (gain, loss float64) {
	if change > 0 {
		return change, 0
	}
	return 0, -change
}

// rsiOf maps averaged gain/loss to the 0–100 RSI scale. Zero average loss
// is defined as exactly 100, not a division fault.
func rsiOf(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}

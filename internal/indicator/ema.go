package indicator

import (
	"github.com/abhijiths101/flowsurface/internal/model"
	"github.com/abhijiths101/flowsurface/internal/series"
)

// EMA maintains an exponential moving average seeded with the simple
// average of the first period closes.
//
// The revision path is the subtle part: a revision must apply the
// recurrence against the value at the key immediately preceding the
// revised candle — the last truly finalized base — never against a value
// that already reflects an earlier revision of the same open candle.
// The predecessor lookup on the output series gives exactly that base.
type EMA struct {
	engineState
	sm  expSmoothing
	out *series.Map[float64]
}

// NewEMA creates an EMA engine with the given period.
func NewEMA(period int) *EMA {
	return &EMA{
		sm:  newExpSmoothing(period),
		out: series.NewMap[float64](),
	}
}

func (e *EMA) Kind() Kind { return KindEMA }

// Output returns the series for read-only consumption.
func (e *EMA) Output() *series.Map[float64] { return e.out }

func (e *EMA) Len() int { return e.out.Len() }

func (e *EMA) OnFinalized(c model.Candle) {
	if e.dropFinalized(c.Key) {
		return
	}
	e.ingest(c)
	e.inv.maybe()
}

func (e *EMA) OnRevision(c model.Candle) {
	if e.dropRevision(c.Key) {
		return
	}
	if v, ok := e.sm.previewSeed(c.Close); ok && !e.isNewest(c.Key) {
		// This revision would complete the seed window.
		e.out.Set(c.Key, v)
	} else if _, base, ok := e.out.Before(c.Key); ok {
		e.out.Set(c.Key, e.sm.next(c.Close, base))
	}
	// Still inside the seed window: no output entry yet.
	e.inv.maybe()
}

func (e *EMA) Rebuild(h History) {
	e.sm.reset()
	e.out.Clear()
	e.resetState()
	for i := 0; i < h.Len(); i++ {
		c := h.At(i)
		if e.dropFinalized(c.Key) {
			continue
		}
		e.ingest(c)
	}
	e.inv.force()
}

func (e *EMA) OnStructuralChange(h History) { e.Rebuild(h) }

func (e *EMA) Extent(from, to uint64) (lo, hi float64, ok bool) {
	return scalarExtent(e.out, from, to)
}

func (e *EMA) ingest(c model.Candle) {
	if v, ok := e.sm.update(c.Close); ok {
		e.out.Set(c.Key, v)
	}
	e.advance(c.Key)
}

package indicator

import (
	"github.com/abhijiths101/flowsurface/internal/model"
	"github.com/abhijiths101/flowsurface/internal/series"
)

// CumulativeDelta maintains the running prefix sum of per-candle volume
// deltas (buy volume minus sell volume) in key order.
//
// Both append and revision use the same O(1) form: the value at a key is
// the predecessor's cumulative value plus this candle's delta. Revising
// the newest candle therefore replaces its contribution outright — the old
// delta cannot linger in the running total, and no full re-summation or
// deferred rebuild flag is ever needed.
type CumulativeDelta struct {
	engineState
	out *series.Map[float64]
}

// NewCumulativeDelta creates a cumulative volume delta engine.
func NewCumulativeDelta() *CumulativeDelta {
	return &CumulativeDelta{out: series.NewMap[float64]()}
}

func (e *CumulativeDelta) Kind() Kind { return KindCumulativeDelta }

// Output returns the series for read-only consumption.
func (e *CumulativeDelta) Output() *series.Map[float64] { return e.out }

func (e *CumulativeDelta) Len() int { return e.out.Len() }

func (e *CumulativeDelta) OnFinalized(c model.Candle) {
	if e.dropFinalized(c.Key) {
		return
	}
	e.apply(c)
	e.advance(c.Key)
	e.inv.maybe()
}

func (e *CumulativeDelta) OnRevision(c model.Candle) {
	if e.dropRevision(c.Key) {
		return
	}
	e.apply(c)
	e.inv.maybe()
}

func (e *CumulativeDelta) Rebuild(h History) {
	e.out.Clear()
	e.resetState()
	for i := 0; i < h.Len(); i++ {
		c := h.At(i)
		if e.dropFinalized(c.Key) {
			continue
		}
		e.apply(c)
		e.advance(c.Key)
	}
	e.inv.force()
}

func (e *CumulativeDelta) OnStructuralChange(h History) { e.Rebuild(h) }

func (e *CumulativeDelta) Extent(from, to uint64) (lo, hi float64, ok bool) {
	return scalarExtent(e.out, from, to)
}

func (e *CumulativeDelta) apply(c model.Candle) {
	base := 0.0
	if _, v, ok := e.out.Before(c.Key); ok {
		base = v
	}
	e.out.Set(c.Key, base+c.Delta())
}

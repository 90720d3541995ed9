package indicator

import (
	"github.com/abhijiths101/flowsurface/internal/model"
	"github.com/abhijiths101/flowsurface/internal/series"
)

// RSI maintains the Relative Strength Index using Wilder's smoothing.
//
// Revisions of the open candle compute a tentative RSI by applying one
// smoothing step against the finalized averages without storing it, so the
// displayed value tracks live trades while the Wilder state only advances
// when the candle truly closes.
type RSI struct {
	engineState
	w   wilderState
	out *series.Map[float64]
}

// NewRSI creates an RSI engine with the given period (typically 14).
func NewRSI(period int) *RSI {
	return &RSI{
		w:   newWilderState(period),
		out: series.NewMap[float64](),
	}
}

func (r *RSI) Kind() Kind { return KindRSI }

// Output returns the series for read-only consumption.
func (r *RSI) Output() *series.Map[float64] { return r.out }

func (r *RSI) Len() int { return r.out.Len() }

func (r *RSI) OnFinalized(c model.Candle) {
	if r.dropFinalized(c.Key) {
		return
	}
	r.ingest(c)
	r.inv.maybe()
}

func (r *RSI) OnRevision(c model.Candle) {
	if r.dropRevision(c.Key) {
		return
	}
	if v, ok := r.w.preview(c.Close); ok {
		r.out.Set(c.Key, v)
	}
	r.inv.maybe()
}

func (r *RSI) Rebuild(h History) {
	r.w.reset()
	r.out.Clear()
	r.resetState()
	for i := 0; i < h.Len(); i++ {
		c := h.At(i)
		if r.dropFinalized(c.Key) {
			continue
		}
		r.ingest(c)
	}
	r.inv.force()
}

func (r *RSI) OnStructuralChange(h History) { r.Rebuild(h) }

func (r *RSI) Extent(from, to uint64) (lo, hi float64, ok bool) {
	return scalarExtent(r.out, from, to)
}

func (r *RSI) ingest(c model.Candle) {
	if v, ok := r.w.update(c.Close); ok {
		r.out.Set(c.Key, v)
	}
	r.advance(c.Key)
}

package indicator

import (
	"github.com/abhijiths101/flowsurface/internal/model"
	"github.com/abhijiths101/flowsurface/internal/series"
)

// SMA maintains a simple moving average over a fixed window of closes.
// No output entry exists until the window holds a full period of candles.
type SMA struct {
	engineState
	win rollingWindow
	out *series.Map[float64]
}

// NewSMA creates an SMA engine with the given period.
func NewSMA(period int) *SMA {
	return &SMA{
		win: newRollingWindow(period),
		out: series.NewMap[float64](),
	}
}

func (s *SMA) Kind() Kind { return KindSMA }

// Output returns the series for read-only consumption.
func (s *SMA) Output() *series.Map[float64] { return s.out }

func (s *SMA) Len() int { return s.out.Len() }

func (s *SMA) OnFinalized(c model.Candle) {
	if s.dropFinalized(c.Key) {
		return
	}
	s.ingest(c)
	s.inv.maybe()
}

func (s *SMA) OnRevision(c model.Candle) {
	if s.dropRevision(c.Key) {
		return
	}
	var st windowStats
	if s.isNewest(c.Key) {
		st = s.win.previewReplace(c.Close)
	} else {
		st = s.win.previewPush(c.Close)
	}
	if st.full() {
		s.out.Set(c.Key, st.mean())
	}
	s.inv.maybe()
}

func (s *SMA) Rebuild(h History) {
	s.win.reset()
	s.out.Clear()
	s.resetState()
	for i := 0; i < h.Len(); i++ {
		c := h.At(i)
		if s.dropFinalized(c.Key) {
			continue
		}
		s.ingest(c)
	}
	s.inv.force()
}

func (s *SMA) OnStructuralChange(h History) { s.Rebuild(h) }

func (s *SMA) Extent(from, to uint64) (lo, hi float64, ok bool) {
	return scalarExtent(s.out, from, to)
}

func (s *SMA) ingest(c model.Candle) {
	s.win.push(c.Close)
	if s.win.full() {
		s.out.Set(c.Key, s.win.mean())
	}
	s.advance(c.Key)
}

// scalarExtent finds the min/max of a scalar series within [from, to].
func scalarExtent(m *series.Map[float64], from, to uint64) (lo, hi float64, ok bool) {
	m.Ascend(from, to, func(_ uint64, v float64) bool {
		if !ok {
			lo, hi, ok = v, v, true
			return true
		}
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
		return true
	})
	return lo, hi, ok
}

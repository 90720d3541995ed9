package indicator

import (
	"github.com/abhijiths101/flowsurface/internal/model"
	"github.com/abhijiths101/flowsurface/internal/series"
)

// Band is one Bollinger Bands output value.
// Lower <= Middle <= Upper always holds once defined.
type Band struct {
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
}

// Bollinger composes an EMA middle band with a rolling population standard
// deviation over the same window. An output entry requires both the EMA
// seed and a full window, which coincide since the periods are equal.
type Bollinger struct {
	engineState
	win   rollingWindow
	sm    expSmoothing
	width float64
	out   *series.Map[Band]
}

// NewBollinger creates a Bollinger Bands engine with the given period and
// band width in standard deviations.
func NewBollinger(period int, width float64) *Bollinger {
	return &Bollinger{
		win:   newRollingWindow(period),
		sm:    newExpSmoothing(period),
		width: width,
		out:   series.NewMap[Band](),
	}
}

func (b *Bollinger) Kind() Kind { return KindBollinger }

// Output returns the band series for read-only consumption.
func (b *Bollinger) Output() *series.Map[Band] { return b.out }

func (b *Bollinger) Len() int { return b.out.Len() }

func (b *Bollinger) OnFinalized(c model.Candle) {
	if b.dropFinalized(c.Key) {
		return
	}
	b.ingest(c)
	b.inv.maybe()
}

func (b *Bollinger) OnRevision(c model.Candle) {
	if b.dropRevision(c.Key) {
		return
	}
	var st windowStats
	if b.isNewest(c.Key) {
		st = b.win.previewReplace(c.Close)
	} else {
		st = b.win.previewPush(c.Close)
	}
	if !st.full() {
		b.inv.maybe()
		return
	}

	// Middle band follows the EMA revision rule: base from the entry at
	// the preceding key, or the seed preview when this candle would
	// complete the seed window.
	var middle float64
	if v, ok := b.sm.previewSeed(c.Close); ok && !b.isNewest(c.Key) {
		middle = v
	} else if _, prev, ok := b.out.Before(c.Key); ok {
		middle = b.sm.next(c.Close, prev.Middle)
	} else {
		b.inv.maybe()
		return
	}

	b.out.Set(c.Key, b.band(middle, st.stdDev()))
	b.inv.maybe()
}

func (b *Bollinger) Rebuild(h History) {
	b.win.reset()
	b.sm.reset()
	b.out.Clear()
	b.resetState()
	for i := 0; i < h.Len(); i++ {
		c := h.At(i)
		if b.dropFinalized(c.Key) {
			continue
		}
		b.ingest(c)
	}
	b.inv.force()
}

func (b *Bollinger) OnStructuralChange(h History) { b.Rebuild(h) }

// Extent spans from the lowest lower band to the highest upper band.
func (b *Bollinger) Extent(from, to uint64) (lo, hi float64, ok bool) {
	b.out.Ascend(from, to, func(_ uint64, v Band) bool {
		if !ok {
			lo, hi, ok = v.Lower, v.Upper, true
			return true
		}
		if v.Lower < lo {
			lo = v.Lower
		}
		if v.Upper > hi {
			hi = v.Upper
		}
		return true
	})
	return lo, hi, ok
}

func (b *Bollinger) ingest(c model.Candle) {
	b.win.push(c.Close)
	middle, ok := b.sm.update(c.Close)
	if ok && b.win.full() {
		b.out.Set(c.Key, b.band(middle, b.win.stdDev()))
	}
	b.advance(c.Key)
}

func (b *Bollinger) band(middle, sd float64) Band {
	return Band{
		Upper:  middle + b.width*sd,
		Middle: middle,
		Lower:  middle - b.width*sd,
	}
}

package chartengine

import (
	"github.com/abhijiths101/flowsurface/internal/indicator"
	"github.com/abhijiths101/flowsurface/internal/model"
	"github.com/abhijiths101/flowsurface/internal/source"
)

// session is one chart session: its candle history and the indicator
// engines derived from it. Owned exclusively by the service's processing
// goroutine; HTTP reads hop onto that goroutine via the query channel.
type session struct {
	name string
	src  *source.Series
	set  *indicator.Set
}

func newSession(spec SessionSpec, indicators []IndicatorSpec) *session {
	engines := make([]indicator.Engine, 0, len(indicators))
	for _, is := range indicators {
		engines = append(engines, is.Build())
	}
	return &session{
		name: spec.Name,
		src:  source.NewSeries(spec.Kind),
		set:  indicator.NewSetOf(engines...),
	}
}

// applyFinalized ingests one finalized candle: the source history records
// it, then every engine appends. Returns false if the source dropped it as
// stale or out of order.
func (s *session) applyFinalized(c model.Candle) bool {
	if !s.src.Apply(c) {
		return false
	}
	s.set.ApplyFinalized(c)
	return true
}

// applyRevision previews an open-candle revision. The source history is
// not touched: only finalized candles are replayable.
func (s *session) applyRevision(c model.Candle) {
	s.set.ApplyRevision(c)
}

// rebuild replays the full source history through every engine.
func (s *session) rebuild() {
	s.set.RebuildAll(s.src)
}

// points collects the output entry at key from every engine, in the form
// published downstream. Engines whose output has no entry at key (still
// warming up) are simply absent from the result.
func (s *session) points(key uint64, live bool) []model.IndicatorPoint {
	var out []model.IndicatorPoint
	for _, e := range s.set.Engines() {
		p, ok := pointAt(e, key)
		if !ok {
			continue
		}
		p.Session = s.name
		p.Live = live
		out = append(out, p)
	}
	return out
}

// pointAt extracts a single engine's output entry at key.
func pointAt(e indicator.Engine, key uint64) (model.IndicatorPoint, bool) {
	p := model.IndicatorPoint{Indicator: e.Kind().String(), Key: key}
	switch eng := e.(type) {
	case *indicator.SMA:
		v, ok := eng.Output().Get(key)
		if !ok {
			return p, false
		}
		p.Value = v
	case *indicator.EMA:
		v, ok := eng.Output().Get(key)
		if !ok {
			return p, false
		}
		p.Value = v
	case *indicator.RSI:
		v, ok := eng.Output().Get(key)
		if !ok {
			return p, false
		}
		p.Value = v
	case *indicator.CumulativeDelta:
		v, ok := eng.Output().Get(key)
		if !ok {
			return p, false
		}
		p.Value = v
	case *indicator.Bollinger:
		b, ok := eng.Output().Get(key)
		if !ok {
			return p, false
		}
		p.Value = b.Middle
		p.Upper = b.Upper
		p.Lower = b.Lower
	default:
		return p, false
	}
	return p, true
}

// seriesEntry is one output entry in an HTTP series response.
type seriesEntry struct {
	Key   uint64  `json:"key"`
	Value float64 `json:"value"`
	Upper float64 `json:"upper,omitempty"`
	Lower float64 `json:"lower,omitempty"`
}

// seriesRange dumps an engine's output entries within [from, to].
func seriesRange(e indicator.Engine, from, to uint64) []seriesEntry {
	out := []seriesEntry{}
	switch eng := e.(type) {
	case *indicator.SMA:
		eng.Output().Ascend(from, to, func(k uint64, v float64) bool {
			out = append(out, seriesEntry{Key: k, Value: v})
			return true
		})
	case *indicator.EMA:
		eng.Output().Ascend(from, to, func(k uint64, v float64) bool {
			out = append(out, seriesEntry{Key: k, Value: v})
			return true
		})
	case *indicator.RSI:
		eng.Output().Ascend(from, to, func(k uint64, v float64) bool {
			out = append(out, seriesEntry{Key: k, Value: v})
			return true
		})
	case *indicator.CumulativeDelta:
		eng.Output().Ascend(from, to, func(k uint64, v float64) bool {
			out = append(out, seriesEntry{Key: k, Value: v})
			return true
		})
	case *indicator.Bollinger:
		eng.Output().Ascend(from, to, func(k uint64, b indicator.Band) bool {
			out = append(out, seriesEntry{Key: k, Value: b.Middle, Upper: b.Upper, Lower: b.Lower})
			return true
		})
	}
	return out
}

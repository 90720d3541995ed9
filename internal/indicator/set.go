package indicator

import "github.com/abhijiths101/flowsurface/internal/model"

// Set fans source events out to a fixed group of engines. It is the
// single entry point the service layer drives; engines never see events
// directly.
type Set struct {
	engines []Engine
}

// NewSet builds engines for the given kinds with default parameters.
func NewSet(kinds ...Kind) *Set {
	s := &Set{engines: make([]Engine, 0, len(kinds))}
	for _, k := range kinds {
		s.engines = append(s.engines, New(k))
	}
	return s
}

// NewSetOf wraps already-constructed engines, for callers that configure
// periods themselves.
func NewSetOf(engines ...Engine) *Set {
	return &Set{engines: engines}
}

// Engines returns the engines in construction order.
func (s *Set) Engines() []Engine { return s.engines }

// Lookup returns the engine of the given kind, if present.
func (s *Set) Lookup(k Kind) (Engine, bool) {
	for _, e := range s.engines {
		if e.Kind() == k {
			return e, true
		}
	}
	return nil, false
}

// SetInvalidateFunc installs the render-cache callback on every engine.
func (s *Set) SetInvalidateFunc(fn func()) {
	for _, e := range s.engines {
		e.SetInvalidateFunc(fn)
	}
}

// ApplyFinalized ingests a batch of newly-finalized candles in order.
func (s *Set) ApplyFinalized(candles ...model.Candle) {
	for _, e := range s.engines {
		for _, c := range candles {
			e.OnFinalized(c)
		}
	}
}

// ApplyRevision applies one open-candle revision.
func (s *Set) ApplyRevision(c model.Candle) {
	for _, e := range s.engines {
		e.OnRevision(c)
	}
}

// ApplyUpdate reconciles a trade-driven source update against the previous
// source length. Position-keyed sources cannot tell "new candle" from
// "revised candle" by key alone, so the event carries the old length:
// everything between the previously-open candle and the new tail has
// closed and is finalized; the new tail is delivered as a revision.
func (s *Set) ApplyUpdate(h History, oldLen int) {
	n := h.Len()
	if n == 0 {
		return
	}
	start := oldLen - 1
	if start < 0 {
		start = 0
	}
	for i := start; i < n-1; i++ {
		c := h.At(i)
		for _, e := range s.engines {
			e.OnFinalized(c)
		}
	}
	s.ApplyRevision(h.At(n - 1))
}

// RebuildAll clears and replays every engine from h.
func (s *Set) RebuildAll(h History) {
	for _, e := range s.engines {
		e.Rebuild(h)
	}
}

// StructuralChange handles a ticksize or basis change: a full rebuild.
func (s *Set) StructuralChange(h History) {
	for _, e := range s.engines {
		e.OnStructuralChange(h)
	}
}

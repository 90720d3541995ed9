// Package source models the ordered candle history a chart session is
// built from: either a time-keyed series (keys are timestamps, strictly
// increasing but possibly irregular) or a tick-keyed series (keys are
// dense 0-based positions).
//
// The series is append-mostly: only the last entry — the open candle —
// may be mutated in place before it is finalized. It satisfies
// indicator.History so engines can replay it on rebuild.
package source

import "github.com/abhijiths101/flowsurface/internal/model"

// Kind selects the keying scheme. Fixed per chart session.
type Kind int

const (
	TimeBased Kind = iota
	TickBased
)

func (k Kind) String() string {
	if k == TickBased {
		return "tick"
	}
	return "time"
}

// Series is an ordered candle history with strictly increasing keys.
type Series struct {
	kind    Kind
	candles []model.Candle
}

// NewSeries creates an empty series of the given kind.
func NewSeries(kind Kind) *Series {
	return &Series{kind: kind}
}

func (s *Series) Kind() Kind { return s.kind }

func (s *Series) Len() int { return len(s.candles) }

// At returns the candle at position i.
func (s *Series) At(i int) model.Candle { return s.candles[i] }

// Last returns the newest candle, the open one while the bucket is forming.
func (s *Series) Last() (model.Candle, bool) {
	if len(s.candles) == 0 {
		return model.Candle{}, false
	}
	return s.candles[len(s.candles)-1], true
}

// Apply upserts a candle and reports whether the series grew.
//
// A candle keyed at the current tail revises the open candle in place; a
// greater key appends. Keys behind the tail are dropped — out-of-order
// input never corrupts the series. Tick-based series additionally require
// dense keys: an append whose key skips positions is dropped.
func (s *Series) Apply(c model.Candle) bool {
	n := len(s.candles)
	if n == 0 {
		if s.kind == TickBased && c.Key != 0 {
			return false
		}
		s.candles = append(s.candles, c)
		return true
	}

	last := s.candles[n-1].Key
	switch {
	case c.Key == last:
		s.candles[n-1] = c
		return false
	case c.Key < last:
		return false // stale
	}
	if s.kind == TickBased && c.Key != uint64(n) {
		return false // gap in position keys
	}
	s.candles = append(s.candles, c)
	return true
}

// Clear drops all candles, keeping allocated capacity. Used when the
// ticksize or aggregation basis changes and history is re-fetched.
func (s *Series) Clear() {
	s.candles = s.candles[:0]
}

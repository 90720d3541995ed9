// Package indicator provides incrementally-updated technical indicators
// over candle data.
//
// Each engine owns its accumulator state plus an ordered output series and
// implements the same lifecycle: a full rebuild that replays history, an
// append path for newly-finalized candles, and a revision path for the
// still-open candle. All paths are O(1) amortized per event; only Rebuild
// touches full history. Out-of-order and duplicate input is dropped, never
// an error.
package indicator

import (
	"fmt"

	"github.com/abhijiths101/flowsurface/internal/model"
)

// Default periods, matching the chart defaults.
const (
	DefaultSMAPeriod       = 50
	DefaultEMAPeriod       = 20
	DefaultBollingerPeriod = 20
	DefaultBollingerWidth  = 2.0
	DefaultRSIPeriod       = 14
)

// Kind identifies one of the supported indicators. The set is closed:
// engines are selected at construction, there is no plugin mechanism.
type Kind int

const (
	KindSMA Kind = iota
	KindEMA
	KindBollinger
	KindRSI
	KindCumulativeDelta
)

// Kinds lists every supported indicator kind.
var Kinds = []Kind{KindSMA, KindEMA, KindBollinger, KindRSI, KindCumulativeDelta}

func (k Kind) String() string {
	switch k {
	case KindSMA:
		return "sma"
	case KindEMA:
		return "ema"
	case KindBollinger:
		return "bollinger"
	case KindRSI:
		return "rsi"
	case KindCumulativeDelta:
		return "cumdelta"
	}
	return "unknown"
}

// ParseKind parses the string form produced by Kind.String.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown indicator kind %q", s)
}

// History is an ordered, replayable view of candle history. Keys must be
// strictly increasing by position. Rebuilds replay it front to back.
type History interface {
	Len() int
	At(i int) model.Candle
}

// Engine is the common lifecycle contract every indicator implements.
//
// The caller drives an engine from a single goroutine; no method blocks.
// lastProcessed advances only on accepted finalized candles:
//
//   - OnFinalized drops any candle with key <= lastProcessed.
//   - OnRevision drops any candle with key < lastProcessed; a revision at
//     exactly lastProcessed revises the already-ingested newest candle,
//     one at a greater key previews the still-forming candle. Revisions
//     never mutate finalized accumulator state, so repeating the same
//     revision yields the same output entry.
type Engine interface {
	Kind() Kind

	// Rebuild clears all state and replays h through the finalized path.
	// Deterministic and idempotent: the result is identical to having
	// received every candle once via OnFinalized.
	Rebuild(h History)

	// OnFinalized ingests a newly-finalized candle.
	OnFinalized(c model.Candle)

	// OnRevision recomputes the newest output entry as if the revised
	// candle were final, without advancing finalized state.
	OnRevision(c model.Candle)

	// OnStructuralChange handles a ticksize or aggregation-basis change,
	// which invalidates every derived value: equivalent to Rebuild.
	OnStructuralChange(h History)

	// Extent reports the min/max output value within [from, to], for
	// axis scaling. A pure read; ok is false if the range is empty.
	Extent(from, to uint64) (lo, hi float64, ok bool)

	// Len returns the number of output entries.
	Len() int

	// SetInvalidateFunc installs the render-cache invalidation callback.
	SetInvalidateFunc(fn func())
}

// New constructs an engine of the given kind with its default parameters.
func New(k Kind) Engine {
	switch k {
	case KindSMA:
		return NewSMA(DefaultSMAPeriod)
	case KindEMA:
		return NewEMA(DefaultEMAPeriod)
	case KindBollinger:
		return NewBollinger(DefaultBollingerPeriod, DefaultBollingerWidth)
	case KindRSI:
		return NewRSI(DefaultRSIPeriod)
	case KindCumulativeDelta:
		return NewCumulativeDelta()
	}
	panic(fmt.Sprintf("indicator: unknown kind %d", k))
}

// engineState carries the bookkeeping shared by every engine: the dedup
// watermark and the render-cache invalidation throttle.
type engineState struct {
	lastKey uint64
	seen    bool
	inv     invalidator
}

// dropFinalized reports whether a finalized candle is a duplicate or
// out-of-order arrival.
func (s *engineState) dropFinalized(key uint64) bool {
	return s.seen && key <= s.lastKey
}

// dropRevision reports whether a revision targets an already-superseded key.
func (s *engineState) dropRevision(key uint64) bool {
	return s.seen && key < s.lastKey
}

// isNewest reports whether key revises the last ingested candle in place.
func (s *engineState) isNewest(key uint64) bool {
	return s.seen && key == s.lastKey
}

func (s *engineState) advance(key uint64) {
	s.lastKey = key
	s.seen = true
}

func (s *engineState) resetState() {
	s.lastKey = 0
	s.seen = false
}

// SetInvalidateFunc installs the render-cache invalidation callback.
func (s *engineState) SetInvalidateFunc(fn func()) {
	s.inv.fn = fn
}

package indicator

import "time"

// DefaultInvalidateInterval is the minimum spacing between throttled
// render-cache invalidations. Trade-driven revisions can arrive far faster
// than a redraw is useful; the output series itself is always immediately
// consistent, only the callback is throttled.
const DefaultInvalidateInterval = 200 * time.Millisecond

// invalidator gates the render-cache invalidation callback. Structural
// events (rebuilds) force it; high-frequency events go through maybe,
// which fires at most once per interval.
type invalidator struct {
	fn       func()
	interval time.Duration
	now      func() time.Time // overridable in tests
	last     time.Time
}

func (iv *invalidator) clock() time.Time {
	if iv.now != nil {
		return iv.now()
	}
	return time.Now()
}

func (iv *invalidator) minInterval() time.Duration {
	if iv.interval > 0 {
		return iv.interval
	}
	return DefaultInvalidateInterval
}

// maybe invalidates if enough wall-clock time has passed since the last
// invalidation.
func (iv *invalidator) maybe() {
	if iv.fn == nil {
		return
	}
	now := iv.clock()
	if now.Sub(iv.last) >= iv.minInterval() {
		iv.fn()
		iv.last = now
	}
}

// force invalidates unconditionally and resets the throttle window.
func (iv *invalidator) force() {
	if iv.fn == nil {
		return
	}
	iv.fn()
	iv.last = iv.clock()
}

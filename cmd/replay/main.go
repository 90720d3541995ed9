// cmd/replay replays stored candle history through a fresh set of indicator
// engines and prints the resulting values. Useful for validating indicator
// output offline, without Redis or a live feed.
//
// Usage:
//
//	go run ./cmd/replay --db=data/candles.db --session=btcusdt@60s --tail=5
package main

import (
	"flag"
	"fmt"
	"log"
	"math"

	"github.com/abhijiths101/flowsurface/internal/chartengine"
	"github.com/abhijiths101/flowsurface/internal/indicator"
	sqlitestore "github.com/abhijiths101/flowsurface/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	dbPath := flag.String("db", "data/candles.db", "Path to SQLite database")
	session := flag.String("session", "", "Session to replay (empty: list stored sessions)")
	indicatorCfg := flag.String("indicators", "", "Indicator specs: KIND:PERIOD,... (default: all with defaults)")
	tail := flag.Int("tail", 5, "Number of trailing entries to print per indicator")
	flag.Parse()

	reader, err := sqlitestore.NewReader(*dbPath)
	if err != nil {
		log.Fatalf("[replay] sqlite open failed: %v", err)
	}
	defer reader.Close()

	if *session == "" {
		sessions, err := reader.Sessions()
		if err != nil {
			log.Fatalf("[replay] list sessions: %v", err)
		}
		if len(sessions) == 0 {
			log.Println("[replay] no stored sessions")
			return
		}
		for _, s := range sessions {
			fmt.Println(s)
		}
		return
	}

	candles, err := reader.ReadCandles(*session, 0)
	if err != nil {
		log.Fatalf("[replay] read candles: %v", err)
	}
	if len(candles) == 0 {
		log.Fatalf("[replay] no candles stored for session %q", *session)
	}
	log.Printf("[replay] replaying %d candles for %s", len(candles), *session)

	specs := chartengine.ParseIndicatorSpecs(*indicatorCfg)
	engines := make([]indicator.Engine, 0, len(specs))
	for _, spec := range specs {
		engines = append(engines, spec.Build())
	}
	set := indicator.NewSetOf(engines...)
	set.ApplyFinalized(candles...)

	for _, e := range set.Engines() {
		fmt.Printf("%s: %d entries\n", e.Kind(), e.Len())
		if lo, hi, ok := e.Extent(0, math.MaxUint64); ok {
			fmt.Printf("  extent: [%.6f, %.6f]\n", lo, hi)
		}
		printTail(e, *tail)
	}
}

// printTail prints the last n output entries of an engine.
func printTail(e indicator.Engine, n int) {
	type entry struct {
		key               uint64
		val, upper, lower float64
		band              bool
	}
	var entries []entry

	switch eng := e.(type) {
	case *indicator.SMA:
		eng.Output().Ascend(0, math.MaxUint64, func(k uint64, v float64) bool {
			entries = append(entries, entry{key: k, val: v})
			return true
		})
	case *indicator.EMA:
		eng.Output().Ascend(0, math.MaxUint64, func(k uint64, v float64) bool {
			entries = append(entries, entry{key: k, val: v})
			return true
		})
	case *indicator.RSI:
		eng.Output().Ascend(0, math.MaxUint64, func(k uint64, v float64) bool {
			entries = append(entries, entry{key: k, val: v})
			return true
		})
	case *indicator.CumulativeDelta:
		eng.Output().Ascend(0, math.MaxUint64, func(k uint64, v float64) bool {
			entries = append(entries, entry{key: k, val: v})
			return true
		})
	case *indicator.Bollinger:
		eng.Output().Ascend(0, math.MaxUint64, func(k uint64, b indicator.Band) bool {
			entries = append(entries, entry{key: k, val: b.Middle, upper: b.Upper, lower: b.Lower, band: true})
			return true
		})
	}

	start := len(entries) - n
	if start < 0 {
		start = 0
	}
	for _, en := range entries[start:] {
		if en.band {
			fmt.Printf("  %d: middle=%.6f upper=%.6f lower=%.6f\n", en.key, en.val, en.upper, en.lower)
		} else {
			fmt.Printf("  %d: %.6f\n", en.key, en.val)
		}
	}
}

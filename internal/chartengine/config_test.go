package chartengine

import (
	"testing"

	"github.com/abhijiths101/flowsurface/internal/indicator"
	"github.com/abhijiths101/flowsurface/internal/source"
)

func TestParseIndicatorSpecs_Defaults(t *testing.T) {
	specs := ParseIndicatorSpecs("")
	if len(specs) != 5 {
		t.Fatalf("expected 5 default specs, got %d", len(specs))
	}
	if specs[0].Kind != indicator.KindSMA || specs[0].Period != indicator.DefaultSMAPeriod {
		t.Errorf("unexpected first default spec: %+v", specs[0])
	}
}

func TestParseIndicatorSpecs_Custom(t *testing.T) {
	specs := ParseIndicatorSpecs("sma:9, ema:21, bollinger:20:2.5, rsi:14, cumdelta")
	if len(specs) != 5 {
		t.Fatalf("expected 5 specs, got %d", len(specs))
	}

	if specs[0].Kind != indicator.KindSMA || specs[0].Period != 9 {
		t.Errorf("sma spec: %+v", specs[0])
	}
	if specs[1].Kind != indicator.KindEMA || specs[1].Period != 21 {
		t.Errorf("ema spec: %+v", specs[1])
	}
	if specs[2].Kind != indicator.KindBollinger || specs[2].Period != 20 || specs[2].Width != 2.5 {
		t.Errorf("bollinger spec: %+v", specs[2])
	}
	if specs[3].Kind != indicator.KindRSI || specs[3].Period != 14 {
		t.Errorf("rsi spec: %+v", specs[3])
	}
	if specs[4].Kind != indicator.KindCumulativeDelta {
		t.Errorf("cumdelta spec: %+v", specs[4])
	}
}

func TestParseIndicatorSpecs_InvalidSkipped(t *testing.T) {
	specs := ParseIndicatorSpecs("sma:0,vwap:14,ema:-3,rsi:7")
	if len(specs) != 1 {
		t.Fatalf("expected 1 valid spec, got %d (%+v)", len(specs), specs)
	}
	if specs[0].Kind != indicator.KindRSI || specs[0].Period != 7 {
		t.Errorf("surviving spec: %+v", specs[0])
	}
}

func TestParseIndicatorSpecs_AllInvalidFallsBack(t *testing.T) {
	specs := ParseIndicatorSpecs("vwap:14,macd:12")
	if len(specs) != 5 {
		t.Fatalf("expected defaults (5 specs), got %d", len(specs))
	}
}

func TestParseSessions(t *testing.T) {
	specs := ParseSessions("btcusdt@60s, ethusdt@100t, solusdt@300s")
	if len(specs) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(specs))
	}
	if specs[0].Name != "btcusdt@60s" || specs[0].Kind != source.TimeBased {
		t.Errorf("session 0: %+v", specs[0])
	}
	if specs[1].Name != "ethusdt@100t" || specs[1].Kind != source.TickBased {
		t.Errorf("session 1: %+v", specs[1])
	}
	if specs[2].Kind != source.TimeBased {
		t.Errorf("session 2: %+v", specs[2])
	}
}

func TestIndicatorSpecBuild(t *testing.T) {
	for _, spec := range ParseIndicatorSpecs("") {
		e := spec.Build()
		if e == nil {
			t.Fatalf("Build returned nil for %v", spec.Kind)
		}
		if e.Kind() != spec.Kind {
			t.Errorf("Build kind mismatch: got %v, want %v", e.Kind(), spec.Kind)
		}
	}
}

package chartengine

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/abhijiths101/flowsurface/internal/indicator"
	"github.com/abhijiths101/flowsurface/internal/source"
)

// IndicatorSpec is one configured indicator instance.
type IndicatorSpec struct {
	Kind   indicator.Kind
	Period int
	Width  float64 // Bollinger only
}

// Build constructs the engine for this spec.
func (s IndicatorSpec) Build() indicator.Engine {
	switch s.Kind {
	case indicator.KindSMA:
		return indicator.NewSMA(s.Period)
	case indicator.KindEMA:
		return indicator.NewEMA(s.Period)
	case indicator.KindBollinger:
		return indicator.NewBollinger(s.Period, s.Width)
	case indicator.KindRSI:
		return indicator.NewRSI(s.Period)
	case indicator.KindCumulativeDelta:
		return indicator.NewCumulativeDelta()
	}
	return indicator.New(s.Kind)
}

// SessionSpec names one chart session: a market plus an aggregation basis,
// e.g. "btcusdt@60s" (time candles) or "btcusdt@100t" (tick candles).
type SessionSpec struct {
	Name string
	Kind source.Kind
}

// Config holds all env-parsed configuration for the chart engine service.
type Config struct {
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	ConsumerGroup string
	ConsumerName  string
	HTTPAddr      string
	MetricsAddr   string

	// FeedURL, when set, streams candles over WebSocket instead of Redis.
	FeedURL  string
	RingSize int

	Sessions   []SessionSpec
	Indicators []IndicatorSpec
}

// LoadConfig reads all environment variables and returns a Config.
func LoadConfig() Config {
	ringSize, _ := strconv.Atoi(getEnv("RING_SIZE", "4096"))
	if ringSize <= 0 {
		ringSize = 4096
	}

	return Config{
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/candles.db"),
		ConsumerGroup: getEnv("CONSUMER_GROUP", "chartd"),
		ConsumerName:  getEnv("CONSUMER_NAME", "worker-1"),
		HTTPAddr:      getEnv("CHARTD_HTTP_ADDR", ":9095"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9100"),
		FeedURL:       getEnv("FEED_URL", ""),
		RingSize:      ringSize,
		Sessions:      ParseSessions(getEnv("SESSIONS", "btcusdt@60s")),
		Indicators:    ParseIndicatorSpecs(getEnv("INDICATORS", "")),
	}
}

// ParseSessions parses "market@basis,market@basis,...". A basis ending in
// "t" selects tick-based candles; anything else is time-based.
func ParseSessions(s string) []SessionSpec {
	var specs []SessionSpec
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kind := source.TimeBased
		if i := strings.IndexByte(part, '@'); i >= 0 && strings.HasSuffix(part[i+1:], "t") {
			kind = source.TickBased
		}
		specs = append(specs, SessionSpec{Name: part, Kind: kind})
	}
	return specs
}

// ParseIndicatorSpecs parses "KIND:PERIOD,..." into []IndicatorSpec.
// Example: "sma:50,ema:20,bollinger:20:2.0,rsi:14,cumdelta"
// Returns one instance of every indicator with default parameters if the
// input is empty.
func ParseIndicatorSpecs(s string) []IndicatorSpec {
	if s == "" {
		return []IndicatorSpec{
			{Kind: indicator.KindSMA, Period: indicator.DefaultSMAPeriod},
			{Kind: indicator.KindEMA, Period: indicator.DefaultEMAPeriod},
			{Kind: indicator.KindBollinger, Period: indicator.DefaultBollingerPeriod, Width: indicator.DefaultBollingerWidth},
			{Kind: indicator.KindRSI, Period: indicator.DefaultRSIPeriod},
			{Kind: indicator.KindCumulativeDelta},
		}
	}

	var specs []IndicatorSpec
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		tokens := strings.Split(part, ":")
		kind, err := indicator.ParseKind(strings.ToLower(strings.TrimSpace(tokens[0])))
		if err != nil {
			log.Printf("[chartengine] skipping invalid indicator spec: %q", part)
			continue
		}

		spec := IndicatorSpec{Kind: kind}
		switch kind {
		case indicator.KindSMA:
			spec.Period = indicator.DefaultSMAPeriod
		case indicator.KindEMA:
			spec.Period = indicator.DefaultEMAPeriod
		case indicator.KindBollinger:
			spec.Period = indicator.DefaultBollingerPeriod
			spec.Width = indicator.DefaultBollingerWidth
		case indicator.KindRSI:
			spec.Period = indicator.DefaultRSIPeriod
		}

		if len(tokens) > 1 && kind != indicator.KindCumulativeDelta {
			period, err := strconv.Atoi(strings.TrimSpace(tokens[1]))
			if err != nil || period <= 0 {
				log.Printf("[chartengine] skipping invalid indicator spec: %q", part)
				continue
			}
			spec.Period = period
		}
		if len(tokens) > 2 && kind == indicator.KindBollinger {
			width, err := strconv.ParseFloat(strings.TrimSpace(tokens[2]), 64)
			if err != nil || width <= 0 {
				log.Printf("[chartengine] skipping invalid indicator spec: %q", part)
				continue
			}
			spec.Width = width
		}
		specs = append(specs, spec)
	}
	if len(specs) == 0 {
		log.Println("[chartengine] WARNING: no valid indicators parsed, using defaults")
		return ParseIndicatorSpecs("")
	}
	log.Printf("[chartengine] loaded %d indicator specs from INDICATORS", len(specs))
	return specs
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

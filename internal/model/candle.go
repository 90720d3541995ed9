// Package model defines the wire types shared by the candle source,
// the indicator engines, and the service layer.
package model

import "encoding/json"

// Candle is one OHLCV bar with volume split by aggressor side.
//
// Key is a millisecond timestamp for time-based sources and a dense
// 0-based position for tick-based sources. Open/High/Low are carried
// for completeness; the indicator engines only read Close and the two
// volume fields.
type Candle struct {
	Key        uint64  `json:"key"`
	Open       float64 `json:"open"`
	High       float64 `json:"high"`
	Low        float64 `json:"low"`
	Close      float64 `json:"close"`
	BuyVolume  float64 `json:"buy_volume"`
	SellVolume float64 `json:"sell_volume"`

	// Forming marks the still-open candle in feed messages. A forming
	// candle is delivered as a revision; the same key arrives once more
	// with Forming=false when the bucket closes.
	Forming bool `json:"forming,omitempty"`
}

// Delta returns the per-candle volume delta (buy minus sell).
func (c Candle) Delta() float64 {
	return c.BuyVolume - c.SellVolume
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// IndicatorPoint is one computed output value published downstream.
// Upper/Lower are only set for band indicators.
type IndicatorPoint struct {
	Indicator string  `json:"indicator"` // e.g. "sma", "bollinger"
	Session   string  `json:"session"`
	Key       uint64  `json:"key"`
	Value     float64 `json:"value"` // scalar value, or middle band
	Upper     float64 `json:"upper,omitempty"`
	Lower     float64 `json:"lower,omitempty"`
	Live      bool    `json:"live,omitempty"` // true for open-candle revisions
}

// StreamKey returns the Redis stream key: "ind:{indicator}:{session}".
func (p *IndicatorPoint) StreamKey() string {
	return "ind:" + p.Indicator + ":" + p.Session
}

// PubSubChannel returns the Redis pubsub channel for live subscribers:
// "pub:ind:{indicator}:{session}".
func (p *IndicatorPoint) PubSubChannel() string {
	return "pub:ind:" + p.Indicator + ":" + p.Session
}

// JSON returns the JSON-encoded point.
func (p *IndicatorPoint) JSON() []byte {
	b, _ := json.Marshal(p)
	return b
}

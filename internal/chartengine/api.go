package chartengine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/abhijiths101/flowsurface/internal/indicator"
	"github.com/abhijiths101/flowsurface/internal/logger"
)

// startHTTP launches the HTTP API server.
func (svc *Service) startHTTP(ctx context.Context) {
	go func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintf(w, "ok")
		})
		mux.HandleFunc("/indicators", svc.handleIndicators)
		mux.HandleFunc("/series", svc.handleSeries)
		mux.HandleFunc("/extent", svc.handleExtent)
		mux.HandleFunc("/rebuild", svc.handleRebuild)
		log.Printf("[chartengine] HTTP server on %s (/indicators, /series, /extent, /rebuild, /healthz)", svc.cfg.HTTPAddr)
		if err := http.ListenAndServe(svc.cfg.HTTPAddr, mux); err != nil {
			log.Printf("[chartengine] HTTP server error: %v", err)
		}
	}()
}

// handleIndicators lists sessions, their configured indicators, and the
// current render-cache version.
func (svc *Service) handleIndicators(w http.ResponseWriter, r *http.Request) {
	type sessionInfo struct {
		Session    string         `json:"session"`
		Kind       string         `json:"kind"`
		Candles    int            `json:"candles"`
		Indicators map[string]int `json:"indicators"` // kind -> output entries
	}
	var out []sessionInfo

	err := svc.onEngine(r.Context(), func() {
		for _, name := range svc.order {
			sess := svc.sessions[name]
			info := sessionInfo{
				Session:    name,
				Kind:       sess.src.Kind().String(),
				Candles:    sess.src.Len(),
				Indicators: make(map[string]int),
			}
			for _, e := range sess.set.Engines() {
				info.Indicators[e.Kind().String()] = e.Len()
			}
			out = append(out, info)
		}
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"render_version": svc.renderVersion.Load(),
		"sessions":       out,
	})
}

// handleSeries returns an indicator's output entries within a key range.
// GET /series?session=btcusdt@60s&indicator=sma&from=0&to=...
func (svc *Service) handleSeries(w http.ResponseWriter, r *http.Request) {
	sess, eng, ok := svc.lookupTarget(w, r)
	if !ok {
		return
	}
	from, to := parseRange(r)

	var entries []seriesEntry
	err := svc.onEngine(r.Context(), func() {
		entries = seriesRange(eng, from, to)
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"session":   sess.name,
		"indicator": eng.Kind().String(),
		"entries":   entries,
	})
}

// handleExtent returns the min/max output value within a key range, for
// axis scaling. Responds 404 if the range holds no entries.
func (svc *Service) handleExtent(w http.ResponseWriter, r *http.Request) {
	sess, eng, ok := svc.lookupTarget(w, r)
	if !ok {
		return
	}
	from, to := parseRange(r)

	var (
		lo, hi  float64
		present bool
	)
	err := svc.onEngine(r.Context(), func() {
		lo, hi, present = eng.Extent(from, to)
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	if !present {
		http.Error(w, "no entries in range", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"session":   sess.name,
		"indicator": eng.Kind().String(),
		"min":       lo,
		"max":       hi,
	})
}

// handleRebuild handles POST /rebuild?session=... — a forced full replay of
// the session's history through every engine.
func (svc *Service) handleRebuild(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	name := r.URL.Query().Get("session")
	sess, ok := svc.sessions[name]
	if !ok {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}

	ctx := logger.WithSessionID(r.Context(), name)

	var candles int
	start := time.Now()
	err := svc.onEngine(ctx, func() {
		sess.rebuild()
		candles = sess.src.Len()
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	svc.prom.Rebuilds.WithLabelValues("request").Inc()
	svc.prom.RebuildDur.Observe(time.Since(start).Seconds())
	svc.prom.InvalidationsForced.Inc()

	attrs := []any{slog.Int("candles", candles), slog.Duration("took", time.Since(start))}
	slog.Info("rebuild requested", append(attrs, logger.LogWithSession(ctx)...)...)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"session": name,
		"candles": candles,
		"took":    time.Since(start).String(),
	})
}

// lookupTarget resolves the session and indicator named in the query. The
// session map itself is immutable after New, so reading it here is safe.
func (svc *Service) lookupTarget(w http.ResponseWriter, r *http.Request) (*session, indicator.Engine, bool) {
	name := r.URL.Query().Get("session")
	sess, ok := svc.sessions[name]
	if !ok {
		http.Error(w, "unknown session", http.StatusNotFound)
		return nil, nil, false
	}

	kind, err := indicator.ParseKind(r.URL.Query().Get("indicator"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, nil, false
	}
	eng, ok := sess.set.Lookup(kind)
	if !ok {
		http.Error(w, "indicator not configured", http.StatusNotFound)
		return nil, nil, false
	}
	return sess, eng, true
}

func parseRange(r *http.Request) (from, to uint64) {
	from, _ = strconv.ParseUint(r.URL.Query().Get("from"), 10, 64)
	to = uint64(math.MaxUint64)
	if s := r.URL.Query().Get("to"); s != "" {
		if v, err := strconv.ParseUint(s, 10, 64); err == nil {
			to = v
		}
	}
	return from, to
}

package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
)

// GET /api/analytics/kpis?timeRange=1h|6h|1d|1w|1m
func serveKPI(w http.ResponseWriter, r *http.Request) {
	rangeParam := r.URL.Query().Get("timeRange")
	var dur time.Duration
	switch rangeParam {
	case "1h":
		dur = time.Hour
	case "6h":
		dur = 6 * time.Hour
	case "1d":
		dur = 24 * time.Hour
	case "1w":
		dur = 7 * 24 * time.Hour
	case "1m":
		dur = 30 * 24 * time.Hour
	default:
		rangeParam = "1h"
		dur = time.Hour
	}
	agg, trend := aggregateKPIs(dur)
	resp := map[string]interface{}{
		"timeRange": rangeParam,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"kpis": map[string]interface{}{
			"blockUtilization": agg.blockUtilization,
			"openRequests":     agg.openRequests,
			"grantsPerMinute":  agg.grantsPerMinute,
			"advisoryOpen":     agg.advisoryOpen,
		},
		"trends": map[string]interface{}{
			"blockUtilization": map[string]interface{}{"change": trend.blockUtilization, "direction": trendDirection(trend.blockUtilization)},
			"openRequests":     map[string]interface{}{"change": trend.openRequests, "direction": trendDirection(float64(trend.openRequests))},
			"grantsPerMinute":  map[string]interface{}{"change": trend.grantsPerMinute, "direction": trendDirection(trend.grantsPerMinute)},
			"advisoryOpen":     map[string]interface{}{"change": trend.advisoryOpen, "direction": trendDirection(float64(-trend.advisoryOpen))},
		},
	}
	writeJSON(w, resp)
}

func trendDirection(v float64) string {
	if v >= 0 {
		return "UP"
	}
	return "DOWN"
}

// GET /api/analytics/historical?metric=&period=
func serveKPIHistorical(w http.ResponseWriter, r *http.Request) {
	metric := r.URL.Query().Get("metric")
	period := r.URL.Query().Get("period")
	if period == "" {
		period = "hourly"
	}
	metrics.mu.RLock()
	snaps := append([]kpiSnapshot{}, metrics.snapshots...)
	metrics.mu.RUnlock()

	series := []map[string]interface{}{}
	for _, s := range snaps {
		v := 0.0
		switch metric {
		case "openRequests":
			v = float64(s.openRequests)
		case "grantsPerMinute":
			v = s.grantsPerMinute
		case "advisoryOpen":
			v = float64(s.advisoryOpen)
		default:
			v = s.blockUtilization
		}
		series = append(series, map[string]interface{}{"t": s.ts.Format(time.RFC3339), "v": v})
	}
	writeJSON(w, map[string]interface{}{"metric": metric, "period": period, "series": series})
}

// GET /api/suggestions
func serveSuggestions(w http.ResponseWriter, r *http.Request) {
	if advisoryEngine == nil {
		http.Error(w, "advisory engine not initialized", http.StatusServiceUnavailable)
		return
	}
	if r.URL.Query().Get("recompute") == "1" {
		advisoryEngine.Recompute()
	}
	writeJSON(w, advisoryEngine.Current())
}

// POST /api/suggestions/{id}/reject {"minutes": N}
func serveSuggestionReject(w http.ResponseWriter, r *http.Request) {
	if advisoryEngine == nil {
		http.Error(w, "advisory engine not initialized", http.StatusServiceUnavailable)
		return
	}
	id := mux.Vars(r)["id"]
	var body struct {
		Minutes int `json:"minutes"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	if body.Minutes <= 0 {
		body.Minutes = 5
	}
	advisoryEngine.Reject(id, time.Duration(body.Minutes)*time.Minute)
	advisoryEngine.Recompute()
	writeJSON(w, map[string]interface{}{"status": "OK"})
}

// GET /api/audit/logs?sinceId=123&limit=200
func serveAuditLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var sinceID int64
	if sinceParam := q.Get("sinceId"); sinceParam != "" {
		v, err := strconv.ParseInt(sinceParam, 10, 64)
		if err != nil {
			http.Error(w, "bad sinceId", http.StatusBadRequest)
			return
		}
		sinceID = v
	}
	limit := 200
	if l, err := strconv.Atoi(q.Get("limit")); err == nil && l > 0 && l <= 1000 {
		limit = l
	}
	writeJSON(w, map[string]interface{}{"items": audits.getSince(sinceID, limit)})
}

// GET /api/audit/stream (Server-Sent Events)
func serveAuditStream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	ch := audits.subscribe()
	defer audits.unsubscribe(ch)

	_, _ = w.Write([]byte(":ok\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(25 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write([]byte("event: audit\ndata: "))
			_ = json.NewEncoder(w).Encode(e)
			_, _ = w.Write([]byte("\n"))
			flusher.Flush()
		case <-r.Context().Done():
			return
		case <-ticker.C:
			_, _ = w.Write([]byte(":hb\n\n"))
			flusher.Flush()
		}
	}
}

package http

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

// handleReady checks templates and the ledger backend.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]interface{})

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	ledger := s.controller.Ledger()
	if err := ledger.Ready(ctx); err != nil {
		checks["ledger"] = fmt.Sprintf("failed: %v", err)
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["ledger"] = "ok"
	}

	stats := ledger.Stats()
	checks["cache"] = map[string]interface{}{
		"version":         stats.Version,
		"summary_entries": stats.Results.Entries,
		"status":          "ok",
	}
	checks["rate_limiter"] = map[string]interface{}{
		"active_clients": s.rateLimiter.ActiveClients(),
		"status":         "ok",
	}

	writeJSON(w, httpStatus, map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	traceMetrics := s.traceMiddleware.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	securityMetrics := s.securityDetector.GetMetrics()
	ledger := s.controller.Ledger().Stats()

	w.WriteHeader(http.StatusOK)

	metric := func(name, help, kind string, samples ...string) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s %s\n", name, kind)
		for _, sample := range samples {
			fmt.Fprintf(w, "%s%s\n", name, sample)
		}
		fmt.Fprintln(w)
	}

	metric("http_requests_total", "Total number of HTTP requests", "counter",
		fmt.Sprintf(" %d", traceMetrics.TotalRequests))
	metric("http_request_errors_total", "HTTP responses with an error status", "counter",
		fmt.Sprintf(`{class="4xx"} %d`, traceMetrics.ClientErrors),
		fmt.Sprintf(`{class="5xx"} %d`, traceMetrics.ServerErrors))
	metric("http_requests_in_flight", "Requests currently being served", "gauge",
		fmt.Sprintf(" %d", traceMetrics.InFlight))
	metric("http_request_duration_average_microseconds", "Average request duration", "gauge",
		fmt.Sprintf(" %d", traceMetrics.AverageResponseTime))

	metric("ledger_write_counter", "Successful ledger appends since start", "counter",
		fmt.Sprintf(" %d", ledger.Version))
	metric("analytics_cache_hits_total", "Analytics cache hits", "counter",
		fmt.Sprintf(`{cache="summary"} %d`, ledger.Results.Hits),
		fmt.Sprintf(`{cache="rows"} %d`, ledger.Rows.Hits))
	metric("analytics_cache_misses_total", "Analytics cache misses", "counter",
		fmt.Sprintf(`{cache="summary"} %d`, ledger.Results.Misses),
		fmt.Sprintf(`{cache="rows"} %d`, ledger.Rows.Misses))
	metric("analytics_cache_invalidations_total", "Analytics cache invalidations", "counter",
		fmt.Sprintf(`{cache="summary"} %d`, ledger.Results.Invalidations))
	metric("analytics_cache_entries", "Current analytics cache entries", "gauge",
		fmt.Sprintf(`{cache="summary"} %d`, ledger.Results.Entries),
		fmt.Sprintf(`{cache="rows"} %d`, ledger.Rows.Entries))

	metric("chat_sessions", "Live conversation sessions", "gauge",
		fmt.Sprintf(" %d", s.sessions.Len()))

	metric("rate_limit_hits_total", "Total rate limit hits", "counter",
		fmt.Sprintf(" %d", rateLimitMetrics.TotalHits))
	metric("active_rate_limit_clients", "Currently tracked rate limit clients", "gauge",
		fmt.Sprintf(" %d", rateLimitMetrics.ClientCount))
	metric("suspicious_requests_total", "Total suspicious requests detected", "counter",
		fmt.Sprintf(" %d", securityMetrics.SuspiciousRequests))

	metric("uptime_seconds", "Application uptime in seconds", "gauge",
		fmt.Sprintf(" %.0f", time.Since(s.started).Seconds()))
}

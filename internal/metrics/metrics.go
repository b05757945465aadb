package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "slash_http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slash_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "slash_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	// AuditEntries counts audit entries by outcome: written, failed or dropped.
	AuditEntries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slash_audit_entries_total",
			Help: "Audit entries by persistence outcome.",
		},
		[]string{"result"},
	)

	// SessionEvents counts exchange, refresh and logout outcomes.
	SessionEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slash_session_events_total",
			Help: "Session lifecycle operations by outcome.",
		},
		[]string{"operation", "status"},
	)

	RefreshTokensPurged = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "slash_refresh_tokens_purged_total",
		Help: "Expired refresh token records removed by the sweeper.",
	})
)

// Register adds every collector to reg. Collectors work unregistered, so
// tests never need to call this.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		httpInFlight,
		httpRequestsTotal,
		httpRequestDuration,
		AuditEntries,
		SessionEvents,
		RefreshTokensPurged,
	)
}

func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument records request count and latency labelled by the chi route
// pattern, so path parameters do not explode label cardinality.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades pass through the instrumented chain.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	return h.Hijack()
}

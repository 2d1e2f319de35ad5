package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP metrics shared by every handler.
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	readyGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "service_ready",
		Help: "1 when the readiness probe passes, 0 otherwise.",
	})
)

// Dashboard synchronizer metrics.
var (
	pollTicksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dashboard_poll_ticks_total",
		Help: "Completed dashboard poll rounds.",
	})

	pollFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dashboard_poll_failures_total",
		Help: "Dashboard poll rounds abandoned due to a provider error.",
	})

	pollSkippedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dashboard_poll_skipped_total",
		Help: "Poll ticks skipped because the previous round was still in flight.",
	})

	snapshotNotificationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dashboard_snapshot_notifications_total",
		Help: "Snapshot deliveries fanned out to subscribers.",
	})

	dashboardSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dashboard_subscribers",
		Help: "Active dashboard snapshot subscribers.",
	})
)

// Init registers all metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration, readyGauge,
		pollTicksTotal, pollFailuresTotal, pollSkippedTotal,
		snapshotNotificationsTotal, dashboardSubscribers,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetReady records the readiness probe outcome.
func SetReady(ready bool) {
	if ready {
		readyGauge.Set(1)
		return
	}
	readyGauge.Set(0)
}

func IncPollTick()             { pollTicksTotal.Inc() }
func IncPollFailure()          { pollFailuresTotal.Inc() }
func IncPollSkipped()          { pollSkippedTotal.Inc() }
func IncSnapshotNotification() { snapshotNotificationsTotal.Inc() }
func AddDashboardSubscribers(delta int) {
	dashboardSubscribers.Add(float64(delta))
}

// Instrument wraps a handler with RPS/latency/in-flight measurements.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// CanonicalPath collapses resource identifiers so metric label cardinality
// stays bounded.
func CanonicalPath(path string) string {
	if idx := strings.IndexByte(path, '?'); idx >= 0 {
		path = path[:idx]
	}
	if path == "" {
		return "/"
	}
	if rest, ok := strings.CutPrefix(path, "/v1/documents/"); ok && rest != "" {
		if strings.HasSuffix(rest, "/status") {
			return "/v1/documents/:id/status"
		}
		if !strings.Contains(rest, "/") {
			return "/v1/documents/:id"
		}
	}
	if rest, ok := strings.CutPrefix(path, "/v1/accounts/"); ok && rest != "" {
		if strings.HasSuffix(rest, "/balance") {
			return "/v1/accounts/:id/balance"
		}
		if !strings.Contains(rest, "/") {
			return "/v1/accounts/:id"
		}
	}
	if rest, ok := strings.CutPrefix(path, "/v1/access/pages/"); ok && rest != "" && !strings.Contains(rest, "/") {
		return "/v1/access/pages/:id"
	}
	return path
}

// statusWriter captures the response code for labelling.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

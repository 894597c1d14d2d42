// Package metrics exposes Prometheus collectors for the capture service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Capture outcome label values.
const (
	OutcomeSuccess   = "success"
	OutcomeAbandoned = "abandoned"
)

var (
	capturesTotal              *prometheus.CounterVec
	captureRetriesTotal        prometheus.Counter
	breakerTripsTotal          prometheus.Counter
	sessionRecyclesTotal       prometheus.Counter
	jobsTotal                  *prometheus.CounterVec
	jobDurationSeconds         *prometheus.HistogramVec
	archiveBytes               prometheus.Histogram
	activeJobs                 prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors. Every helper in this package calls it, so
// explicit initialization at startup is optional.
func Init() {
	once.Do(func() {
		capturesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snapvault_captures_total",
				Help: "Total number of finished capture items, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		captureRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "snapvault_capture_retries_total",
				Help: "Total number of capture attempts that were requeued for retry.",
			},
		)

		breakerTripsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "snapvault_breaker_trips_total",
				Help: "Total number of times the circuit breaker opened.",
			},
		)

		sessionRecyclesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "snapvault_session_recycles_total",
				Help: "Total number of render session recycles after fatal faults.",
			},
		)

		jobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snapvault_jobs_total",
				Help: "Total number of jobs processed, labeled by terminal status.",
			},
			[]string{"status"},
		)

		jobDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "snapvault_job_duration_seconds",
				Help:    "Histogram of end-to-end job durations, labeled by terminal status.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"status"},
		)

		archiveBytes = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "snapvault_archive_bytes",
				Help:    "Histogram of bundled archive sizes in bytes.",
				Buckets: prometheus.ExponentialBuckets(65536, 4, 8),
			},
		)

		activeJobs = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "snapvault_active_jobs",
				Help: "Number of jobs currently being processed.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite reduces a URL to a lowercase hostname label.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler exposing the Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveCapture counts a finished capture item for the site.
func ObserveCapture(site, outcome string) {
	Init()
	capturesTotal.WithLabelValues(SanitizeSite(site), outcome).Inc()
}

// ObserveRetry counts a capture attempt that was requeued.
func ObserveRetry() {
	Init()
	captureRetriesTotal.Inc()
}

// ObserveBreakerTrip counts a circuit breaker opening.
func ObserveBreakerTrip() {
	Init()
	breakerTripsTotal.Inc()
}

// ObserveSessionRecycle counts a render session recycle.
func ObserveSessionRecycle() {
	Init()
	sessionRecyclesTotal.Inc()
}

// ObserveJob records a job reaching a terminal status.
func ObserveJob(status string, duration time.Duration) {
	Init()
	jobsTotal.WithLabelValues(status).Inc()
	jobDurationSeconds.WithLabelValues(status).Observe(duration.Seconds())
}

// ObserveArchiveBytes records the size of a bundled archive.
func ObserveArchiveBytes(n int64) {
	Init()
	archiveBytes.Observe(float64(n))
}

// IncActiveJobs increments the active jobs gauge.
func IncActiveJobs() {
	Init()
	activeJobs.Inc()
}

// DecActiveJobs decrements the active jobs gauge.
func DecActiveJobs() {
	Init()
	activeJobs.Dec()
}

// ObserveHTTPRequest records one served HTTP request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Package metrics exposes Prometheus collectors for the downloader.
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

	"github.com/JakeFAU/site-downloader/internal/status"
)

var (
	attemptsTotal              *prometheus.CounterVec
	attemptDurationSeconds     *prometheus.HistogramVec
	resultsTotal               *prometheus.CounterVec
	retriesTotal               *prometheus.CounterVec
	bytesTotal                 *prometheus.CounterVec
	rateLimitHitsTotal         *prometheus.CounterVec
	currentDelaySeconds        prometheus.Gauge
	pacingWaitSeconds          *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		attemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "downloader_attempts_total",
				Help: "Total number of request attempts, labeled by site and status class.",
			},
			[]string{"site", "class"},
		)

		attemptDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "downloader_attempt_duration_seconds",
				Help:    "Histogram of request attempt latencies, labeled by site.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"site"},
		)

		resultsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "downloader_results_total",
				Help: "Total number of finalized URLs, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		retriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "downloader_retries_total",
				Help: "Total number of scheduled retries, labeled by reason.",
			},
			[]string{"reason"},
		)

		bytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "downloader_bytes_total",
				Help: "Total number of content bytes downloaded, labeled by site.",
			},
			[]string{"site"},
		)

		rateLimitHitsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "downloader_rate_limit_hits_total",
				Help: "Total number of responses treated as rate-limit signals, labeled by site.",
			},
			[]string{"site"},
		)

		currentDelaySeconds = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "downloader_current_delay_seconds",
				Help: "Adaptive delay applied before the next request.",
			},
		)

		pacingWaitSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "downloader_pacing_wait_seconds",
				Help:    "Histogram of waits before requests, labeled by wait kind.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"kind"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests served, labeled by method and code.",
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

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
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

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ClassLabel buckets a status code for the attempts counter. Zero becomes "error".
func ClassLabel(code int) string {
	if code == 0 {
		return "error"
	}
	if status.Classify(code) == status.Unknown {
		return "unknown"
	}
	return strconv.Itoa(code/100) + "xx"
}

// ObserveAttempt records one request attempt.
func ObserveAttempt(rawURL string, code int, duration time.Duration, rateLimited bool) {
	site := SanitizeSite(rawURL)
	attemptsTotal.WithLabelValues(site, ClassLabel(code)).Inc()
	attemptDurationSeconds.WithLabelValues(site).Observe(duration.Seconds())
	if rateLimited {
		rateLimitHitsTotal.WithLabelValues(site).Inc()
	}
}

// ObserveResult records a finalized URL.
func ObserveResult(rawURL string, succeeded bool, bytesFetched int64) {
	site := SanitizeSite(rawURL)
	outcome := "failed"
	if succeeded {
		outcome = "succeeded"
	}
	resultsTotal.WithLabelValues(site, outcome).Inc()
	if bytesFetched > 0 {
		bytesTotal.WithLabelValues(site).Add(float64(bytesFetched))
	}
}

// ObserveRetry increments the retry counter for the given reason.
func ObserveRetry(reason string) {
	retriesTotal.WithLabelValues(reason).Inc()
}

// SetCurrentDelay publishes the adaptive delay.
func SetCurrentDelay(d time.Duration) {
	currentDelaySeconds.Set(d.Seconds())
}

// ObservePacingWait records a wait of the given kind ("delay", "retry", "ceiling").
func ObservePacingWait(kind string, d time.Duration) {
	pacingWaitSeconds.WithLabelValues(kind).Observe(d.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

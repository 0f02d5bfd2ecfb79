// Package metrics exposes Prometheus collectors for the scrapper service.
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

var (
	scrapperFetchesTotal       *prometheus.CounterVec
	scrapperBytesTotal         *prometheus.CounterVec
	scrapperRecordsTotal       *prometheus.CounterVec
	scrapperRunsTotal          *prometheus.CounterVec
	scrapperActiveWorkers      prometheus.Gauge
	scrapperRateLimitDelays    *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	scrapperHeadlessPromotions prometheus.Counter

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		scrapperFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scrapper_fetches_total",
				Help: "Total number of pages fetched, labeled by host and status.",
			},
			[]string{"host", "status"},
		)

		scrapperBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scrapper_bytes_total",
				Help: "Total number of bytes fetched, labeled by host.",
			},
			[]string{"host"},
		)

		scrapperRecordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scrapper_records_total",
				Help: "Total number of extracted records, labeled by project and outcome (new/duplicate).",
			},
			[]string{"project", "outcome"},
		)

		scrapperRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scrapper_runs_total",
				Help: "Total number of runs processed, labeled by final status.",
			},
			[]string{"status"},
		)

		scrapperActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "scrapper_active_workers",
				Help: "Number of workers currently processing a run.",
			},
		)

		scrapperRateLimitDelays = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scrapper_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
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

		scrapperHeadlessPromotions = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "scrapper_headless_promotions_total",
				Help: "Total number of fetches promoted to the headless browser.",
			},
		)
	})
}

// SanitizeHost sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeHost(rawURL string) string {
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

// ObserveFetch increments the fetch metrics.
func ObserveFetch(rawURL string, status int, bytesFetched int) {
	Init()
	host := SanitizeHost(rawURL)
	scrapperFetchesTotal.WithLabelValues(host, strconv.Itoa(status)).Inc()
	if bytesFetched > 0 {
		scrapperBytesTotal.WithLabelValues(host).Add(float64(bytesFetched))
	}
}

// ObserveRecord increments the record counter for a project and outcome.
func ObserveRecord(project, outcome string) {
	Init()
	scrapperRecordsTotal.WithLabelValues(project, outcome).Inc()
}

// ObserveRun increments the run counter for the given final status.
func ObserveRun(status string) {
	Init()
	scrapperRunsTotal.WithLabelValues(status).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	Init()
	scrapperRateLimitDelays.WithLabelValues(host).Observe(duration.Seconds())
}

// ObserveHeadlessPromotion counts a promotion to the headless fetcher.
func ObserveHeadlessPromotion() {
	Init()
	scrapperHeadlessPromotions.Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	scrapperActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	scrapperActiveWorkers.Dec()
}

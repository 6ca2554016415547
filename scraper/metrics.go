package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the crawler and image sync.
type Metrics struct {
	Registry           *prometheus.Registry
	RequestsTotal      *prometheus.CounterVec
	RequestDuration    prometheus.Histogram
	PagesVisitedTotal  prometheus.Counter
	ItemsExtracted     prometheus.Counter
	ExtractionFailures prometheus.Counter
	ErrorsTotal        *prometheus.CounterVec
	DownloadsTotal     *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_requests_total",
			Help: "Total HTTP requests issued by the crawler.",
		},
		[]string{"phase"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crawler_request_duration_seconds",
			Help:    "HTTP request latency for crawler requests.",
			Buckets: prometheus.DefBuckets,
		},
	)
	pages := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crawler_listing_pages_total",
			Help: "Total number of listing pages walked.",
		},
	)
	items := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crawler_items_extracted_total",
			Help: "Total number of records extracted from detail pages.",
		},
	)
	failures := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crawler_extraction_failures_total",
			Help: "Total number of detail pages that could not be fetched.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_errors_total",
			Help: "Total number of fetch errors by type.",
		},
		[]string{"error_type"},
	)
	downloads := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_image_downloads_total",
			Help: "Image sync results by outcome.",
		},
		[]string{"outcome"},
	)

	registry.MustRegister(requests, requestDuration, pages, items, failures, errorsTotal, downloads)

	return &Metrics{
		Registry:           registry,
		RequestsTotal:      requests,
		RequestDuration:    requestDuration,
		PagesVisitedTotal:  pages,
		ItemsExtracted:     items,
		ExtractionFailures: failures,
		ErrorsTotal:        errorsTotal,
		DownloadsTotal:     downloads,
	}
}

// IncRequest increments the requests total counter.
func (m *Metrics) IncRequest(phase string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(phase).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncPages increments the listing pages counter.
func (m *Metrics) IncPages() {
	if m == nil {
		return
	}
	m.PagesVisitedTotal.Inc()
}

// IncItems increments the extracted items counter.
func (m *Metrics) IncItems() {
	if m == nil {
		return
	}
	m.ItemsExtracted.Inc()
}

// IncExtractionFailure increments the failed extraction counter.
func (m *Metrics) IncExtractionFailure() {
	if m == nil {
		return
	}
	m.ExtractionFailures.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// IncDownload records an image sync outcome such as "downloaded",
// "exists", "failed" or "recovered".
func (m *Metrics) IncDownload(outcome string) {
	if m == nil {
		return
	}
	m.DownloadsTotal.WithLabelValues(outcome).Inc()
}

package observability

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce          sync.Once
	httpRequestsTotal     *prometheus.CounterVec
	httpLatencySeconds    *prometheus.HistogramVec
	pipelineOutcomesTotal *prometheus.CounterVec
	ocrLatencySeconds     prometheus.Histogram
	ocrFailuresTotal      prometheus.Counter
	cacheLookupsTotal     *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evaluator_http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "evaluator_http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"method", "route"})

		pipelineOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evaluator_pipeline_outcomes_total",
			Help: "Evaluation pipeline results by modality and failure kind.",
		}, []string{"modality", "outcome"})

		ocrLatencySeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "evaluator_ocr_latency_seconds",
			Help:    "Latency of OCR text extraction.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		})

		ocrFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "evaluator_ocr_failures_total",
			Help: "Number of failed OCR extractions.",
		})

		cacheLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evaluator_cache_lookups_total",
			Help: "Evaluation cache lookups by result.",
		}, []string{"result"})

		prometheus.MustRegister(httpRequestsTotal, httpLatencySeconds, pipelineOutcomesTotal, ocrLatencySeconds, ocrFailuresTotal, cacheLookupsTotal)
	})
}

// MetricsHandler exposes the Prometheus scrape endpoint via Fiber.
func MetricsHandler() fiber.Handler {
	RegisterMetrics()
	return adaptor.HTTPHandler(promhttp.Handler())
}

// HTTPRequests exposes the request counter.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the request latency histogram.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// PipelineOutcomes exposes the evaluation outcome counter.
func PipelineOutcomes() *prometheus.CounterVec {
	RegisterMetrics()
	return pipelineOutcomesTotal
}

// OCRLatency exposes the OCR latency histogram.
func OCRLatency() prometheus.Histogram {
	RegisterMetrics()
	return ocrLatencySeconds
}

// OCRFailures exposes the OCR failure counter.
func OCRFailures() prometheus.Counter {
	RegisterMetrics()
	return ocrFailuresTotal
}

// CacheLookups exposes the cache hit/miss counter.
func CacheLookups() *prometheus.CounterVec {
	RegisterMetrics()
	return cacheLookupsTotal
}

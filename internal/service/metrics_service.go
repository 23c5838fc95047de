package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Ingestion outcomes used as metric labels.
const (
	IngestResultSuccess      = "success"
	IngestResultUnauthorized = "unauthorized"
	IngestResultInvalid      = "invalid"
	IngestResultFailed       = "failed"
)

// Lookup cache outcomes used as metric labels.
const (
	LookupCacheHit   = "hit"
	LookupCacheMiss  = "miss"
	LookupCacheError = "error"
)

// MetricsService encapsulates Prometheus instrumentation. All methods are
// safe on a nil receiver.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	requestSize     *prometheus.HistogramVec
	ingestTotal     *prometheus.CounterVec
	parseDuration   prometheus.Histogram
	rosterRecords   prometheus.Gauge
	lookupTotal     *prometheus.CounterVec
	cacheResults    *prometheus.CounterVec
	cacheLatency    *prometheus.HistogramVec
	cacheGeneration prometheus.Gauge
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	requestSize := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_size_bytes",
		Help:    "Declared size of request bodies",
		Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
	}, []string{"method", "path"})

	ingestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roster_ingestions_total",
		Help: "Roster upload attempts by outcome",
	}, []string{"result"})

	parseDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "roster_parse_duration_seconds",
		Help:    "Time spent decoding uploaded roster workbooks",
		Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	})

	rosterRecords := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "roster_records",
		Help: "Number of makeup exam records in the last committed roster",
	})

	lookupTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "exam_lookups_total",
		Help: "Student exam lookups by data source",
	}, []string{"source"})

	cacheResults := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lookup_cache_requests_total",
		Help: "Lookup cache reads by result",
	}, []string{"result"})

	cacheLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lookup_cache_seconds",
		Help:    "Latency of lookup cache operations",
		Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
	}, []string{"op"})

	cacheGeneration := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "lookup_cache_generation",
		Help: "Roster generation the lookup cache currently serves",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, requestSize, ingestTotal, parseDuration, rosterRecords, lookupTotal, cacheResults, cacheLatency, cacheGeneration, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		requestSize:     requestSize,
		ingestTotal:     ingestTotal,
		parseDuration:   parseDuration,
		rosterRecords:   rosterRecords,
		lookupTotal:     lookupTotal,
		cacheResults:    cacheResults,
		cacheLatency:    cacheLatency,
		cacheGeneration: cacheGeneration,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry exposes the collector registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// ObserveRequestSize records the declared body size of a request.
func (m *MetricsService) ObserveRequestSize(method, path string, size int64) {
	if m == nil {
		return
	}
	m.requestSize.WithLabelValues(method, path).Observe(float64(size))
}

// ObserveIngestion counts one upload attempt by outcome.
func (m *MetricsService) ObserveIngestion(result string) {
	if m == nil {
		return
	}
	m.ingestTotal.WithLabelValues(result).Inc()
}

// ObserveParse records workbook decoding time.
func (m *MetricsService) ObserveParse(duration time.Duration) {
	if m == nil {
		return
	}
	m.parseDuration.Observe(duration.Seconds())
}

// SetRosterRecords publishes the size of the committed roster.
func (m *MetricsService) SetRosterRecords(n int) {
	if m == nil {
		return
	}
	m.rosterRecords.Set(float64(n))
}

// ObserveLookup counts a student lookup served from source ("cache" or "store").
func (m *MetricsService) ObserveLookup(source string) {
	if m == nil {
		return
	}
	m.lookupTotal.WithLabelValues(source).Inc()
}

// ObserveLookupCache records one lookup cache operation by name.
func (m *MetricsService) ObserveLookupCache(op string, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordLookupCacheResult counts a cache read by result.
func (m *MetricsService) RecordLookupCacheResult(result string) {
	if m == nil {
		return
	}
	m.cacheResults.WithLabelValues(result).Inc()
}

// SetLookupCacheGeneration publishes the generation lookups are cached under.
func (m *MetricsService) SetLookupCacheGeneration(generation int64) {
	if m == nil {
		return
	}
	m.cacheGeneration.Set(float64(generation))
}

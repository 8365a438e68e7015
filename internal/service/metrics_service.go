package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/admission-sync/internal/models"
)

// Pass outcomes used as the "outcome" label.
const (
	OutcomeSuccess = "success"
	OutcomePartial = "partial"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// MetricsService encapsulates Prometheus instrumentation and keeps counters for the status endpoint.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	passDuration    *prometheus.HistogramVec
	passTotal       *prometheus.CounterVec
	rowsTotal       *prometheus.CounterVec
	chunkFailures   *prometheus.CounterVec
	lastSuccess     *prometheus.GaugeVec
	feedEvents      *prometheus.CounterVec

	cacheHitCount     uint64
	cacheMissCount    uint64
	requestCount      uint64
	passCount         uint64
	passFailed        uint64
	passSkipped       uint64
	passDurationTotal uint64
	rowsInserted      uint64
	failedChunks      uint64
	feedCount         uint64
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

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	passDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sync_pass_duration_seconds",
		Help:    "Duration of reconciliation passes",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"dataset"})

	passTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_passes_total",
		Help: "Reconciliation passes by outcome",
	}, []string{"dataset", "outcome"})

	rowsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_rows_total",
		Help: "Rows processed by reconciliation passes",
	}, []string{"dataset", "result"})

	chunkFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_chunk_failures_total",
		Help: "Insert chunks that failed or timed out",
	}, []string{"dataset"})

	lastSuccess := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sync_last_success_timestamp_seconds",
		Help: "Unix time of the last completed pass",
	}, []string{"dataset"})

	feedEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_change_feed_notifications_total",
		Help: "Change feed notifications by table and whether they were recorded",
	}, []string{"table", "recorded"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		passDuration, passTotal, rowsTotal, chunkFailures, lastSuccess, feedEvents, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheHitRatio:   cacheHitRatio,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		passDuration:    passDuration,
		passTotal:       passTotal,
		rowsTotal:       rowsTotal,
		chunkFailures:   chunkFailures,
		lastSuccess:     lastSuccess,
		feedEvents:      feedEvents,
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

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	total := hits + atomic.LoadUint64(&m.cacheMissCount)
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObservePass records the outcome of one reconciliation pass.
func (m *MetricsService) ObservePass(result models.SyncResult) {
	if m == nil {
		return
	}
	outcome := PassOutcome(result)
	duration := result.FinishedAt.Sub(result.StartedAt)
	m.passDuration.WithLabelValues(result.Dataset).Observe(duration.Seconds())
	m.passTotal.WithLabelValues(result.Dataset, outcome).Inc()
	m.rowsTotal.WithLabelValues(result.Dataset, "valid").Add(float64(result.Valid))
	m.rowsTotal.WithLabelValues(result.Dataset, "invalid").Add(float64(result.Invalid))
	m.rowsTotal.WithLabelValues(result.Dataset, "inserted").Add(float64(result.Inserted))
	if result.FailedChunks > 0 {
		m.chunkFailures.WithLabelValues(result.Dataset).Add(float64(result.FailedChunks))
	}
	if outcome == OutcomeSuccess || outcome == OutcomePartial {
		m.lastSuccess.WithLabelValues(result.Dataset).Set(float64(result.FinishedAt.Unix()))
	}

	atomic.AddUint64(&m.passCount, 1)
	atomic.AddUint64(&m.passDurationTotal, uint64(duration.Nanoseconds()))
	atomic.AddUint64(&m.rowsInserted, uint64(result.Inserted))
	atomic.AddUint64(&m.failedChunks, uint64(result.FailedChunks))
	switch outcome {
	case OutcomeFailed:
		atomic.AddUint64(&m.passFailed, 1)
	case OutcomeSkipped:
		atomic.AddUint64(&m.passSkipped, 1)
	}
}

// ObserveFeedNotification counts one change feed notification.
func (m *MetricsService) ObserveFeedNotification(table string, recorded bool) {
	if m == nil {
		return
	}
	m.feedEvents.WithLabelValues(table, fmt.Sprintf("%t", recorded)).Inc()
	atomic.AddUint64(&m.feedCount, 1)
}

// PassOutcome classifies a pass result.
func PassOutcome(result models.SyncResult) string {
	switch {
	case result.Error != "":
		return OutcomeFailed
	case result.Skipped != "":
		return OutcomeSkipped
	case result.FailedChunks > 0:
		return OutcomePartial
	default:
		return OutcomeSuccess
	}
}

// Snapshot returns aggregated counters for the status endpoint.
func (m *MetricsService) Snapshot() models.SyncMetrics {
	if m == nil {
		return models.SyncMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	passes := atomic.LoadUint64(&m.passCount)

	var cacheRatio float64
	if hits+misses > 0 {
		cacheRatio = float64(hits) / float64(hits+misses)
	}
	var avgPassMs float64
	if passes > 0 {
		avgPassMs = float64(atomic.LoadUint64(&m.passDurationTotal)) / float64(passes) / float64(time.Millisecond)
	}

	return models.SyncMetrics{
		PassesTotal:       passes,
		PassesFailed:      atomic.LoadUint64(&m.passFailed),
		PassesSkipped:     atomic.LoadUint64(&m.passSkipped),
		RowsInserted:      atomic.LoadUint64(&m.rowsInserted),
		FailedChunks:      atomic.LoadUint64(&m.failedChunks),
		AveragePassMs:     avgPassMs,
		CacheHitRatio:     cacheRatio,
		RequestsTotal:     atomic.LoadUint64(&m.requestCount),
		FeedNotifications: atomic.LoadUint64(&m.feedCount),
		GeneratedAt:       time.Now().UTC(),
	}
}

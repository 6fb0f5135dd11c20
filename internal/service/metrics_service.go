package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/batch-admin-api/internal/models"
)

// MetricsService owns the Prometheus registry: HTTP, cache, store timings and ledger/attendance counters.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Histogram
	cacheWrite      prometheus.Histogram
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	dbQueryDuration *prometheus.HistogramVec

	pointChanges      *prometheus.CounterVec
	ledgerRepairs     *prometheus.CounterVec
	attendanceRuns    *prometheus.CounterVec
	attendanceOutcome *prometheus.CounterVec
	matchConfidence   *prometheus.HistogramVec
	notifications     *prometheus.CounterVec

	cacheHitCount  uint64
	cacheMissCount uint64
	partialCount   uint64
}

// NewMetricsService registers all collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	m := &MetricsService{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		cacheLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cache_latency_seconds",
			Help:    "Latency for cache lookups",
			Buckets: prometheus.DefBuckets,
		}),
		cacheWrite: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cache_write_seconds",
			Help:    "Latency for cache writes",
			Buckets: prometheus.DefBuckets,
		}),
		cacheHitRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cache_hit_ratio",
			Help: "Ratio of cache hits to total cache lookups",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total cache hits",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total cache misses",
		}),
		dbQueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Duration of store calls",
			Buckets: prometheus.DefBuckets,
		}, []string{"query"}),
		pointChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "points_changes_total",
			Help: "Recorded point changes by outcome (applied, partial, failed)",
		}, []string{"status"}),
		ledgerRepairs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "points_ledger_repairs_total",
			Help: "Balance rewrites by operation (reset, restore)",
		}, []string{"operation", "result"}),
		attendanceRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attendance_runs_total",
			Help: "Attendance matching runs by mode (preview, apply)",
		}, []string{"mode"}),
		attendanceOutcome: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attendance_students_total",
			Help: "Students classified by attendance status",
		}, []string{"status"}),
		matchConfidence: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "attendance_match_confidence",
			Help:    "Confidence of accepted participant matches",
			Buckets: []float64{0.65, 0.7, 0.75, 0.8, 0.85, 0.9, 0.95, 1},
		}, []string{"match_type"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Notification deliveries by kind and result",
		}, []string{"kind", "result"}),
	}

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(
		m.requestDuration, m.requestTotal,
		m.cacheLatency, m.cacheWrite, m.cacheHitRatio, m.cacheHits, m.cacheMisses,
		m.dbQueryDuration,
		m.pointChanges, m.ledgerRepairs, m.attendanceRuns, m.attendanceOutcome, m.matchConfidence, m.notifications,
		goroutines,
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
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

// ObserveDBQuery records store call timing under label.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(label).Observe(duration.Seconds())
}

// RecordPointChange counts a point change by outcome: applied, partial or failed.
func (m *MetricsService) RecordPointChange(status string) {
	if m == nil {
		return
	}
	m.pointChanges.WithLabelValues(status).Inc()
	if status == string(models.PointChangePartial) {
		atomic.AddUint64(&m.partialCount, 1)
	}
}

// RecordLedgerRepair counts a reset or restore.
func (m *MetricsService) RecordLedgerRepair(operation string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.ledgerRepairs.WithLabelValues(operation, result).Inc()
}

// RecordAttendanceRun counts a matching run and its classification outcome.
func (m *MetricsService) RecordAttendanceRun(mode string, result models.AttendanceMatchResult) {
	if m == nil {
		return
	}
	m.attendanceRuns.WithLabelValues(mode).Inc()
	m.attendanceOutcome.WithLabelValues(string(models.AttendancePresent)).Add(float64(len(result.Present)))
	m.attendanceOutcome.WithLabelValues(string(models.AttendanceLate)).Add(float64(len(result.Late)))
	m.attendanceOutcome.WithLabelValues(string(models.AttendanceAbsent)).Add(float64(len(result.Absent)))
	for _, match := range result.Matched {
		m.matchConfidence.WithLabelValues(string(match.MatchType)).Observe(match.Confidence)
	}
}

// RecordNotification counts a notification delivery attempt outcome.
func (m *MetricsService) RecordNotification(kind string, err error) {
	if m == nil {
		return
	}
	result := "sent"
	if err != nil {
		result = "failed"
	}
	m.notifications.WithLabelValues(kind, result).Inc()
}

// PartialPointChanges reports how many point changes left the cached balance stale since start-up.
func (m *MetricsService) PartialPointChanges() uint64 {
	if m == nil {
		return 0
	}
	return atomic.LoadUint64(&m.partialCount)
}

// Package metrics provides Prometheus metrics for the evaluation engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager manages all Prometheus metrics for the evaluation service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Work units: one subject answering one question plus its rating.
	unitsProcessed *prometheus.CounterVec
	unitLatency    prometheus.Histogram
	ratingsWritten prometheus.Counter
	regenerations  *prometheus.CounterVec

	// Scoring
	scoringLatency prometheus.Histogram
	raterAttempts  *prometheus.CounterVec
	raterExhausted prometheus.Counter

	// Model calls
	llmRequests *prometheus.CounterVec
	llmLatency  *prometheus.HistogramVec

	// Aggregation and snapshots
	leaderboardComputes       prometheus.Counter
	leaderboardComputeLatency prometheus.Histogram
	leaderboardErrors         prometheus.Counter
	snapshotsSaved            *prometheus.CounterVec

	// Fan-in barrier
	barrierOpened  prometheus.Counter
	barrierFired   prometheus.Counter
	barrierPending prometheus.Gauge

	// Queue
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueueRate       prometheus.Counter
	queueDequeueRate       prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// Workers
	workerCount             prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter
	workerPanics            prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
	errorLatency         *prometheus.HistogramVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "evalboard",
		subsystem:        "engine",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		metricPrefix:     "",
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels,
	}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	if buckets == nil {
		buckets = m.histogramBuckets
	}
	return prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels,
		Buckets: buckets,
	}
}

// latencyBuckets spans model calls, which run from milliseconds to minutes.
var latencyBuckets = []float64{5, 25, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000, 120000} //nolint:gochecknoglobals // bucket layout

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	m.unitsProcessed = auto.NewCounterVec(m.counterOpts("units_processed_total",
		"Work units finished, by outcome (ok, failed, skipped)"), []string{"outcome"})
	m.unitLatency = auto.NewHistogram(m.histogramOpts("unit_latency_milliseconds",
		"End-to-end latency of one work unit in milliseconds", latencyBuckets))
	m.ratingsWritten = auto.NewCounter(m.counterOpts("ratings_written_total",
		"Answer and rating pairs persisted"))
	m.regenerations = auto.NewCounterVec(m.counterOpts("regenerations_total",
		"Regeneration requests, by entry point"), []string{"kind"})

	m.scoringLatency = auto.NewHistogram(m.histogramOpts("scoring_latency_milliseconds",
		"Latency of scoring one answer across all raters in milliseconds", latencyBuckets))
	m.raterAttempts = auto.NewCounterVec(m.counterOpts("rater_attempts_total",
		"Rater calls, by outcome (valid, invalid, client_error)"), []string{"outcome"})
	m.raterExhausted = auto.NewCounter(m.counterOpts("rater_exhausted_total",
		"Raters that used their whole retry budget without a valid score"))

	m.llmRequests = auto.NewCounterVec(m.counterOpts("llm_requests_total",
		"Model requests, by provider and outcome"), []string{"provider", "outcome"})
	m.llmLatency = auto.NewHistogramVec(m.histogramOpts("llm_request_latency_milliseconds",
		"Model request latency in milliseconds", latencyBuckets), []string{"provider"})

	m.leaderboardComputes = auto.NewCounter(m.counterOpts("leaderboard_computes_total",
		"Leaderboard aggregation passes"))
	m.leaderboardComputeLatency = auto.NewHistogram(m.histogramOpts("leaderboard_compute_latency_milliseconds",
		"Leaderboard aggregation latency in milliseconds", nil))
	m.leaderboardErrors = auto.NewCounter(m.counterOpts("leaderboard_errors_total",
		"Failed leaderboard aggregation passes"))
	m.snapshotsSaved = auto.NewCounterVec(m.counterOpts("snapshots_saved_total",
		"Snapshots persisted, by trigger"), []string{"trigger"})

	m.barrierOpened = auto.NewCounter(m.counterOpts("barrier_batches_opened_total",
		"Fan-in batches opened"))
	m.barrierFired = auto.NewCounter(m.counterOpts("barrier_batches_fired_total",
		"Fan-in batches whose callback fired"))
	m.barrierPending = auto.NewGauge(m.gaugeOpts("barrier_batches_pending",
		"Fan-in batches still waiting for children"))

	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size", "Current number of queued tasks"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity", "Maximum queue capacity"))
	m.queueUtilization = auto.NewGauge(m.gaugeOpts("queue_utilization_ratio", "Queue size / capacity"))
	m.queueEnqueueRate = auto.NewCounter(m.counterOpts("queue_enqueue_total", "Tasks enqueued"))
	m.queueDequeueRate = auto.NewCounter(m.counterOpts("queue_dequeue_total", "Tasks dequeued"))
	m.queueEnqueueErrors = auto.NewCounter(m.counterOpts("queue_enqueue_errors_total", "Rejected enqueue attempts"))
	m.queueProcessingLatency = auto.NewHistogram(m.histogramOpts("queue_processing_latency_milliseconds",
		"Enqueue latency in milliseconds", nil))

	m.workerCount = auto.NewGauge(m.gaugeOpts("worker_count", "Number of running workers"))
	m.workerProcessingLatency = auto.NewHistogram(m.histogramOpts("worker_processing_latency_milliseconds",
		"Time a worker spends on one task in milliseconds", latencyBuckets))
	m.workerErrorRate = auto.NewCounter(m.counterOpts("worker_errors_total", "Tasks whose handler returned an error"))
	m.workerPanics = auto.NewCounter(m.counterOpts("worker_panics_total", "Tasks whose handler panicked"))

	m.httpRequests = auto.NewCounterVec(m.counterOpts("http_requests_total",
		"HTTP requests by endpoint and method"), []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogramOpts("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds", nil), []string{"endpoint", "method", "status_code"})

	m.errorRateByComponent = auto.NewCounterVec(m.counterOpts("errors_by_component_total",
		"Errors by component and type"), []string{"component", "error_type"})
	m.errorRateByType = auto.NewCounterVec(m.counterOpts("errors_by_type_total",
		"Errors by type and severity"), []string{"error_type", "severity"})
	m.errorRateByEndpoint = auto.NewCounterVec(m.counterOpts("errors_by_endpoint_total",
		"Errors by endpoint, method and type"), []string{"endpoint", "method", "error_type"})
	m.errorLatency = auto.NewHistogramVec(m.histogramOpts("error_latency_milliseconds",
		"Latency of operations that ended in an error", nil), []string{"component", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes", "System memory usage in bytes"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count", "Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(m.histogramOpts("system_gc_pause_time_milliseconds",
		"GC pause time in milliseconds", []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000}))
}

// RecordUnit counts a finished work unit and its latency.
func RecordUnit(outcome string, latencyMs float64) {
	globalManager.unitsProcessed.WithLabelValues(outcome).Inc()
	globalManager.unitLatency.Observe(latencyMs)
}

// RecordRatingWritten increments the persisted ratings counter.
func RecordRatingWritten() {
	globalManager.ratingsWritten.Inc()
}

// RecordRegeneration counts a regeneration request of the given kind.
func RecordRegeneration(kind string) {
	globalManager.regenerations.WithLabelValues(kind).Inc()
}

// RecordScoringLatency records scoring latency in milliseconds.
func RecordScoringLatency(latencyMs float64) {
	globalManager.scoringLatency.Observe(latencyMs)
}

// RecordRaterAttempt counts one rater call by outcome.
func RecordRaterAttempt(outcome string) {
	globalManager.raterAttempts.WithLabelValues(outcome).Inc()
}

// RecordRaterExhausted counts a rater that produced no valid score.
func RecordRaterExhausted() {
	globalManager.raterExhausted.Inc()
}

// RecordLLMRequest counts a model request and records its latency.
func RecordLLMRequest(provider, outcome string, latencyMs float64) {
	globalManager.llmRequests.WithLabelValues(provider, outcome).Inc()
	globalManager.llmLatency.WithLabelValues(provider).Observe(latencyMs)
}

// RecordLeaderboardCompute records one aggregation pass.
func RecordLeaderboardCompute(latencyMs float64) {
	globalManager.leaderboardComputes.Inc()
	globalManager.leaderboardComputeLatency.Observe(latencyMs)
}

// RecordLeaderboardError increments the leaderboard errors counter.
func RecordLeaderboardError() {
	globalManager.leaderboardErrors.Inc()
}

// RecordSnapshotSaved counts a persisted snapshot.
func RecordSnapshotSaved(trigger string) {
	globalManager.snapshotsSaved.WithLabelValues(trigger).Inc()
}

// RecordBarrierOpened counts a new fan-in batch.
func RecordBarrierOpened() {
	globalManager.barrierOpened.Inc()
	globalManager.barrierPending.Inc()
}

// RecordBarrierFired counts a fan-in batch that completed.
func RecordBarrierFired() {
	globalManager.barrierFired.Inc()
	globalManager.barrierPending.Dec()
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueueRate.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeueRate.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// RecordQueueProcessingLatency records queue processing latency.
func RecordQueueProcessingLatency(latencyMs float64) {
	globalManager.queueProcessingLatency.Observe(latencyMs)
}

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrorRate.Inc()
}

// RecordWorkerPanic increments the worker panic counter.
func RecordWorkerPanic() {
	globalManager.workerPanics.Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorLatency records the latency of an operation that resulted in an error.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

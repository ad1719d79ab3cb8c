// Package metrics provides Prometheus metrics for the rocketstat service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for submit results.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
)

// Manager owns every collector exported by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Reconciliation
	submits          *prometheus.CounterVec
	notifications    prometheus.Counter
	broadcasts       prometheus.Counter
	broadcastAccepts prometheus.Histogram
	unmatched        prometheus.Counter
	engines          prometheus.Gauge
	populated        prometheus.Gauge

	// Persistence
	persistEnqueued prometheus.Counter
	persistDropped  *prometheus.CounterVec
	persistWrites   prometheus.Counter
	persistStale    prometheus.Counter
	persistErrors   prometheus.Counter
	persistLatency  prometheus.Histogram
	restores        *prometheus.CounterVec

	// Queue
	queueSize        prometheus.Gauge
	queueCapacity    prometheus.Gauge
	queueUtilization prometheus.Gauge

	// Workers
	workerActive            prometheus.Gauge
	workerProcessingLatency prometheus.Histogram

	// Views
	views         prometheus.Gauge
	streamClients prometheus.Gauge

	// Config
	configReloads *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorsByEndpoint    *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // keeps default Go collectors out

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "rocketstat",
		subsystem:        "",
		histogramBuckets: prometheus.DefBuckets,
		constLabels:      prometheus.Labels{},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) histogramOpts(name, help string) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.submits = auto.NewCounterVec(m.counterOpts("submits_total",
		"Telemetry documents offered to an engine, by outcome"), []string{"outcome"})
	m.notifications = auto.NewCounter(m.counterOpts("notifications_total",
		"Change notifications delivered to subscribers"))
	m.broadcasts = auto.NewCounter(m.counterOpts("broadcasts_total",
		"Inbound calls fanned out to the engine registry"))
	m.broadcastAccepts = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "broadcast_accepts",
		Help:        "Engines that accepted a single broadcast",
		Buckets:     []float64{0, 1, 2, 3, 5, 8},
		ConstLabels: m.constLabels,
	})
	m.unmatched = auto.NewCounter(m.counterOpts("broadcast_unmatched_total",
		"Broadcasts that no engine accepted"))
	m.engines = auto.NewGauge(m.gaugeOpts("engines",
		"Engines currently registered"))
	m.populated = auto.NewGauge(m.gaugeOpts("engines_populated",
		"Registered engines holding a document"))

	m.persistEnqueued = auto.NewCounter(m.counterOpts("persist_enqueued_total",
		"Persistence jobs accepted by the queue"))
	m.persistDropped = auto.NewCounterVec(m.counterOpts("persist_dropped_total",
		"Persistence jobs dropped before reaching storage"), []string{"reason"})
	m.persistWrites = auto.NewCounter(m.counterOpts("persist_writes_total",
		"Documents written to storage"))
	m.persistStale = auto.NewCounter(m.counterOpts("persist_stale_total",
		"Writes skipped because a newer version was already stored"))
	m.persistErrors = auto.NewCounter(m.counterOpts("persist_errors_total",
		"Storage writes that failed"))
	m.persistLatency = auto.NewHistogram(m.histogramOpts("persist_latency_milliseconds",
		"Storage write latency in milliseconds"))
	m.restores = auto.NewCounterVec(m.counterOpts("restores_total",
		"Documents restored at engine construction, by result"), []string{"result"})

	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size",
		"Persistence jobs waiting in the queue"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity",
		"Maximum persistence queue capacity"))
	m.queueUtilization = auto.NewGauge(m.gaugeOpts("queue_utilization_ratio",
		"Queue utilization ratio (current size / capacity)"))

	m.workerActive = auto.NewGauge(m.gaugeOpts("worker_active_count",
		"Persistence workers running"))
	m.workerProcessingLatency = auto.NewHistogram(m.histogramOpts("worker_processing_latency_milliseconds",
		"Time a worker spends on one persistence job"))

	m.views = auto.NewGauge(m.gaugeOpts("views",
		"Views bound across all engines"))
	m.streamClients = auto.NewGauge(m.gaugeOpts("stream_clients",
		"Connected websocket view streams"))

	m.configReloads = auto.NewCounterVec(m.counterOpts("config_reloads_total",
		"Player configuration reloads, by result"), []string{"result"})

	m.httpRequests = auto.NewCounterVec(m.counterOpts("http_requests_total",
		"HTTP requests by endpoint, method and status"), []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogramOpts("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds"), []string{"endpoint", "method", "status_code"})
	m.errorsByEndpoint = auto.NewCounterVec(m.counterOpts("errors_by_endpoint_total",
		"HTTP errors by endpoint"), []string{"endpoint", "method", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes",
		"Heap bytes allocated"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count",
		"Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "system_gc_pause_time_milliseconds",
		Help:        "Average GC pause time in milliseconds",
		Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		ConstLabels: m.constLabels,
	})
}

// RecordSubmit counts one submit with the given outcome.
func RecordSubmit(outcome string) {
	globalManager.submits.WithLabelValues(outcome).Inc()
}

// RecordNotification counts one subscriber notification.
func RecordNotification() {
	globalManager.notifications.Inc()
}

// RecordBroadcast records a finished broadcast and how many engines accepted it.
func RecordBroadcast(accepted int) {
	globalManager.broadcasts.Inc()
	globalManager.broadcastAccepts.Observe(float64(accepted))
	if accepted == 0 {
		globalManager.unmatched.Inc()
	}
}

// UpdateEngineCount sets the registered engine gauge.
func UpdateEngineCount(n int) {
	globalManager.engines.Set(float64(n))
}

// UpdatePopulatedCount sets the populated engine gauge.
func UpdatePopulatedCount(n int) {
	globalManager.populated.Set(float64(n))
}

// RecordPersistEnqueued counts a job accepted by the persistence queue.
func RecordPersistEnqueued() {
	globalManager.persistEnqueued.Inc()
}

// RecordPersistDropped counts a job that never reached storage.
func RecordPersistDropped(reason string) {
	globalManager.persistDropped.WithLabelValues(reason).Inc()
}

// RecordPersistWrite records a successful storage write.
func RecordPersistWrite(latencyMs float64) {
	globalManager.persistWrites.Inc()
	globalManager.persistLatency.Observe(latencyMs)
}

// RecordPersistStale counts a write skipped for an older version.
func RecordPersistStale() {
	globalManager.persistStale.Inc()
}

// RecordPersistError counts a failed storage write.
func RecordPersistError() {
	globalManager.persistErrors.Inc()
}

// RecordRestore counts a restore attempt ("hit", "miss" or "error").
func RecordRestore(result string) {
	globalManager.restores.WithLabelValues(result).Inc()
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

// UpdateWorkerActiveCount sets the number of running workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActive.Set(float64(count))
}

// RecordWorkerProcessingLatency records time spent on one job.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// UpdateViewCount sets the number of bound views.
func UpdateViewCount(n int) {
	globalManager.views.Set(float64(n))
}

// AddStreamClients adjusts the websocket client gauge by delta.
func AddStreamClients(delta int) {
	globalManager.streamClients.Add(float64(delta))
}

// RecordConfigReload counts a reload with result "ok" or "error".
func RecordConfigReload(result string) {
	globalManager.configReloads.WithLabelValues(result).Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByEndpoint records an HTTP error.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateSystemMemoryUsage sets heap usage in bytes.
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

// GetRegistry returns the registry every service metric lives on.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

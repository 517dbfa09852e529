// Package metrics provides Prometheus metrics for the livewatch monitor.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second

	namespace = "livewatch"
	subsystem = "monitor"
)

// latencyBuckets are the millisecond buckets of the latency histograms.
var latencyBuckets = []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000} //nolint:gochecknoglobals // fixed bucket set

// connectionStates lists every value the connection state gauge is labelled with.
var connectionStates = []string{"idle", "connecting", "open", "closed"} //nolint:gochecknoglobals // fixed label set

// Manager manages all Prometheus metrics for the monitor.
type Manager struct {
	refreshInterval atomic.Int64
	registry        prometheus.Registerer

	// Synchronization
	snapshotFetches      *prometheus.CounterVec
	snapshotFetchLatency *prometheus.HistogramVec
	throttleTriggers     *prometheus.CounterVec
	updatesApplied       *prometheus.CounterVec
	updatesDiscarded     *prometheus.CounterVec
	focusChanges         *prometheus.CounterVec
	eventLogSize         prometheus.Gauge

	// Push channel
	connectionState    *prometheus.GaugeVec
	channelTransitions *prometheus.CounterVec
	pushMessages       *prometheus.CounterVec

	// Roster
	rosterRefreshes *prometheus.CounterVec
	rosterSize      *prometheus.GaugeVec

	// Recruiter actions
	decisionWrites *prometheus.CounterVec
	sessionDeletes *prometheus.CounterVec

	// Update queue and loop
	queueSize     prometheus.Gauge
	queueCapacity prometheus.Gauge
	queueDrops    *prometheus.CounterVec
	applyLatency  prometheus.Histogram

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorRateByEndpoint *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{registry: prometheus.DefaultRegisterer}
	m.refreshInterval.Store(int64(defaultRefreshInterval))

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	})
}

func (m *Manager) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, labels)
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
		Buckets:   latencyBuckets,
	}, labels)
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	m.snapshotFetches = m.counterVec("snapshot_fetches_total",
		"Full-snapshot fetches by origin (select, poll, push) and outcome", "origin", "outcome")
	m.snapshotFetchLatency = m.histogramVec("snapshot_fetch_latency_milliseconds",
		"Full-snapshot fetch latency in milliseconds", "origin")
	m.throttleTriggers = m.counterVec("throttle_triggers_total",
		"Push-triggered refresh requests by throttle result (allowed, dropped)", "result")
	m.updatesApplied = m.counterVec("updates_applied_total",
		"Updates accepted by the selection gate by kind", "kind")
	m.updatesDiscarded = m.counterVec("updates_discarded_total",
		"Updates rejected by the selection gate by kind and reason", "kind", "reason")
	m.focusChanges = m.counterVec("focus_changes_total",
		"Focus changes by source (manual, auto, cleared)", "source")
	m.eventLogSize = m.gauge("event_log_size",
		"Number of notable events currently held for the focused session")

	m.connectionState = m.gaugeVec("connection_state",
		"Push channel state; exactly one label value is 1", "state")
	m.channelTransitions = m.counterVec("channel_transitions_total",
		"Push channel state transitions by target state", "state")
	m.pushMessages = m.counterVec("push_messages_total",
		"Push messages received by message type", "type")

	m.rosterRefreshes = m.counterVec("roster_refreshes_total",
		"Combined roster refreshes by outcome", "outcome")
	m.rosterSize = m.gaugeVec("roster_size",
		"Sessions in the last applied roster by status", "status")

	m.decisionWrites = m.counterVec("decision_writes_total",
		"Recruiter decision persistence attempts by outcome", "outcome")
	m.sessionDeletes = m.counterVec("session_deletes_total",
		"Confirmed session deletes by outcome", "outcome")

	m.queueSize = m.gauge("update_queue_size", "Updates waiting to be applied")
	m.queueCapacity = m.gauge("update_queue_capacity", "Capacity of the update queue")
	m.queueDrops = m.counterVec("update_queue_drops_total",
		"Updates dropped before reaching the loop by reason", "reason")
	m.applyLatency = m.histogram("apply_latency_milliseconds",
		"Time spent applying one update on the loop", latencyBuckets)

	m.httpRequests = m.counterVec("http_requests_total",
		"Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds", "endpoint", "method", "status_code")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total",
		"HTTP errors by endpoint, method and error type", "endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_bytes", "Allocated heap bytes")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_milliseconds",
		"Average GC pause in milliseconds", []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 50})
}

// Synchronization metrics.

// RecordSnapshotFetch records one full-snapshot fetch.
func RecordSnapshotFetch(origin, outcome string, latencyMs float64) {
	globalManager.snapshotFetches.WithLabelValues(origin, outcome).Inc()
	globalManager.snapshotFetchLatency.WithLabelValues(origin).Observe(latencyMs)
}

// RecordThrottle records whether a push-triggered refresh was allowed or dropped.
func RecordThrottle(allowed bool) {
	result := "dropped"
	if allowed {
		result = "allowed"
	}
	globalManager.throttleTriggers.WithLabelValues(result).Inc()
}

// RecordUpdateApplied counts an update accepted by the gate.
func RecordUpdateApplied(kind string) {
	globalManager.updatesApplied.WithLabelValues(kind).Inc()
}

// RecordUpdateDiscarded counts an update rejected by the gate.
func RecordUpdateDiscarded(kind, reason string) {
	globalManager.updatesDiscarded.WithLabelValues(kind, reason).Inc()
}

// RecordFocusChange counts a focus change.
func RecordFocusChange(source string) {
	globalManager.focusChanges.WithLabelValues(source).Inc()
}

// UpdateEventLogSize sets the event log size gauge.
func UpdateEventLogSize(n int) {
	globalManager.eventLogSize.Set(float64(n))
}

// Push channel metrics.

// UpdateConnectionState marks state as the current push channel state.
func UpdateConnectionState(state string) {
	for _, s := range connectionStates {
		v := 0.0
		if s == state {
			v = 1
		}
		globalManager.connectionState.WithLabelValues(s).Set(v)
	}
	globalManager.channelTransitions.WithLabelValues(state).Inc()
}

// RecordPushMessage counts a received push message.
func RecordPushMessage(msgType string) {
	globalManager.pushMessages.WithLabelValues(msgType).Inc()
}

// Roster metrics.

// RecordRosterRefresh counts a combined roster refresh.
func RecordRosterRefresh(outcome string) {
	globalManager.rosterRefreshes.WithLabelValues(outcome).Inc()
}

// UpdateRosterSize sets the roster size for status.
func UpdateRosterSize(status string, n int) {
	globalManager.rosterSize.WithLabelValues(status).Set(float64(n))
}

// Recruiter action metrics.

// RecordDecisionWrite counts a decision persistence result.
func RecordDecisionWrite(outcome string) {
	globalManager.decisionWrites.WithLabelValues(outcome).Inc()
}

// RecordSessionDelete counts a confirmed delete result.
func RecordSessionDelete(outcome string) {
	globalManager.sessionDeletes.WithLabelValues(outcome).Inc()
}

// Queue and loop metrics.

// UpdateQueueSize sets the number of pending updates.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueDrop counts an update that could not be enqueued.
func RecordQueueDrop(reason string) {
	globalManager.queueDrops.WithLabelValues(reason).Inc()
}

// RecordApplyLatency observes the time spent applying one update.
func RecordApplyLatency(latencyMs float64) {
	globalManager.applyLatency.Observe(latencyMs)
}

// HTTP metrics.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByEndpoint records an HTTP error by endpoint.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// System metrics.

// UpdateSystemMemoryUsage updates system memory usage.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount updates goroutine count.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// Package metrics provides Prometheus-based metrics collection for hostsweep.
// All collectors live on a private registry so the /metrics endpoint exposes
// only hostsweep series plus the standard Go and process collectors.
package metrics

import (
	"context"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// Namespace for all hostsweep metrics
	namespace = "hostsweep"

	// Subsystems
	subsystemScan     = "scan"
	subsystemProbe    = "probe"
	subsystemResolver = "resolver"
	subsystemRegistry = "registry"
	subsystemDatabase = "database"
	subsystemAPI      = "api"
	subsystemSystem   = "system"
)

// Label values shared by callers.
const (
	StatusSuccess = "success"
	StatusError   = "error"

	ScanCompleted = "completed"
	ScanCanceled  = "canceled"
	ScanFailed    = "failed"
	ScanInvalid   = "invalid"

	ProbeReachable   = "reachable"
	ProbeUnreachable = "unreachable"
	ProbeAbandoned   = "abandoned"

	StagePTR = "ptr"
	StageOS  = "os"

	ResolveHit     = "hit"
	ResolveMiss    = "miss"
	ResolveSkipped = "skipped"
)

// PrometheusMetrics holds all Prometheus metric collectors
type PrometheusMetrics struct {
	// Scan metrics
	scansTotal     *prometheus.CounterVec
	scanDuration   prometheus.Histogram
	hostsScanned   *prometheus.CounterVec
	resultsDropped prometheus.Counter
	activeScans    prometheus.Gauge

	// Probe metrics
	probesTotal   *prometheus.CounterVec
	probeDuration prometheus.Histogram

	// Resolver metrics
	resolutions      *prometheus.CounterVec
	resolverInflight prometheus.Gauge
	resolverWait     prometheus.Histogram

	// Registry and database metrics
	registryUpdates *prometheus.CounterVec
	dbQueries       *prometheus.CounterVec
	dbQueryDuration *prometheus.HistogramVec

	// API metrics
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	websocketClients prometheus.Gauge

	// System metrics
	goroutines prometheus.Gauge
	memory     prometheus.Gauge
	uptime     prometheus.Gauge

	startTime  time.Time
	lastUpdate time.Time
	mu         sync.RWMutex
	registry   *prometheus.Registry
}

// NewPrometheusMetrics creates a new Prometheus metrics instance with all collectors
func NewPrometheusMetrics() *PrometheusMetrics {
	registry := prometheus.NewRegistry()

	pm := &PrometheusMetrics{
		startTime: time.Now(),
		registry:  registry,
	}

	pm.initScanMetrics()
	pm.initProbeMetrics()
	pm.initResolverMetrics()
	pm.initStorageMetrics()
	pm.initAPIMetrics()
	pm.initSystemMetrics()

	pm.registerMetrics()

	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return pm
}

func (pm *PrometheusMetrics) initScanMetrics() {
	pm.scansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "total",
			Help:      "Total number of scans by final status",
		},
		[]string{"status"},
	)

	pm.scanDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "duration_seconds",
			Help:      "Wall time of a scan from start to complete",
			Buckets:   []float64{0.5, 1.0, 5.0, 10.0, 30.0, 60.0, 300.0, 600.0, 1800.0},
		},
	)

	pm.hostsScanned = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "hosts_total",
			Help:      "Total number of addresses reported by status",
		},
		[]string{"status"},
	)

	pm.resultsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "results_dropped_total",
			Help:      "Results discarded because their scan was canceled",
		},
	)

	pm.activeScans = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "active",
			Help:      "Number of currently running scans",
		},
	)
}

func (pm *PrometheusMetrics) initProbeMetrics() {
	pm.probesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemProbe,
			Name:      "total",
			Help:      "TCP connect probes by port and result (reachable, unreachable, abandoned)",
		},
		[]string{"port", "result"},
	)

	pm.probeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemProbe,
			Name:      "duration_seconds",
			Help:      "Duration of individual TCP connect probes",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		},
	)
}

func (pm *PrometheusMetrics) initResolverMetrics() {
	pm.resolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemResolver,
			Name:      "lookups_total",
			Help:      "Hostname lookups by cascade stage and result",
		},
		[]string{"stage", "result"},
	)

	pm.resolverInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemResolver,
			Name:      "inflight",
			Help:      "Hostname resolutions currently holding a slot",
		},
	)

	pm.resolverWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemResolver,
			Name:      "wait_seconds",
			Help:      "Time spent queued for a resolution slot",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
		},
	)
}

func (pm *PrometheusMetrics) initStorageMetrics() {
	pm.registryUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemRegistry,
			Name:      "hostname_updates_total",
			Help:      "Hostname updates pushed to the device registry",
		},
		[]string{"status"},
	)

	pm.dbQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemDatabase,
			Name:      "queries_total",
			Help:      "Total number of database queries by operation and status",
		},
		[]string{"operation", "status"},
	)

	pm.dbQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemDatabase,
			Name:      "query_duration_seconds",
			Help:      "Duration of database queries in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		},
		[]string{"operation"},
	)
}

func (pm *PrometheusMetrics) initAPIMetrics() {
	pm.httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemAPI,
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, path and status",
		},
		[]string{"method", "path", "status"},
	)

	pm.httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemAPI,
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0},
		},
		[]string{"method", "path"},
	)

	pm.websocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemAPI,
			Name:      "websocket_clients",
			Help:      "Connected event stream clients",
		},
	)
}

func (pm *PrometheusMetrics) initSystemMetrics() {
	pm.goroutines = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemSystem,
			Name:      "goroutines",
			Help:      "Current number of goroutines",
		},
	)

	pm.memory = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemSystem,
			Name:      "memory_bytes",
			Help:      "Current heap allocation in bytes",
		},
	)

	pm.uptime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemSystem,
			Name:      "uptime_seconds",
			Help:      "Application uptime in seconds",
		},
	)
}

// registerMetrics registers all metrics with the Prometheus registry
func (pm *PrometheusMetrics) registerMetrics() {
	pm.registry.MustRegister(
		pm.scansTotal,
		pm.scanDuration,
		pm.hostsScanned,
		pm.resultsDropped,
		pm.activeScans,

		pm.probesTotal,
		pm.probeDuration,

		pm.resolutions,
		pm.resolverInflight,
		pm.resolverWait,

		pm.registryUpdates,
		pm.dbQueries,
		pm.dbQueryDuration,

		pm.httpRequests,
		pm.httpDuration,
		pm.websocketClients,

		pm.goroutines,
		pm.memory,
		pm.uptime,
	)
}

// GetRegistry returns the Prometheus registry for HTTP handler
func (pm *PrometheusMetrics) GetRegistry() *prometheus.Registry {
	return pm.registry
}

// Handler returns the /metrics handler for this instance.
func (pm *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(pm.registry, promhttp.HandlerOpts{})
}

// Scan Metrics Methods

// IncrementScansTotal counts a finished scan.
func (pm *PrometheusMetrics) IncrementScansTotal(status string) {
	pm.scansTotal.WithLabelValues(status).Inc()
}

// RecordScanDuration records a scan duration
func (pm *PrometheusMetrics) RecordScanDuration(duration time.Duration) {
	pm.scanDuration.Observe(duration.Seconds())
}

// IncrementHostsScanned counts one reported address.
func (pm *PrometheusMetrics) IncrementHostsScanned(status string) {
	pm.hostsScanned.WithLabelValues(status).Inc()
}

// IncrementResultsDropped counts a result suppressed by cancellation.
func (pm *PrometheusMetrics) IncrementResultsDropped() {
	pm.resultsDropped.Inc()
}

// AddActiveScans adjusts the running scan gauge.
func (pm *PrometheusMetrics) AddActiveScans(delta int) {
	pm.activeScans.Add(float64(delta))
}

// Probe Metrics Methods

// RecordProbe counts a single port probe and its duration.
func (pm *PrometheusMetrics) RecordProbe(port, result string, duration time.Duration) {
	pm.probesTotal.WithLabelValues(port, result).Inc()
	pm.probeDuration.Observe(duration.Seconds())
}

// Resolver Metrics Methods

// IncrementResolutions counts one cascade stage outcome.
func (pm *PrometheusMetrics) IncrementResolutions(stage, result string) {
	pm.resolutions.WithLabelValues(stage, result).Inc()
}

// AddResolverInflight adjusts the in-flight resolution gauge.
func (pm *PrometheusMetrics) AddResolverInflight(delta int) {
	pm.resolverInflight.Add(float64(delta))
}

// RecordResolverWait records how long a caller queued for a slot.
func (pm *PrometheusMetrics) RecordResolverWait(duration time.Duration) {
	pm.resolverWait.Observe(duration.Seconds())
}

// Registry and Database Metrics Methods

// IncrementRegistryUpdates counts a hostname update sent to the registry.
func (pm *PrometheusMetrics) IncrementRegistryUpdates(status string) {
	pm.registryUpdates.WithLabelValues(status).Inc()
}

// RecordDatabaseQuery records database query metrics.
func (pm *PrometheusMetrics) RecordDatabaseQuery(operation string, duration time.Duration, success bool) {
	status := StatusSuccess
	if !success {
		status = StatusError
	}
	pm.dbQueries.WithLabelValues(operation, status).Inc()
	pm.dbQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// API Metrics Methods

// RecordHTTPRequest counts an HTTP request and records its duration.
func (pm *PrometheusMetrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	pm.httpRequests.WithLabelValues(method, path, status).Inc()
	pm.httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// SetWebSocketClients sets the number of connected event stream clients.
func (pm *PrometheusMetrics) SetWebSocketClients(count int) {
	pm.websocketClients.Set(float64(count))
}

// System Metrics Methods

// UpdateSystemMetrics updates all system metrics with current values
func (pm *PrometheusMetrics) UpdateSystemMetrics() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	pm.memory.Set(float64(memStats.Alloc))
	pm.goroutines.Set(float64(runtime.NumGoroutine()))
	pm.uptime.Set(time.Since(pm.startTime).Seconds())

	pm.lastUpdate = time.Now()
}

// GetUptime returns the application uptime
func (pm *PrometheusMetrics) GetUptime() time.Duration {
	return time.Since(pm.startTime)
}

// GetLastUpdate returns the last metrics update time
func (pm *PrometheusMetrics) GetLastUpdate() time.Time {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.lastUpdate
}

// StartPeriodicUpdates refreshes system metrics until ctx is done.
func (pm *PrometheusMetrics) StartPeriodicUpdates(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	pm.UpdateSystemMetrics()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pm.UpdateSystemMetrics()
		}
	}
}

// Global instance for easy access
var globalMetrics *PrometheusMetrics
var metricsOnce sync.Once

// GetGlobalMetrics returns the global Prometheus metrics instance
func GetGlobalMetrics() *PrometheusMetrics {
	metricsOnce.Do(func() {
		globalMetrics = NewPrometheusMetrics()
	})
	return globalMetrics
}

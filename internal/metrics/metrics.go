// Package metrics provides Prometheus metrics collection for the scanning
// engine: scan lifecycle counters, probe throughput, and scan durations.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry collects scanning metrics and exposes them for scraping.
type Registry struct {
	registry *prometheus.Registry

	scansTotal    *prometheus.CounterVec
	scanErrors    *prometheus.CounterVec
	scanDuration  *prometheus.HistogramVec
	probesTotal   prometheus.Counter
	openPortsSeen prometheus.Counter
	activeScans   prometheus.Gauge
}

// NewRegistry creates a metrics registry with all scanning collectors
// registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,
		scansTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reconwave_scans_total",
			Help: "Total number of scans by type and terminal status.",
		}, []string{"scan_type", "status"}),
		scanErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reconwave_scan_errors_total",
			Help: "Total number of scan errors by type and reason.",
		}, []string{"scan_type", "reason"}),
		scanDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "reconwave_scan_duration_seconds",
			Help:    "Wall-clock duration of finished scans.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
		}, []string{"scan_type"}),
		probesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reconwave_probes_total",
			Help: "Total number of port probes issued.",
		}),
		openPortsSeen: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reconwave_open_ports_total",
			Help: "Total number of open ports discovered.",
		}),
		activeScans: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "reconwave_active_scans",
			Help: "Number of scans currently running.",
		}),
	}

	reg.MustRegister(
		r.scansTotal,
		r.scanErrors,
		r.scanDuration,
		r.probesTotal,
		r.openPortsSeen,
		r.activeScans,
	)

	return r
}

// Handler returns an HTTP handler serving the metrics in Prometheus
// exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// IncrementScansTotal records a finished scan with its terminal status.
func (r *Registry) IncrementScansTotal(scanType, status string) {
	r.scansTotal.WithLabelValues(scanType, status).Inc()
}

// IncrementScanErrors records a scan error by reason.
func (r *Registry) IncrementScanErrors(scanType, reason string) {
	r.scanErrors.WithLabelValues(scanType, reason).Inc()
}

// RecordScanDuration records the wall-clock duration of a finished scan.
func (r *Registry) RecordScanDuration(scanType string, seconds float64) {
	r.scanDuration.WithLabelValues(scanType).Observe(seconds)
}

// AddProbes records a number of issued probes.
func (r *Registry) AddProbes(n uint64) {
	r.probesTotal.Add(float64(n))
}

// IncrementOpenPorts records a discovered open port.
func (r *Registry) IncrementOpenPorts() {
	r.openPortsSeen.Inc()
}

// SetActiveScans sets the running-scan gauge.
func (r *Registry) SetActiveScans(n int) {
	r.activeScans.Set(float64(n))
}

// Global registry instance - can be replaced for testing.
var (
	globalMu       sync.RWMutex
	globalRegistry = NewRegistry()
)

// GetGlobalMetrics returns the global metrics registry.
func GetGlobalMetrics() *Registry {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalRegistry
}

// SetGlobalMetrics replaces the global metrics registry.
func SetGlobalMetrics(r *Registry) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalRegistry = r
}

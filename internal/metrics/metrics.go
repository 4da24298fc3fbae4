// Package metrics holds Prometheus instruments for the driver session core.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Driver holds all Prometheus metrics for one session. Every method is safe
// to call on a nil receiver, so callers never guard for disabled metrics.
type Driver struct {
	requestsEnqueued   prometheus.Counter
	requestsDispatched prometheus.Counter
	requestsRejected   *prometheus.CounterVec
	hostsDiscovered    prometheus.Gauge
	workerScans        prometheus.Counter
	connectDuration    prometheus.Histogram
	shutdownDuration   prometheus.Histogram
}

// New registers and returns the driver metrics on reg. A nil registerer
// returns nil; a nil *Driver means metrics disabled.
func New(reg prometheus.Registerer) *Driver {
	if reg == nil {
		return nil
	}
	f := promauto.With(reg)
	return &Driver{
		requestsEnqueued: f.NewCounter(prometheus.CounterOpts{
			Name: "pairdb_driver_requests_enqueued_total",
			Help: "Requests accepted onto the session command queue",
		}),
		requestsDispatched: f.NewCounter(prometheus.CounterOpts{
			Name: "pairdb_driver_requests_dispatched_total",
			Help: "Requests handed to an I/O worker",
		}),
		requestsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pairdb_driver_requests_rejected_total",
			Help: "Requests failed before dispatch, by reason",
		}, []string{"reason"}),
		hostsDiscovered: f.NewGauge(prometheus.GaugeOpts{
			Name: "pairdb_driver_hosts_discovered",
			Help: "Hosts currently in the session registry",
		}),
		workerScans: f.NewCounter(prometheus.CounterOpts{
			Name: "pairdb_driver_worker_scans_exhausted_total",
			Help: "Dispatch attempts that found every worker saturated",
		}),
		connectDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "pairdb_driver_connect_duration_seconds",
			Help:    "Time from connect to session ready",
			Buckets: prometheus.DefBuckets,
		}),
		shutdownDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "pairdb_driver_shutdown_duration_seconds",
			Help:    "Time from shutdown to full drain",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// IncEnqueued counts a request accepted onto the command queue.
func (d *Driver) IncEnqueued() {
	if d == nil {
		return
	}
	d.requestsEnqueued.Inc()
}

// IncDispatched counts a request handed to a worker.
func (d *Driver) IncDispatched() {
	if d == nil {
		return
	}
	d.requestsDispatched.Inc()
}

// ObserveReject counts a request failed before dispatch, by reason.
func (d *Driver) ObserveReject(reason string) {
	if d == nil {
		return
	}
	d.requestsRejected.WithLabelValues(reason).Inc()
}

// SetHostsDiscovered records the current host registry size.
func (d *Driver) SetHostsDiscovered(n int) {
	if d == nil {
		return
	}
	d.hostsDiscovered.Set(float64(n))
}

// IncWorkerScanExhausted counts a dispatch scan that found every worker busy.
func (d *Driver) IncWorkerScanExhausted() {
	if d == nil {
		return
	}
	d.workerScans.Inc()
}

// ObserveConnectDuration records how long the session took to become ready.
func (d *Driver) ObserveConnectDuration(dur time.Duration) {
	if d == nil {
		return
	}
	d.connectDuration.Observe(dur.Seconds())
}

// ObserveShutdownDuration records how long the session took to drain.
func (d *Driver) ObserveShutdownDuration(dur time.Duration) {
	if d == nil {
		return
	}
	d.shutdownDuration.Observe(dur.Seconds())
}

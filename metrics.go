// SPDX-License-Identifier: MIT

package petscan

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the Prometheus collectors this module registers,
// following the teacher's registration style in cmd/qrank-webserver/main.go
// (namespace + GaugeOpts/HistogramOpts, registered once at construction).
// A nil *Metrics disables instrumentation everywhere it is threaded through
// (AppState, Platform) without requiring nil checks at every call site to
// be anything more than "metrics != nil".
type Metrics struct {
	poolSlotWait   prometheus.Histogram
	poolRetries    prometheus.Counter
	dbConnectRetry prometheus.Counter
	runDuration    prometheus.Histogram
}

// NewMetrics registers petscan's collectors with registry and returns a
// Metrics ready to pass to NewAppState/PlatformOption WithMetrics.
func NewMetrics(registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{
		poolSlotWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "petscan",
			Subsystem: "pool",
			Name:      "slot_wait_seconds",
			Help:      "Time spent waiting for a free database credential slot.",
			Buckets:   prometheus.DefBuckets,
		}),
		poolRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "petscan",
			Subsystem: "pool",
			Name:      "slot_acquire_retries_total",
			Help:      "Number of contended attempts to acquire a database credential slot.",
		}),
		dbConnectRetry: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "petscan",
			Subsystem: "db",
			Name:      "connect_retries_total",
			Help:      "Number of retried connection attempts to a wiki database replica.",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "petscan",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock time of a full Platform.Run pipeline execution.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	for _, c := range []prometheus.Collector{m.poolSlotWait, m.poolRetries, m.dbConnectRetry, m.runDuration} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observePoolSlotWait(d time.Duration) {
	if m == nil {
		return
	}
	m.poolSlotWait.Observe(d.Seconds())
}

func (m *Metrics) incPoolRetry() {
	if m == nil {
		return
	}
	m.poolRetries.Inc()
}

func (m *Metrics) incDBConnectRetry() {
	if m == nil {
		return
	}
	m.dbConnectRetry.Inc()
}

// ObserveRunDuration records a full pipeline run's wall-clock time.
func (m *Metrics) ObserveRunDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.runDuration.Observe(d.Seconds())
}

// Package obsmetrics provides the ambient Prometheus instrumentation
// wired into the host-call dispatcher, the policy resolver, and the
// event dispatcher, in the same promauto.New*/global-singleton shape
// internal/services/scheduler/metrics.go uses for a comparable counter
// bundle.
package obsmetrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every counter/histogram this runtime exposes at
// /metrics.
type Metrics struct {
	HostCalls        *prometheus.CounterVec
	PolicyDecisions  *prometheus.CounterVec
	EventDispatches  prometheus.Observer
	ExtensionsLoaded prometheus.Gauge
}

var (
	once     sync.Once
	instance *Metrics
)

// Global returns the process-wide Metrics instance, constructing and
// registering it with the default Prometheus registry on first use.
func Global() *Metrics {
	once.Do(func() {
		instance = newMetrics()
	})
	return instance
}

func newMetrics() *Metrics {
	return &Metrics{
		HostCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pi",
			Subsystem: "hostcall",
			Name:      "requests_total",
			Help:      "Host calls dispatched, labeled by capability and outcome code",
		}, []string{"capability", "outcome"}),
		PolicyDecisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pi",
			Subsystem: "policy",
			Name:      "decisions_total",
			Help:      "Policy evaluations, labeled by decision and reason",
		}, []string{"decision", "reason"}),
		EventDispatches: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pi",
			Subsystem: "events",
			Name:      "dispatch_duration_seconds",
			Help:      "Wall time to invoke every subscribed hook for one dispatched event",
			Buckets:   prometheus.DefBuckets,
		}),
		ExtensionsLoaded: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "pi",
			Subsystem: "loadpipeline",
			Name:      "extensions_loaded",
			Help:      "Extensions currently loaded and running",
		}),
	}
}

// RecordHostCall is a nil-safe helper so callers can hold a possibly-nil
// *Metrics without branching at every call site.
func (m *Metrics) RecordHostCall(capability, outcome string) {
	if m == nil {
		return
	}
	m.HostCalls.WithLabelValues(capability, outcome).Inc()
}

// RecordPolicyDecision is the policy-side equivalent of RecordHostCall.
func (m *Metrics) RecordPolicyDecision(decision, reason string) {
	if m == nil {
		return
	}
	m.PolicyDecisions.WithLabelValues(decision, reason).Inc()
}

// StartEventDispatch returns a stop function that records the elapsed
// time against the EventDispatches histogram, or a no-op if m is nil.
func (m *Metrics) StartEventDispatch() func() {
	if m == nil {
		return func() {}
	}
	timer := prometheus.NewTimer(m.EventDispatches)
	return func() { timer.ObserveDuration() }
}

// SetExtensionsLoaded reports the current loaded-extension count.
func (m *Metrics) SetExtensionsLoaded(n int) {
	if m == nil {
		return
	}
	m.ExtensionsLoaded.Set(float64(n))
}

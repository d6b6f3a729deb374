// Package metrics exposes the Prometheus counters and histograms the
// worker pool records for every invocation: outcome counts by state, a
// fuel-consumption histogram, and an outbound-HTTP outcome counter fed by
// the http-outbound host. All series live under the "edge_runtime"
// namespace so they compose cleanly on a shared registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hszk-dev/edge-runtime/runner"
	"github.com/hszk-dev/edge-runtime/store"
)

const namespace = "edge_runtime"

// Recorder wraps a Prometheus registry with the fixed set of series the
// runner and outbound HTTP host update.
type Recorder struct {
	Invocations    *prometheus.CounterVec
	FuelConsumed   prometheus.Histogram
	Duration       prometheus.Histogram
	MemoryUsed     prometheus.Histogram
	HTTPRequests   *prometheus.CounterVec
	InstancesInUse prometheus.Gauge
}

// NewRecorder builds a Recorder and registers its series with reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		Invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invocations_total",
			Help:      "Guest invocations by terminal state.",
		}, []string{"state"}),
		FuelConsumed: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fuel_consumed",
			Help:      "Fuel units consumed per invocation.",
			Buckets:   prometheus.ExponentialBuckets(1000, 4, 10),
		}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "invocation_duration_seconds",
			Help:      "Wall-clock duration of a guest invocation.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 3, 12),
		}),
		MemoryUsed: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "memory_used_bytes",
			Help:      "Linear memory size sampled at the end of an invocation.",
			Buckets:   prometheus.ExponentialBuckets(1<<16, 2, 12),
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_outbound_requests_total",
			Help:      "Outbound HTTP calls made by guests, by outcome kind.",
		}, []string{"outcome"}),
		InstancesInUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "instances_in_use",
			Help:      "Instances currently checked out of the worker pool.",
		}),
	}
	reg.MustRegister(r.Invocations, r.FuelConsumed, r.Duration, r.MemoryUsed, r.HTTPRequests, r.InstancesInUse)
	return r
}

// ObserveResult records one invocation's outcome and metrics.
func (r *Recorder) ObserveResult(result runner.ExecutionResult, m store.Metrics) {
	r.Invocations.WithLabelValues(string(result.State)).Inc()
	r.FuelConsumed.Observe(float64(m.FuelConsumed))
	r.Duration.Observe(m.Duration.Seconds())
	r.MemoryUsed.Observe(float64(m.MemoryUsedBytes))
}

// ObserveHTTPOutcome records one outbound HTTP call's outcome kind, either
// "ok" or one of the HTTPErrorKind values from the host package.
func (r *Recorder) ObserveHTTPOutcome(outcome string) {
	r.HTTPRequests.WithLabelValues(outcome).Inc()
}

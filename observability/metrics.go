package observability

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type requestMetrics struct {
	transitions *prometheus.CounterVec
	votes       *prometheus.CounterVec
	active      prometheus.Gauge
}

var (
	requestMetricsOnce sync.Once
	requestRegistry    *requestMetrics

	externalCallOnce sync.Once
	externalCallReg  *ExternalCallMetrics

	gatewayOnce sync.Once
	gatewayReg  *GatewayMetrics
)

// RequestMetrics returns the lazily-initialised metrics registry tracking
// request state machine transitions and vote activity.
func RequestMetrics() *requestMetrics {
	requestMetricsOnce.Do(func() {
		requestRegistry = &requestMetrics{
			transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "mpc",
				Subsystem: "request",
				Name:      "transitions_total",
				Help:      "Count of request state machine transitions segmented by from/to state.",
			}, []string{"from", "to"}),
			votes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "mpc",
				Subsystem: "request",
				Name:      "votes_total",
				Help:      "Count of votes cast segmented by choice.",
			}, []string{"choice"}),
			active: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "mpc",
				Subsystem: "request",
				Name:      "executing",
				Help:      "Number of requests currently in the Executing state.",
			}),
		}
		prometheus.MustRegister(
			requestRegistry.transitions,
			requestRegistry.votes,
			requestRegistry.active,
		)
	})
	return requestRegistry
}

// RecordTransition increments the transition counter for a state change.
func (m *requestMetrics) RecordTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(labelOrUnknown(from), labelOrUnknown(to)).Inc()
}

// RecordVote increments the vote counter for the supplied choice.
func (m *requestMetrics) RecordVote(choice string) {
	if m == nil {
		return
	}
	m.votes.WithLabelValues(labelOrUnknown(choice)).Inc()
}

// SetExecuting raises the executing gauge when a request enters Executing
// and lowers it when a request leaves it.
func (m *requestMetrics) SetExecuting(executing bool) {
	if m == nil {
		return
	}
	if executing {
		m.active.Inc()
		return
	}
	m.active.Dec()
}

// ExternalCallMetrics instruments the KDF and oracle clients, which are the
// coordinator's only outbound dependencies and its primary source of
// retried, latent calls.
type ExternalCallMetrics struct {
	calls    *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	retries  *prometheus.CounterVec
}

// ExternalCalls returns the singleton registry for KDF/oracle call metrics.
func ExternalCalls() *ExternalCallMetrics {
	externalCallOnce.Do(func() {
		externalCallReg = &ExternalCallMetrics{
			calls: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "mpc",
				Subsystem: "external",
				Name:      "calls_total",
				Help:      "Count of outbound KDF/oracle calls segmented by dependency and outcome.",
			}, []string{"dependency", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "mpc",
				Subsystem: "external",
				Name:      "call_duration_seconds",
				Help:      "Latency distribution for outbound KDF/oracle calls.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"dependency"}),
			retries: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "mpc",
				Subsystem: "external",
				Name:      "retries_total",
				Help:      "Count of retry attempts issued against an outbound dependency.",
			}, []string{"dependency"}),
		}
		prometheus.MustRegister(
			externalCallReg.calls,
			externalCallReg.latency,
			externalCallReg.retries,
		)
	})
	return externalCallReg
}

// Observe records the outcome and latency of a single call attempt.
func (m *ExternalCallMetrics) Observe(dependency string, err error, d time.Duration) {
	if m == nil {
		return
	}
	dep := labelOrUnknown(dependency)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.calls.WithLabelValues(dep, outcome).Inc()
	m.latency.WithLabelValues(dep).Observe(d.Seconds())
}

// RecordRetry increments the retry counter for a dependency.
func (m *ExternalCallMetrics) RecordRetry(dependency string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(labelOrUnknown(dependency)).Inc()
}

// GatewayMetrics tracks coarse HTTP-layer activity not already covered by
// gateway/middleware.Observability: error responses written by the route
// handlers, segmented by error kind.
type GatewayMetrics struct {
	rejections *prometheus.CounterVec
}

// Gateway returns the singleton gateway-level metrics registry.
func Gateway() *GatewayMetrics {
	gatewayOnce.Do(func() {
		gatewayReg = &GatewayMetrics{
			rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "mpc",
				Subsystem: "gateway",
				Name:      "rejections_total",
				Help:      "Count of error responses written by route handlers, segmented by error kind.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(gatewayReg.rejections)
	})
	return gatewayReg
}

// RecordRejection increments the rejection counter for an error kind such
// as "Unauthenticated" or "InvalidState".
func (m *GatewayMetrics) RecordRejection(reason string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(labelOrUnknown(reason)).Inc()
}

func labelOrUnknown(s string) string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}

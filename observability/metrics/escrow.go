package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EscrowMetrics tracks state machine activity.
type EscrowMetrics struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	events     *prometheus.CounterVec
}

var (
	escrowOnce     sync.Once
	escrowRegistry *EscrowMetrics
)

// Escrow returns the lazily registered escrow metrics.
func Escrow() *EscrowMetrics {
	escrowOnce.Do(func() {
		escrowRegistry = &EscrowMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "escrow_operations_total",
				Help: "Count of escrow operations by operation and outcome.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "escrow_operation_duration_seconds",
				Help:    "Latency of escrow operations including the storage commit.",
				Buckets: prometheus.DefBuckets,
			}, []string{"operation"}),
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "escrow_events_emitted_total",
				Help: "Count of committed escrow events by type.",
			}, []string{"type"}),
		}
		prometheus.MustRegister(
			escrowRegistry.operations,
			escrowRegistry.latency,
			escrowRegistry.events,
		)
	})
	return escrowRegistry
}

// ObserveOperation records one finished operation. An empty outcome is
// reported as "ok".
func (m *EscrowMetrics) ObserveOperation(operation, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	operation = strings.TrimSpace(operation)
	if operation == "" {
		operation = "unknown"
	}
	if outcome == "" {
		outcome = "ok"
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.latency.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func (m *EscrowMetrics) IncEvent(eventType string) {
	if m == nil {
		return
	}
	if eventType == "" {
		eventType = "unknown"
	}
	m.events.WithLabelValues(eventType).Inc()
}

// OperationCount returns the current counter value. Intended for tests.
func (m *EscrowMetrics) OperationCount(operation, outcome string) float64 {
	if m == nil {
		return 0
	}
	return counterValue(m.operations.WithLabelValues(operation, outcome))
}

package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// RPCMetrics tracks the JSON-RPC surface.
type RPCMetrics struct {
	requests  *prometheus.CounterVec
	durations *prometheus.HistogramVec
	throttles prometheus.Counter
}

var (
	rpcOnce     sync.Once
	rpcRegistry *RPCMetrics
)

func RPC() *RPCMetrics {
	rpcOnce.Do(func() {
		rpcRegistry = &RPCMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "escrowd",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total HTTP requests segmented by route, method and status.",
			}, []string{"route", "method", "status"}),
			durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "escrowd",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route", "method"}),
			throttles: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "escrowd",
				Subsystem: "rpc",
				Name:      "throttles_total",
				Help:      "Requests rejected by the per-client rate limiter.",
			}),
		}
		prometheus.MustRegister(rpcRegistry.requests, rpcRegistry.durations, rpcRegistry.throttles)
	})
	return rpcRegistry
}

func (m *RPCMetrics) Observe(route, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.durations.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

func (m *RPCMetrics) IncThrottle() {
	if m == nil {
		return
	}
	m.throttles.Inc()
}

func counterValue(c prometheus.Counter) float64 {
	var out dto.Metric
	if err := c.Write(&out); err != nil || out.Counter == nil {
		return 0
	}
	return out.Counter.GetValue()
}

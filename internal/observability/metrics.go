package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "remotemcp",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"server", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "remotemcp",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"server", "method", "path", "status"},
	)
	dispatchCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "remotemcp",
			Subsystem: "dispatch",
			Name:      "calls_total",
			Help:      "Dispatched operation calls by affinity and outcome.",
		},
		[]string{"operation", "affinity", "outcome"},
	)
	dispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "remotemcp",
			Subsystem: "dispatch",
			Name:      "call_duration_seconds",
			Help:      "Dispatch latency in seconds, including time spent queued for the host tick.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation", "affinity", "outcome"},
	)
	ticks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "remotemcp",
			Subsystem: "tick",
			Name:      "ticks_total",
			Help:      "Host ticks processed by the executor.",
		},
	)
	tickCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "remotemcp",
			Subsystem: "tick",
			Name:      "calls_total",
			Help:      "Host-affine calls drained per outcome.",
		},
		[]string{"outcome"},
	)
	tickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "remotemcp",
			Subsystem: "tick",
			Name:      "drain_duration_seconds",
			Help:      "Time spent draining the queue in one tick.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		},
	)
	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "remotemcp",
			Subsystem: "tick",
			Name:      "queue_depth",
			Help:      "Calls waiting for the next host tick.",
		},
	)
	streams = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "remotemcp",
			Subsystem: "sse",
			Name:      "open_streams",
			Help:      "Open server-sent event streams.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			dispatchCalls,
			dispatchDuration,
			ticks,
			tickCalls,
			tickDuration,
			queueDepth,
			streams,
		)
	})
}

func RecordHTTPRequest(server, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(server, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(server, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordDispatch(operation, affinity, outcome string, duration time.Duration) {
	RegisterMetrics()
	dispatchCalls.WithLabelValues(operation, affinity, outcome).Inc()
	dispatchDuration.WithLabelValues(operation, affinity, outcome).Observe(duration.Seconds())
}

func RecordTick(drained, failed int, duration time.Duration) {
	RegisterMetrics()
	ticks.Inc()
	if drained == 0 {
		return
	}
	tickCalls.WithLabelValues("success").Add(float64(drained - failed))
	tickCalls.WithLabelValues("failure").Add(float64(failed))
	tickDuration.Observe(duration.Seconds())
}

func SetQueueDepth(n int) {
	RegisterMetrics()
	queueDepth.Set(float64(n))
}

func AddOpenStreams(delta int) {
	RegisterMetrics()
	streams.Add(float64(delta))
}

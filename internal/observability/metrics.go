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
			Namespace: "ocppctl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ocppctl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	outboundCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ocppctl",
			Subsystem: "calls",
			Name:      "outbound_total",
			Help:      "Outbound OCPP calls by outcome.",
		},
		[]string{"version", "action", "outcome"},
	)
	outboundDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ocppctl",
			Subsystem: "calls",
			Name:      "outbound_duration_seconds",
			Help:      "Time from transmit to reply for outbound OCPP calls.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"version", "action", "outcome"},
	)
	inboundCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ocppctl",
			Subsystem: "calls",
			Name:      "inbound_total",
			Help:      "Inbound OCPP calls by reply code.",
		},
		[]string{"version", "action", "code"},
	)
	inboundDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ocppctl",
			Subsystem: "calls",
			Name:      "inbound_duration_seconds",
			Help:      "Handler time for inbound OCPP calls.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"version", "action", "code"},
	)
	droppedMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ocppctl",
			Subsystem: "messages",
			Name:      "dropped_total",
			Help:      "Inbound messages dropped without effect.",
		},
		[]string{"version", "reason"},
	)
	activeSessions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "ocppctl",
			Subsystem: "sessions",
			Name:      "active",
			Help:      "Open OCPP sessions.",
		},
		[]string{"transport", "version"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			outboundCalls,
			outboundDuration,
			inboundCalls,
			inboundDuration,
			droppedMessages,
			activeSessions,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

// RecordOutboundCall counts one resolved outbound call. outcome is one of
// result, error, timeout, closed, canceled.
func RecordOutboundCall(version, action, outcome string, duration time.Duration) {
	RegisterMetrics()
	outboundCalls.WithLabelValues(version, action, outcome).Inc()
	outboundDuration.WithLabelValues(version, action, outcome).Observe(duration.Seconds())
}

// RecordInboundCall counts one answered inbound call. An empty code means a
// CallResult was sent.
func RecordInboundCall(version, action, code string, duration time.Duration) {
	RegisterMetrics()
	if code == "" {
		code = "ok"
	}
	inboundCalls.WithLabelValues(version, action, code).Inc()
	inboundDuration.WithLabelValues(version, action, code).Observe(duration.Seconds())
}

// RecordDropped counts a message discarded by a session: a decode failure or
// a stray reply.
func RecordDropped(version, reason string) {
	RegisterMetrics()
	droppedMessages.WithLabelValues(version, reason).Inc()
}

func SessionOpened(transport, version string) {
	RegisterMetrics()
	activeSessions.WithLabelValues(transport, version).Inc()
}

func SessionClosed(transport, version string) {
	RegisterMetrics()
	activeSessions.WithLabelValues(transport, version).Dec()
}

package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the HTTP server.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Connection metrics
	ConnectionsAccepted prometheus.Counter
	ConnectionsRejected prometheus.Counter
	ActiveConnections   prometheus.Gauge
	QueueSize           prometheus.Gauge

	// Request metrics
	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ParseErrors     *prometheus.CounterVec
	HandlerPanics   prometheus.Counter

	// Session metrics
	ActiveSessions  prometheus.Gauge
	SessionsCreated prometheus.Counter
	SessionsExpired prometheus.Counter
}

// NewRegistry returns a registry carrying the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// NewMetrics creates all metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ConnectionsAccepted: factory.NewCounter(prometheus.CounterOpts{
			Name: "httpserver_connections_accepted_total",
			Help: "Total number of TCP connections accepted",
		}),
		ConnectionsRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "httpserver_connections_rejected_total",
			Help: "Total number of connections answered with 503 because the worker queue was full",
		}),
		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "httpserver_active_connections",
			Help: "Current number of connections being processed by workers",
		}),
		QueueSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "httpserver_worker_queue_size",
			Help: "Current number of connections waiting for a worker",
		}),

		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "httpserver_requests_total",
			Help: "Total number of HTTP requests handled",
		}, []string{"method", "status_code"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "httpserver_request_duration_seconds",
			Help:    "Time from parsed request to written response",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
		}, []string{"method"}),
		ParseErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "httpserver_parse_errors_total",
			Help: "Total number of requests rejected by the parser",
		}, []string{"reason"}),
		HandlerPanics: factory.NewCounter(prometheus.CounterOpts{
			Name: "httpserver_handler_panics_total",
			Help: "Total number of handler panics converted to 500 responses",
		}),

		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "httpserver_active_sessions",
			Help: "Current number of live sessions",
		}),
		SessionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "httpserver_sessions_created_total",
			Help: "Total number of sessions created",
		}),
		SessionsExpired: factory.NewCounter(prometheus.CounterOpts{
			Name: "httpserver_sessions_expired_total",
			Help: "Total number of sessions evicted after the idle timeout",
		}),
	}
}

// RecordConnectionAccepted increments the accepted connections counter
func (m *Metrics) RecordConnectionAccepted() {
	if m == nil {
		return
	}
	m.ConnectionsAccepted.Inc()
}

// RecordConnectionRejected increments the rejected connections counter
func (m *Metrics) RecordConnectionRejected() {
	if m == nil {
		return
	}
	m.ConnectionsRejected.Inc()
}

// ConnectionStarted and ConnectionFinished track connections held by workers.
func (m *Metrics) ConnectionStarted() {
	if m == nil {
		return
	}
	m.ActiveConnections.Inc()
}

func (m *Metrics) ConnectionFinished() {
	if m == nil {
		return
	}
	m.ActiveConnections.Dec()
}

// SetQueueSize sets the current queue size
func (m *Metrics) SetQueueSize(size int) {
	if m == nil {
		return
	}
	m.QueueSize.Set(float64(size))
}

// RecordRequest records a handled request
func (m *Metrics) RecordRequest(method string, statusCode int, durationSeconds float64) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(method, strconv.Itoa(statusCode)).Inc()
	m.RequestDuration.WithLabelValues(method).Observe(durationSeconds)
}

// RecordParseError increments the parse errors counter for reason
func (m *Metrics) RecordParseError(reason string) {
	if m == nil {
		return
	}
	m.ParseErrors.WithLabelValues(reason).Inc()
}

// RecordHandlerPanic increments the handler panics counter
func (m *Metrics) RecordHandlerPanic() {
	if m == nil {
		return
	}
	m.HandlerPanics.Inc()
}

// RecordSessionCreated increments the sessions created counter
func (m *Metrics) RecordSessionCreated() {
	if m == nil {
		return
	}
	m.SessionsCreated.Inc()
}

// RecordSessionsExpired adds n to the expired sessions counter
func (m *Metrics) RecordSessionsExpired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SessionsExpired.Add(float64(n))
}

// SetActiveSessions sets the current number of live sessions
func (m *Metrics) SetActiveSessions(count int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(count))
}

package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "helpdesk"

// Metrics holds the service's Prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	RequestCount     *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	ErrorCount       *prometheus.CounterVec
	Notifications    *prometheus.CounterVec
	Pushes           *prometheus.CounterVec
	AuditFailures    prometheus.Counter
	EventFailures    *prometheus.CounterVec
	OutboxDepth      prometheus.Gauge
	ReaperClosed     prometheus.Counter
	ReaperSkipped    prometheus.Counter
	ReaperRuns       *prometheus.CounterVec
	ReaperLockErrors prometheus.Counter
	RealtimeSessions prometheus.Gauge
}

// NewMetrics registers collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		RequestCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		ErrorCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "errors_total",
			Help:      "HTTP errors by domain error code",
		}, []string{"method", "route", "code"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "persisted_total",
			Help:      "Notification rows by type and outcome",
		}, []string{"type", "outcome"}),
		Pushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "pushes_total",
			Help:      "Real-time messages published by event name",
		}, []string{"event"}),
		AuditFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "failures_total",
			Help:      "Activity log appends that failed",
		}),
		EventFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "handler_failures_total",
			Help:      "Domain event handler failures by event kind",
		}, []string{"kind"}),
		OutboxDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "outbox_depth",
			Help:      "Events waiting in the outbox queue",
		}),
		ReaperClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reaper",
			Name:      "tickets_closed_total",
			Help:      "Tickets closed for inactivity",
		}),
		ReaperSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reaper",
			Name:      "tickets_skipped_total",
			Help:      "Candidates that no longer matched the close guard",
		}),
		ReaperRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reaper",
			Name:      "runs_total",
			Help:      "Reaper runs by outcome",
		}, []string{"outcome"}),
		ReaperLockErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reaper",
			Name:      "lock_errors_total",
			Help:      "Passes that ran without the shared lease because the lock store failed",
		}),
		RealtimeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "connections",
			Help:      "Open websocket connections",
		}),
	}

	reg.MustRegister(
		m.RequestCount,
		m.RequestDuration,
		m.ErrorCount,
		m.Notifications,
		m.Pushes,
		m.AuditFailures,
		m.EventFailures,
		m.OutboxDepth,
		m.ReaperClosed,
		m.ReaperSkipped,
		m.ReaperRuns,
		m.ReaperLockErrors,
		m.RealtimeSessions,
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestCount.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(route, method, code string) {
	if m == nil {
		return
	}
	m.ErrorCount.WithLabelValues(method, route, code).Inc()
}

// RecordNotification counts a persisted or failed notification row.
func (m *Metrics) RecordNotification(notificationType string, ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	m.Notifications.WithLabelValues(notificationType, outcome).Inc()
}

// RecordPush counts a real-time publish.
func (m *Metrics) RecordPush(event string) {
	if m == nil {
		return
	}
	m.Pushes.WithLabelValues(event).Inc()
}

// RecordAuditFailure counts a dropped activity entry.
func (m *Metrics) RecordAuditFailure() {
	if m == nil {
		return
	}
	m.AuditFailures.Inc()
}

// RecordEventFailure counts a failed event handler.
func (m *Metrics) RecordEventFailure(kind string) {
	if m == nil {
		return
	}
	m.EventFailures.WithLabelValues(kind).Inc()
}

// SetOutboxDepth reports the current outbox backlog.
func (m *Metrics) SetOutboxDepth(n int) {
	if m == nil {
		return
	}
	m.OutboxDepth.Set(float64(n))
}

// RecordReaperRun counts a finished reaper pass.
func (m *Metrics) RecordReaperRun(outcome string, closed, skipped int) {
	if m == nil {
		return
	}
	m.ReaperRuns.WithLabelValues(outcome).Inc()
	m.ReaperClosed.Add(float64(closed))
	m.ReaperSkipped.Add(float64(skipped))
}

// RecordReaperLockError counts a lease attempt that failed outright.
func (m *Metrics) RecordReaperLockError() {
	if m == nil {
		return
	}
	m.ReaperLockErrors.Inc()
}

// TrackRealtimeSession adjusts the open connection gauge.
func (m *Metrics) TrackRealtimeSession(delta int) {
	if m == nil {
		return
	}
	m.RealtimeSessions.Add(float64(delta))
}

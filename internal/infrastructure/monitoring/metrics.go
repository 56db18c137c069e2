package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records
// nothing, so components can take one optionally.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Terminal metrics
	TerminalsActive      prometheus.Gauge
	TerminalsCreated     prometheus.Counter
	LifecycleTransitions *prometheus.CounterVec
	WriteRetries         *prometheus.CounterVec

	// Buffer metrics
	BufferFlushes     *prometheus.CounterVec
	BufferFlushedSize prometheus.Histogram
	AgentMode         prometheus.Gauge

	// Dispatcher metrics
	QueueDepth        prometheus.Gauge
	MessagesSent      *prometheus.CounterVec
	MessagesRejected  prometheus.Counter
	MessagesRetried   prometheus.Counter
	MessagesDropped   prometheus.Counter
	HandshakeFailures prometheus.Counter
	HandshakeLatency  prometheus.Histogram

	// Session metrics
	SessionsSaved    prometheus.Counter
	SessionsRestored prometheus.Counter
	RestoreSkipped   prometheus.Counter

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds current metric values for the diagnostics endpoint.
type Snapshot struct {
	TotalRequests     int64   `json:"totalRequests"`
	TotalErrors       int64   `json:"totalErrors"`
	ActiveTerminals   int64   `json:"activeTerminals"`
	ActiveConnections int64   `json:"activeConnections"`
	Flushes           int64   `json:"flushes"`
	FlushedBytes      int64   `json:"flushedBytes"`
	QueueDepth        int64   `json:"queueDepth"`
	HandshakeFailures int64   `json:"handshakeFailures"`
	UptimeSeconds     float64 `json:"uptimeSeconds"`
}

// NewMetrics creates a metrics collector registered on reg. A nil reg
// creates a private registry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		// HTTP metrics
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "termhost_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "termhost_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		RequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "termhost_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000},
			},
			[]string{"method", "path"},
		),
		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "termhost_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000},
			},
			[]string{"method", "path"},
		),

		// Terminal metrics
		TerminalsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "termhost_terminals_active",
				Help: "Number of live terminals",
			},
		),
		TerminalsCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "termhost_terminals_created_total",
				Help: "Total number of terminals created",
			},
		),
		LifecycleTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "termhost_lifecycle_transitions_total",
				Help: "Lifecycle transitions by target state",
			},
			[]string{"to", "forced"},
		),
		WriteRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "termhost_write_retries_total",
				Help: "Input write retry outcomes",
			},
			[]string{"outcome"},
		),

		// Buffer metrics
		BufferFlushes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "termhost_buffer_flushes_total",
				Help: "Output buffer flushes by trigger",
			},
			[]string{"trigger"},
		),
		BufferFlushedSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "termhost_buffer_flush_bytes",
				Help:    "Size of coalesced output payloads in bytes",
				Buckets: prometheus.ExponentialBuckets(16, 4, 8),
			},
		),
		AgentMode: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "termhost_buffer_agent_mode",
				Help: "1 while the fast agent flush interval is active",
			},
		),

		// Dispatcher metrics
		QueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "termhost_dispatch_queue_depth",
				Help: "Messages waiting to be sent to the rendering surface",
			},
		),
		MessagesSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "termhost_dispatch_messages_sent_total",
				Help: "Messages delivered to the rendering surface",
			},
			[]string{"command"},
		),
		MessagesRejected: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "termhost_dispatch_messages_rejected_total",
				Help: "Messages rejected because the queue was full",
			},
		),
		MessagesRetried: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "termhost_dispatch_messages_retried_total",
				Help: "Message send retries",
			},
		),
		MessagesDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "termhost_dispatch_messages_dropped_total",
				Help: "Messages dropped after exhausting send retries",
			},
		),
		HandshakeFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "termhost_handshake_failures_total",
				Help: "Terminals whose creation handshake was never acknowledged",
			},
		),
		HandshakeLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "termhost_handshake_latency_seconds",
				Help:    "Time from terminal creation to startOutput acknowledgement",
				Buckets: []float64{.01, .05, .1, .2, .4, .8, 1.6, 3.2},
			},
		),

		// Session metrics
		SessionsSaved: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "termhost_sessions_saved_total",
				Help: "Total number of sessions saved",
			},
		),
		SessionsRestored: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "termhost_sessions_restored_total",
				Help: "Total number of terminals restored from a session",
			},
		),
		RestoreSkipped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "termhost_sessions_restore_skipped_total",
				Help: "Restores skipped because terminals already existed",
			},
		),

		// WebSocket metrics
		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "termhost_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "termhost_ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction", "command"},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "termhost_uptime_seconds",
			Help: "Backend uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	m.mu.Lock()
	m.snapshot.TotalRequests++
	if status != "" && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// SetTerminalsActive sets the number of live terminals
func (m *Metrics) SetTerminalsActive(count int) {
	if m == nil {
		return
	}
	m.TerminalsActive.Set(float64(count))
	m.mu.Lock()
	m.snapshot.ActiveTerminals = int64(count)
	m.mu.Unlock()
}

// IncTerminalsCreated increments the created terminals counter
func (m *Metrics) IncTerminalsCreated() {
	if m == nil {
		return
	}
	m.TerminalsCreated.Inc()
}

// RecordTransition records a lifecycle transition
func (m *Metrics) RecordTransition(to string, forced bool) {
	if m == nil {
		return
	}
	f := "false"
	if forced {
		f = "true"
	}
	m.LifecycleTransitions.WithLabelValues(to, f).Inc()
}

// RecordWriteRetry records the outcome of a retried write
func (m *Metrics) RecordWriteRetry(outcome string) {
	if m == nil {
		return
	}
	m.WriteRetries.WithLabelValues(outcome).Inc()
}

// RecordFlush records a coalesced output flush
func (m *Metrics) RecordFlush(trigger string, bytes int) {
	if m == nil {
		return
	}
	m.BufferFlushes.WithLabelValues(trigger).Inc()
	m.BufferFlushedSize.Observe(float64(bytes))
	m.mu.Lock()
	m.snapshot.Flushes++
	m.snapshot.FlushedBytes += int64(bytes)
	m.mu.Unlock()
}

// SetAgentMode records whether the fast flush interval is active
func (m *Metrics) SetAgentMode(active bool) {
	if m == nil {
		return
	}
	if active {
		m.AgentMode.Set(1)
	} else {
		m.AgentMode.Set(0)
	}
}

// SetQueueDepth sets the dispatcher queue depth
func (m *Metrics) SetQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(depth))
	m.mu.Lock()
	m.snapshot.QueueDepth = int64(depth)
	m.mu.Unlock()
}

// RecordSent records a delivered message
func (m *Metrics) RecordSent(command string) {
	if m == nil {
		return
	}
	m.MessagesSent.WithLabelValues(command).Inc()
}

// IncRejected increments the rejected messages counter
func (m *Metrics) IncRejected() {
	if m == nil {
		return
	}
	m.MessagesRejected.Inc()
}

// IncRetried increments the retried messages counter
func (m *Metrics) IncRetried() {
	if m == nil {
		return
	}
	m.MessagesRetried.Inc()
}

// IncDropped increments the dropped messages counter
func (m *Metrics) IncDropped() {
	if m == nil {
		return
	}
	m.MessagesDropped.Inc()
}

// IncHandshakeFailures increments the handshake failure counter
func (m *Metrics) IncHandshakeFailures() {
	if m == nil {
		return
	}
	m.HandshakeFailures.Inc()
	m.mu.Lock()
	m.snapshot.HandshakeFailures++
	m.mu.Unlock()
}

// ObserveHandshake records the time a handshake took to complete
func (m *Metrics) ObserveHandshake(d time.Duration) {
	if m == nil {
		return
	}
	m.HandshakeLatency.Observe(d.Seconds())
}

// IncSessionsSaved increments the sessions saved counter
func (m *Metrics) IncSessionsSaved() {
	if m == nil {
		return
	}
	m.SessionsSaved.Inc()
}

// AddSessionsRestored adds restored terminals to the counter
func (m *Metrics) AddSessionsRestored(count int) {
	if m == nil {
		return
	}
	m.SessionsRestored.Add(float64(count))
}

// IncRestoreSkipped increments the skipped restore counter
func (m *Metrics) IncRestoreSkipped() {
	if m == nil {
		return
	}
	m.RestoreSkipped.Inc()
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, command string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, command).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
	m.mu.Lock()
	m.snapshot.ActiveConnections++
	m.mu.Unlock()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
	m.mu.Lock()
	m.snapshot.ActiveConnections--
	m.mu.Unlock()
}

// Snapshot returns the current values tracked for the JSON API.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.RLock()
	s := m.snapshot
	m.mu.RUnlock()
	s.UptimeSeconds = time.Since(m.startTime).Seconds()
	return s
}

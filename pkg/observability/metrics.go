package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsConfig configures the Prometheus metrics sink.
type MetricsConfig struct {
	// Namespace is the Prometheus namespace (default: peerwire).
	Namespace string
	// MetricsPath is the HTTP path of the scrape endpoint (default: /metrics).
	MetricsPath string
	// MetricsPort is the scrape server port (default: 9090).
	MetricsPort int
	// HistogramBuckets overrides the default latency buckets.
	HistogramBuckets []float64
	// ConstLabels are attached to every metric.
	ConstLabels prometheus.Labels
	// Registry overrides the default registry, mainly for tests.
	Registry *prometheus.Registry
}

// Metrics is the engine's Prometheus instrumentation. All recording
// methods are safe on a nil receiver, so instrumentation can be left
// unconfigured without sprinkling nil checks through the engine.
type Metrics struct {
	config MetricsConfig
	server *http.Server

	requestsSent     *prometheus.CounterVec
	requestsReceived *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	pendingRequests  prometheus.Gauge
	requestTimeouts  prometheus.Counter
	protocolErrors   *prometheus.CounterVec
	sessionsActive   prometheus.Gauge
	sessionsTotal    prometheus.Counter
	transportFrames  *prometheus.CounterVec
	transportErrors  *prometheus.CounterVec
}

// NewMetrics creates and registers the engine metrics.
func NewMetrics(config MetricsConfig) (*Metrics, error) {
	if config.Namespace == "" {
		config.Namespace = "peerwire"
	}
	if config.MetricsPath == "" {
		config.MetricsPath = "/metrics"
	}
	if config.MetricsPort == 0 {
		config.MetricsPort = 9090
	}
	if len(config.HistogramBuckets) == 0 {
		config.HistogramBuckets = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
	}

	m := &Metrics{config: config}

	m.requestsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   config.Namespace,
		Name:        "requests_sent_total",
		Help:        "Outbound requests by method and terminal status",
		ConstLabels: config.ConstLabels,
	}, []string{"method", "status"})

	m.requestsReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   config.Namespace,
		Name:        "requests_received_total",
		Help:        "Inbound requests by method and response status",
		ConstLabels: config.ConstLabels,
	}, []string{"method", "status"})

	m.requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   config.Namespace,
		Name:        "request_duration_seconds",
		Help:        "Inbound request handling latency",
		Buckets:     config.HistogramBuckets,
		ConstLabels: config.ConstLabels,
	}, []string{"method"})

	m.pendingRequests = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   config.Namespace,
		Name:        "pending_requests",
		Help:        "Outbound requests awaiting a response",
		ConstLabels: config.ConstLabels,
	})

	m.requestTimeouts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   config.Namespace,
		Name:        "request_timeouts_total",
		Help:        "Outbound requests that expired before a response",
		ConstLabels: config.ConstLabels,
	})

	m.protocolErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   config.Namespace,
		Name:        "protocol_errors_total",
		Help:        "Non-fatal protocol errors by category",
		ConstLabels: config.ConstLabels,
	}, []string{"category"})

	m.sessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   config.Namespace,
		Name:        "sessions_active",
		Help:        "Sessions currently open",
		ConstLabels: config.ConstLabels,
	})

	m.sessionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   config.Namespace,
		Name:        "sessions_total",
		Help:        "Sessions opened since process start",
		ConstLabels: config.ConstLabels,
	})

	m.transportFrames = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   config.Namespace,
		Name:        "transport_frames_total",
		Help:        "Frames moved across the transport by direction",
		ConstLabels: config.ConstLabels,
	}, []string{"direction"})

	m.transportErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   config.Namespace,
		Name:        "transport_errors_total",
		Help:        "Transport operation failures",
		ConstLabels: config.ConstLabels,
	}, []string{"op"})

	registerer := prometheus.Registerer(prometheus.DefaultRegisterer)
	if config.Registry != nil {
		registerer = config.Registry
	}
	collectors := []prometheus.Collector{
		m.requestsSent, m.requestsReceived, m.requestDuration,
		m.pendingRequests, m.requestTimeouts, m.protocolErrors,
		m.sessionsActive, m.sessionsTotal,
		m.transportFrames, m.transportErrors,
	}
	for _, c := range collectors {
		if err := registerer.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}

	return m, nil
}

// Start launches the metrics scrape server in the background.
func (m *Metrics) Start() error {
	if m == nil {
		return nil
	}

	mux := http.NewServeMux()
	if m.config.Registry != nil {
		mux.Handle(m.config.MetricsPath, promhttp.HandlerFor(m.config.Registry, promhttp.HandlerOpts{}))
	} else {
		mux.Handle(m.config.MetricsPath, promhttp.Handler())
	}

	m.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", m.config.MetricsPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		_ = m.server.ListenAndServe()
	}()
	return nil
}

// Shutdown stops the scrape server.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m == nil || m.server == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}

// RequestSent records one completed outbound request.
func (m *Metrics) RequestSent(method, status string) {
	if m == nil {
		return
	}
	m.requestsSent.WithLabelValues(method, status).Inc()
}

// RequestReceived records one handled inbound request.
func (m *Metrics) RequestReceived(method, status string) {
	if m == nil {
		return
	}
	m.requestsReceived.WithLabelValues(method, status).Inc()
}

// ObserveRequestDuration records inbound handling latency.
func (m *Metrics) ObserveRequestDuration(method string, d time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(method).Observe(d.Seconds())
}

// SetPendingRequests records the current pending-table size.
func (m *Metrics) SetPendingRequests(n int) {
	if m == nil {
		return
	}
	m.pendingRequests.Set(float64(n))
}

// RequestsTimedOut counts requests expired by the deadline sweep.
func (m *Metrics) RequestsTimedOut(n int) {
	if m == nil {
		return
	}
	m.requestTimeouts.Add(float64(n))
}

// ProtocolError counts one non-fatal protocol error.
func (m *Metrics) ProtocolError(category string) {
	if m == nil {
		return
	}
	m.protocolErrors.WithLabelValues(category).Inc()
}

// SessionOpened records a session going live.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessionsActive.Inc()
	m.sessionsTotal.Inc()
}

// SessionClosed records a session ending.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.sessionsActive.Dec()
}

// FrameSent counts one outbound transport frame.
func (m *Metrics) FrameSent() {
	if m == nil {
		return
	}
	m.transportFrames.WithLabelValues("out").Inc()
}

// FrameReceived counts one inbound transport frame.
func (m *Metrics) FrameReceived() {
	if m == nil {
		return
	}
	m.transportFrames.WithLabelValues("in").Inc()
}

// TransportError counts one failed transport operation.
func (m *Metrics) TransportError(op string) {
	if m == nil {
		return
	}
	m.transportErrors.WithLabelValues(op).Inc()
}

package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Type bridge metrics
	TypesRegistered      prometheus.Counter
	Resolves             *prometheus.CounterVec
	RegistrationFailures prometheus.Counter
	PinnedHandles        prometheus.Gauge
	SurfacesActive       prometheus.Gauge

	// Page bridge metrics
	ScriptableObjects prometheus.Counter
	CreateableTypes   prometheus.Gauge
	Popups            *prometheus.CounterVec

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot MetricsSnapshot
	mu       sync.RWMutex
}

// MetricsSnapshot holds current metric values for JSON API
type MetricsSnapshot struct {
	TotalRequests   int64   `json:"total_requests"`
	TotalErrors     int64   `json:"total_errors"`
	TypesRegistered int64   `json:"types_registered"`
	FastResolves    int64   `json:"fast_resolves"`
	SlowResolves    int64   `json:"slow_resolves"`
	PinnedHandles   int64   `json:"pinned_handles"`
	UptimeSeconds   float64 `json:"uptime_seconds"`
}

// NewMetrics creates a metrics collector backed by its own registry, so
// several hosts (or tests) can coexist in one process.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "moonbridge_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "moonbridge_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),

		TypesRegistered: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "moonbridge_types_registered_total",
				Help: "Managed types registered with the native engine",
			},
		),
		Resolves: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "moonbridge_resolve_total",
				Help: "Type resolutions by path (fast = already registered)",
			},
			[]string{"path"},
		),
		RegistrationFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "moonbridge_registration_failures_total",
				Help: "Native registration calls that failed",
			},
		),
		PinnedHandles: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "moonbridge_pinned_handles",
				Help: "Handles currently pinned for native code",
			},
		),
		SurfacesActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "moonbridge_surfaces_active",
				Help: "Open engine surfaces",
			},
		),

		ScriptableObjects: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "moonbridge_scriptable_objects_total",
				Help: "Objects registered for page script",
			},
		),
		CreateableTypes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "moonbridge_createable_types",
				Help: "Types page script may create",
			},
		),
		Popups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "moonbridge_popups_total",
				Help: "Popup window requests by outcome",
			},
			[]string{"outcome"},
		),

		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "moonbridge_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "moonbridge_ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "moonbridge_uptime_seconds",
			Help: "Host uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Handler returns the Prometheus exposition handler for this collector.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalRequests++
	if status[0] == '4' || status[0] == '5' {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordResolve counts a type resolution. A nil collector is a no-op.
func (m *Metrics) RecordResolve(fast bool) {
	if m == nil {
		return
	}
	path := "slow"
	if fast {
		path = "fast"
	}
	m.Resolves.WithLabelValues(path).Inc()

	m.mu.Lock()
	if fast {
		m.snapshot.FastResolves++
	} else {
		m.snapshot.SlowResolves++
	}
	m.mu.Unlock()
}

// RecordTypeRegistered counts a successful native registration.
func (m *Metrics) RecordTypeRegistered() {
	if m == nil {
		return
	}
	m.TypesRegistered.Inc()
	m.PinnedHandles.Inc()

	m.mu.Lock()
	m.snapshot.TypesRegistered++
	m.snapshot.PinnedHandles++
	m.mu.Unlock()
}

// RecordRegistrationFailure counts a failed native registration.
func (m *Metrics) RecordRegistrationFailure() {
	if m == nil {
		return
	}
	m.RegistrationFailures.Inc()
}

// RecordHandlesReleased lowers the pinned handle gauge by n.
func (m *Metrics) RecordHandlesReleased(n int) {
	if m == nil {
		return
	}
	m.PinnedHandles.Sub(float64(n))

	m.mu.Lock()
	m.snapshot.PinnedHandles -= int64(n)
	m.mu.Unlock()
}

// IncSurfaces increments open surfaces
func (m *Metrics) IncSurfaces() {
	if m != nil {
		m.SurfacesActive.Inc()
	}
}

// DecSurfaces decrements open surfaces
func (m *Metrics) DecSurfaces() {
	if m != nil {
		m.SurfacesActive.Dec()
	}
}

// IncScriptableObjects counts a scriptable object registration
func (m *Metrics) IncScriptableObjects() {
	if m != nil {
		m.ScriptableObjects.Inc()
	}
}

// SetCreateableTypes sets the number of createable type aliases
func (m *Metrics) SetCreateableTypes(count int) {
	if m != nil {
		m.CreateableTypes.Set(float64(count))
	}
}

// RecordPopup counts a popup request by outcome ("opened", "blocked")
func (m *Metrics) RecordPopup(outcome string) {
	if m != nil {
		m.Popups.WithLabelValues(outcome).Inc()
	}
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	if m != nil {
		m.WSMessages.WithLabelValues(direction, msgType).Inc()
	}
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	if m != nil {
		m.WSConnections.Inc()
	}
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	if m != nil {
		m.WSConnections.Dec()
	}
}

// Snapshot returns the current values for the JSON API
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.snapshot
	s.UptimeSeconds = time.Since(m.startTime).Seconds()
	return s
}

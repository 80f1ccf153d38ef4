// Package metrics exposes hotline counters to Prometheus. Incident counters
// are fed from the event bus; HTTP latency comes from a gin middleware.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"hotline_backend/internal/events"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hotline"

// Metrics holds the collectors and the registry they are registered on.
type Metrics struct {
	registry *prometheus.Registry

	Activations    *prometheus.CounterVec
	Resolutions    *prometheus.CounterVec
	CallDuration   *prometheus.HistogramVec
	Orphans        prometheus.Counter
	RequestLatency *prometheus.HistogramVec
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Activations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activations_total",
			Help:      "Crisis activations by tier and whether a call was placed",
		}, []string{"tier", "call_placed", "persisted"}),
		Resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "incidents_resolved_total",
			Help:      "Terminal incident transitions by status and reason",
		}, []string{"status", "reason"}),
		CallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "call_duration_seconds",
			Help:      "Reported call duration of resolved incidents",
			Buckets:   prometheus.ExponentialBuckets(15, 2, 8),
		}, []string{"status"}),
		Orphans: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "callbacks_orphaned_total",
			Help:      "Provider callbacks that matched no incident",
		}),
		RequestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Activations,
		m.Resolutions,
		m.CallDuration,
		m.Orphans,
		m.RequestLatency,
	)
	return m
}

// Registry returns the registry to serve.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RegisterHandlers subscribes to incident events.
func (m *Metrics) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.IncidentActivated{}.EventName(), m)
	bus.Subscribe(events.IncidentResolved{}.EventName(), m)
	bus.Subscribe(events.CallbackOrphaned{}.EventName(), m)
}

// Handle records an event.
func (m *Metrics) Handle(_ context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.IncidentActivated:
		m.Activations.WithLabelValues(e.Tier, strconv.FormatBool(e.CallPlaced), strconv.FormatBool(e.Persisted)).Inc()
	case events.IncidentResolved:
		m.Resolutions.WithLabelValues(e.Status, e.Reason).Inc()
		if e.DurationSeconds != nil {
			m.CallDuration.WithLabelValues(e.Status).Observe(float64(*e.DurationSeconds))
		}
	case events.CallbackOrphaned:
		m.Orphans.Inc()
	}
	return nil
}

// Middleware observes request latency. Unmatched routes share one label.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.RequestLatency.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

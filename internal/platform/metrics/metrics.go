// Package metrics exposes Prometheus instrumentation for the record core.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors shared across the service.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests      *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
	AuthzDenials      *prometheus.CounterVec
	IdentifiersIssued *prometheus.CounterVec
	SoftDeletes       *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medical_core",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "medical_core",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		AuthzDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medical_core",
			Name:      "authorization_denials_total",
			Help:      "Policy-engine denials by resource and operation.",
		}, []string{"resource", "operation"}),
		IdentifiersIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medical_core",
			Name:      "identifiers_issued_total",
			Help:      "Patient-facing identifiers issued by kind.",
		}, []string{"kind"}),
		SoftDeletes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medical_core",
			Name:      "soft_deletes_total",
			Help:      "Soft-delete transitions by resource and reason.",
		}, []string{"resource", "reason"}),
	}

	registry.MustRegister(
		m.HTTPRequests,
		m.HTTPDuration,
		m.AuthzDenials,
		m.IdentifiersIssued,
		m.SoftDeletes,
	)

	return m
}

// Handler returns the /metrics exposition handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// EchoMiddleware instruments every request. Routes are labelled by their
// registered path, not the raw URL, to keep cardinality bounded.
func (m *Metrics) EchoMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else {
					status = http.StatusInternalServerError
				}
			}

			method := c.Request().Method
			m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			m.HTTPDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())

			return err
		}
	}
}

// RecordDenial counts a policy-engine denial.
func (m *Metrics) RecordDenial(resource, operation string) {
	if m == nil {
		return
	}
	m.AuthzDenials.WithLabelValues(resource, operation).Inc()
}

// RecordIssued counts an issued identifier ("patient_id" or "portal_id").
func (m *Metrics) RecordIssued(kind string) {
	if m == nil {
		return
	}
	m.IdentifiersIssued.WithLabelValues(kind).Inc()
}

// RecordSoftDelete counts a completed soft-delete transition.
func (m *Metrics) RecordSoftDelete(resource, reason string) {
	if m == nil {
		return
	}
	m.SoftDeletes.WithLabelValues(resource, reason).Inc()
}

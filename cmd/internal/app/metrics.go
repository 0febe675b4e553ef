package app

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the portal's Prometheus collectors on a private registry so
// /metrics exposes only what the portal itself records.
type Metrics struct {
	reg *prometheus.Registry

	requests     *prometheus.CounterVec
	secretsSaved prometheus.Counter
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		reg: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_http_requests_total",
			Help: "HTTP requests handled, by status class.",
		}, []string{"class"}),
		secretsSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "portal_secrets_saved_total",
			Help: "Secret entries written by the accepted submission.",
		}),
	}
	reg.MustRegister(m.requests, m.secretsSaved)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) observeRequest(status int) {
	m.requests.WithLabelValues(statusClass(status)).Inc()
}

func (m *Metrics) observeSaved(count int) {
	m.secretsSaved.Add(float64(count))
}

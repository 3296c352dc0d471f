package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// serverMetrics uses a private registry so tests can run multiple servers in
// one process without duplicate-registration panics.
type serverMetrics struct {
	registry    *prometheus.Registry
	assignments *prometheus.CounterVec
	events      *prometheus.CounterVec
}

func newServerMetrics() *serverMetrics {
	m := &serverMetrics{
		registry: prometheus.NewRegistry(),
		assignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "variantly_assignments_served_total",
			Help: "Variant assignments served, by experiment and variant.",
		}, []string{"experiment", "variant"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "variantly_events_recorded_total",
			Help: "Events accepted by the track endpoint, by experiment and event type.",
		}, []string{"experiment", "event_type"}),
	}

	m.registry.MustRegister(m.assignments, m.events)
	return m
}

func (m *serverMetrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Package metrics exposes Prometheus instrumentation for the occupancy
// controller.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the controller's Prometheus collectors
type Metrics struct {
	registry *prometheus.Registry

	Polls            prometheus.Counter
	PollFailures     prometheus.Counter
	StateTransitions *prometheus.CounterVec
	CheckIns         prometheus.Counter
	Denials          prometheus.Counter
	CurrentState     prometheus.Gauge
}

// New creates and registers the controller metrics on a private registry
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		Polls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roomkiosk_polls_total",
			Help: "Number of active-meeting polls issued.",
		}),
		PollFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roomkiosk_poll_failures_total",
			Help: "Number of polls that failed and were skipped.",
		}),
		StateTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roomkiosk_state_transitions_total",
			Help: "Occupancy state transitions, labelled by the state entered.",
		}, []string{"state"}),
		CheckIns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roomkiosk_checkins_total",
			Help: "Number of successful check-ins.",
		}),
		Denials: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roomkiosk_authorization_denials_total",
			Help: "Number of privileged actions denied after identity verification.",
		}),
		CurrentState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "roomkiosk_occupancy_state",
			Help: "Current occupancy state as its enum value.",
		}),
	}

	reg.MustRegister(m.Polls, m.PollFailures, m.StateTransitions, m.CheckIns, m.Denials, m.CurrentState)
	return m
}

// Handler returns the HTTP handler serving the /metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Package metrics holds the Prometheus collectors for the simulation workflow.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application. A nil *Metrics is
// valid and records nothing, so services can be built without it in tests.
type Metrics struct {
	gatherer prometheus.Gatherer

	TokenRenewals      *prometheus.CounterVec
	MarginPolls        *prometheus.CounterVec
	MarginWaitAttempts prometheus.Histogram
	SimulationAttempts *prometheus.CounterVec
	Workflows          *prometheus.CounterVec
	WorkflowDuration   prometheus.Histogram
}

// New creates and registers all metrics on reg. Pass prometheus.NewRegistry()
// in tests to avoid collisions on the default registry.
func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		gatherer: reg,
		TokenRenewals: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cltsim_token_renewals_total",
			Help: "Access token renewals against the platform identity provider, by result.",
		}, []string{"result"}),
		MarginPolls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cltsim_margin_polls_total",
			Help: "Consult search polls, by classified outcome.",
		}, []string{"outcome"}),
		MarginWaitAttempts: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "cltsim_margin_wait_attempts",
			Help:    "Number of polls needed before the margin wait ended.",
			Buckets: []float64{1, 2, 3, 5, 8, 12, 16, 20},
		}),
		SimulationAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cltsim_simulation_attempts_total",
			Help: "Simulation submissions, by result.",
		}, []string{"result"}),
		Workflows: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cltsim_workflows_total",
			Help: "Completed simulation workflows, by outcome kind.",
		}, []string{"outcome"}),
		WorkflowDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "cltsim_workflow_duration_seconds",
			Help:    "End-to-end simulation workflow latency.",
			Buckets: []float64{1, 5, 10, 20, 40, 60, 90, 120},
		}),
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveTokenRenewal records one renewal result ("ok" or "error").
func (m *Metrics) ObserveTokenRenewal(result string) {
	if m == nil {
		return
	}
	m.TokenRenewals.WithLabelValues(result).Inc()
}

// ObserveMarginPoll records the outcome of one consult search poll.
func (m *Metrics) ObserveMarginPoll(outcome string) {
	if m == nil {
		return
	}
	m.MarginPolls.WithLabelValues(outcome).Inc()
}

// ObserveMarginWait records how many polls one margin wait took.
func (m *Metrics) ObserveMarginWait(attempts int) {
	if m == nil {
		return
	}
	m.MarginWaitAttempts.Observe(float64(attempts))
}

// ObserveSimulationAttempt records one simulation submission result.
func (m *Metrics) ObserveSimulationAttempt(result string) {
	if m == nil {
		return
	}
	m.SimulationAttempts.WithLabelValues(result).Inc()
}

// ObserveWorkflow records a finished workflow and its duration.
func (m *Metrics) ObserveWorkflow(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Workflows.WithLabelValues(outcome).Inc()
	m.WorkflowDuration.Observe(elapsed.Seconds())
}

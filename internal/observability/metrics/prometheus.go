// Package metrics records session and action telemetry for the service layer.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records telemetry as Prometheus metrics.
type Collector struct {
	transitions *prometheus.CounterVec
	actions     *prometheus.CounterVec
	durations   *prometheus.HistogramVec
	roles       *prometheus.CounterVec
}

// NewCollector creates a Collector and registers its metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "accountdesk_session_transitions_total",
			Help: "Session state transitions by phase.",
		}, []string{"from", "to"}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "accountdesk_action_results_total",
			Help: "Completed user actions by outcome.",
		}, []string{"action", "outcome"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "accountdesk_action_duration_seconds",
			Help:    "Latency of user actions.",
			Buckets: prometheus.DefBuckets,
		}, []string{"action"}),
		roles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "accountdesk_role_resolutions_total",
			Help: "Role lookups by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(c.transitions, c.actions, c.durations, c.roles)
	return c
}

// SessionTransition counts a phase change.
func (c *Collector) SessionTransition(from, to string) {
	c.transitions.WithLabelValues(from, to).Inc()
}

// ActionResult counts an action outcome and observes its latency.
func (c *Collector) ActionResult(action, outcome string, elapsed time.Duration) {
	c.actions.WithLabelValues(action, outcome).Inc()
	c.durations.WithLabelValues(action).Observe(elapsed.Seconds())
}

// RoleResolution counts a role lookup.
func (c *Collector) RoleResolution(outcome string) {
	c.roles.WithLabelValues(outcome).Inc()
}

// Handler serves the gathered metrics for scraping.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

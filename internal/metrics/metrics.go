package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the bot counters. A nil *Metrics is valid and records
// nothing, so modules can be built without a registry in tests.
type Metrics struct {
	registry        *prometheus.Registry
	evaluated       *prometheus.CounterVec
	violations      *prometheus.CounterVec
	actions         *prometheus.CounterVec
	reconciliations *prometheus.CounterVec
	purges          *prometheus.CounterVec
	trackedUsers    prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		evaluated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "securitybot_messages_evaluated_total",
			Help: "Messages evaluated per policy and decision",
		}, []string{"policy", "decision"}),
		violations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "securitybot_violations_total",
			Help: "Policy violations per policy and rule",
		}, []string{"policy", "rule"}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "securitybot_punishment_actions_total",
			Help: "Moderation actions attempted per action and result",
		}, []string{"action", "result"}),
		reconciliations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "securitybot_verification_reconciliations_total",
			Help: "Verification reconciliation passes per outcome",
		}, []string{"outcome"}),
		purges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "securitybot_verification_purges_total",
			Help: "Verification disable and purge runs per origin",
		}, []string{"origin"}),
		trackedUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "securitybot_activity_tracked_users",
			Help: "Users currently held by the activity tracker",
		}),
	}
	m.registry.MustRegister(
		m.evaluated,
		m.violations,
		m.actions,
		m.reconciliations,
		m.purges,
		m.trackedUsers,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Evaluated(policy, decision string) {
	if m == nil {
		return
	}
	m.evaluated.WithLabelValues(policy, decision).Inc()
}

func (m *Metrics) Violation(policy, rule string) {
	if m == nil {
		return
	}
	m.violations.WithLabelValues(policy, rule).Inc()
}

func (m *Metrics) Action(action string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.actions.WithLabelValues(action, result).Inc()
}

func (m *Metrics) Reconciled(outcome string) {
	if m == nil {
		return
	}
	m.reconciliations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Purged(origin string) {
	if m == nil {
		return
	}
	m.purges.WithLabelValues(origin).Inc()
}

func (m *Metrics) TrackedUsers(count int) {
	if m == nil {
		return
	}
	m.trackedUsers.Set(float64(count))
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	RuleRuns *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RuleRuns: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "crmhub_automation_rule_runs_total",
			Help: "Automation rule executions by action and outcome",
		}, []string{"action", "outcome"}),
	}
}

func (m *Metrics) IncrementRun(action string, ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	m.RuleRuns.WithLabelValues(action, outcome).Inc()
}

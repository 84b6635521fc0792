package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	LeadsReceived     *prometheus.CounterVec
	LeadsReconciled   *prometheus.CounterVec
	LeadsDuplicate    *prometheus.CounterVec
	LeadsRejected     *prometheus.CounterVec
	ReconcileDuration prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		LeadsReceived: f.NewCounterVec(prometheus.CounterOpts{
			Name: "crmhub_leads_received_total",
			Help: "Inbound lead deliveries accepted for processing, by integration kind",
		}, []string{"kind"}),
		LeadsReconciled: f.NewCounterVec(prometheus.CounterOpts{
			Name: "crmhub_leads_reconciled_total",
			Help: "Leads reconciled, by kind and whether a new contact was created",
		}, []string{"kind", "contact"}),
		LeadsDuplicate: f.NewCounterVec(prometheus.CounterOpts{
			Name: "crmhub_leads_duplicate_total",
			Help: "Deliveries ignored because their idempotency key was already claimed",
		}, []string{"kind"}),
		LeadsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "crmhub_leads_rejected_total",
			Help: "Deliveries rejected, by kind and reason",
		}, []string{"kind", "reason"}),
		ReconcileDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "crmhub_leads_reconcile_duration_seconds",
			Help:    "Time spent reconciling one lead",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

func (m *Metrics) IncrementReceived(kind string) {
	m.LeadsReceived.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncrementDuplicate(kind string) {
	m.LeadsDuplicate.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncrementRejected(kind, reason string) {
	m.LeadsRejected.WithLabelValues(kind, reason).Inc()
}

func (m *Metrics) ObserveReconciled(kind string, contactCreated bool, start time.Time) {
	outcome := "matched"
	if contactCreated {
		outcome = "created"
	}
	m.LeadsReconciled.WithLabelValues(kind, outcome).Inc()
	m.ReconcileDuration.Observe(time.Since(start).Seconds())
}

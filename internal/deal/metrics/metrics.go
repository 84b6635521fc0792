package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	DealsCreated *prometheus.CounterVec
	DealsClosed  *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		DealsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "crmhub_deals_created_total",
			Help: "Deals opened, by origin (api or lead)",
		}, []string{"origin"}),
		DealsClosed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "crmhub_deals_closed_total",
			Help: "Deals closed, by outcome",
		}, []string{"status"}),
	}
}

func (m *Metrics) IncrementCreated(origin string) {
	m.DealsCreated.WithLabelValues(origin).Inc()
}

func (m *Metrics) IncrementClosed(status string) {
	m.DealsClosed.WithLabelValues(status).Inc()
}

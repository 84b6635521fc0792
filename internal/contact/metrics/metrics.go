package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	ContactsCreated *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ContactsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "crmhub_contacts_created_total",
			Help: "Contacts created, by origin (api or lead)",
		}, []string{"origin"}),
	}
}

func (m *Metrics) IncrementCreated(origin string) {
	m.ContactsCreated.WithLabelValues(origin).Inc()
}

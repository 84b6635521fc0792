package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks company and staff provisioning.
type Metrics struct {
	CompaniesCreated prometheus.Counter
	UsersCreated     prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CompaniesCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "crmhub_companies_created_total",
			Help: "Total number of companies provisioned",
		}),
		UsersCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "crmhub_users_created_total",
			Help: "Total number of staff users created, owners included",
		}),
	}
}

func (m *Metrics) IncrementCompanyCreated() {
	m.CompaniesCreated.Inc()
}

func (m *Metrics) IncrementUserCreated() {
	m.UsersCreated.Inc()
}

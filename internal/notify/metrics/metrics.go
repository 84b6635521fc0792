package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	NotificationsCreated *prometheus.CounterVec
	Deliveries           *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		NotificationsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "crmhub_notifications_created_total",
			Help: "In-app notifications stored, by kind",
		}, []string{"kind"}),
		Deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "crmhub_notification_deliveries_total",
			Help: "Out-of-app delivery attempts by channel and outcome (sent, failed, skipped)",
		}, []string{"channel", "outcome"}),
	}
}

func (m *Metrics) IncrementCreated(kind string) {
	m.NotificationsCreated.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncrementDelivery(channel, outcome string) {
	m.Deliveries.WithLabelValues(channel, outcome).Inc()
}

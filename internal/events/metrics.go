package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Dispatched    *prometheus.CounterVec
	Dropped       prometheus.Counter
	HandlerErrors *prometheus.CounterVec
	Relayed       prometheus.Counter
	RelayFailures prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Dispatched: f.NewCounterVec(prometheus.CounterOpts{
			Name: "crmhub_events_dispatched_total",
			Help: "Domain events delivered to in-process subscribers",
		}, []string{"type"}),
		Dropped: f.NewCounter(prometheus.CounterOpts{
			Name: "crmhub_events_dropped_total",
			Help: "Domain events dropped because the dispatch queue was full or closed",
		}),
		HandlerErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "crmhub_event_handler_errors_total",
			Help: "Subscriber failures by event type",
		}, []string{"type"}),
		Relayed: f.NewCounter(prometheus.CounterOpts{
			Name: "crmhub_outbox_relayed_total",
			Help: "Outbox entries produced to the broker",
		}),
		RelayFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "crmhub_outbox_relay_failures_total",
			Help: "Failed outbox relay runs",
		}),
	}
}

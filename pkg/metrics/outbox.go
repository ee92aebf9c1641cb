package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OutboxMetrics counts outbox dispatch outcomes per topic.
type OutboxMetrics struct {
	dispatched *prometheus.CounterVec
}

// NewOutboxMetrics registers the dispatch counter. A nil registerer yields a no-op recorder.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	dispatched := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_outbox_dispatch_total",
		Help: "Outbox rows handled by the publisher, by topic and outcome.",
	}, []string{"topic", "outcome"})
	reg.MustRegister(dispatched)
	return &OutboxMetrics{dispatched: dispatched}
}

func (o *OutboxMetrics) IncDispatch(topic, outcome string) {
	if o == nil || o.dispatched == nil {
		return
	}
	o.dispatched.WithLabelValues(normalizeLabel(topic), normalizeLabel(outcome)).Inc()
}

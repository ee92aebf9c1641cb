package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// WorkflowMetrics counts order, reconciliation and refund outcomes.
type WorkflowMetrics struct {
	ordersCreated        *prometheus.CounterVec
	reconciliationFlags  *prometheus.CounterVec
	refunds              *prometheus.CounterVec
	cancellationRequests *prometheus.CounterVec
}

// NewWorkflowMetrics registers the workflow counters on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewWorkflowMetrics(reg prometheus.Registerer) *WorkflowMetrics {
	if reg == nil {
		return &WorkflowMetrics{}
	}
	ordersCreated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_orders_created_total",
		Help: "Orders created, by payment method.",
	}, []string{"method"})
	reconciliationFlags := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_reconciliation_flags_total",
		Help: "Orders or intents flagged for payment reconciliation, by reason.",
	}, []string{"reason"})
	refunds := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_refund_dispatch_total",
		Help: "Refund dispatch attempts, by channel and outcome.",
	}, []string{"channel", "outcome"})
	cancellationRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_cancellation_requests_total",
		Help: "Cancellation requests filed, by delivery phase.",
	}, []string{"phase"})
	reg.MustRegister(ordersCreated, reconciliationFlags, refunds, cancellationRequests)
	return &WorkflowMetrics{
		ordersCreated:        ordersCreated,
		reconciliationFlags:  reconciliationFlags,
		refunds:              refunds,
		cancellationRequests: cancellationRequests,
	}
}

func (w *WorkflowMetrics) IncOrderCreated(method string) {
	if w == nil || w.ordersCreated == nil {
		return
	}
	w.ordersCreated.WithLabelValues(normalizeLabel(method)).Inc()
}

func (w *WorkflowMetrics) IncReconciliationFlag(reason string) {
	if w == nil || w.reconciliationFlags == nil {
		return
	}
	w.reconciliationFlags.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (w *WorkflowMetrics) IncRefund(channel, outcome string) {
	if w == nil || w.refunds == nil {
		return
	}
	w.refunds.WithLabelValues(normalizeLabel(channel), normalizeLabel(outcome)).Inc()
}

func (w *WorkflowMetrics) IncCancellationRequest(phase string) {
	if w == nil || w.cancellationRequests == nil {
		return
	}
	w.cancellationRequests.WithLabelValues(normalizeLabel(phase)).Inc()
}

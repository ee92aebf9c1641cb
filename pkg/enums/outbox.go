package enums

import "slices"

// OutboxAggregateType names the entity an outbox event describes.
type OutboxAggregateType string

const (
	AggregateOrder               OutboxAggregateType = "order"
	AggregateCancellationRequest OutboxAggregateType = "cancellation_request"
	AggregateRefund              OutboxAggregateType = "refund"
	AggregatePaymentIntent       OutboxAggregateType = "payment_intent"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregateCancellationRequest,
	AggregateRefund,
	AggregatePaymentIntent,
}

func (a OutboxAggregateType) IsValid() bool {
	return slices.Contains(validAggregateTypes, a)
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parse(value, validAggregateTypes, "aggregate type")
}

// OutboxEventType names a domain event written through the outbox.
type OutboxEventType string

const (
	EventOrderCreated                OutboxEventType = "order_created"
	EventOrderStateChanged           OutboxEventType = "order_state_changed"
	EventOrderReconciliationFlagged  OutboxEventType = "order_reconciliation_flagged"
	EventOrderReconciliationResolved OutboxEventType = "order_reconciliation_resolved"
	EventIntentReconciliationFlagged OutboxEventType = "intent_reconciliation_flagged"
	EventCancellationRequested       OutboxEventType = "cancellation_requested"
	EventCancellationResolved        OutboxEventType = "cancellation_resolved"
	EventRefundInitiated             OutboxEventType = "refund_initiated"
	EventRefundFailed                OutboxEventType = "refund_failed"
	EventRefundPayoutRequested       OutboxEventType = "refund_payout_requested"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderCreated,
	EventOrderStateChanged,
	EventOrderReconciliationFlagged,
	EventOrderReconciliationResolved,
	EventIntentReconciliationFlagged,
	EventCancellationRequested,
	EventCancellationResolved,
	EventRefundInitiated,
	EventRefundFailed,
	EventRefundPayoutRequested,
}

func (e OutboxEventType) IsValid() bool {
	return slices.Contains(validOutboxEventTypes, e)
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parse(value, validOutboxEventTypes, "event type")
}

// OutboxDLQErrorReason records why an event was dead-lettered.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

func (r OutboxDLQErrorReason) IsValid() bool {
	return r == OutboxDLQReasonMaxAttempts || r == OutboxDLQReasonNonRetryable
}

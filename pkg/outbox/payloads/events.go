package payloads

import (
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/google/uuid"
)

// OrderCreatedEvent is emitted when the ledger records a new order.
type OrderCreatedEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	UserID        uuid.UUID           `json:"user_id"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	TotalPaise    int64               `json:"total_paise"`
	Currency      enums.Currency      `json:"currency"`
}

// OrderStateChangedEvent reports a forward status transition.
type OrderStateChangedEvent struct {
	OrderID   uuid.UUID         `json:"order_id"`
	From      enums.OrderStatus `json:"from"`
	To        enums.OrderStatus `json:"to"`
	ChangedAt time.Time         `json:"changed_at"`
}

// OrderReconciliationFlaggedEvent marks an order whose payment and record disagree.
type OrderReconciliationFlaggedEvent struct {
	OrderID          uuid.UUID                 `json:"order_id"`
	PaymentIntentID  *uuid.UUID                `json:"payment_intent_id,omitempty"`
	GatewayPaymentID *string                   `json:"gateway_payment_id,omitempty"`
	Verification     enums.PaymentVerification `json:"verification"`
	Reason           string                    `json:"reason"`
}

// OrderReconciliationResolvedEvent records the operator's outcome for a flagged order.
type OrderReconciliationResolvedEvent struct {
	OrderID    uuid.UUID                      `json:"order_id"`
	Resolution enums.ReconciliationResolution `json:"resolution"`
	Note       string                         `json:"note,omitempty"`
}

// IntentReconciliationFlaggedEvent marks a payment that produced no order.
// ExtraPayment is set when the checkout already has an order (OrderID) and
// this payment is a second capture on top of it.
type IntentReconciliationFlaggedEvent struct {
	PaymentIntentID  uuid.UUID  `json:"payment_intent_id"`
	Reference        string     `json:"reference"`
	GatewayPaymentID string     `json:"gateway_payment_id"`
	AmountPaise      int64      `json:"amount_paise"`
	Reason           string     `json:"reason"`
	OrderID          *uuid.UUID `json:"order_id,omitempty"`
	ExtraPayment     bool       `json:"extra_payment"`
}

// CancellationRequestedEvent is emitted when a customer files a request.
type CancellationRequestedEvent struct {
	RequestID     uuid.UUID           `json:"request_id"`
	OrderID       uuid.UUID           `json:"order_id"`
	UserID        uuid.UUID           `json:"user_id"`
	DeliveryPhase enums.DeliveryPhase `json:"delivery_phase"`
}

// CancellationResolvedEvent is emitted once per request when an admin decides it.
type CancellationResolvedEvent struct {
	RequestID       uuid.UUID                `json:"request_id"`
	OrderID         uuid.UUID                `json:"order_id"`
	Status          enums.CancellationStatus `json:"status"`
	ResolvedBy      uuid.UUID                `json:"resolved_by"`
	RefundScheduled bool                     `json:"refund_scheduled"`
}

// RefundEvent reports the outcome of a refund issuance attempt.
type RefundEvent struct {
	RefundID         uuid.UUID           `json:"refund_id"`
	RequestID        uuid.UUID           `json:"request_id"`
	OrderID          uuid.UUID           `json:"order_id"`
	AmountPaise      int64               `json:"amount_paise"`
	Currency         enums.Currency      `json:"currency"`
	Channel          enums.RefundChannel `json:"channel"`
	ProviderRefundID *string             `json:"provider_refund_id,omitempty"`
	AttemptCount     int                 `json:"attempt_count"`
	Error            string              `json:"error,omitempty"`
}

// RefundPayoutRequestedEvent instructs the payouts desk to send money to a UPI id.
type RefundPayoutRequestedEvent struct {
	RefundID    uuid.UUID      `json:"refund_id"`
	RequestID   uuid.UUID      `json:"request_id"`
	OrderID     uuid.UUID      `json:"order_id"`
	AmountPaise int64          `json:"amount_paise"`
	Currency    enums.Currency `json:"currency"`
	UpiID       string         `json:"upi_id"`
}

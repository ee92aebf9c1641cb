package razorpaywebhook

import (
	"encoding/json"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

const (
	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"
	EventOrderPaid       = "order.paid"
)

// Event is the subset of a Razorpay webhook envelope the storefront consumes.
type Event struct {
	Entity    string       `json:"entity"`
	Event     string       `json:"event"`
	AccountID string       `json:"account_id"`
	CreatedAt int64        `json:"created_at"`
	Payload   EventPayload `json:"payload"`
}

type EventPayload struct {
	Payment *paymentWrapper `json:"payment,omitempty"`
}

type paymentWrapper struct {
	Entity PaymentEntity `json:"entity"`
}

type PaymentEntity struct {
	ID       string `json:"id"`
	OrderID  string `json:"order_id"`
	Status   string `json:"status"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Method   string `json:"method"`
}

// Payment returns the payment entity carried by the event, if any.
func (e Event) Payment() (PaymentEntity, bool) {
	if e.Payload.Payment == nil || e.Payload.Payment.Entity.ID == "" {
		return PaymentEntity{}, false
	}
	return e.Payload.Payment.Entity, true
}

// ParseEvent decodes a raw webhook body.
func ParseEvent(body []byte) (Event, error) {
	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		return Event{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode webhook payload")
	}
	if event.Event == "" {
		return Event{}, pkgerrors.New(pkgerrors.CodeValidation, "webhook event type missing")
	}
	return event, nil
}

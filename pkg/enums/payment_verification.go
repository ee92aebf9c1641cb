package enums

import "slices"

// PaymentVerification captures the outcome of gateway proof verification for an order.
type PaymentVerification string

const (
	PaymentVerificationNotRequired PaymentVerification = "not_required"
	// PaymentVerificationPending is held only inside the commit transaction,
	// between order creation and the gateway's answer.
	PaymentVerificationPending  PaymentVerification = "pending"
	PaymentVerificationVerified PaymentVerification = "verified"
	// PaymentVerificationFailed means the gateway rejected the proof.
	PaymentVerificationFailed PaymentVerification = "failed"
	// PaymentVerificationUnreachable means the gateway could not be asked.
	PaymentVerificationUnreachable PaymentVerification = "unreachable"
)

var validPaymentVerifications = []PaymentVerification{
	PaymentVerificationNotRequired,
	PaymentVerificationPending,
	PaymentVerificationVerified,
	PaymentVerificationFailed,
	PaymentVerificationUnreachable,
}

func (v PaymentVerification) String() string {
	return string(v)
}

func (v PaymentVerification) IsValid() bool {
	return slices.Contains(validPaymentVerifications, v)
}

// ParsePaymentVerification converts raw input into a PaymentVerification.
func ParsePaymentVerification(value string) (PaymentVerification, error) {
	return parse(value, validPaymentVerifications, "payment verification")
}

// ReconciliationResolution is an operator's outcome for a flagged order.
type ReconciliationResolution string

const (
	// ReconciliationConfirmPaid marks the payment as genuinely collected.
	ReconciliationConfirmPaid ReconciliationResolution = "confirm_paid"
	// ReconciliationVoid cancels the order because no payment was collected.
	ReconciliationVoid ReconciliationResolution = "void"
)

func (r ReconciliationResolution) IsValid() bool {
	return r == ReconciliationConfirmPaid || r == ReconciliationVoid
}

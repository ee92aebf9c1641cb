package enums

import "slices"

// PaymentMethod describes how a customer settles an order. It is fixed at creation.
type PaymentMethod string

const (
	PaymentMethodCOD PaymentMethod = "cod"
	PaymentMethodUPI PaymentMethod = "upi"
)

var validPaymentMethods = []PaymentMethod{
	PaymentMethodCOD,
	PaymentMethodUPI,
}

func (p PaymentMethod) String() string {
	return string(p)
}

func (p PaymentMethod) IsValid() bool {
	return slices.Contains(validPaymentMethods, p)
}

// IsPrepaid reports whether money is collected before the order exists.
func (p PaymentMethod) IsPrepaid() bool {
	switch p {
	case PaymentMethodUPI:
		return true
	default:
		return false
	}
}

// ParsePaymentMethod converts raw input into a PaymentMethod.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	return parse(value, validPaymentMethods, "payment method")
}

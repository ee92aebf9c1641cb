package refunds

import "github.com/angelmondragon/storefront-backend/pkg/enums"

// Decision is the outcome of the refund decision table for one approved request.
type Decision struct {
	Refund  bool
	Channel enums.RefundChannel
	Reason  string
}

// Decide evaluates the refund decision table. The phase is the one stored on
// the request at filing time.
//
//	POST_DELIVERY, any method -> refund the order total
//	PRE_DELIVERY,  upi        -> refund (payment was collected)
//	PRE_DELIVERY,  cod        -> no refund (nothing was collected)
//
// Prepaid orders are refunded through the gateway; COD refunds are paid out to
// the UPI id on the request.
func Decide(phase enums.DeliveryPhase, method enums.PaymentMethod) Decision {
	switch phase {
	case enums.DeliveryPhasePost:
		if method.IsPrepaid() {
			return Decision{Refund: true, Channel: enums.RefundChannelGateway, Reason: "post-delivery claim on prepaid order"}
		}
		return Decision{Refund: true, Channel: enums.RefundChannelUPIPayout, Reason: "post-delivery claim on cash order"}
	case enums.DeliveryPhasePre:
		if method.IsPrepaid() {
			return Decision{Refund: true, Channel: enums.RefundChannelGateway, Reason: "payment collected before delivery"}
		}
		return Decision{Refund: false, Reason: "no payment collected"}
	default:
		return Decision{Refund: false, Reason: "unknown delivery phase"}
	}
}

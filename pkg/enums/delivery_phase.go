package enums

import "slices"

// DeliveryPhase records whether an order had reached the customer when a
// cancellation was filed.
type DeliveryPhase string

const (
	DeliveryPhasePre  DeliveryPhase = "PRE_DELIVERY"
	DeliveryPhasePost DeliveryPhase = "POST_DELIVERY"
)

var validDeliveryPhases = []DeliveryPhase{
	DeliveryPhasePre,
	DeliveryPhasePost,
}

func (p DeliveryPhase) String() string {
	return string(p)
}

func (p DeliveryPhase) IsValid() bool {
	return slices.Contains(validDeliveryPhases, p)
}

// RequiresEvidence reports whether a video and refund destination are mandatory.
func (p DeliveryPhase) RequiresEvidence() bool {
	return p == DeliveryPhasePost
}

// ParseDeliveryPhase converts raw input into a DeliveryPhase.
func ParseDeliveryPhase(value string) (DeliveryPhase, error) {
	return parse(value, validDeliveryPhases, "delivery phase")
}

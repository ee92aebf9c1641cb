// Package delivery decides whether an order had reached the customer at a given
// moment. Every caller that needs the pre/post-delivery distinction, the
// cancellation filing path and the order detail view alike, goes through Classify.
package delivery

import (
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// ErrNeverDelivered is returned for cancelled orders that have no delivery to
// judge a request against.
var ErrNeverDelivered = pkgerrors.New(pkgerrors.CodeConflict, "order was cancelled before delivery")

// Snapshot is the subset of an order the classifier reads.
type Snapshot struct {
	Status      enums.OrderStatus
	DeliveredAt *time.Time
}

// SnapshotOf extracts the classifier inputs from an order row.
func SnapshotOf(order *models.Order) Snapshot {
	if order == nil {
		return Snapshot{}
	}
	return Snapshot{Status: order.Status, DeliveredAt: order.DeliveredAt}
}

// Classify returns the delivery phase of order at requestedAt. It is pure.
func Classify(order Snapshot, requestedAt time.Time) (enums.DeliveryPhase, error) {
	switch order.Status {
	case enums.OrderStatusDelivered:
		return enums.DeliveryPhasePost, nil
	case enums.OrderStatusCancelled:
		if order.DeliveredAt != nil && requestedAt.After(*order.DeliveredAt) {
			return enums.DeliveryPhasePost, nil
		}
		return "", ErrNeverDelivered
	case enums.OrderStatusPending, enums.OrderStatusPaid, enums.OrderStatusShipped:
		return enums.DeliveryPhasePre, nil
	default:
		return "", pkgerrors.New(pkgerrors.CodeValidation, "unknown order status").
			WithDetails(map[string]any{"status": order.Status})
	}
}

// View is the classification exposed to display code.
type View struct {
	DeliveryPhase    enums.DeliveryPhase `json:"delivery_phase,omitempty"`
	EvidenceRequired bool                `json:"evidence_required"`
	Cancellable      bool                `json:"cancellable"`
	BlockedReason    string              `json:"blocked_reason,omitempty"`
}

// Describe classifies order at now and reports whether a cancellation may be
// filed and which evidence it would need.
func Describe(order Snapshot, now time.Time) View {
	switch order.Status {
	case enums.OrderStatusCancelled:
		return View{BlockedReason: "order already cancelled"}
	case enums.OrderStatusShipped:
		return View{
			DeliveryPhase: enums.DeliveryPhasePre,
			BlockedReason: "order is in transit; file a claim after delivery",
		}
	}
	phase, err := Classify(order, now)
	if err != nil {
		return View{BlockedReason: err.Error()}
	}
	return View{
		DeliveryPhase:    phase,
		EvidenceRequired: phase.RequiresEvidence(),
		Cancellable:      true,
	}
}

package orders

import (
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/types"
	"github.com/google/uuid"
)

// NewOrder is the snapshotted input the checkout orchestrator hands the ledger.
type NewOrder struct {
	UserID           uuid.UUID
	PaymentMethod    enums.PaymentMethod
	Quote            types.CheckoutQuote
	PaymentIntentID  *uuid.UUID
	GatewayPaymentID *string
}

// Actor identifies who requested a state change.
type Actor struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

func (a Actor) ref() *outbox.ActorRef {
	if a.UserID == uuid.Nil {
		return nil
	}
	return &outbox.ActorRef{UserID: a.UserID, Role: a.Role.String()}
}

// SystemActor is used for transitions driven by payment confirmation and cron jobs.
var SystemActor = Actor{}

// TransitionInput asks the ledger to move an order forward.
type TransitionInput struct {
	OrderID uuid.UUID
	Target  enums.OrderStatus
	Actor   Actor
}

// ReconcileInput records an operator's decision for a flagged order.
type ReconcileInput struct {
	OrderID    uuid.UUID
	Resolution enums.ReconciliationResolution
	Note       string
	Actor      Actor
}

// ListFilters narrows the admin order list.
type ListFilters struct {
	Status              *enums.OrderStatus
	PaymentMethod       *enums.PaymentMethod
	NeedsReconciliation *bool
	UserID              *uuid.UUID
}

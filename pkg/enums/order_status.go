package enums

import "slices"

// OrderStatus is the lifecycle state of a storefront order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusPaid      OrderStatus = "PAID"
	OrderStatusShipped   OrderStatus = "SHIPPED"
	OrderStatusDelivered OrderStatus = "DELIVERED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusPaid,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// forwardTransitions lists the non-cancel moves allowed from each state.
var forwardTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending: {OrderStatusPaid, OrderStatusShipped},
	OrderStatusPaid:    {OrderStatusShipped},
	OrderStatusShipped: {OrderStatusDelivered},
}

func (s OrderStatus) String() string {
	return string(s)
}

func (s OrderStatus) IsValid() bool {
	return slices.Contains(validOrderStatuses, s)
}

// IsTerminal reports whether no further transition is possible.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCancelled
}

// CanTransitionTo reports whether moving from s to target is a legal forward
// transition. CANCELLED is reachable from every non-terminal state, including
// DELIVERED, exactly once.
func (s OrderStatus) CanTransitionTo(target OrderStatus) bool {
	if !s.IsValid() || !target.IsValid() || s.IsTerminal() {
		return false
	}
	if target == OrderStatusCancelled {
		return true
	}
	for _, next := range forwardTransitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	return parse(value, validOrderStatuses, "order status")
}

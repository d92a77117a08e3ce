package enums

import "slices"

// OrderStatus is the fulfilment state machine of a placed order:
// pending -> processing -> shipped -> delivered, with cancellation allowed
// until the parcel ships.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

var nextOrderStatuses = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered},
	OrderStatusDelivered:  nil,
	OrderStatusCancelled:  nil,
}

func (s OrderStatus) String() string { return string(s) }

func (s OrderStatus) IsValid() bool {
	_, ok := nextOrderStatuses[s]
	return ok
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	return slices.Contains(nextOrderStatuses[s], next)
}

// IsFinal reports whether no further transition exists.
func (s OrderStatus) IsFinal() bool {
	return s.IsValid() && len(nextOrderStatuses[s]) == 0
}

func ParseOrderStatus(value string) (OrderStatus, error) {
	return parse[OrderStatus]("order status", value)
}

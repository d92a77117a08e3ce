package enums

// TimelineEventType labels entries in an order's append-only timeline.
type TimelineEventType string

const (
	TimelineOrderPlaced     TimelineEventType = "order_placed"
	TimelinePaymentReceived TimelineEventType = "payment_received"
	TimelineStatusChanged   TimelineEventType = "status_changed"
)

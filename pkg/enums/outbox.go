package enums

// OutboxAggregateType is the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregateOrder           OutboxAggregateType = "order"
	AggregateCheckoutSession OutboxAggregateType = "checkout_session"
)

func (a OutboxAggregateType) IsValid() bool {
	switch a {
	case AggregateOrder, AggregateCheckoutSession:
		return true
	}
	return false
}

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parse[OutboxAggregateType]("aggregate type", value)
}

// OutboxEventType is the event_type column of outbox_events and the
// event_type attribute on published messages.
type OutboxEventType string

const (
	EventOrderCreated       OutboxEventType = "order_created"
	EventOrderPaid          OutboxEventType = "order_paid"
	EventOrderStatusChanged OutboxEventType = "order_status_changed"
	EventPaymentFailed      OutboxEventType = "payment_failed"
)

func (e OutboxEventType) IsValid() bool {
	switch e {
	case EventOrderCreated, EventOrderPaid, EventOrderStatusChanged, EventPaymentFailed:
		return true
	}
	return false
}

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parse[OutboxEventType]("event type", value)
}

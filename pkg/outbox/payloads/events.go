package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/lankacart-backend/pkg/enums"
)

// OrderCreatedEvent is emitted once per committed order.
type OrderCreatedEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	Number        string              `json:"number"`
	UserID        uuid.UUID           `json:"user_id"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
	ItemCount     int                 `json:"item_count"`
	TotalCents    int64               `json:"total_cents"`
	Currency      enums.Currency      `json:"currency"`
}

// OrderPaidEvent is emitted when the provider confirms payment.
type OrderPaidEvent struct {
	OrderID       uuid.UUID      `json:"order_id"`
	Number        string         `json:"number"`
	ProviderTxnID string         `json:"provider_txn_id"`
	AmountCents   int64          `json:"amount_cents"`
	Currency      enums.Currency `json:"currency"`
	PaidAt        time.Time      `json:"paid_at"`
}

// OrderStatusChangedEvent reports a fulfilment state transition.
type OrderStatusChangedEvent struct {
	OrderID   uuid.UUID         `json:"order_id"`
	Number    string            `json:"number"`
	From      enums.OrderStatus `json:"from"`
	To        enums.OrderStatus `json:"to"`
	Note      string            `json:"note,omitempty"`
	ChangedAt time.Time         `json:"changed_at"`
}

// PaymentFailedEvent reports a terminal provider outcome for a hosted checkout.
type PaymentFailedEvent struct {
	SessionID     uuid.UUID                   `json:"session_id"`
	Reference     string                      `json:"reference"`
	ProviderTxnID string                      `json:"provider_txn_id,omitempty"`
	StatusCode    int                         `json:"status_code"`
	Status        enums.CheckoutSessionStatus `json:"status"`
}

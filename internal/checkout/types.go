package checkout

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/lankacart-backend/internal/payments/gateway"
	"github.com/angelmondragon/lankacart-backend/pkg/db/models"
	"github.com/angelmondragon/lankacart-backend/pkg/enums"
)

// PlaceOrderInput is everything needed to turn a cart into an order.
// IdempotencyToken is mandatory and is unique across all orders.
type PlaceOrderInput struct {
	UserID            uuid.UUID
	CartID            uuid.UUID
	ShippingAddressID uuid.UUID
	BillingAddressID  *uuid.UUID
	PaymentMethod     enums.PaymentMethod
	IdempotencyToken  string
	MarkPaid          bool
	ProviderTxnID     string
}

// OrderRef is the result of PlaceOrder. Replayed is set when the order
// already existed for the token.
type OrderRef struct {
	ID            uuid.UUID           `json:"id"`
	Number        string              `json:"number"`
	Status        enums.OrderStatus   `json:"status"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
	TotalCents    int64               `json:"total_cents"`
	Currency      enums.Currency      `json:"currency"`
	Replayed      bool                `json:"replayed"`
}

func refFromOrder(order *models.Order, replayed bool) *OrderRef {
	return &OrderRef{
		ID:            order.ID,
		Number:        order.Number,
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
		TotalCents:    order.TotalCents,
		Currency:      order.Currency,
		Replayed:      replayed,
	}
}

// StartHostedInput opens or resumes a hosted payment attempt.
type StartHostedInput struct {
	UserID            uuid.UUID
	CartID            uuid.UUID
	ShippingAddressID uuid.UUID
	BillingAddressID  *uuid.UUID
	IdempotencyToken  string
	Email             string
}

// HostedCheckout is returned to the browser, which posts Form to the provider.
type HostedCheckout struct {
	Reference   string                `json:"reference"`
	AmountCents int64                 `json:"amount_cents"`
	Currency    enums.Currency        `json:"currency"`
	Form        *gateway.CheckoutForm `json:"form"`
}

// ReturnStatus answers the shopper's browser return. Order is nil until the
// provider's notification has been reconciled.
type ReturnStatus struct {
	Reference string                      `json:"reference"`
	Status    enums.CheckoutSessionStatus `json:"status"`
	Order     *OrderRef                   `json:"order,omitempty"`
}

// CloseSessionInput records a terminal non-success provider outcome.
type CloseSessionInput struct {
	Reference     string
	Status        enums.CheckoutSessionStatus
	ProviderTxnID string
	StatusCode    int
}

package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/lankacart-backend/pkg/db/models"
	"github.com/angelmondragon/lankacart-backend/pkg/enums"
	"github.com/angelmondragon/lankacart-backend/pkg/types"
)

// OrderSummary is the list representation of an order.
type OrderSummary struct {
	ID            uuid.UUID           `json:"id"`
	Number        string              `json:"number"`
	Status        enums.OrderStatus   `json:"status"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	TotalItems    int                 `json:"total_items"`
	TotalCents    int64               `json:"total_cents"`
	Currency      enums.Currency      `json:"currency"`
	CreatedAt     time.Time           `json:"created_at"`
}

// OrderItemView mirrors an order item snapshot.
type OrderItemView struct {
	ProductID      uuid.UUID  `json:"product_id"`
	VariantID      *uuid.UUID `json:"variant_id,omitempty"`
	Name           string     `json:"name"`
	SKU            string     `json:"sku"`
	Quantity       int        `json:"quantity"`
	UnitPriceCents int64      `json:"unit_price_cents"`
	LineTotalCents int64      `json:"line_total_cents"`
}

type PaymentView struct {
	Method        enums.PaymentMethod `json:"method"`
	Status        enums.PaymentStatus `json:"status"`
	AmountCents   int64               `json:"amount_cents"`
	ProviderTxnID *string             `json:"provider_txn_id,omitempty"`
	PaidAt        *time.Time          `json:"paid_at,omitempty"`
}

type TimelineView struct {
	EventType enums.TimelineEventType `json:"event_type"`
	Note      string                  `json:"note,omitempty"`
	CreatedAt time.Time               `json:"created_at"`
}

// OrderDetail is the full representation returned to the order owner.
type OrderDetail struct {
	OrderSummary
	SubtotalCents     int64                 `json:"subtotal_cents"`
	ShippingCents     int64                 `json:"shipping_cents"`
	DiscountCents     int64                 `json:"discount_cents"`
	ShippingRateLabel string                `json:"shipping_rate_label"`
	ShippingAddress   types.AddressSnapshot `json:"shipping_address"`
	BillingAddress    types.AddressSnapshot `json:"billing_address"`
	Items             []OrderItemView       `json:"items"`
	Payment           *PaymentView          `json:"payment,omitempty"`
	Timeline          []TimelineView        `json:"timeline"`
}

// ToSummary projects an order into its list shape.
func ToSummary(order models.Order) OrderSummary {
	totalItems := 0
	for _, item := range order.Items {
		totalItems += item.Quantity
	}
	return OrderSummary{
		ID:            order.ID,
		Number:        order.Number,
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
		PaymentMethod: order.PaymentMethod,
		TotalItems:    totalItems,
		TotalCents:    order.TotalCents,
		Currency:      order.Currency,
		CreatedAt:     order.CreatedAt,
	}
}

// ToDetail projects a fully loaded order.
func ToDetail(order models.Order) OrderDetail {
	detail := OrderDetail{
		OrderSummary:      ToSummary(order),
		SubtotalCents:     order.SubtotalCents,
		ShippingCents:     order.ShippingCents,
		DiscountCents:     order.DiscountCents,
		ShippingRateLabel: order.ShippingRateLabel,
		ShippingAddress:   order.ShippingAddress,
		BillingAddress:    order.BillingAddress,
		Items:             make([]OrderItemView, 0, len(order.Items)),
		Timeline:          make([]TimelineView, 0, len(order.Timeline)),
	}
	for _, item := range order.Items {
		view := OrderItemView{
			ProductID:      item.ProductID,
			Name:           item.Name,
			SKU:            item.SKU,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
			LineTotalCents: item.LineTotalCents,
		}
		if item.VariantID != uuid.Nil {
			variantID := item.VariantID
			view.VariantID = &variantID
		}
		detail.Items = append(detail.Items, view)
	}
	if order.Payment != nil {
		detail.Payment = &PaymentView{
			Method:        order.Payment.Method,
			Status:        order.Payment.Status,
			AmountCents:   order.Payment.AmountCents,
			ProviderTxnID: order.Payment.ProviderTxnID,
			PaidAt:        order.Payment.PaidAt,
		}
	}
	for _, event := range order.Timeline {
		detail.Timeline = append(detail.Timeline, TimelineView{
			EventType: event.EventType,
			Note:      event.Note,
			CreatedAt: event.CreatedAt,
		})
	}
	return detail
}

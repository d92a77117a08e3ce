package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/lankacart-backend/pkg/enums"
	"github.com/angelmondragon/lankacart-backend/pkg/types"
)

// Order is immutable after creation except for its status fields.
type Order struct {
	ID                uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	Number            string                `gorm:"column:number;not null;uniqueIndex:ux_orders_number"`
	IdempotencyKey    string                `gorm:"column:idempotency_key;not null;uniqueIndex:ux_orders_idempotency_key"`
	UserID            uuid.UUID             `gorm:"column:user_id;type:uuid;not null;index"`
	CartID            uuid.UUID             `gorm:"column:cart_id;type:uuid;not null"`
	Status            enums.OrderStatus     `gorm:"column:status;not null;default:'pending'"`
	PaymentStatus     enums.PaymentStatus   `gorm:"column:payment_status;not null;default:'unpaid'"`
	PaymentMethod     enums.PaymentMethod   `gorm:"column:payment_method;not null"`
	ProviderTxnID     *string               `gorm:"column:provider_txn_id;uniqueIndex:ux_orders_provider_txn_id"`
	Currency          enums.Currency        `gorm:"column:currency;not null;default:'LKR'"`
	SubtotalCents     int64                 `gorm:"column:subtotal_cents;not null"`
	ShippingCents     int64                 `gorm:"column:shipping_cents;not null"`
	DiscountCents     int64                 `gorm:"column:discount_cents;not null;default:0"`
	TotalCents        int64                 `gorm:"column:total_cents;not null"`
	ShippingRateLabel string                `gorm:"column:shipping_rate_label;not null"`
	ShippingAddress   types.AddressSnapshot `gorm:"column:shipping_address;type:jsonb;not null"`
	BillingAddress    types.AddressSnapshot `gorm:"column:billing_address;type:jsonb;not null"`
	Items             []OrderItem           `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Payment           *Payment              `gorm:"foreignKey:OrderID"`
	Timeline          []OrderTimelineEvent  `gorm:"foreignKey:OrderID"`
	CreatedAt         time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	assignID(&o.ID)
	return nil
}

// OrderItem is a decoupled snapshot of a cart line taken at commit time.
type OrderItem struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID      uuid.UUID `gorm:"column:product_id;type:uuid;not null"`
	VariantID      uuid.UUID `gorm:"column:variant_id;type:uuid;not null"`
	Name           string    `gorm:"column:name;not null"`
	SKU            string    `gorm:"column:sku;not null"`
	Quantity       int       `gorm:"column:quantity;not null"`
	UnitPriceCents int64     `gorm:"column:unit_price_cents;not null"`
	LineTotalCents int64     `gorm:"column:line_total_cents;not null"`
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	assignID(&i.ID)
	return nil
}

// OrderTimelineEvent is an append-only history entry of an order.
type OrderTimelineEvent struct {
	ID        uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	OrderID   uuid.UUID               `gorm:"column:order_id;type:uuid;not null;index"`
	EventType enums.TimelineEventType `gorm:"column:event_type;not null"`
	Note      string                  `gorm:"column:note"`
	CreatedAt time.Time               `gorm:"column:created_at;autoCreateTime"`
}

func (e *OrderTimelineEvent) BeforeCreate(*gorm.DB) error {
	assignID(&e.ID)
	return nil
}

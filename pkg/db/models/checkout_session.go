package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/lankacart-backend/pkg/enums"
)

// CheckoutSession persists the cart and address context of a hosted payment
// attempt. Reference doubles as the order idempotency token.
type CheckoutSession struct {
	ID                uuid.UUID                   `gorm:"column:id;type:uuid;primaryKey"`
	Reference         string                      `gorm:"column:reference;not null;uniqueIndex:ux_checkout_sessions_reference"`
	UserID            uuid.UUID                   `gorm:"column:user_id;type:uuid;not null;index"`
	CartID            uuid.UUID                   `gorm:"column:cart_id;type:uuid;not null"`
	ShippingAddressID uuid.UUID                   `gorm:"column:shipping_address_id;type:uuid;not null"`
	BillingAddressID  *uuid.UUID                  `gorm:"column:billing_address_id;type:uuid"`
	PaymentMethod     enums.PaymentMethod         `gorm:"column:payment_method;not null"`
	AmountCents       int64                       `gorm:"column:amount_cents;not null"`
	Currency          enums.Currency              `gorm:"column:currency;not null;default:'LKR'"`
	Status            enums.CheckoutSessionStatus `gorm:"column:status;not null;default:'open'"`
	ProviderTxnID     *string                     `gorm:"column:provider_txn_id"`
	CreatedAt         time.Time                   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time                   `gorm:"column:updated_at;autoUpdateTime"`
}

func (s *CheckoutSession) BeforeCreate(*gorm.DB) error {
	assignID(&s.ID)
	return nil
}

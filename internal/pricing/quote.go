package pricing

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/lankacart-backend/pkg/db/models"
	"github.com/angelmondragon/lankacart-backend/pkg/enums"
)

// QuoteInput identifies the cart and destination to price.
type QuoteInput struct {
	OwnerUserID       uuid.UUID
	CartID            uuid.UUID
	ShippingAddressID uuid.UUID
	BillingAddressID  *uuid.UUID
}

// QuoteItem is one repriced cart line.
type QuoteItem struct {
	LineID         uuid.UUID `json:"line_id"`
	ProductID      uuid.UUID `json:"product_id"`
	VariantID      uuid.UUID `json:"variant_id"`
	Name           string    `json:"name"`
	SKU            string    `json:"sku"`
	Quantity       int       `json:"quantity"`
	UnitPriceCents int64     `json:"unit_price_cents"`
	LineTotalCents int64     `json:"line_total_cents"`
}

// RateRef names the tier chosen for a quote.
type RateRef struct {
	ID               uuid.UUID `json:"id"`
	ZoneName         string    `json:"zone"`
	Label            string    `json:"label"`
	MinSubtotalCents int64     `json:"min_subtotal_cents"`
	PriceCents       int64     `json:"price_cents"`
}

// Quote is recomputed on demand and stale as soon as it is returned.
type Quote struct {
	CartID        uuid.UUID      `json:"cart_id"`
	Items         []QuoteItem    `json:"items"`
	SubtotalCents int64          `json:"subtotal_cents"`
	ShippingRate  RateRef        `json:"shipping_rate"`
	ShippingCents int64          `json:"shipping_cents"`
	DiscountCents int64          `json:"discount_cents"`
	TotalCents    int64          `json:"total_cents"`
	Currency      enums.Currency `json:"currency"`

	ShippingAddress *models.Address `json:"-"`
	BillingAddress  *models.Address `json:"-"`
}

// StockShortfall names the line whose stock fell below the requested quantity.
type StockShortfall struct {
	LineID    uuid.UUID `json:"line_id"`
	ProductID uuid.UUID `json:"product_id"`
	Name      string    `json:"name"`
	Requested int       `json:"requested"`
	Available int       `json:"available"`
}

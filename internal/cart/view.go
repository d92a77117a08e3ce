package cart

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/lankacart-backend/pkg/db/models"
	"github.com/angelmondragon/lankacart-backend/pkg/enums"
)

// LineView is the read model of one cart line.
type LineView struct {
	ID             uuid.UUID  `json:"id"`
	ProductID      uuid.UUID  `json:"product_id"`
	VariantID      *uuid.UUID `json:"variant_id,omitempty"`
	Quantity       int        `json:"quantity"`
	UnitPriceCents int64      `json:"unit_price_cents"`
	LineTotalCents int64      `json:"line_total_cents"`
}

// CartView is derived from the current lines on every read and never stored.
type CartView struct {
	ID            uuid.UUID      `json:"id"`
	Anonymous     bool           `json:"anonymous"`
	Lines         []LineView     `json:"lines"`
	SubtotalCents int64          `json:"subtotal_cents"`
	TotalQuantity int            `json:"total_quantity"`
	Currency      enums.Currency `json:"currency"`
}

// ToCartView derives totals from the captured line prices.
func ToCartView(cart *models.Cart) CartView {
	view := CartView{Lines: []LineView{}, Currency: enums.CurrencyLKR}
	if cart == nil {
		return view
	}
	view.ID = cart.ID
	view.Anonymous = cart.IsAnonymous()

	for _, line := range cart.Lines {
		lv := LineView{
			ID:             line.ID,
			ProductID:      line.ProductID,
			Quantity:       line.Quantity,
			UnitPriceCents: line.UnitPriceCents,
			LineTotalCents: line.UnitPriceCents * int64(line.Quantity),
		}
		if line.VariantID != uuid.Nil {
			variant := line.VariantID
			lv.VariantID = &variant
		}
		view.Lines = append(view.Lines, lv)
		view.SubtotalCents += lv.LineTotalCents
		view.TotalQuantity += line.Quantity
	}
	return view
}

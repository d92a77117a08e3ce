package pricing

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/lankacart-backend/internal/address"
	"github.com/angelmondragon/lankacart-backend/internal/cart"
	"github.com/angelmondragon/lankacart-backend/internal/catalog"
	"github.com/angelmondragon/lankacart-backend/pkg/db/models"
	"github.com/angelmondragon/lankacart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/lankacart-backend/pkg/errors"
)

type catalogReader interface {
	GetCurrentPriceAndStockTx(ctx context.Context, tx *gorm.DB, productID, variantID uuid.UUID) (*catalog.Item, error)
}

type addressReader interface {
	GetAddressTx(ctx context.Context, tx *gorm.DB, id, ownerUserID uuid.UUID) (*models.Address, error)
}

type zoneReader interface {
	ZoneForDistrict(ctx context.Context, tx *gorm.DB, district string) (*models.ShippingZone, error)
}

// Service computes priced quotes. It never writes.
type Service interface {
	Quote(ctx context.Context, input QuoteInput) (*Quote, error)
	QuoteTx(ctx context.Context, tx *gorm.DB, input QuoteInput) (*Quote, error)
}

type service struct {
	carts     cart.CartRepository
	catalog   catalogReader
	addresses addressReader
	zones     zoneReader
}

// NewService wires the resolver.
func NewService(carts cart.CartRepository, catalog catalogReader, addresses addressReader, zones zoneReader) (Service, error) {
	if carts == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("catalog reader required")
	}
	if addresses == nil {
		return nil, fmt.Errorf("address reader required")
	}
	if zones == nil {
		return nil, fmt.Errorf("zone reader required")
	}
	return &service{carts: carts, catalog: catalog, addresses: addresses, zones: zones}, nil
}

func (s *service) Quote(ctx context.Context, input QuoteInput) (*Quote, error) {
	return s.QuoteTx(ctx, nil, input)
}

// QuoteTx reprices every line from live data and resolves shipping. Inside a
// checkout transaction it reads through tx so the numbers match what commits.
func (s *service) QuoteTx(ctx context.Context, tx *gorm.DB, input QuoteInput) (*Quote, error) {
	if input.CartID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart_id is required")
	}
	if input.ShippingAddressID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping_address_id is required")
	}

	record, err := s.carts.WithTx(tx).FindByID(ctx, input.CartID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
	}
	if record.UserID == nil || *record.UserID != input.OwnerUserID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
	}
	if len(record.Lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}

	quote := &Quote{
		CartID:   record.ID,
		Items:    make([]QuoteItem, 0, len(record.Lines)),
		Currency: enums.CurrencyLKR,
	}
	for _, line := range record.Lines {
		item, err := s.catalog.GetCurrentPriceAndStockTx(ctx, tx, line.ProductID, line.VariantID)
		if err != nil {
			return nil, err
		}
		if item.AvailableStock < line.Quantity {
			return nil, pkgerrors.Newf(pkgerrors.CodeStockChanged, "Only %d left of %s", max(item.AvailableStock, 0), item.Name).
				WithDetails(StockShortfall{
					LineID:    line.ID,
					ProductID: line.ProductID,
					Name:      item.Name,
					Requested: line.Quantity,
					Available: max(item.AvailableStock, 0),
				})
		}
		lineTotal := item.PriceCents * int64(line.Quantity)
		quote.Items = append(quote.Items, QuoteItem{
			LineID:         line.ID,
			ProductID:      line.ProductID,
			VariantID:      line.VariantID,
			Name:           item.Name,
			SKU:            item.SKU,
			Quantity:       line.Quantity,
			UnitPriceCents: item.PriceCents,
			LineTotalCents: lineTotal,
		})
		quote.SubtotalCents += lineTotal
	}

	shipping, err := s.addresses.GetAddressTx(ctx, tx, input.ShippingAddressID, input.OwnerUserID)
	if err != nil {
		return nil, err
	}
	billing := shipping
	if input.BillingAddressID != nil && *input.BillingAddressID != uuid.Nil {
		billing, err = s.addresses.GetAddressTx(ctx, tx, *input.BillingAddressID, input.OwnerUserID)
		if err != nil {
			return nil, err
		}
	}
	quote.ShippingAddress = shipping
	quote.BillingAddress = billing

	zone, err := s.zones.ZoneForDistrict(ctx, tx, address.NormalizeDistrict(shipping.District))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Newf(pkgerrors.CodeShippingUnavailable, "we do not deliver to %s yet", shipping.District)
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load shipping zone")
	}

	rate, ok := SelectRate(zone.Rates, quote.SubtotalCents)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNoShippingRate, "no shipping rate applies to this order")
	}
	quote.ShippingRate = RateRef{
		ID:               rate.ID,
		ZoneName:         zone.Name,
		Label:            rate.Label,
		MinSubtotalCents: rate.MinSubtotalCents,
		PriceCents:       rate.PriceCents,
	}
	quote.ShippingCents = rate.PriceCents
	quote.DiscountCents = 0
	quote.TotalCents = quote.SubtotalCents + quote.ShippingCents - quote.DiscountCents
	return quote, nil
}

// SelectRate picks the tier with the highest threshold still covered by
// subtotal. Equal thresholds prefer a non-zero price, then the lowest id.
func SelectRate(rates []models.ShippingRate, subtotalCents int64) (models.ShippingRate, bool) {
	var (
		best  models.ShippingRate
		found bool
	)
	for _, r := range rates {
		if r.MinSubtotalCents > subtotalCents {
			continue
		}
		if !found || rateBeats(r, best) {
			best = r
			found = true
		}
	}
	return best, found
}

func rateBeats(candidate, current models.ShippingRate) bool {
	if candidate.MinSubtotalCents != current.MinSubtotalCents {
		return candidate.MinSubtotalCents > current.MinSubtotalCents
	}
	candidatePaid, currentPaid := candidate.PriceCents != 0, current.PriceCents != 0
	if candidatePaid != currentPaid {
		return candidatePaid
	}
	return bytes.Compare(candidate.ID[:], current.ID[:]) < 0
}

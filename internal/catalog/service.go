package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/lankacart-backend/internal/repo"
	"github.com/angelmondragon/lankacart-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/lankacart-backend/pkg/errors"
)

// StockReader exposes the ledger reads the catalog needs.
type StockReader interface {
	AvailableTx(ctx context.Context, tx *gorm.DB, productID, variantID uuid.UUID) (int, error)
}

// Item is the live price and stock of a sellable product or variant.
type Item struct {
	ProductID      uuid.UUID
	VariantID      uuid.UUID
	Name           string
	SKU            string
	PriceCents     int64
	AvailableStock int
}

// Service resolves live catalog data.
type Service interface {
	GetCurrentPriceAndStock(ctx context.Context, productID, variantID uuid.UUID) (*Item, error)
	GetCurrentPriceAndStockTx(ctx context.Context, tx *gorm.DB, productID, variantID uuid.UUID) (*Item, error)
}

type service struct {
	base  repo.Base
	stock StockReader
}

// NewService builds the catalog reader.
func NewService(db *gorm.DB, stock StockReader) (Service, error) {
	if db == nil {
		return nil, fmt.Errorf("db required")
	}
	if stock == nil {
		return nil, fmt.Errorf("stock reader required")
	}
	return &service{base: repo.NewBase(db), stock: stock}, nil
}

func (s *service) GetCurrentPriceAndStock(ctx context.Context, productID, variantID uuid.UUID) (*Item, error) {
	return s.GetCurrentPriceAndStockTx(ctx, nil, productID, variantID)
}

// GetCurrentPriceAndStockTx returns NotFound for unknown or inactive products
// and for variants that do not belong to the product.
func (s *service) GetCurrentPriceAndStockTx(ctx context.Context, tx *gorm.DB, productID, variantID uuid.UUID) (*Item, error) {
	conn := s.base.Conn(ctx, tx)

	var product models.Product
	if err := conn.Where("id = ? AND active = ?", productID, true).Take(&product).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product")
	}

	item := &Item{
		ProductID:  product.ID,
		VariantID:  uuid.Nil,
		Name:       product.Name,
		SKU:        product.SKU,
		PriceCents: product.PriceCents,
	}

	if variantID != uuid.Nil {
		var variant models.ProductVariant
		if err := conn.Where("id = ? AND product_id = ?", variantID, productID).Take(&variant).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, "variant not found")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load variant")
		}
		item.VariantID = variant.ID
		item.Name = product.Name + " - " + variant.Name
		item.SKU = variant.SKU
		item.PriceCents = variant.PriceCents
	}

	stock, err := s.stock.AvailableTx(ctx, tx, item.ProductID, item.VariantID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load stock")
	}
	item.AvailableStock = stock
	return item, nil
}

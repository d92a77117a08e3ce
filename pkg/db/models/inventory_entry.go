package models

import (
	"time"

	"github.com/google/uuid"
)

// InventoryEntry is the authoritative available-stock counter for a product
// (VariantID == uuid.Nil) or one of its variants.
type InventoryEntry struct {
	ProductID      uuid.UUID `gorm:"column:product_id;type:uuid;primaryKey"`
	VariantID      uuid.UUID `gorm:"column:variant_id;type:uuid;primaryKey"`
	AvailableStock int       `gorm:"column:available_stock;not null;check:chk_inventory_available_stock,available_stock >= 0"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

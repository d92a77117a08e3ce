package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ShippingZone groups destination districts under one rate table.
type ShippingZone struct {
	ID        uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	Name      string                 `gorm:"column:name;not null"`
	Districts []ShippingZoneDistrict `gorm:"foreignKey:ZoneID;constraint:OnDelete:CASCADE"`
	Rates     []ShippingRate         `gorm:"foreignKey:ZoneID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time              `gorm:"column:created_at;autoCreateTime"`
}

func (z *ShippingZone) BeforeCreate(*gorm.DB) error {
	assignID(&z.ID)
	return nil
}

// ShippingZoneDistrict maps a district to exactly one zone.
type ShippingZoneDistrict struct {
	ZoneID   uuid.UUID `gorm:"column:zone_id;type:uuid;not null;index"`
	District string    `gorm:"column:district;primaryKey"`
}

// ShippingRate is one subtotal-threshold tier of a zone.
type ShippingRate struct {
	ID               uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ZoneID           uuid.UUID `gorm:"column:zone_id;type:uuid;not null;index"`
	Label            string    `gorm:"column:label;not null"`
	MinSubtotalCents int64     `gorm:"column:min_subtotal_cents;not null"`
	PriceCents       int64     `gorm:"column:price_cents;not null"`
}

func (r *ShippingRate) BeforeCreate(*gorm.DB) error {
	assignID(&r.ID)
	return nil
}

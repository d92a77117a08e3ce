package pricing

import (
	"context"

	"gorm.io/gorm"

	"github.com/angelmondragon/lankacart-backend/internal/repo"
	"github.com/angelmondragon/lankacart-backend/pkg/db/models"
)

// ShippingRepository reads the zone/tier tables.
type ShippingRepository struct {
	base repo.Base
}

// NewShippingRepository binds the repository to db.
func NewShippingRepository(db *gorm.DB) *ShippingRepository {
	return &ShippingRepository{base: repo.NewBase(db)}
}

// ZoneForDistrict returns the zone containing district with its rate tiers.
// gorm.ErrRecordNotFound is returned when no zone covers the district.
func (r *ShippingRepository) ZoneForDistrict(ctx context.Context, tx *gorm.DB, district string) (*models.ShippingZone, error) {
	conn := r.base.Conn(ctx, tx)

	var mapping models.ShippingZoneDistrict
	if err := conn.Where("district = ?", district).Take(&mapping).Error; err != nil {
		return nil, err
	}

	var zone models.ShippingZone
	err := conn.
		Preload("Rates").
		Where("id = ?", mapping.ZoneID).
		Take(&zone).Error
	if err != nil {
		return nil, err
	}
	return &zone, nil
}

// CreateZone inserts a zone with its districts and tiers.
func (r *ShippingRepository) CreateZone(ctx context.Context, name string, districts []string, rates []models.ShippingRate) (*models.ShippingZone, error) {
	zone := &models.ShippingZone{Name: name}
	err := r.base.DB(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Districts", "Rates").Create(zone).Error; err != nil {
			return err
		}
		for _, d := range districts {
			if err := tx.Create(&models.ShippingZoneDistrict{ZoneID: zone.ID, District: d}).Error; err != nil {
				return err
			}
		}
		for i := range rates {
			rates[i].ZoneID = zone.ID
			if err := tx.Create(&rates[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	zone.Rates = rates
	return zone, nil
}

package main

import (
	"context"

	"gorm.io/gorm"

	"github.com/angelmondragon/lankacart-backend/internal/pricing"
	"github.com/angelmondragon/lankacart-backend/pkg/db/models"
)

type zoneSeed struct {
	name      string
	districts []string
	rates     []models.ShippingRate
}

// defaultZones covers all 25 districts. Western province ships cheaper and
// free above LKR 10,000; everything else is free above LKR 15,000.
func defaultZones() []zoneSeed {
	return []zoneSeed{
		{
			name:      "Western",
			districts: []string{"Colombo", "Gampaha", "Kalutara"},
			rates: []models.ShippingRate{
				{Label: "Standard", MinSubtotalCents: 0, PriceCents: 35000},
				{Label: "Free delivery", MinSubtotalCents: 1000000, PriceCents: 0},
			},
		},
		{
			name: "Outstation",
			districts: []string{
				"Kandy", "Matale", "Nuwara Eliya", "Galle", "Matara", "Hambantota",
				"Jaffna", "Kilinochchi", "Mannar", "Vavuniya", "Mullaitivu",
				"Batticaloa", "Ampara", "Trincomalee", "Kurunegala", "Puttalam",
				"Anuradhapura", "Polonnaruwa", "Badulla", "Monaragala",
				"Ratnapura", "Kegalle",
			},
			rates: []models.ShippingRate{
				{Label: "Standard", MinSubtotalCents: 0, PriceCents: 50000},
				{Label: "Free delivery", MinSubtotalCents: 1500000, PriceCents: 0},
			},
		},
	}
}

// seedShipping inserts the default zones when the zone table is empty and
// returns how many were created.
func seedShipping(ctx context.Context, conn *gorm.DB) (int, error) {
	var existing int64
	if err := conn.WithContext(ctx).Model(&models.ShippingZone{}).Count(&existing).Error; err != nil {
		return 0, err
	}
	if existing > 0 {
		return 0, nil
	}

	repo := pricing.NewShippingRepository(conn)
	created := 0
	for _, zone := range defaultZones() {
		if _, err := repo.CreateZone(ctx, zone.name, zone.districts, zone.rates); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}

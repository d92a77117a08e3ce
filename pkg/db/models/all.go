package models

// All lists every persisted model, used by SQLite auto-migration.
func All() []any {
	return []any{
		&Product{},
		&ProductVariant{},
		&InventoryEntry{},
		&Address{},
		&ShippingZone{},
		&ShippingZoneDistrict{},
		&ShippingRate{},
		&Cart{},
		&CartLine{},
		&Order{},
		&OrderItem{},
		&Payment{},
		&OrderTimelineEvent{},
		&CheckoutSession{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Cart is a shopper's mutable collection of lines. A nil UserID marks an
// anonymous cart addressed by AnonymousToken.
type Cart struct {
	ID             uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	AnonymousToken *string    `gorm:"column:anonymous_token;uniqueIndex:ux_carts_anonymous_token"`
	UserID         *uuid.UUID `gorm:"column:user_id;type:uuid;uniqueIndex:ux_carts_user_id"`
	Lines          []CartLine `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *Cart) BeforeCreate(*gorm.DB) error {
	assignID(&c.ID)
	return nil
}

// IsAnonymous reports whether no user owns the cart.
func (c *Cart) IsAnonymous() bool {
	return c.UserID == nil
}

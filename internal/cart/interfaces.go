package cart

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/lankacart-backend/internal/catalog"
	"github.com/angelmondragon/lankacart-backend/pkg/db/models"
)

// CartRepository defines the persistence surface required by the cart service.
type CartRepository interface {
	WithTx(tx *gorm.DB) CartRepository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Cart, error)
	FindByUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	FindByAnonymousToken(ctx context.Context, token string) (*models.Cart, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.Cart, error)
	Create(ctx context.Context, cart *models.Cart) error
	AssignOwner(ctx context.Context, cartID, userID uuid.UUID) error
	Delete(ctx context.Context, cartID uuid.UUID) error
	ListLines(ctx context.Context, cartID uuid.UUID) ([]models.CartLine, error)
	FindLine(ctx context.Context, cartID, lineID uuid.UUID) (*models.CartLine, error)
	FindLineByItem(ctx context.Context, cartID, productID, variantID uuid.UUID) (*models.CartLine, error)
	SaveLine(ctx context.Context, line *models.CartLine) error
	DeleteLine(ctx context.Context, cartID, lineID uuid.UUID) (bool, error)
	ClearLines(ctx context.Context, cartID uuid.UUID) error
}

type catalogReader interface {
	GetCurrentPriceAndStockTx(ctx context.Context, tx *gorm.DB, productID, variantID uuid.UUID) (*catalog.Item, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

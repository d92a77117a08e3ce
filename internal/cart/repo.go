package cart

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/lankacart-backend/internal/repo"
	"github.com/angelmondragon/lankacart-backend/pkg/db/models"
)

// Repository exposes persistence operations for carts and their lines.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a cart repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) CartRepository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func orderedLines(db *gorm.DB) *gorm.DB {
	return db.Order("created_at ASC, id ASC")
}

// FindByID loads a cart with its lines in insertion order.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	err := r.db.WithContext(ctx).
		Preload("Lines", orderedLines).
		Where("id = ?", id).
		Take(&cart).Error
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

// FindByUser loads the cart owned by the user.
func (r *Repository) FindByUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	err := r.db.WithContext(ctx).
		Preload("Lines", orderedLines).
		Where("user_id = ?", userID).
		Take(&cart).Error
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

// FindByAnonymousToken loads an unowned cart by its cookie token.
func (r *Repository) FindByAnonymousToken(ctx context.Context, token string) (*models.Cart, error) {
	var cart models.Cart
	err := r.db.WithContext(ctx).
		Preload("Lines", orderedLines).
		Where("anonymous_token = ? AND user_id IS NULL", token).
		Take(&cart).Error
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

// LockByID row-locks the cart for the rest of the transaction. Lines are not
// loaded.
func (r *Repository) LockByID(ctx context.Context, id uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	err := repo.ForUpdate(r.db.WithContext(ctx)).
		Where("id = ?", id).
		Take(&cart).Error
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

// Create inserts an empty cart.
func (r *Repository) Create(ctx context.Context, cart *models.Cart) error {
	return r.db.WithContext(ctx).Omit("Lines").Create(cart).Error
}

// AssignOwner turns an anonymous cart into the user's cart.
func (r *Repository) AssignOwner(ctx context.Context, cartID, userID uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("id = ? AND user_id IS NULL", cartID).
		Updates(map[string]any{
			"user_id":         userID,
			"anonymous_token": nil,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete removes the cart and its lines.
func (r *Repository) Delete(ctx context.Context, cartID uuid.UUID) error {
	if err := r.ClearLines(ctx, cartID); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Where("id = ?", cartID).Delete(&models.Cart{}).Error
}

// ListLines returns the lines of a cart in insertion order.
func (r *Repository) ListLines(ctx context.Context, cartID uuid.UUID) ([]models.CartLine, error) {
	var lines []models.CartLine
	err := orderedLines(r.db.WithContext(ctx)).
		Where("cart_id = ?", cartID).
		Find(&lines).Error
	return lines, err
}

// FindLine loads a line scoped to its cart.
func (r *Repository) FindLine(ctx context.Context, cartID, lineID uuid.UUID) (*models.CartLine, error) {
	var line models.CartLine
	err := r.db.WithContext(ctx).
		Where("id = ? AND cart_id = ?", lineID, cartID).
		Take(&line).Error
	if err != nil {
		return nil, err
	}
	return &line, nil
}

// FindLineByItem loads the line for a (product, variant) pair.
func (r *Repository) FindLineByItem(ctx context.Context, cartID, productID, variantID uuid.UUID) (*models.CartLine, error) {
	var line models.CartLine
	err := r.db.WithContext(ctx).
		Where("cart_id = ? AND product_id = ? AND variant_id = ?", cartID, productID, variantID).
		Take(&line).Error
	if err != nil {
		return nil, err
	}
	return &line, nil
}

// SaveLine inserts new lines and updates existing ones.
func (r *Repository) SaveLine(ctx context.Context, line *models.CartLine) error {
	if line.ID == uuid.Nil {
		return r.db.WithContext(ctx).Create(line).Error
	}
	return r.db.WithContext(ctx).
		Model(&models.CartLine{}).
		Where("id = ? AND cart_id = ?", line.ID, line.CartID).
		Updates(map[string]any{
			"quantity":         line.Quantity,
			"unit_price_cents": line.UnitPriceCents,
			"updated_at":       time.Now().UTC(),
		}).Error
}

// DeleteLine removes one line and reports whether it existed.
func (r *Repository) DeleteLine(ctx context.Context, cartID, lineID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND cart_id = ?", lineID, cartID).
		Delete(&models.CartLine{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ClearLines empties the cart but keeps the cart row.
func (r *Repository) ClearLines(ctx context.Context, cartID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("cart_id = ?", cartID).Delete(&models.CartLine{}).Error
}

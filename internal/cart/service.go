package cart

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/lankacart-backend/pkg/db"
	"github.com/angelmondragon/lankacart-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/lankacart-backend/pkg/errors"
)

// DefaultMaxLineQty bounds a single line when no limit is configured.
const DefaultMaxLineQty = 10

// errCartTaken means a concurrent resolve already claimed or merged the
// anonymous cart.
var errCartTaken = errors.New("anonymous cart already resolved")

// Service exposes cart operations.
type Service interface {
	ResolveCart(ctx context.Context, anonymousToken *string, userID *uuid.UUID) (*models.Cart, error)
	GetCart(ctx context.Context, cartID uuid.UUID) (*models.Cart, error)
	AddLine(ctx context.Context, cartID, productID uuid.UUID, variantID *uuid.UUID, qty int) (*models.Cart, error)
	UpdateLineQuantity(ctx context.Context, cartID, lineID uuid.UUID, qty int) (*models.Cart, error)
	RemoveLine(ctx context.Context, cartID, lineID uuid.UUID) (*models.Cart, error)
	ClearLines(ctx context.Context, tx *gorm.DB, cartID uuid.UUID) error
}

type service struct {
	repo    CartRepository
	tx      txRunner
	catalog catalogReader
	maxQty  int
}

// NewService builds a cart service backed by the provided stack.
func NewService(repo CartRepository, tx txRunner, catalog catalogReader, maxQty int) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("catalog reader required")
	}
	if maxQty <= 0 {
		maxQty = DefaultMaxLineQty
	}
	return &service{repo: repo, tx: tx, catalog: catalog, maxQty: maxQty}, nil
}

// ResolveCart returns the cart for the caller, creating, re-owning or merging
// as needed. Anonymous callers get their cookie cart or a fresh one.
func (s *service) ResolveCart(ctx context.Context, anonymousToken *string, userID *uuid.UUID) (*models.Cart, error) {
	token := ""
	if anonymousToken != nil {
		token = *anonymousToken
	}
	if userID == nil || *userID == uuid.Nil {
		return s.resolveAnonymous(ctx, token)
	}

	var cartID uuid.UUID
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		id, err := s.resolveOwned(ctx, s.repo.WithTx(tx), tx, token, *userID)
		cartID = id
		return err
	})
	if err != nil {
		// A concurrent request created, claimed or merged into the user's
		// cart first.
		if errors.Is(err, errCartTaken) || db.IsUniqueViolation(err, "ux_carts_user_id", "carts.user_id") {
			return s.loadByUser(ctx, *userID)
		}
		return nil, err
	}
	return s.GetCart(ctx, cartID)
}

func (s *service) resolveAnonymous(ctx context.Context, token string) (*models.Cart, error) {
	if token != "" {
		cart, err := s.repo.FindByAnonymousToken(ctx, token)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load anonymous cart")
		}
	}

	fresh := uuid.NewString()
	cart := &models.Cart{AnonymousToken: &fresh}
	if err := s.repo.Create(ctx, cart); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create anonymous cart")
	}
	return cart, nil
}

func (s *service) resolveOwned(ctx context.Context, repo CartRepository, tx *gorm.DB, token string, userID uuid.UUID) (uuid.UUID, error) {
	owned, err := repo.FindByUser(ctx, userID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user cart")
	}

	var anon *models.Cart
	if token != "" {
		anon, err = repo.FindByAnonymousToken(ctx, token)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load anonymous cart")
		}
	}

	switch {
	case owned != nil && (anon == nil || anon.ID == owned.ID):
		return owned.ID, nil
	case owned == nil && anon != nil:
		err := repo.AssignOwner(ctx, anon.ID, userID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return uuid.Nil, errCartTaken
		}
		if err != nil {
			return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "claim anonymous cart")
		}
		return anon.ID, nil
	case owned != nil && anon != nil:
		if err := s.merge(ctx, repo, tx, owned.ID, anon.ID); err != nil {
			return uuid.Nil, err
		}
		return owned.ID, nil
	default:
		cart := &models.Cart{UserID: &userID}
		if err := repo.Create(ctx, cart); err != nil {
			return uuid.Nil, err
		}
		return cart.ID, nil
	}
}

// merge folds the anonymous cart into the owned one. Both rows are locked in
// id order; lines are re-priced against live stock, out-of-stock lines are
// dropped and quantities are silently clamped.
func (s *service) merge(ctx context.Context, repo CartRepository, tx *gorm.DB, ownedID, anonID uuid.UUID) error {
	first, second := ownedID, anonID
	if bytes.Compare(second[:], first[:]) < 0 {
		first, second = second, first
	}
	for _, id := range []uuid.UUID{first, second} {
		locked, err := repo.LockByID(ctx, id)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errCartTaken
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock cart")
		}
		// The anonymous cart was read before the lock; it may have been
		// claimed since.
		if id == anonID && locked.UserID != nil {
			return errCartTaken
		}
	}

	anonLines, err := repo.ListLines(ctx, anonID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load anonymous lines")
	}

	for _, line := range anonLines {
		item, err := s.catalog.GetCurrentPriceAndStockTx(ctx, tx, line.ProductID, line.VariantID)
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		ceiling := min(item.AvailableStock, s.maxQty)
		if ceiling <= 0 {
			continue
		}

		target, err := repo.FindLineByItem(ctx, ownedID, line.ProductID, line.VariantID)
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			target = &models.CartLine{
				CartID:    ownedID,
				ProductID: line.ProductID,
				VariantID: line.VariantID,
			}
		case err != nil:
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load owned line")
		}

		target.Quantity = min(target.Quantity+line.Quantity, ceiling)
		target.UnitPriceCents = item.PriceCents
		if err := repo.SaveLine(ctx, target); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "merge line")
		}
	}

	if err := repo.Delete(ctx, anonID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete anonymous cart")
	}
	return nil
}

func (s *service) loadByUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	cart, err := s.repo.FindByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user cart")
	}
	return cart, nil
}

func (s *service) GetCart(ctx context.Context, cartID uuid.UUID) (*models.Cart, error) {
	cart, err := s.repo.FindByID(ctx, cartID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
	}
	return cart, nil
}

func (s *service) validateQty(qty int) error {
	if qty < 1 || qty > s.maxQty {
		return pkgerrors.Newf(pkgerrors.CodeInvalidQuantity, "quantity must be between 1 and %d", s.maxQty).
			WithDetails(map[string]any{"min": 1, "max": s.maxQty})
	}
	return nil
}

// AddLine upserts a line, re-stamping its unit price to the live price.
func (s *service) AddLine(ctx context.Context, cartID, productID uuid.UUID, variantID *uuid.UUID, qty int) (*models.Cart, error) {
	if err := s.validateQty(qty); err != nil {
		return nil, err
	}
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product_id is required")
	}
	variant := uuid.Nil
	if variantID != nil {
		variant = *variantID
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := lockCart(ctx, repo, cartID); err != nil {
			return err
		}

		item, err := s.catalog.GetCurrentPriceAndStockTx(ctx, tx, productID, variant)
		if err != nil {
			return err
		}
		if item.AvailableStock <= 0 {
			return outOfStock(item.Name)
		}

		line, err := repo.FindLineByItem(ctx, cartID, productID, variant)
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			line = &models.CartLine{CartID: cartID, ProductID: productID, VariantID: variant}
		case err != nil:
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart line")
		}

		total := line.Quantity + qty
		if total > item.AvailableStock {
			return insufficientStock(item.AvailableStock)
		}
		if total > s.maxQty {
			return pkgerrors.Newf(pkgerrors.CodeInvalidQuantity, "maximum %d per item", s.maxQty).
				WithDetails(map[string]any{"max": s.maxQty, "in_cart": line.Quantity})
		}

		line.Quantity = total
		line.UnitPriceCents = item.PriceCents
		if err := repo.SaveLine(ctx, line); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save cart line")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetCart(ctx, cartID)
}

// UpdateLineQuantity sets an absolute quantity after re-validating stock.
func (s *service) UpdateLineQuantity(ctx context.Context, cartID, lineID uuid.UUID, qty int) (*models.Cart, error) {
	if err := s.validateQty(qty); err != nil {
		return nil, err
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := lockCart(ctx, repo, cartID); err != nil {
			return err
		}

		line, err := repo.FindLine(ctx, cartID, lineID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "cart line not found")
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart line")
		}

		item, err := s.catalog.GetCurrentPriceAndStockTx(ctx, tx, line.ProductID, line.VariantID)
		if err != nil {
			return err
		}
		if item.AvailableStock <= 0 {
			return outOfStock(item.Name)
		}
		if qty > item.AvailableStock {
			return insufficientStock(item.AvailableStock)
		}

		line.Quantity = qty
		line.UnitPriceCents = item.PriceCents
		if err := repo.SaveLine(ctx, line); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save cart line")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetCart(ctx, cartID)
}

// RemoveLine deletes a line without any stock check.
func (s *service) RemoveLine(ctx context.Context, cartID, lineID uuid.UUID) (*models.Cart, error) {
	removed, err := s.repo.DeleteLine(ctx, cartID, lineID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "remove cart line")
	}
	if !removed {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart line not found")
	}
	return s.GetCart(ctx, cartID)
}

// ClearLines empties the cart inside the caller's transaction.
func (s *service) ClearLines(ctx context.Context, tx *gorm.DB, cartID uuid.UUID) error {
	if err := s.repo.WithTx(tx).ClearLines(ctx, cartID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clear cart")
	}
	return nil
}

func lockCart(ctx context.Context, repo CartRepository, cartID uuid.UUID) error {
	_, err := repo.LockByID(ctx, cartID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock cart")
	}
	return nil
}

func outOfStock(name string) error {
	return pkgerrors.Newf(pkgerrors.CodeOutOfStock, "%s is out of stock", name)
}

func insufficientStock(available int) error {
	return pkgerrors.Newf(pkgerrors.CodeInsufficientStock, "Only %d left", available).
		WithDetails(map[string]any{"available": available})
}

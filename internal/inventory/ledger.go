package inventory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/lankacart-backend/internal/repo"
	"github.com/angelmondragon/lankacart-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/lankacart-backend/pkg/errors"
)

// Key identifies a stock counter. VariantID is uuid.Nil for product-level stock.
type Key struct {
	ProductID uuid.UUID
	VariantID uuid.UUID
}

func (k Key) less(other Key) bool {
	if c := bytes.Compare(k.ProductID[:], other.ProductID[:]); c != 0 {
		return c < 0
	}
	return bytes.Compare(k.VariantID[:], other.VariantID[:]) < 0
}

// Debit requests removal of Quantity units from one counter.
type Debit struct {
	ProductID uuid.UUID
	VariantID uuid.UUID
	Quantity  int
}

func (d Debit) key() Key {
	return Key{ProductID: d.ProductID, VariantID: d.VariantID}
}

// StockShortfall describes the counter that stopped a debit.
type StockShortfall struct {
	ProductID uuid.UUID `json:"product_id"`
	VariantID uuid.UUID `json:"variant_id"`
	Requested int       `json:"requested"`
	Available int       `json:"available"`
}

// Ledger owns the available-stock counters.
type Ledger struct {
	base repo.Base
}

// NewLedger returns a ledger backed by the given connection.
func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{base: repo.NewBase(db)}
}

// Available returns the current stock. Missing counters read as zero.
func (l *Ledger) Available(ctx context.Context, productID, variantID uuid.UUID) (int, error) {
	return l.AvailableTx(ctx, nil, productID, variantID)
}

// AvailableTx reads stock through tx when one is open.
func (l *Ledger) AvailableTx(ctx context.Context, tx *gorm.DB, productID, variantID uuid.UUID) (int, error) {
	var entry models.InventoryEntry
	err := l.base.Conn(ctx, tx).
		Where("product_id = ? AND variant_id = ?", productID, variantID).
		Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load inventory: %w", err)
	}
	return entry.AvailableStock, nil
}

// SetStock overwrites a counter, creating it when absent.
func (l *Ledger) SetStock(ctx context.Context, productID, variantID uuid.UUID, qty int) error {
	if qty < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "stock cannot be negative")
	}
	if productID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	entry := models.InventoryEntry{
		ProductID:      productID,
		VariantID:      variantID,
		AvailableStock: qty,
		UpdatedAt:      time.Now().UTC(),
	}
	err := l.base.DB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "product_id"}, {Name: "variant_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"available_stock", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("set stock: %w", err)
	}
	return nil
}

// Debit removes stock for every request inside tx. It is all-or-nothing: the
// first counter that cannot cover its quantity returns a StockChanged error
// and the caller must roll tx back.
func (l *Ledger) Debit(ctx context.Context, tx *gorm.DB, debits []Debit) error {
	if tx == nil {
		return fmt.Errorf("inventory debit requires a transaction")
	}
	merged, err := mergeDebits(debits)
	if err != nil {
		return err
	}

	conn := tx.WithContext(ctx)
	now := time.Now().UTC()
	for _, d := range merged {
		res := conn.Model(&models.InventoryEntry{}).
			Where("product_id = ? AND variant_id = ? AND available_stock >= ?", d.ProductID, d.VariantID, d.Quantity).
			Updates(map[string]any{
				"available_stock": gorm.Expr("available_stock - ?", d.Quantity),
				"updated_at":      now,
			})
		if res.Error != nil {
			return fmt.Errorf("debit inventory: %w", res.Error)
		}
		if res.RowsAffected == 1 {
			continue
		}

		available, err := l.AvailableTx(ctx, tx, d.ProductID, d.VariantID)
		if err != nil {
			return err
		}
		return pkgerrors.Newf(pkgerrors.CodeStockChanged, "only %d left", available).
			WithDetails(StockShortfall{
				ProductID: d.ProductID,
				VariantID: d.VariantID,
				Requested: d.Quantity,
				Available: available,
			})
	}
	return nil
}

// mergeDebits folds duplicate keys and orders them so concurrent commits
// always lock counters in the same sequence.
func mergeDebits(debits []Debit) ([]Debit, error) {
	totals := make(map[Key]int, len(debits))
	for _, d := range debits {
		if d.ProductID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
		}
		if d.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidQuantity, "quantity must be positive")
		}
		totals[d.key()] += d.Quantity
	}

	keys := make([]Key, 0, len(totals))
	for k := range totals {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].less(keys[j]) })

	out := make([]Debit, len(keys))
	for i, k := range keys {
		out[i] = Debit{ProductID: k.ProductID, VariantID: k.VariantID, Quantity: totals[k]}
	}
	return out, nil
}

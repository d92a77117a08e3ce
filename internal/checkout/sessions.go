package checkout

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/lankacart-backend/internal/repo"
	"github.com/angelmondragon/lankacart-backend/pkg/db/models"
	"github.com/angelmondragon/lankacart-backend/pkg/enums"
)

// SessionRepository persists hosted checkout sessions.
type SessionRepository interface {
	WithTx(tx *gorm.DB) SessionRepository
	Create(ctx context.Context, session *models.CheckoutSession) error
	FindByReference(ctx context.Context, reference string) (*models.CheckoutSession, error)
	LockByReference(ctx context.Context, reference string) (*models.CheckoutSession, error)
	Refresh(ctx context.Context, id uuid.UUID, updates SessionRefresh) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.CheckoutSessionStatus, providerTxnID *string) error
	ListOpenBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.CheckoutSession, error)
}

// SessionRefresh carries the fields re-quoted when a shopper retries an open
// session.
type SessionRefresh struct {
	CartID            uuid.UUID
	ShippingAddressID uuid.UUID
	BillingAddressID  *uuid.UUID
	AmountCents       int64
}

type sessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository builds a session repository bound to db.
func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &sessionRepository{db: db}
}

func (r *sessionRepository) WithTx(tx *gorm.DB) SessionRepository {
	if tx == nil {
		return r
	}
	return &sessionRepository{db: tx}
}

func (r *sessionRepository) Create(ctx context.Context, session *models.CheckoutSession) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *sessionRepository) FindByReference(ctx context.Context, reference string) (*models.CheckoutSession, error) {
	var session models.CheckoutSession
	err := r.db.WithContext(ctx).
		Where("reference = ?", reference).
		Take(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepository) LockByReference(ctx context.Context, reference string) (*models.CheckoutSession, error) {
	var session models.CheckoutSession
	err := repo.ForUpdate(r.db.WithContext(ctx)).
		Where("reference = ?", reference).
		Take(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepository) Refresh(ctx context.Context, id uuid.UUID, updates SessionRefresh) error {
	return r.db.WithContext(ctx).
		Model(&models.CheckoutSession{}).
		Where("id = ? AND status = ?", id, enums.CheckoutSessionOpen).
		Updates(map[string]any{
			"cart_id":             updates.CartID,
			"shipping_address_id": updates.ShippingAddressID,
			"billing_address_id":  updates.BillingAddressID,
			"amount_cents":        updates.AmountCents,
			"updated_at":          time.Now().UTC(),
		}).Error
}

func (r *sessionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.CheckoutSessionStatus, providerTxnID *string) error {
	updates := map[string]any{
		"status":     status,
		"updated_at": time.Now().UTC(),
	}
	if providerTxnID != nil {
		updates["provider_txn_id"] = *providerTxnID
	}
	return r.db.WithContext(ctx).
		Model(&models.CheckoutSession{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// ListOpenBefore returns open sessions untouched since cutoff, oldest first.
func (r *sessionRepository) ListOpenBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.CheckoutSession, error) {
	var sessions []models.CheckoutSession
	q := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", enums.CheckoutSessionOpen, cutoff).
		Order("updated_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&sessions).Error
	return sessions, err
}

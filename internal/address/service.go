package address

import (
	"context"
	stdErrors "errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/lankacart-backend/internal/repo"
	"github.com/angelmondragon/lankacart-backend/pkg/db/models"
	"github.com/angelmondragon/lankacart-backend/pkg/errors"
)

// Service is the narrow address book surface used by checkout.
type Service interface {
	GetAddress(ctx context.Context, id, ownerUserID uuid.UUID) (*models.Address, error)
	GetAddressTx(ctx context.Context, tx *gorm.DB, id, ownerUserID uuid.UUID) (*models.Address, error)
	Create(ctx context.Context, addr *models.Address) error
}

type service struct {
	base repo.Base
}

func NewService(db *gorm.DB) Service {
	return &service{base: repo.NewBase(db)}
}

func (s *service) GetAddress(ctx context.Context, id, ownerUserID uuid.UUID) (*models.Address, error) {
	return s.GetAddressTx(ctx, nil, id, ownerUserID)
}

// GetAddressTx hides addresses owned by someone else behind NotFound.
func (s *service) GetAddressTx(ctx context.Context, tx *gorm.DB, id, ownerUserID uuid.UUID) (*models.Address, error) {
	if id == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "address id is required")
	}
	var addr models.Address
	err := s.base.Conn(ctx, tx).Where("id = ? AND user_id = ?", id, ownerUserID).Take(&addr).Error
	if stdErrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.New(errors.CodeNotFound, "address not found")
	}
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "load address")
	}
	return &addr, nil
}

func (s *service) Create(ctx context.Context, addr *models.Address) error {
	if addr == nil {
		return errors.New(errors.CodeValidation, "address is required")
	}
	if addr.UserID == uuid.Nil {
		return errors.New(errors.CodeValidation, "user_id is required")
	}
	if strings.TrimSpace(addr.Line1) == "" {
		return errors.New(errors.CodeValidation, "line1 is required")
	}
	addr.District = NormalizeDistrict(addr.District)
	if addr.District == "" {
		return errors.New(errors.CodeValidation, "district is required")
	}
	if err := s.base.DB(ctx).Create(addr).Error; err != nil {
		return errors.Wrap(errors.CodeInternal, err, "create address")
	}
	return nil
}

// NormalizeDistrict trims and title-cases a district name so it matches
// shipping_zone_districts rows regardless of user input casing.
func NormalizeDistrict(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	words := strings.Fields(strings.ToLower(raw))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

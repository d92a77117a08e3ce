package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/lankacart-backend/api/middleware"
	"github.com/angelmondragon/lankacart-backend/api/responses"
	"github.com/angelmondragon/lankacart-backend/api/validators"
	"github.com/angelmondragon/lankacart-backend/internal/address"
	"github.com/angelmondragon/lankacart-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/lankacart-backend/pkg/errors"
	"github.com/angelmondragon/lankacart-backend/pkg/logger"
)

type AddressRequest struct {
	Recipient  string  `json:"recipient" validate:"required,max=120"`
	Line1      string  `json:"line1" validate:"required,max=200"`
	Line2      *string `json:"line2" validate:"omitempty,max=200"`
	City       string  `json:"city" validate:"required,max=80"`
	District   string  `json:"district" validate:"required,max=40"`
	PostalCode string  `json:"postal_code" validate:"omitempty,lk_postcode"`
	Phone      string  `json:"phone" validate:"omitempty,lk_phone"`
}

type AddressView struct {
	ID         uuid.UUID `json:"id"`
	Recipient  string    `json:"recipient"`
	Line1      string    `json:"line1"`
	Line2      *string   `json:"line2,omitempty"`
	City       string    `json:"city"`
	District   string    `json:"district"`
	PostalCode string    `json:"postal_code,omitempty"`
	Phone      string    `json:"phone,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func newAddressView(addr *models.Address) AddressView {
	return AddressView{
		ID:         addr.ID,
		Recipient:  addr.Recipient,
		Line1:      addr.Line1,
		Line2:      addr.Line2,
		City:       addr.City,
		District:   addr.District,
		PostalCode: addr.PostalCode,
		Phone:      addr.Phone,
		CreatedAt:  addr.CreatedAt,
	}
}

// AddressCreate stores a delivery address for the caller.
func AddressCreate(svc address.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "address service unavailable"))
			return
		}

		userID, ok := middleware.UserUUIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}

		var payload AddressRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		addr := &models.Address{
			UserID:     userID,
			Recipient:  validators.SanitizeString(payload.Recipient, 120),
			Line1:      validators.SanitizeString(payload.Line1, 200),
			City:       validators.SanitizeString(payload.City, 80),
			District:   payload.District,
			PostalCode: validators.SanitizeString(payload.PostalCode, 10),
			Phone:      validators.SanitizeString(payload.Phone, 20),
		}
		if payload.Line2 != nil {
			line2 := validators.SanitizeString(*payload.Line2, 200)
			addr.Line2 = &line2
		}

		if err := svc.Create(r.Context(), addr); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteCreated(w, newAddressView(addr))
	}
}

// AddressFetch returns one of the caller's addresses.
func AddressFetch(svc address.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "address service unavailable"))
			return
		}

		userID, ok := middleware.UserUUIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}

		addressID, err := validators.ParseUUIDParam(r, "addressId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		addr, err := svc.GetAddress(r.Context(), addressID, userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newAddressView(addr))
	}
}

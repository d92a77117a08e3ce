package orders

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/lankacart-backend/api/middleware"
	"github.com/angelmondragon/lankacart-backend/api/responses"
	"github.com/angelmondragon/lankacart-backend/api/validators"
	internalorders "github.com/angelmondragon/lankacart-backend/internal/orders"
	"github.com/angelmondragon/lankacart-backend/pkg/db/models"
	"github.com/angelmondragon/lankacart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/lankacart-backend/pkg/errors"
	"github.com/angelmondragon/lankacart-backend/pkg/logger"
	"github.com/angelmondragon/lankacart-backend/pkg/pagination"
)

// TransitionRequest moves an order to the next fulfilment status.
type TransitionRequest struct {
	Status string `json:"status" validate:"required"`
	Note   string `json:"note" validate:"max=500"`
}

// handlerFunc is one authenticated orders endpoint. The returned value is
// written as the success payload.
type handlerFunc func(r *http.Request, svc internalorders.Service, userID uuid.UUID) (any, error)

func endpoint(svc internalorders.Service, logg *logger.Logger, fn handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		userID, ok := middleware.UserUUIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}
		data, err := fn(r, svc, userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, data)
	}
}

// List returns the caller's orders, newest first.
func List(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return endpoint(svc, logg, func(r *http.Request, svc internalorders.Service, userID uuid.UUID) (any, error) {
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			return nil, err
		}
		return svc.ListForUser(r.Context(), userID, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
	})
}

// Detail returns one of the caller's orders. Orders owned by someone else are
// reported as not found.
func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return endpoint(svc, logg, func(r *http.Request, svc internalorders.Service, userID uuid.UUID) (any, error) {
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			return nil, err
		}
		return detail(svc.Get(r.Context(), orderID, &userID))
	})
}

// DetailByNumber looks an order up by its human-readable number.
func DetailByNumber(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return endpoint(svc, logg, func(r *http.Request, svc internalorders.Service, userID uuid.UUID) (any, error) {
		number := strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "number")))
		if number == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "order number is required")
		}
		return detail(svc.GetByNumber(r.Context(), number, &userID))
	})
}

// AdminTransition lets staff advance or cancel any order.
func AdminTransition(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return endpoint(svc, logg, func(r *http.Request, svc internalorders.Service, actorID uuid.UUID) (any, error) {
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			return nil, err
		}
		var payload TransitionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		status, err := enums.ParseOrderStatus(payload.Status)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order status")
		}

		ctx := logg.WithOrderID(r.Context(), orderID.String())
		return detail(svc.TransitionStatus(ctx, internalorders.TransitionInput{
			OrderID:     orderID,
			To:          status,
			Note:        validators.SanitizeString(payload.Note, 500),
			ActorUserID: actorID,
		}))
	})
}

func detail(order *models.Order, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return internalorders.ToDetail(*order), nil
}

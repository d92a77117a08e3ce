package cart

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/lankacart-backend/api/middleware"
	"github.com/angelmondragon/lankacart-backend/api/responses"
	"github.com/angelmondragon/lankacart-backend/api/validators"
	cartsvc "github.com/angelmondragon/lankacart-backend/internal/cart"
	"github.com/angelmondragon/lankacart-backend/pkg/config"
	"github.com/angelmondragon/lankacart-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/lankacart-backend/pkg/errors"
	"github.com/angelmondragon/lankacart-backend/pkg/logger"
)

// AddLineRequest adds a product (or one of its variants) to the cart.
type AddLineRequest struct {
	ProductID uuid.UUID  `json:"product_id" validate:"required"`
	VariantID *uuid.UUID `json:"variant_id"`
	Quantity  int        `json:"quantity"`
}

// UpdateLineRequest replaces the quantity of an existing line.
type UpdateLineRequest struct {
	Quantity int `json:"quantity"`
}

// CartFetch returns the caller's cart, creating an anonymous one on first
// contact.
func CartFetch(svc cartsvc.Service, cfg config.CartConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		record, err := ResolveRequestCart(w, r, svc, cfg)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, cartsvc.ToCartView(record))
	}
}

// CartAddLine adds quantity to the line for the requested item.
func CartAddLine(svc cartsvc.Service, cfg config.CartConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		var payload AddLineRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := ResolveRequestCart(w, r, svc, cfg)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := logg.WithCartID(r.Context(), record.ID.String())
		updated, err := svc.AddLine(ctx, record.ID, payload.ProductID, payload.VariantID, payload.Quantity)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, cartsvc.ToCartView(updated))
	}
}

// CartUpdateLine sets the quantity of one line.
func CartUpdateLine(svc cartsvc.Service, cfg config.CartConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		lineID, err := validators.ParseUUIDParam(r, "lineId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload UpdateLineRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := ResolveRequestCart(w, r, svc, cfg)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := logg.WithCartID(r.Context(), record.ID.String())
		updated, err := svc.UpdateLineQuantity(ctx, record.ID, lineID, payload.Quantity)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, cartsvc.ToCartView(updated))
	}
}

// CartRemoveLine deletes one line from the cart.
func CartRemoveLine(svc cartsvc.Service, cfg config.CartConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		lineID, err := validators.ParseUUIDParam(r, "lineId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := ResolveRequestCart(w, r, svc, cfg)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := logg.WithCartID(r.Context(), record.ID.String())
		updated, err := svc.RemoveLine(ctx, record.ID, lineID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, cartsvc.ToCartView(updated))
	}
}

// ResolveRequestCart finds the cart for the request's cookie and bearer
// identity. Anonymous carts refresh the cookie; once the cart belongs to a
// user the cookie is cleared because the token no longer resolves.
func ResolveRequestCart(w http.ResponseWriter, r *http.Request, svc cartsvc.Service, cfg config.CartConfig) (*models.Cart, error) {
	var token *string
	if cookie, err := r.Cookie(cfg.CookieName); err == nil {
		if value := strings.TrimSpace(cookie.Value); value != "" {
			token = &value
		}
	}

	var userID *uuid.UUID
	if id, ok := middleware.UserUUIDFromContext(r.Context()); ok {
		userID = &id
	}

	record, err := svc.ResolveCart(r.Context(), token, userID)
	if err != nil {
		return nil, err
	}

	switch {
	case record.IsAnonymous() && record.AnonymousToken != nil:
		setCartCookie(w, cfg, *record.AnonymousToken)
	case token != nil:
		clearCartCookie(w, cfg)
	}
	return record, nil
}

func setCartCookie(w http.ResponseWriter, cfg config.CartConfig, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     cfg.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(cfg.CookieTTL.Seconds()),
		HttpOnly: true,
		Secure:   cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearCartCookie(w http.ResponseWriter, cfg config.CartConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     cfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

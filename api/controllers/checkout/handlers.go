package checkout

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	cartcontroller "github.com/angelmondragon/lankacart-backend/api/controllers/cart"
	"github.com/angelmondragon/lankacart-backend/api/middleware"
	"github.com/angelmondragon/lankacart-backend/api/responses"
	"github.com/angelmondragon/lankacart-backend/api/validators"
	cartsvc "github.com/angelmondragon/lankacart-backend/internal/cart"
	checkoutsvc "github.com/angelmondragon/lankacart-backend/internal/checkout"
	"github.com/angelmondragon/lankacart-backend/internal/pricing"
	"github.com/angelmondragon/lankacart-backend/pkg/config"
	"github.com/angelmondragon/lankacart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/lankacart-backend/pkg/errors"
	"github.com/angelmondragon/lankacart-backend/pkg/logger"
)

// QuoteRequest prices the caller's cart against a delivery address.
type QuoteRequest struct {
	ShippingAddressID uuid.UUID  `json:"shipping_address_id" validate:"required"`
	BillingAddressID  *uuid.UUID `json:"billing_address_id"`
}

// PlaceOrderRequest commits the caller's cart. The idempotency key may come
// from the Idempotency-Key header instead of the body.
type PlaceOrderRequest struct {
	ShippingAddressID uuid.UUID  `json:"shipping_address_id" validate:"required"`
	BillingAddressID  *uuid.UUID `json:"billing_address_id"`
	PaymentMethod     string     `json:"payment_method" validate:"required"`
	IdempotencyKey    string     `json:"idempotency_key" validate:"omitempty,max=128"`
}

// StartHostedRequest opens a hosted payment session for the caller's cart.
type StartHostedRequest struct {
	ShippingAddressID uuid.UUID  `json:"shipping_address_id" validate:"required"`
	BillingAddressID  *uuid.UUID `json:"billing_address_id"`
	IdempotencyKey    string     `json:"idempotency_key" validate:"omitempty,max=128"`
	Email             string     `json:"email" validate:"omitempty,email"`
}

// Quote returns a fresh price breakdown without reserving anything.
func Quote(carts cartsvc.Service, quotes pricing.Service, cfg config.CartConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if carts == nil || quotes == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout services unavailable"))
			return
		}

		userID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload QuoteRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := cartcontroller.ResolveRequestCart(w, r, carts, cfg)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		quote, err := quotes.Quote(r.Context(), pricing.QuoteInput{
			OwnerUserID:       userID,
			CartID:            record.ID,
			ShippingAddressID: payload.ShippingAddressID,
			BillingAddressID:  payload.BillingAddressID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, quote)
	}
}

// PlaceOrder commits the cart. A replayed token answers 200 with the original
// order; a new order answers 201.
func PlaceOrder(carts cartsvc.Service, svc checkoutsvc.Service, cfg config.CartConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if carts == nil || svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout services unavailable"))
			return
		}

		userID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload PlaceOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		token, err := idempotencyToken(r, payload.IdempotencyKey)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		method, err := enums.ParsePaymentMethod(payload.PaymentMethod)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInvalidPaymentMethod, "unsupported payment method"))
			return
		}

		record, err := cartcontroller.ResolveRequestCart(w, r, carts, cfg)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := logg.WithCartID(r.Context(), record.ID.String())
		ref, err := svc.PlaceOrder(ctx, checkoutsvc.PlaceOrderInput{
			UserID:            userID,
			CartID:            record.ID,
			ShippingAddressID: payload.ShippingAddressID,
			BillingAddressID:  payload.BillingAddressID,
			PaymentMethod:     method,
			IdempotencyToken:  token,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		status := http.StatusCreated
		if ref.Replayed {
			status = http.StatusOK
		}
		responses.WriteSuccessStatus(w, status, ref)
	}
}

// StartHosted creates a pending hosted payment session and returns the form
// the browser posts to the provider.
func StartHosted(carts cartsvc.Service, svc checkoutsvc.Service, cfg config.CartConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if carts == nil || svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout services unavailable"))
			return
		}

		userID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload StartHostedRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		token, err := idempotencyToken(r, payload.IdempotencyKey)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := cartcontroller.ResolveRequestCart(w, r, carts, cfg)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := logg.WithCartID(r.Context(), record.ID.String())
		hosted, err := svc.StartHostedCheckout(ctx, checkoutsvc.StartHostedInput{
			UserID:            userID,
			CartID:            record.ID,
			ShippingAddressID: payload.ShippingAddressID,
			BillingAddressID:  payload.BillingAddressID,
			IdempotencyToken:  token,
			Email:             strings.TrimSpace(payload.Email),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteCreated(w, hosted)
	}
}

// HostedReturn reports the session state when the shopper's browser comes
// back from the provider. The order appears once the notification settled.
func HostedReturn(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		userID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		reference := strings.TrimSpace(chi.URLParam(r, "reference"))
		if reference == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "reference is required"))
			return
		}

		status, err := svc.CompleteReturn(r.Context(), userID, reference)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, status)
	}
}

func requireUser(r *http.Request) (uuid.UUID, error) {
	userID, ok := middleware.UserUUIDFromContext(r.Context())
	if !ok {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "sign in to check out")
	}
	return userID, nil
}

// idempotencyToken prefers the header; a body value must agree with it.
func idempotencyToken(r *http.Request, bodyValue string) (string, error) {
	header := strings.TrimSpace(r.Header.Get(middleware.IdempotencyKeyHeader))
	body := strings.TrimSpace(bodyValue)
	switch {
	case header != "" && body != "" && header != body:
		return "", pkgerrors.New(pkgerrors.CodeValidation, "idempotency key mismatch between header and body")
	case header != "":
		return header, nil
	case body != "":
		return body, nil
	default:
		return "", pkgerrors.New(pkgerrors.CodeValidation, "idempotency key is required")
	}
}

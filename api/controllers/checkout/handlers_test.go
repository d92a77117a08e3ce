package checkout

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/lankacart-backend/api/middleware"
	checkoutsvc "github.com/angelmondragon/lankacart-backend/internal/checkout"
	"github.com/angelmondragon/lankacart-backend/internal/payments/gateway"
	"github.com/angelmondragon/lankacart-backend/internal/pricing"
	"github.com/angelmondragon/lankacart-backend/pkg/config"
	"github.com/angelmondragon/lankacart-backend/pkg/db/models"
	"github.com/angelmondragon/lankacart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/lankacart-backend/pkg/errors"
)

type stubCarts struct {
	cart *models.Cart
}

func (s *stubCarts) ResolveCart(ctx context.Context, anonymousToken *string, userID *uuid.UUID) (*models.Cart, error) {
	return s.cart, nil
}

func (s *stubCarts) GetCart(ctx context.Context, cartID uuid.UUID) (*models.Cart, error) {
	return s.cart, nil
}

func (s *stubCarts) AddLine(ctx context.Context, cartID, productID uuid.UUID, variantID *uuid.UUID, qty int) (*models.Cart, error) {
	return s.cart, nil
}

func (s *stubCarts) UpdateLineQuantity(ctx context.Context, cartID, lineID uuid.UUID, qty int) (*models.Cart, error) {
	return s.cart, nil
}

func (s *stubCarts) RemoveLine(ctx context.Context, cartID, lineID uuid.UUID) (*models.Cart, error) {
	return s.cart, nil
}

func (s *stubCarts) ClearLines(ctx context.Context, tx *gorm.DB, cartID uuid.UUID) error {
	return nil
}

type stubQuotes struct {
	quote *pricing.Quote
	err   error
	input pricing.QuoteInput
}

func (s *stubQuotes) Quote(ctx context.Context, input pricing.QuoteInput) (*pricing.Quote, error) {
	s.input = input
	return s.quote, s.err
}

func (s *stubQuotes) QuoteTx(ctx context.Context, tx *gorm.DB, input pricing.QuoteInput) (*pricing.Quote, error) {
	return s.Quote(ctx, input)
}

type stubCheckout struct {
	ref         *checkoutsvc.OrderRef
	hosted      *checkoutsvc.HostedCheckout
	returned    *checkoutsvc.ReturnStatus
	err         error
	placeInput  checkoutsvc.PlaceOrderInput
	hostedInput checkoutsvc.StartHostedInput
	returnUser  uuid.UUID
	returnRef   string
}

func (s *stubCheckout) PlaceOrder(ctx context.Context, input checkoutsvc.PlaceOrderInput) (*checkoutsvc.OrderRef, error) {
	s.placeInput = input
	return s.ref, s.err
}

func (s *stubCheckout) StartHostedCheckout(ctx context.Context, input checkoutsvc.StartHostedInput) (*checkoutsvc.HostedCheckout, error) {
	s.hostedInput = input
	return s.hosted, s.err
}

func (s *stubCheckout) CompleteReturn(ctx context.Context, userID uuid.UUID, reference string) (*checkoutsvc.ReturnStatus, error) {
	s.returnUser = userID
	s.returnRef = reference
	return s.returned, s.err
}

func (s *stubCheckout) GetSession(ctx context.Context, reference string) (*models.CheckoutSession, error) {
	return nil, s.err
}

func (s *stubCheckout) FindPlacedOrder(ctx context.Context, reference, providerTxnID string) (*checkoutsvc.OrderRef, error) {
	return s.ref, s.err
}

func (s *stubCheckout) CloseSession(ctx context.Context, input checkoutsvc.CloseSessionInput) error {
	return s.err
}

func ownedCart(userID uuid.UUID) *models.Cart {
	return &models.Cart{ID: uuid.New(), UserID: &userID}
}

func cartConfig() config.CartConfig {
	return config.CartConfig{CookieName: "lc_cart"}
}

func authed(req *http.Request, userID uuid.UUID) *http.Request {
	return req.WithContext(middleware.WithUserID(req.Context(), userID.String()))
}

func TestQuoteUsesResolvedCart(t *testing.T) {
	userID := uuid.New()
	cart := ownedCart(userID)
	quotes := &stubQuotes{quote: &pricing.Quote{CartID: cart.ID, SubtotalCents: 100000, ShippingCents: 50000, TotalCents: 150000, Currency: enums.CurrencyLKR}}
	handler := Quote(&stubCarts{cart: cart}, quotes, cartConfig(), nil)

	addressID := uuid.New()
	body := `{"shipping_address_id":"` + addressID.String() + `"}`
	req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/checkout/quote", strings.NewReader(body)), userID)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if quotes.input.CartID != cart.ID || quotes.input.OwnerUserID != userID || quotes.input.ShippingAddressID != addressID {
		t.Fatalf("unexpected quote input: %+v", quotes.input)
	}

	var envelope struct {
		Data pricing.Quote `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.TotalCents != 150000 {
		t.Fatalf("unexpected total %d", envelope.Data.TotalCents)
	}
}

func TestQuoteRequiresUser(t *testing.T) {
	handler := Quote(&stubCarts{}, &stubQuotes{}, cartConfig(), nil)

	body := `{"shipping_address_id":"` + uuid.NewString() + `"}`
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/checkout/quote", strings.NewReader(body)))

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestPlaceOrderCreatedAndReplayed(t *testing.T) {
	userID := uuid.New()
	cart := ownedCart(userID)

	cases := []struct {
		name     string
		replayed bool
		want     int
	}{
		{name: "new order", replayed: false, want: http.StatusCreated},
		{name: "replay", replayed: true, want: http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubCheckout{ref: &checkoutsvc.OrderRef{ID: uuid.New(), Number: "LC-1", Replayed: tc.replayed}}
			handler := PlaceOrder(&stubCarts{cart: cart}, svc, cartConfig(), nil)

			body := `{"shipping_address_id":"` + uuid.NewString() + `","payment_method":"COD"}`
			req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/checkout/orders", strings.NewReader(body)), userID)
			req.Header.Set(middleware.IdempotencyKeyHeader, "tok-abc")
			resp := httptest.NewRecorder()
			handler.ServeHTTP(resp, req)

			if resp.Code != tc.want {
				t.Fatalf("expected %d got %d: %s", tc.want, resp.Code, resp.Body.String())
			}
			if svc.placeInput.IdempotencyToken != "tok-abc" {
				t.Fatalf("expected header token, got %q", svc.placeInput.IdempotencyToken)
			}
			if svc.placeInput.PaymentMethod != enums.PaymentMethodCOD || svc.placeInput.CartID != cart.ID {
				t.Fatalf("unexpected place input: %+v", svc.placeInput)
			}
		})
	}
}

func TestPlaceOrderTokenFromBody(t *testing.T) {
	userID := uuid.New()
	svc := &stubCheckout{ref: &checkoutsvc.OrderRef{ID: uuid.New()}}
	handler := PlaceOrder(&stubCarts{cart: ownedCart(userID)}, svc, cartConfig(), nil)

	body := `{"shipping_address_id":"` + uuid.NewString() + `","payment_method":"cod","idempotency_key":"body-tok"}`
	req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/checkout/orders", strings.NewReader(body)), userID)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.placeInput.IdempotencyToken != "body-tok" {
		t.Fatalf("expected body token, got %q", svc.placeInput.IdempotencyToken)
	}
}

func TestPlaceOrderRejectsBadInput(t *testing.T) {
	userID := uuid.New()
	address := uuid.NewString()

	cases := []struct {
		name   string
		body   string
		header string
		want   int
		code   string
	}{
		{
			name: "missing token",
			body: `{"shipping_address_id":"` + address + `","payment_method":"cod"}`,
			want: http.StatusBadRequest,
			code: string(pkgerrors.CodeValidation),
		},
		{
			name:   "mismatched token",
			body:   `{"shipping_address_id":"` + address + `","payment_method":"cod","idempotency_key":"a"}`,
			header: "b",
			want:   http.StatusBadRequest,
			code:   string(pkgerrors.CodeValidation),
		},
		{
			name:   "unknown method",
			body:   `{"shipping_address_id":"` + address + `","payment_method":"cheque"}`,
			header: "tok",
			want:   http.StatusBadRequest,
			code:   string(pkgerrors.CodeInvalidPaymentMethod),
		},
		{
			name:   "missing address",
			body:   `{"payment_method":"cod"}`,
			header: "tok",
			want:   http.StatusBadRequest,
			code:   string(pkgerrors.CodeValidation),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubCheckout{}
			handler := PlaceOrder(&stubCarts{cart: ownedCart(userID)}, svc, cartConfig(), nil)

			req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/checkout/orders", strings.NewReader(tc.body)), userID)
			if tc.header != "" {
				req.Header.Set(middleware.IdempotencyKeyHeader, tc.header)
			}
			resp := httptest.NewRecorder()
			handler.ServeHTTP(resp, req)

			if resp.Code != tc.want {
				t.Fatalf("expected %d got %d: %s", tc.want, resp.Code, resp.Body.String())
			}
			if !strings.Contains(resp.Body.String(), tc.code) {
				t.Fatalf("expected code %s in %s", tc.code, resp.Body.String())
			}
			if svc.placeInput.IdempotencyToken != "" {
				t.Fatalf("service should not be called")
			}
		})
	}
}

func TestPlaceOrderSurfacesStockChanged(t *testing.T) {
	userID := uuid.New()
	svc := &stubCheckout{err: pkgerrors.New(pkgerrors.CodeStockChanged, "stock changed, review your cart")}
	handler := PlaceOrder(&stubCarts{cart: ownedCart(userID)}, svc, cartConfig(), nil)

	body := `{"shipping_address_id":"` + uuid.NewString() + `","payment_method":"cod"}`
	req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/checkout/orders", strings.NewReader(body)), userID)
	req.Header.Set(middleware.IdempotencyKeyHeader, "tok-stock")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
}

func TestStartHostedReturnsForm(t *testing.T) {
	userID := uuid.New()
	svc := &stubCheckout{hosted: &checkoutsvc.HostedCheckout{
		Reference:   "tok-hosted",
		AmountCents: 150000,
		Currency:    enums.CurrencyLKR,
		Form:        &gateway.CheckoutForm{Action: "https://sandbox.payhere.lk/pay/checkout", Fields: map[string]string{"order_id": "tok-hosted"}},
	}}
	handler := StartHosted(&stubCarts{cart: ownedCart(userID)}, svc, cartConfig(), nil)

	body := `{"shipping_address_id":"` + uuid.NewString() + `","email":"shopper@example.lk"}`
	req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/checkout/hosted", strings.NewReader(body)), userID)
	req.Header.Set(middleware.IdempotencyKeyHeader, "tok-hosted")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.hostedInput.IdempotencyToken != "tok-hosted" || svc.hostedInput.Email != "shopper@example.lk" {
		t.Fatalf("unexpected hosted input: %+v", svc.hostedInput)
	}

	var envelope struct {
		Data checkoutsvc.HostedCheckout `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.Form == nil || envelope.Data.Form.Fields["order_id"] != "tok-hosted" {
		t.Fatalf("unexpected form: %+v", envelope.Data.Form)
	}
}

func TestHostedReturnPassesReference(t *testing.T) {
	userID := uuid.New()
	svc := &stubCheckout{returned: &checkoutsvc.ReturnStatus{Reference: "tok-r", Status: enums.CheckoutSessionOpen}}
	handler := HostedReturn(svc, nil)

	req := authed(httptest.NewRequest(http.MethodGet, "/api/v1/checkout/hosted/tok-r", nil), userID)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("reference", "tok-r")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.returnUser != userID || svc.returnRef != "tok-r" {
		t.Fatalf("unexpected forwarded values user=%s ref=%s", svc.returnUser, svc.returnRef)
	}
}

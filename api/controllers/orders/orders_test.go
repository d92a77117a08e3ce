package orders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/lankacart-backend/api/middleware"
	internalorders "github.com/angelmondragon/lankacart-backend/internal/orders"
	"github.com/angelmondragon/lankacart-backend/pkg/db/models"
	"github.com/angelmondragon/lankacart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/lankacart-backend/pkg/errors"
	"github.com/angelmondragon/lankacart-backend/pkg/pagination"
)

type stubOrdersService struct {
	order      *models.Order
	page       pagination.Page[internalorders.OrderSummary]
	err        error
	lastParams pagination.Params
	lastOwner  *uuid.UUID
	lastNumber string
	transition internalorders.TransitionInput
}

func (s *stubOrdersService) Get(ctx context.Context, orderID uuid.UUID, ownerUserID *uuid.UUID) (*models.Order, error) {
	s.lastOwner = ownerUserID
	return s.order, s.err
}

func (s *stubOrdersService) GetByNumber(ctx context.Context, number string, ownerUserID *uuid.UUID) (*models.Order, error) {
	s.lastNumber = number
	s.lastOwner = ownerUserID
	return s.order, s.err
}

func (s *stubOrdersService) ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (pagination.Page[internalorders.OrderSummary], error) {
	s.lastParams = params
	return s.page, s.err
}

func (s *stubOrdersService) TransitionStatus(ctx context.Context, input internalorders.TransitionInput) (*models.Order, error) {
	s.transition = input
	return s.order, s.err
}

func withUser(req *http.Request, userID uuid.UUID) *http.Request {
	return req.WithContext(middleware.WithUserID(req.Context(), userID.String()))
}

func withParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func sampleOrder(userID uuid.UUID) *models.Order {
	return &models.Order{
		ID:            uuid.New(),
		Number:        "LC-20260105-ABCD",
		UserID:        userID,
		Status:        enums.OrderStatusPending,
		PaymentStatus: enums.PaymentStatusUnpaid,
		PaymentMethod: enums.PaymentMethodCOD,
		Currency:      enums.CurrencyLKR,
		SubtotalCents: 100000,
		ShippingCents: 50000,
		TotalCents:    150000,
	}
}

func TestListPassesPagination(t *testing.T) {
	userID := uuid.New()
	svc := &stubOrdersService{page: pagination.Page[internalorders.OrderSummary]{
		Items:      []internalorders.OrderSummary{{ID: uuid.New(), Number: "LC-1"}},
		NextCursor: "next",
	}}
	handler := List(svc, nil)

	req := withUser(httptest.NewRequest(http.MethodGet, "/api/v1/orders?limit=5&cursor=abc", nil), userID)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.lastParams.Limit != 5 || svc.lastParams.Cursor != "abc" {
		t.Fatalf("unexpected params: %+v", svc.lastParams)
	}

	var envelope struct {
		Data pagination.Page[internalorders.OrderSummary] `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(envelope.Data.Items) != 1 || envelope.Data.NextCursor != "next" {
		t.Fatalf("unexpected page: %+v", envelope.Data)
	}
}

func TestListRejectsOversizedLimit(t *testing.T) {
	handler := List(&stubOrdersService{}, nil)

	req := withUser(httptest.NewRequest(http.MethodGet, "/api/v1/orders?limit=500", nil), uuid.New())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestListRequiresUser(t *testing.T) {
	handler := List(&stubOrdersService{}, nil)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil))

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestDetailScopesToOwner(t *testing.T) {
	userID := uuid.New()
	order := sampleOrder(userID)
	svc := &stubOrdersService{order: order}
	handler := Detail(svc, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+order.ID.String(), nil)
	req = withUser(withParam(req, "orderId", order.ID.String()), userID)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.lastOwner == nil || *svc.lastOwner != userID {
		t.Fatalf("expected owner scope, got %v", svc.lastOwner)
	}

	var envelope struct {
		Data internalorders.OrderDetail `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.TotalCents != 150000 || envelope.Data.Number != order.Number {
		t.Fatalf("unexpected detail: %+v", envelope.Data)
	}
}

func TestDetailNotFound(t *testing.T) {
	svc := &stubOrdersService{err: pkgerrors.New(pkgerrors.CodeNotFound, "order not found")}
	handler := Detail(svc, nil)

	id := uuid.NewString()
	req := withUser(withParam(httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+id, nil), "orderId", id), uuid.New())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}

func TestDetailByNumberNormalizes(t *testing.T) {
	userID := uuid.New()
	svc := &stubOrdersService{order: sampleOrder(userID)}
	handler := DetailByNumber(svc, nil)

	req := withUser(withParam(httptest.NewRequest(http.MethodGet, "/api/v1/orders/by-number/lc-1", nil), "number", " lc-1 "), userID)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.lastNumber != "LC-1" {
		t.Fatalf("expected normalized number, got %q", svc.lastNumber)
	}
}

func TestAdminTransition(t *testing.T) {
	actor := uuid.New()
	order := sampleOrder(uuid.New())
	order.Status = enums.OrderStatusProcessing

	cases := []struct {
		name string
		body string
		err  error
		want int
	}{
		{name: "valid", body: `{"status":"PROCESSING","note":" packed "}`, want: http.StatusOK},
		{name: "unknown status", body: `{"status":"lost"}`, want: http.StatusBadRequest},
		{name: "missing status", body: `{}`, want: http.StatusBadRequest},
		{
			name: "illegal move",
			body: `{"status":"pending"}`,
			err:  pkgerrors.New(pkgerrors.CodeStateConflict, "cannot move order from processing to pending"),
			want: http.StatusUnprocessableEntity,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubOrdersService{order: order, err: tc.err}
			handler := AdminTransition(svc, nil)

			req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/orders/"+order.ID.String()+"/status", strings.NewReader(tc.body))
			req = withUser(withParam(req, "orderId", order.ID.String()), actor)
			resp := httptest.NewRecorder()
			handler.ServeHTTP(resp, req)

			if resp.Code != tc.want {
				t.Fatalf("expected %d got %d: %s", tc.want, resp.Code, resp.Body.String())
			}
			if tc.want == http.StatusOK {
				if svc.transition.To != enums.OrderStatusProcessing || svc.transition.Note != "packed" || svc.transition.ActorUserID != actor {
					t.Fatalf("unexpected transition input: %+v", svc.transition)
				}
			}
		})
	}
}

package routes

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	checkoutsvc "github.com/angelmondragon/lankacart-backend/internal/checkout"
	"github.com/angelmondragon/lankacart-backend/internal/orders"
	"github.com/angelmondragon/lankacart-backend/internal/payments/gateway"
	payherewebhook "github.com/angelmondragon/lankacart-backend/internal/webhooks/payhere"
	pkgauth "github.com/angelmondragon/lankacart-backend/pkg/auth"
	"github.com/angelmondragon/lankacart-backend/pkg/config"
	"github.com/angelmondragon/lankacart-backend/pkg/db/models"
	"github.com/angelmondragon/lankacart-backend/pkg/metrics"
	"github.com/angelmondragon/lankacart-backend/pkg/pagination"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type memoryCache struct {
	mu      sync.Mutex
	data    map[string]string
	counts  map[string]int64
	pingErr error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: map[string]string{}, counts: map[string]int64{}}
}

func (m *memoryCache) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (m *memoryCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = fmt.Sprint(value)
	return nil
}

func (m *memoryCache) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = fmt.Sprint(value)
	return true, nil
}

func (m *memoryCache) IdempotencyKey(scope, id string) string {
	return "idem:" + scope + ":" + id
}

func (m *memoryCache) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memoryCache) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[scope]++
	return m.counts[scope] <= limit, m.counts[scope], nil
}

func (m *memoryCache) Ping(context.Context) error {
	return m.pingErr
}

type stubCarts struct {
	mu    sync.Mutex
	carts map[string]*models.Cart
}

func (s *stubCarts) ResolveCart(ctx context.Context, anonymousToken *string, userID *uuid.UUID) (*models.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if userID != nil {
		return &models.Cart{ID: uuid.New(), UserID: userID}, nil
	}
	if anonymousToken != nil {
		if c, ok := s.carts[*anonymousToken]; ok {
			return c, nil
		}
	}
	token := uuid.NewString()
	c := &models.Cart{ID: uuid.New(), AnonymousToken: &token}
	s.carts[token] = c
	return c, nil
}

func (s *stubCarts) GetCart(ctx context.Context, cartID uuid.UUID) (*models.Cart, error) {
	return nil, nil
}

func (s *stubCarts) AddLine(ctx context.Context, cartID, productID uuid.UUID, variantID *uuid.UUID, qty int) (*models.Cart, error) {
	return &models.Cart{ID: cartID}, nil
}

func (s *stubCarts) UpdateLineQuantity(ctx context.Context, cartID, lineID uuid.UUID, qty int) (*models.Cart, error) {
	return &models.Cart{ID: cartID}, nil
}

func (s *stubCarts) RemoveLine(ctx context.Context, cartID, lineID uuid.UUID) (*models.Cart, error) {
	return &models.Cart{ID: cartID}, nil
}

func (s *stubCarts) ClearLines(ctx context.Context, tx *gorm.DB, cartID uuid.UUID) error {
	return nil
}

type countingCheckout struct {
	mu    sync.Mutex
	calls int
}

func (c *countingCheckout) PlaceOrder(ctx context.Context, input checkoutsvc.PlaceOrderInput) (*checkoutsvc.OrderRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return &checkoutsvc.OrderRef{ID: uuid.New(), Number: fmt.Sprintf("LC-%d", c.calls)}, nil
}

func (c *countingCheckout) StartHostedCheckout(ctx context.Context, input checkoutsvc.StartHostedInput) (*checkoutsvc.HostedCheckout, error) {
	return &checkoutsvc.HostedCheckout{Reference: input.IdempotencyToken}, nil
}

func (c *countingCheckout) CompleteReturn(ctx context.Context, userID uuid.UUID, reference string) (*checkoutsvc.ReturnStatus, error) {
	return &checkoutsvc.ReturnStatus{Reference: reference}, nil
}

func (c *countingCheckout) GetSession(ctx context.Context, reference string) (*models.CheckoutSession, error) {
	return nil, nil
}

func (c *countingCheckout) FindPlacedOrder(ctx context.Context, reference, providerTxnID string) (*checkoutsvc.OrderRef, error) {
	return nil, nil
}

func (c *countingCheckout) CloseSession(ctx context.Context, input checkoutsvc.CloseSessionInput) error {
	return nil
}

type stubOrders struct{}

func (stubOrders) Get(ctx context.Context, orderID uuid.UUID, ownerUserID *uuid.UUID) (*models.Order, error) {
	return &models.Order{ID: orderID}, nil
}

func (stubOrders) GetByNumber(ctx context.Context, number string, ownerUserID *uuid.UUID) (*models.Order, error) {
	return &models.Order{ID: uuid.New(), Number: number}, nil
}

func (stubOrders) ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (pagination.Page[orders.OrderSummary], error) {
	return pagination.Page[orders.OrderSummary]{Items: []orders.OrderSummary{}}, nil
}

func (stubOrders) TransitionStatus(ctx context.Context, input orders.TransitionInput) (*models.Order, error) {
	return &models.Order{ID: input.OrderID, Status: input.To}, nil
}

type stubNotifications struct{}

func (stubNotifications) HandleNotification(ctx context.Context, n gateway.Notification) (*payherewebhook.Result, error) {
	return &payherewebhook.Result{Outcome: payherewebhook.OutcomeIgnored}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test"},
		JWT: config.JWTConfig{
			Secret:            "router-test-secret",
			Issuer:            "lankacart-test",
			ExpirationMinutes: 15,
		},
		Cart: config.CartConfig{
			MaxLineQty:     10,
			CookieName:     "lc_cart",
			CookieTTL:      time.Hour,
			MutationLimit:  2,
			MutationWindow: time.Minute,
		},
	}
}

type harness struct {
	handler  http.Handler
	cfg      *config.Config
	checkout *countingCheckout
}

func newHarness(t *testing.T) harness {
	t.Helper()
	cfg := testConfig()
	reg := prometheus.NewRegistry()
	checkout := &countingCheckout{}
	handler := NewRouter(cfg, nil, stubPinger{}, newMemoryCache(), Observability{
		Registry: reg,
		HTTP:     metrics.NewHTTPMetrics(reg),
	}, Services{
		Carts:    &stubCarts{carts: map[string]*models.Cart{}},
		Checkout: checkout,
		Orders:   stubOrders{},
		PayHere:  stubNotifications{},
	})
	return harness{handler: handler, cfg: cfg, checkout: checkout}
}

func (h harness) token(t *testing.T, role string) string {
	t.Helper()
	token, err := pkgauth.MintAccessToken(h.cfg.JWT, time.Now(), pkgauth.AccessTokenPayload{UserID: uuid.New(), Role: role})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func (h harness) do(req *http.Request) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	h.handler.ServeHTTP(resp, req)
	return resp
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t)

	for _, path := range []string{"/health/live", "/health/ready"} {
		if resp := h.do(httptest.NewRequest(http.MethodGet, path, nil)); resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d", path, resp.Code)
		}
	}

	resp := h.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "lankacart_http_request_duration_seconds") {
		t.Fatalf("expected http histogram in metrics output")
	}
}

func TestCartIsAnonymousFriendly(t *testing.T) {
	h := newHarness(t)

	resp := h.do(httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var cookie *http.Cookie
	for _, c := range resp.Result().Cookies() {
		if c.Name == "lc_cart" {
			cookie = c
		}
	}
	if cookie == nil || cookie.Value == "" {
		t.Fatalf("expected anonymous cart cookie")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	if resp := h.do(req); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected invalid bearer to be rejected, got %d", resp.Code)
	}
}

func TestCartMutationsAreRateLimited(t *testing.T) {
	h := newHarness(t)

	body := `{"product_id":"` + uuid.NewString() + `","quantity":1}`
	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/lines", strings.NewReader(body))
		req.RemoteAddr = "203.0.113.9:5000"
		last = h.do(req)
	}
	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on third mutation, got %d", last.Code)
	}
	if last.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	h := newHarness(t)

	for _, path := range []string{"/api/v1/orders", "/api/v1/checkout/hosted/ref-1"} {
		if resp := h.do(httptest.NewRequest(http.MethodGet, path, nil)); resp.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401 got %d", path, resp.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req.Header.Set("Authorization", "Bearer "+h.token(t, pkgauth.ShopperRole))
	if resp := h.do(req); resp.Code != http.StatusOK {
		t.Fatalf("expected 200 with token got %d", resp.Code)
	}
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	h := newHarness(t)
	path := "/api/admin/v1/orders/" + uuid.NewString() + "/status"

	cases := []struct {
		role string
		want int
	}{
		{role: pkgauth.ShopperRole, want: http.StatusForbidden},
		{role: pkgauth.AdminRole, want: http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"status":"processing"}`))
		req.Header.Set("Authorization", "Bearer "+h.token(t, tc.role))
		req.Header.Set("Idempotency-Key", "admin-"+tc.role)
		if resp := h.do(req); resp.Code != tc.want {
			t.Fatalf("role %s: expected %d got %d: %s", tc.role, tc.want, resp.Code, resp.Body.String())
		}
	}
}

func TestPlaceOrderReplaysStoredResponse(t *testing.T) {
	h := newHarness(t)
	token := h.token(t, pkgauth.ShopperRole)
	body := `{"shipping_address_id":"` + uuid.NewString() + `","payment_method":"cod"}`

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/orders", strings.NewReader(body))
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Idempotency-Key", "tok-replay")
		return h.do(req)
	}

	first := send()
	second := send()
	if first.Code != http.StatusCreated || second.Code != http.StatusCreated {
		t.Fatalf("expected both 201, got %d and %d", first.Code, second.Code)
	}
	if first.Body.String() != second.Body.String() {
		t.Fatalf("expected identical replay body")
	}
	if h.checkout.calls != 1 {
		t.Fatalf("expected one service call, got %d", h.checkout.calls)
	}
}

func TestPayHereWebhookIsPublic(t *testing.T) {
	h := newHarness(t)

	form := url.Values{
		"merchant_id": {"1211149"},
		"order_id":    {"ref-1"},
		"status_code": {"0"},
		"md5sig":      {"SIG"},
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payhere", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if resp := h.do(req); resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
}

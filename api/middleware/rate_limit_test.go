package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
)

type fakeLimiter struct {
	counts map[string]int64
	err    error
}

func (f *fakeLimiter) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	if f.err != nil {
		return false, 0, f.err
	}
	if f.counts == nil {
		f.counts = map[string]int64{}
	}
	f.counts[scope]++
	return f.counts[scope] <= limit, f.counts[scope], nil
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitBlocksAfterLimit(t *testing.T) {
	store := &fakeLimiter{}
	handler := RateLimit(NewRateLimitPolicy("cart", time.Minute, 2), store, nil)(okHandler())

	codes := []int{}
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/lines", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		codes = append(codes, resp.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status sequence %v", codes)
	}
	if _, ok := store.counts["cart:ip:10.0.0.1"]; !ok {
		t.Fatalf("expected ip scoped counter, got %v", store.counts)
	}
}

func TestRateLimitKeysByUser(t *testing.T) {
	store := &fakeLimiter{}
	handler := RateLimit(NewRateLimitPolicy("cart", time.Minute, 1), store, nil)(okHandler())

	for _, user := range []string{uuid.NewString(), uuid.NewString()} {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
		req = req.WithContext(WithUserID(req.Context(), user))
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		if resp.Code != http.StatusOK {
			t.Fatalf("user %s: expected 200 got %d", user, resp.Code)
		}
	}
	if len(store.counts) != 2 {
		t.Fatalf("expected one counter per user, got %v", store.counts)
	}
}

func TestRateLimitFailsOpen(t *testing.T) {
	handler := RateLimit(NewRateLimitPolicy("cart", time.Minute, 1), &fakeLimiter{err: errors.New("down")}, nil)(okHandler())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected fail-open 200 got %d", resp.Code)
	}
}

func TestRateLimitDisabledPolicy(t *testing.T) {
	store := &fakeLimiter{}
	handler := RateLimit(NewRateLimitPolicy("cart", 0, 0), store, nil)(okHandler())
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", nil))
	if len(store.counts) != 0 {
		t.Fatal("disabled policy must not touch the store")
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Real-IP", "198.51.100.7")
	if got := clientIP(req); got != "198.51.100.7" {
		t.Fatalf("unexpected ip %s", got)
	}
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRequestIDPropagatesValidHeader(t *testing.T) {
	var seen string
	handler := RequestID(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "checkout-42.a_b")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if seen != "checkout-42.a_b" {
		t.Fatalf("expected caller id in context, got %q", seen)
	}
	if resp.Header().Get(requestIDHeader) != "checkout-42.a_b" {
		t.Fatalf("expected caller id echoed, got %q", resp.Header().Get(requestIDHeader))
	}
}

func TestRequestIDReplacesUnsafeHeader(t *testing.T) {
	for _, raw := range []string{"", "has space", "line\nbreak", strings.Repeat("a", maxRequestIDLen+1)} {
		var seen string
		handler := RequestID(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = RequestIDFromContext(r.Context())
		}))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(requestIDHeader, raw)
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)

		if seen == "" || seen == raw {
			t.Fatalf("%q: expected a minted id, got %q", raw, seen)
		}
		if resp.Header().Get(requestIDHeader) != seen {
			t.Fatalf("%q: response header %q does not match context %q", raw, resp.Header().Get(requestIDHeader), seen)
		}
	}
}

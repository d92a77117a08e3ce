package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

const (
	defaultIdempotencyTTL  = 24 * time.Hour
	criticalIdempotencyTTL = 7 * 24 * time.Hour
)

type idempotencyRule struct {
	method string
	// route uses chi syntax; a {param} segment matches any single segment.
	route string
	ttl   time.Duration
	// optional rules let requests without the header through; the handler
	// falls back to a token in the body.
	optional bool
}

var idempotencyRules = []idempotencyRule{
	{method: http.MethodPost, route: "/api/v1/checkout/orders", ttl: criticalIdempotencyTTL, optional: true},
	{method: http.MethodPost, route: "/api/v1/checkout/hosted", ttl: defaultIdempotencyTTL, optional: true},
	{method: http.MethodPost, route: "/api/admin/v1/orders/{orderId}/status", ttl: defaultIdempotencyTTL},
}

func routePattern(r *http.Request) string {
	if r == nil {
		return ""
	}
	// Inside a mounted subrouter the pattern is still partial ("/api/v1/*")
	// when middleware runs, so fall back to the concrete path.
	if ctx := chi.RouteContext(r.Context()); ctx != nil {
		if pattern := ctx.RoutePattern(); pattern != "" && !strings.Contains(pattern, "*") {
			return pattern
		}
	}
	return r.URL.Path
}

func matchRule(method, path string) (idempotencyRule, bool) {
	if path == "" {
		return idempotencyRule{}, false
	}
	for _, rule := range idempotencyRules {
		if rule.method == method && routeMatches(rule.route, path) {
			return rule, true
		}
	}
	return idempotencyRule{}, false
}

func routeMatches(route, path string) bool {
	want := strings.Split(strings.Trim(route, "/"), "/")
	got := strings.Split(strings.Trim(path, "/"), "/")
	if len(want) != len(got) {
		return false
	}
	for i, seg := range want {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			if got[i] == "" {
				return false
			}
			continue
		}
		if seg != got[i] {
			return false
		}
	}
	return true
}

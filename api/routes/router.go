package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/lankacart-backend/api/controllers"
	cartcontrollers "github.com/angelmondragon/lankacart-backend/api/controllers/cart"
	checkoutcontrollers "github.com/angelmondragon/lankacart-backend/api/controllers/checkout"
	ordercontrollers "github.com/angelmondragon/lankacart-backend/api/controllers/orders"
	webhookcontrollers "github.com/angelmondragon/lankacart-backend/api/controllers/webhooks"
	"github.com/angelmondragon/lankacart-backend/api/middleware"
	"github.com/angelmondragon/lankacart-backend/internal/address"
	"github.com/angelmondragon/lankacart-backend/internal/cart"
	checkoutsvc "github.com/angelmondragon/lankacart-backend/internal/checkout"
	"github.com/angelmondragon/lankacart-backend/internal/orders"
	"github.com/angelmondragon/lankacart-backend/internal/pricing"
	pkgauth "github.com/angelmondragon/lankacart-backend/pkg/auth"
	"github.com/angelmondragon/lankacart-backend/pkg/config"
	"github.com/angelmondragon/lankacart-backend/pkg/db"
	"github.com/angelmondragon/lankacart-backend/pkg/logger"
	"github.com/angelmondragon/lankacart-backend/pkg/metrics"
	pkgredis "github.com/angelmondragon/lankacart-backend/pkg/redis"
)

// CacheStore is the redis surface used by the HTTP layer.
type CacheStore interface {
	pkgredis.IdempotencyStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
	Ping(ctx context.Context) error
}

// Services groups the domain services exposed over HTTP.
type Services struct {
	Carts     cart.Service
	Quotes    pricing.Service
	Checkout  checkoutsvc.Service
	Orders    orders.Service
	Addresses address.Service
	PayHere   webhookcontrollers.PayHereNotificationService
}

// Observability carries the metrics registry served on /metrics.
type Observability struct {
	Registry *prometheus.Registry
	HTTP     *metrics.HTTPMetrics
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	cache CacheStore,
	obs Observability,
	svc Services,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(logg),
		middleware.Recoverer(logg),
		middleware.Logging(logg, obs.HTTP),
		middleware.CORS(cfg.Service.AllowedOrigins),
	)

	idempotency, cartThrottle := passthrough, passthrough
	if cache != nil {
		cartPolicy := middleware.NewRateLimitPolicy("cart", cfg.Cart.MutationWindow, cfg.Cart.MutationLimit)
		idempotency = middleware.Idempotency(cache, logg)
		cartThrottle = middleware.RateLimit(cartPolicy, cache, logg)
	}

	deps := map[string]controllers.Pinger{"db": dbP, "redis": cache}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps))
	})

	if obs.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(obs.Registry, promhttp.HandlerOpts{Registry: obs.Registry}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/payhere", webhookcontrollers.PayHereNotify(svc.PayHere, logg))
	})

	r.Route("/api/v1/cart", func(r chi.Router) {
		r.Use(middleware.OptionalAuth(cfg.JWT, logg))
		r.Get("/", cartcontrollers.CartFetch(svc.Carts, cfg.Cart, logg))
		r.Group(func(r chi.Router) {
			r.Use(cartThrottle)
			r.Post("/lines", cartcontrollers.CartAddLine(svc.Carts, cfg.Cart, logg))
			r.Patch("/lines/{lineId}", cartcontrollers.CartUpdateLine(svc.Carts, cfg.Cart, logg))
			r.Delete("/lines/{lineId}", cartcontrollers.CartRemoveLine(svc.Carts, cfg.Cart, logg))
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(idempotency)

		r.Route("/addresses", func(r chi.Router) {
			r.Post("/", controllers.AddressCreate(svc.Addresses, logg))
			r.Get("/{addressId}", controllers.AddressFetch(svc.Addresses, logg))
		})

		r.Route("/checkout", func(r chi.Router) {
			r.Post("/quote", checkoutcontrollers.Quote(svc.Carts, svc.Quotes, cfg.Cart, logg))
			r.Post("/orders", checkoutcontrollers.PlaceOrder(svc.Carts, svc.Checkout, cfg.Cart, logg))
			r.Post("/hosted", checkoutcontrollers.StartHosted(svc.Carts, svc.Checkout, cfg.Cart, logg))
			r.Get("/hosted/{reference}", checkoutcontrollers.HostedReturn(svc.Checkout, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", ordercontrollers.List(svc.Orders, logg))
			r.Get("/by-number/{number}", ordercontrollers.DetailByNumber(svc.Orders, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(svc.Orders, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, pkgauth.AdminRole))
		r.Use(idempotency)

		r.Post("/orders/{orderId}/status", ordercontrollers.AdminTransition(svc.Orders, logg))
	})

	return r
}

func passthrough(next http.Handler) http.Handler {
	return next
}

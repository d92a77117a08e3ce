package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/angelmondragon/lankacart-backend/api/routes"
	"github.com/angelmondragon/lankacart-backend/internal/address"
	"github.com/angelmondragon/lankacart-backend/internal/cart"
	"github.com/angelmondragon/lankacart-backend/internal/catalog"
	"github.com/angelmondragon/lankacart-backend/internal/checkout"
	"github.com/angelmondragon/lankacart-backend/internal/inventory"
	"github.com/angelmondragon/lankacart-backend/internal/orders"
	"github.com/angelmondragon/lankacart-backend/internal/payments/gateway"
	"github.com/angelmondragon/lankacart-backend/internal/pricing"
	payherewebhook "github.com/angelmondragon/lankacart-backend/internal/webhooks/payhere"
	"github.com/angelmondragon/lankacart-backend/pkg/config"
	"github.com/angelmondragon/lankacart-backend/pkg/db"
	"github.com/angelmondragon/lankacart-backend/pkg/logger"
	"github.com/angelmondragon/lankacart-backend/pkg/metrics"
	"github.com/angelmondragon/lankacart-backend/pkg/migrate"
	"github.com/angelmondragon/lankacart-backend/pkg/outbox"
	"github.com/angelmondragon/lankacart-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/lankacart-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Env:         cfg.App.Env,
		Format:      cfg.App.LogFormat,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		_ = dbClient.Close()
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		_ = dbClient.Close()
		os.Exit(1)
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	services, err := buildServices(cfg, logg, dbClient, redisClient, promRegistry)
	if err != nil {
		logg.Error(context.Background(), "failed to wire services", err)
		_ = multierr.Combine(redisClient.Close(), dbClient.Close())
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"addr":    addr,
		"payhere": cfg.PayHere.Configured(),
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, dbClient, redisClient, routes.Observability{
			Registry: promRegistry,
			HTTP:     metrics.NewHTTPMetrics(promRegistry),
		}, services),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	exitCode := 0
	select {
	case err := <-serveErr:
		if err != nil {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			exitCode = 1
		}
	case <-ctx.Done():
		logg.Info(ctx, "shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := multierr.Combine(
		server.Shutdown(shutdownCtx),
		redisClient.Close(),
		dbClient.Close(),
	); err != nil {
		logg.Error(shutdownCtx, "api shutdown incomplete", err)
		exitCode = 1
	}
	logg.Info(shutdownCtx, "api server stopped")
	os.Exit(exitCode)
}

func buildServices(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, reg prometheus.Registerer) (routes.Services, error) {
	conn := dbClient.DB()

	ledger := inventory.NewLedger(conn)
	catalogService, err := catalog.NewService(conn, ledger)
	if err != nil {
		return routes.Services{}, err
	}
	addresses := address.NewService(conn)
	zones := pricing.NewShippingRepository(conn)
	cartRepo := cart.NewRepository(conn)

	carts, err := cart.NewService(cartRepo, dbClient, catalogService, cfg.Cart.MaxLineQty)
	if err != nil {
		return routes.Services{}, err
	}
	quotes, err := pricing.NewService(cartRepo, catalogService, addresses, zones)
	if err != nil {
		return routes.Services{}, err
	}

	outboxService := outbox.NewService(outbox.NewRepository(conn), logg)
	orderRepo := orders.NewRepository(conn)
	ordersService, err := orders.NewService(orderRepo, dbClient, outboxService)
	if err != nil {
		return routes.Services{}, err
	}

	provider := gateway.New(cfg.PayHere)
	checkoutService, err := checkout.NewService(checkout.Dependencies{
		Tx:             dbClient,
		Carts:          cartRepo,
		CartLines:      carts,
		Pricing:        quotes,
		Inventory:      ledger,
		Orders:         orderRepo,
		Sessions:       checkout.NewSessionRepository(conn),
		Outbox:         outboxService,
		Gateway:        provider,
		Metrics:        metrics.NewCheckoutMetrics(reg),
		Logger:         logg,
		NumberAttempts: cfg.Checkout.OrderNumberAttempts,
	})
	if err != nil {
		return routes.Services{}, err
	}

	guard, err := idempotency.NewManager(redisClient, cfg.Checkout.WebhookDedupeTTL)
	if err != nil {
		return routes.Services{}, err
	}
	notifications, err := payherewebhook.NewService(payherewebhook.ServiceParams{
		Checkout: checkoutService,
		Gateway:  provider,
		Guard:    guard,
		Metrics:  metrics.NewNotificationMetrics(reg),
		Logger:   logg,
	})
	if err != nil {
		return routes.Services{}, err
	}

	return routes.Services{
		Carts:     carts,
		Quotes:    quotes,
		Checkout:  checkoutService,
		Orders:    ordersService,
		Addresses: addresses,
		PayHere:   notifications,
	}, nil
}

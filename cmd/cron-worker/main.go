package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/angelmondragon/lankacart-backend/internal/address"
	"github.com/angelmondragon/lankacart-backend/internal/cart"
	"github.com/angelmondragon/lankacart-backend/internal/catalog"
	"github.com/angelmondragon/lankacart-backend/internal/checkout"
	"github.com/angelmondragon/lankacart-backend/internal/cron"
	"github.com/angelmondragon/lankacart-backend/internal/inventory"
	"github.com/angelmondragon/lankacart-backend/internal/orders"
	"github.com/angelmondragon/lankacart-backend/internal/payments/gateway"
	"github.com/angelmondragon/lankacart-backend/internal/pricing"
	"github.com/angelmondragon/lankacart-backend/pkg/config"
	"github.com/angelmondragon/lankacart-backend/pkg/db"
	"github.com/angelmondragon/lankacart-backend/pkg/instance"
	"github.com/angelmondragon/lankacart-backend/pkg/logger"
	"github.com/angelmondragon/lankacart-backend/pkg/metrics"
	"github.com/angelmondragon/lankacart-backend/pkg/migrate"
	"github.com/angelmondragon/lankacart-backend/pkg/outbox"
	"github.com/angelmondragon/lankacart-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
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

	closeAll := func() {
		if err := multierr.Combine(redisClient.Close(), dbClient.Close()); err != nil {
			logg.Error(context.Background(), "error closing connections", err)
		}
	}

	registry, err := buildJobs(cfg, logg, dbClient)
	if err == nil {
		registry, err = registry.Only(cfg.Maintenance.Jobs...)
	}
	if err != nil {
		logg.Error(context.Background(), "failed to build maintenance jobs", err)
		closeAll()
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, cron.LockKey(cfg.App.Env), 2*cfg.Maintenance.Interval)
	if err != nil {
		logg.Error(context.Background(), "failed to create maintenance lock", err)
		closeAll()
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   registry,
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval:   cfg.Maintenance.Interval,
		JobTimeout: cfg.Maintenance.JobTimeout,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create maintenance scheduler", err)
		closeAll()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"serviceKind": cfg.Service.Kind,
		"jobs":        registry.Names(),
		"interval":    cfg.Maintenance.Interval.String(),
		"instance":    instance.GetID(),
	})
	logg.Info(ctx, "starting cron worker")

	if cfg.Maintenance.RunOnce {
		err = service.RunOnce(ctx)
	} else {
		err = service.Run(ctx)
	}
	closeAll()
	if err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildJobs(cfg *config.Config, logg *logger.Logger, dbClient *db.Client) (*cron.Registry, error) {
	conn := dbClient.DB()

	ledger := inventory.NewLedger(conn)
	catalogService, err := catalog.NewService(conn, ledger)
	if err != nil {
		return nil, err
	}
	cartRepo := cart.NewRepository(conn)
	carts, err := cart.NewService(cartRepo, dbClient, catalogService, cfg.Cart.MaxLineQty)
	if err != nil {
		return nil, err
	}
	quotes, err := pricing.NewService(cartRepo, catalogService, address.NewService(conn), pricing.NewShippingRepository(conn))
	if err != nil {
		return nil, err
	}

	outboxRepo := outbox.NewRepository(conn)
	sessions := checkout.NewSessionRepository(conn)
	checkoutService, err := checkout.NewService(checkout.Dependencies{
		Tx:             dbClient,
		Carts:          cartRepo,
		CartLines:      carts,
		Pricing:        quotes,
		Inventory:      ledger,
		Orders:         orders.NewRepository(conn),
		Sessions:       sessions,
		Outbox:         outbox.NewService(outboxRepo, logg),
		Gateway:        gateway.New(cfg.PayHere),
		Logger:         logg,
		NumberAttempts: cfg.Checkout.OrderNumberAttempts,
	})
	if err != nil {
		return nil, err
	}

	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:         logg,
		DB:             dbClient,
		Events:         outboxRepo,
		DLQ:            outbox.NewDLQRepository(conn),
		EventRetention: days(cfg.Maintenance.OutboxRetentionDays),
		DLQRetention:   days(cfg.Maintenance.DLQRetentionDays),
		ParkedAttempts: cfg.Outbox.MaxAttempts,
		BatchSize:      cfg.Maintenance.PurgeBatchSize,
	})
	if err != nil {
		return nil, err
	}
	expiry, err := cron.NewSessionExpiryJob(cron.SessionExpiryJobParams{
		Logger:    logg,
		Sessions:  sessions,
		Closer:    checkoutService,
		TTL:       cfg.Maintenance.SessionTTL,
		BatchSize: cfg.Maintenance.SessionBatchSize,
	})
	if err != nil {
		return nil, err
	}
	return cron.NewRegistry(expiry, retention), nil
}

func days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bijaykarki/meromart-backend/internal/address"
	"github.com/bijaykarki/meromart-backend/internal/cart"
	"github.com/bijaykarki/meromart-backend/internal/cron"
	"github.com/bijaykarki/meromart-backend/internal/inventory"
	"github.com/bijaykarki/meromart-backend/internal/orders"
	"github.com/bijaykarki/meromart-backend/internal/pricing"
	"github.com/bijaykarki/meromart-backend/internal/products"
	"github.com/bijaykarki/meromart-backend/internal/promos"
	"github.com/bijaykarki/meromart-backend/internal/vendors"
	"github.com/bijaykarki/meromart-backend/pkg/config"
	"github.com/bijaykarki/meromart-backend/pkg/db"
	"github.com/bijaykarki/meromart-backend/pkg/logger"
	"github.com/bijaykarki/meromart-backend/pkg/metrics"
	"github.com/bijaykarki/meromart-backend/pkg/migrate"
	"github.com/bijaykarki/meromart-backend/pkg/redis"
)

const lockKeyFormat = "mm:cron-worker:lock:%s"

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

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	ordersService, err := buildOrdersService(dbClient, logg, cfg)
	if err != nil {
		logg.Error(context.Background(), "failed to create order service", err)
		os.Exit(1)
	}

	pendingOrderJob, err := cron.NewPendingOrderJob(cron.PendingOrderJobParams{
		Logger: logg,
		Orders: ordersService,
		TTL:    cfg.Cron.PendingOrderTTL,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create pending order job", err)
		os.Exit(1)
	}

	tokenCleanupJob, err := cron.NewTokenCleanupJob(cron.TokenCleanupJobParams{
		Logger: logg,
		Tokens: cron.NewTokenStore(dbClient.DB()),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create token cleanup job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(pendingOrderJob, tokenCleanupJob),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

// buildOrdersService wires the same orchestrator the API uses so stale
// pending orders are cancelled through the one lifecycle path. The
// worker never initiates payments, so the gateways stay unwired.
func buildOrdersService(dbClient *db.Client, logg *logger.Logger, cfg *config.Config) (orders.Service, error) {
	gormDB := dbClient.DB()

	districtRepo := address.NewDistrictRepository(gormDB)
	addressService, err := address.NewService(address.NewRepository(gormDB), districtRepo)
	if err != nil {
		return nil, err
	}

	inventoryRepo := inventory.NewRepository(gormDB)
	inventoryService, err := inventory.NewService(inventoryRepo, logg)
	if err != nil {
		return nil, err
	}

	cartService, err := cart.NewService(cart.NewRepository(gormDB), products.NewRepository(gormDB))
	if err != nil {
		return nil, err
	}

	pricingEngine, err := pricing.NewEngine(promos.NewRepository(gormDB))
	if err != nil {
		return nil, err
	}

	return orders.NewService(orders.ServiceParams{
		Logger:      logg,
		DB:          gormDB,
		Repo:        orders.NewRepository(gormDB),
		Districts:   districtRepo,
		Catalog:     inventoryRepo,
		Vendors:     vendors.NewRepository(gormDB),
		Carts:       cartService,
		Addresses:   addressService,
		Inventory:   inventoryService,
		Pricing:     pricingEngine,
		FrontendURL: cfg.Frontend.BaseURL,
	})
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}

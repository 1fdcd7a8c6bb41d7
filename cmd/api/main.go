package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/bijaykarki/meromart-backend/api/routes"
	"github.com/bijaykarki/meromart-backend/internal/address"
	"github.com/bijaykarki/meromart-backend/internal/cart"
	"github.com/bijaykarki/meromart-backend/internal/inventory"
	"github.com/bijaykarki/meromart-backend/internal/orders"
	"github.com/bijaykarki/meromart-backend/internal/payments"
	"github.com/bijaykarki/meromart-backend/internal/pricing"
	"github.com/bijaykarki/meromart-backend/internal/products"
	"github.com/bijaykarki/meromart-backend/internal/promos"
	"github.com/bijaykarki/meromart-backend/internal/vendors"
	"github.com/bijaykarki/meromart-backend/internal/wishlist"
	"github.com/bijaykarki/meromart-backend/pkg/config"
	"github.com/bijaykarki/meromart-backend/pkg/db"
	"github.com/bijaykarki/meromart-backend/pkg/gateway/esewa"
	"github.com/bijaykarki/meromart-backend/pkg/gateway/khalti"
	"github.com/bijaykarki/meromart-backend/pkg/logger"
	"github.com/bijaykarki/meromart-backend/pkg/migrate"
	"github.com/bijaykarki/meromart-backend/pkg/redis"
)

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

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	esewaClient, err := esewa.NewClient(context.Background(), cfg.Esewa, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create esewa client", err)
		os.Exit(1)
	}
	khaltiClient, err := khalti.NewClient(context.Background(), cfg.Khalti, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create khalti client", err)
		os.Exit(1)
	}

	gormDB := dbClient.DB()

	districtRepo := address.NewDistrictRepository(gormDB)
	addressService, err := address.NewService(address.NewRepository(gormDB), districtRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create address service", err)
		os.Exit(1)
	}

	inventoryRepo := inventory.NewRepository(gormDB)
	inventoryService, err := inventory.NewService(inventoryRepo, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create inventory service", err)
		os.Exit(1)
	}

	productsRepo := products.NewRepository(gormDB)
	productsService, err := products.NewService(productsRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create product service", err)
		os.Exit(1)
	}

	cartService, err := cart.NewService(cart.NewRepository(gormDB), productsRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create cart service", err)
		os.Exit(1)
	}

	wishlistService, err := wishlist.NewService(wishlist.NewRepository(gormDB), productsRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create wishlist service", err)
		os.Exit(1)
	}

	promosRepo := promos.NewRepository(gormDB)
	promosService, err := promos.NewService(promosRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create promo service", err)
		os.Exit(1)
	}

	pricingEngine, err := pricing.NewEngine(promosRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create pricing engine", err)
		os.Exit(1)
	}

	vendorsRepo := vendors.NewRepository(gormDB)
	vendorsService, err := vendors.NewService(vendorsRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create vendor service", err)
		os.Exit(1)
	}

	ordersRepo := orders.NewRepository(gormDB)
	ordersService, err := orders.NewService(orders.ServiceParams{
		Logger:      logg,
		DB:          gormDB,
		Repo:        ordersRepo,
		Districts:   districtRepo,
		Catalog:     inventoryRepo,
		Vendors:     vendorsRepo,
		Carts:       cartService,
		Addresses:   addressService,
		Inventory:   inventoryService,
		Pricing:     pricingEngine,
		Esewa:       esewaClient,
		Khalti:      khaltiClient,
		FrontendURL: cfg.Frontend.BaseURL,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create order service", err)
		os.Exit(1)
	}

	paymentsService, err := payments.NewService(payments.ServiceParams{
		Logger:    logg,
		DB:        gormDB,
		Orders:    ordersRepo,
		Inventory: inventoryService,
		Carts:     cartService,
		Esewa:     esewaClient,
		Khalti:    khaltiClient,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, dbClient, redisClient, routes.Services{
			Orders:   ordersService,
			Payments: paymentsService,
			Cart:     cartService,
			Wishlist: wishlistService,
			Products: productsService,
			Promos:   promosService,
			Vendors:  vendorsService,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"

	"github.com/melodium-shop/melodium/internal/app"
	"github.com/melodium-shop/melodium/internal/auth"
	"github.com/melodium-shop/melodium/internal/catalog"
	"github.com/melodium-shop/melodium/internal/commerce/cart"
	"github.com/melodium-shop/melodium/internal/commerce/coupons"
	"github.com/melodium-shop/melodium/internal/commerce/orders"
	"github.com/melodium-shop/melodium/internal/identity"
	"github.com/melodium-shop/melodium/internal/observability"
	"github.com/melodium-shop/melodium/internal/platform/cache"
	"github.com/melodium-shop/melodium/internal/platform/db"
	"github.com/melodium-shop/melodium/internal/rbac"
	"github.com/melodium-shop/melodium/internal/shared"
	"github.com/melodium-shop/melodium/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, cfg.SessionCookie, cfg.SessionTTL, cfg.IsProduction())
	validate := validator.New()
	metrics := observability.NewMetrics()

	identityRepo := identity.NewRepository(pool)
	identityService := identity.NewService(identityRepo)

	rbacRepo := rbac.NewRepository(pool)
	rbacService := rbac.NewService(rbacRepo)
	guard := rbac.NewMiddleware(logger, rbacService)

	authService := auth.NewService(identityRepo)
	authHandler := auth.NewHandler(logger, authService, sessionManager, validate)
	identityHandler := identity.NewHandler(logger, identityService, validate, guard)
	rbacHandler := rbac.NewHandler(logger, rbacService, validate, guard)

	catalogRepo := catalog.NewRepository(pool)
	catalogService := catalog.NewService(catalogRepo, identityService)
	catalogHandler := catalog.NewHandler(logger, catalogService, validate, guard)

	couponsRepo := coupons.NewRepository(pool)
	couponsService := coupons.NewService(couponsRepo)
	couponsHandler := coupons.NewHandler(logger, couponsService, validate, guard)

	cartRepo := cart.NewRepository(pool)
	cartService := cart.NewService(cartRepo)
	cartHandler := cart.NewHandler(cartService, validate)

	ordersRepo := orders.NewRepository(pool)
	ordersService := orders.NewService(logger, ordersRepo, couponsService, identityService)
	ordersHandler := orders.NewHandler(ordersService, validate, guard)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		SessionManager:  sessionManager,
		AuthHandler:     authHandler,
		IdentityHandler: identityHandler,
		RBACHandler:     rbacHandler,
		CatalogHandler:  catalogHandler,
		CartHandler:     cartHandler,
		CouponsHandler:  couponsHandler,
		OrdersHandler:   ordersHandler,
		JobsHandler:     jobsHandler,
		Metrics:         metrics,
		Pool:            pool,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

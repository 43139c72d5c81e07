package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/mason-erp/mason-erp/internal/app"
	"github.com/mason-erp/mason-erp/internal/billing"
	"github.com/mason-erp/mason-erp/internal/materials"
	"github.com/mason-erp/mason-erp/internal/observability"
	"github.com/mason-erp/mason-erp/internal/payments"
	"github.com/mason-erp/mason-erp/internal/platform/cache"
	"github.com/mason-erp/mason-erp/internal/platform/db"
	"github.com/mason-erp/mason-erp/internal/projects"
	"github.com/mason-erp/mason-erp/internal/shared"
	"github.com/mason-erp/mason-erp/internal/stock"
	"github.com/mason-erp/mason-erp/jobs"
	"github.com/mason-erp/mason-erp/migrations"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	if err := db.Migrate(cfg.PGDSN, migrations.FS); err != nil {
		logger.Error("apply migrations", slog.Any("error", err))
		os.Exit(1)
	}

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, inventory cache disabled", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	sequences := shared.NewSequenceStore(pool)
	auditLogger := shared.NewAuditLogger(pool)

	stockService := stock.NewService(stock.NewRepository(pool), auditLogger, logger)
	stockHandler := stock.NewHandler(logger, stockService)

	var inventoryCache *materials.InventoryCache
	if redisClient != nil {
		inventoryCache = materials.NewInventoryCache(redisClient, cfg.InventoryCacheTTL)
	}
	materialsService := materials.NewService(materials.NewRepository(pool), sequences, auditLogger, inventoryCache, logger)
	materialsHandler := materials.NewHandler(logger, materialsService)

	billingService := billing.NewService(billing.NewRepository(pool), sequences, auditLogger, logger, cfg.InvoiceNumberCompat)
	billingHandler := billing.NewHandler(logger, billingService)

	paymentsService := payments.NewService(payments.NewRepository(pool), auditLogger, logger)
	paymentsHandler := payments.NewHandler(logger, paymentsService)

	projectsService := projects.NewService(projects.NewRepository(pool), materialsService, paymentsService, auditLogger, logger)
	projectsHandler := projects.NewHandler(logger, projectsService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		StockHandler:     stockHandler,
		MaterialsHandler: materialsHandler,
		BillingHandler:   billingHandler,
		PaymentsHandler:  paymentsHandler,
		ProjectsHandler:  projectsHandler,
		JobHandler:       jobHandler,
		Pool:             pool,
		Metrics:          metrics,
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

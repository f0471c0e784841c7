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

	"github.com/SanmishaTech/clinicminds-sub002/internal/adminstock"
	"github.com/SanmishaTech/clinicminds-sub002/internal/app"
	"github.com/SanmishaTech/clinicminds-sub002/internal/auth"
	"github.com/SanmishaTech/clinicminds-sub002/internal/authz"
	"github.com/SanmishaTech/clinicminds-sub002/internal/masterdata/franchises"
	"github.com/SanmishaTech/clinicminds-sub002/internal/masterdata/medicines"
	"github.com/SanmishaTech/clinicminds-sub002/internal/observability"
	"github.com/SanmishaTech/clinicminds-sub002/internal/platform/cache"
	"github.com/SanmishaTech/clinicminds-sub002/internal/platform/db"
	"github.com/SanmishaTech/clinicminds-sub002/internal/sales"
	"github.com/SanmishaTech/clinicminds-sub002/internal/shared"
	"github.com/SanmishaTech/clinicminds-sub002/internal/stock"
	"github.com/SanmishaTech/clinicminds-sub002/internal/transport"
	"github.com/SanmishaTech/clinicminds-sub002/jobs"
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

	sessionManager := shared.NewSessionManager(redisClient, "clinicminds_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	validate := validator.New()

	authRepo := auth.NewRepository(pool)
	authService := auth.NewService(authRepo)
	authHandler := auth.NewHandler(logger, authService, sessionManager, csrfManager)

	authzService := authz.NewService(pool)
	authzMiddleware := authz.Middleware{Resolver: authzService, Logger: logger}

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	metrics := observability.NewMetrics()

	stockCache := stock.NewCache(redisClient, cfg.ReportCacheTTL)
	stockRepo := stock.NewRepository(pool)
	stockService := stock.NewService(stockRepo, auditLogger, stockCache, logger)
	stockHandler := stock.NewHandler(logger, stockService, validate)

	adminStockRepo := adminstock.NewRepository(pool)
	adminStockService := adminstock.NewService(adminStockRepo, auditLogger, logger)
	adminStockHandler := adminstock.NewHandler(logger, adminStockService, validate)

	salesRepo := sales.NewRepository(pool)
	salesService := sales.NewService(salesRepo, logger)
	salesHandler := sales.NewHandler(logger, salesService, validate)

	transportRepo := transport.NewRepository(pool)
	transportService := transport.NewService(transportRepo, salesRepo, auditLogger, stockService, metrics, logger)
	transportHandler := transport.NewHandler(logger, transportService, validate, idempotencyStore)

	medicineRepo := medicines.NewRepository(pool)
	medicineService := medicines.NewService(medicineRepo)
	medicineHandler := medicines.NewHandler(logger, medicineService, validate)

	franchiseRepo := franchises.NewRepository(pool)
	franchiseService := franchises.NewService(franchiseRepo)
	franchiseHandler := franchises.NewHandler(logger, franchiseService, validate)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, jobClient, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		SessionManager:    sessionManager,
		CSRFManager:       csrfManager,
		Authz:             authzMiddleware,
		AuthHandler:       authHandler,
		SalesHandler:      salesHandler,
		TransportHandler:  transportHandler,
		StockHandler:      stockHandler,
		AdminStockHandler: adminStockHandler,
		MedicineHandler:   medicineHandler,
		FranchiseHandler:  franchiseHandler,
		JobHandler:        jobHandler,
		Metrics:           metrics,
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

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/scrapledger/scrapledger/internal/app"
	"github.com/scrapledger/scrapledger/internal/attachment"
	"github.com/scrapledger/scrapledger/internal/auth"
	"github.com/scrapledger/scrapledger/internal/billing"
	"github.com/scrapledger/scrapledger/internal/dashboard"
	"github.com/scrapledger/scrapledger/internal/lot"
	"github.com/scrapledger/scrapledger/internal/party"
	"github.com/scrapledger/scrapledger/internal/platform/cache"
	"github.com/scrapledger/scrapledger/internal/platform/db"
	"github.com/scrapledger/scrapledger/internal/report"
	"github.com/scrapledger/scrapledger/internal/shared"
	"github.com/scrapledger/scrapledger/jobs"

	"github.com/hibiken/asynq"
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "scrapledger_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())

	var store attachment.Store = attachment.Noop{}
	if cfg.AttachmentEnabled() {
		s3Store, err := attachment.NewS3Store(ctx, cfg.S3Config(), logger)
		if err != nil {
			logger.Error("init attachment store", slog.Any("error", err))
			os.Exit(1)
		}
		store = s3Store
	}

	dashboardCache := dashboard.NewCache(redisClient, cfg.DashboardCacheTTL)
	if err := dashboardCache.ListenForInvalidation(ctx); err != nil {
		logger.Warn("cache invalidation listener", slog.Any("error", err))
	}

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo)
	authHandler := auth.NewHandler(logger, authService, sessionManager)

	billingRepo := billing.NewRepository(dbpool)
	billingService := billing.NewService(billingRepo, store, dashboardCache, logger)
	billingHandler := billing.NewHandler(logger, billingService, store)

	partyRepo := party.NewRepository(dbpool)
	partyService := party.NewService(partyRepo, billingService)
	partyHandler := party.NewHandler(logger, partyService)

	lotRepo := lot.NewRepository(dbpool)
	lotService := lot.NewService(lotRepo, billingService)
	lotHandler := lot.NewHandler(logger, lotService)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobsClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	dashboardService := dashboard.NewService(billingService, dashboardCache)
	dashboardHandler := dashboard.NewHandler(logger, dashboardService, jobsClient)

	reportHandler := report.NewHandler(logger, billingService)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		SessionManager:   sessionManager,
		AuthHandler:      authHandler,
		PartyHandler:     partyHandler,
		BillingHandler:   billingHandler,
		LotHandler:       lotHandler,
		DashboardHandler: dashboardHandler,
		ReportHandler:    reportHandler,
		JobHandler:       jobHandler,
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

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

	"github.com/vantage-bm/vantage/internal/app"
	"github.com/vantage-bm/vantage/internal/audit"
	"github.com/vantage-bm/vantage/internal/authz"
	"github.com/vantage-bm/vantage/internal/catalog"
	"github.com/vantage-bm/vantage/internal/observability"
	"github.com/vantage-bm/vantage/internal/overrides"
	"github.com/vantage-bm/vantage/internal/platform/cache"
	"github.com/vantage-bm/vantage/internal/platform/db"
	"github.com/vantage-bm/vantage/internal/roles"
	"github.com/vantage-bm/vantage/internal/rules"
	"github.com/vantage-bm/vantage/internal/shared"
	"github.com/vantage-bm/vantage/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{})
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

	sessionManager := shared.NewSessionManager(redisClient, "vantage_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	metrics := observability.NewMetrics()

	catalogRepo := catalog.NewRepository(pool)
	if err := catalogRepo.SeedPermissions(ctx, authz.CorePermissions()); err != nil {
		logger.Error("seed core permissions", slog.Any("error", err))
		os.Exit(1)
	}
	catalogCache := catalog.NewCache(catalogRepo, logger, cfg.CatalogRefreshInterval)
	if err := catalogCache.Start(ctx); err != nil {
		logger.Error("load permission catalog", slog.Any("error", err))
		os.Exit(1)
	}

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

	auditRepo := audit.NewRepository(pool)
	recorder := audit.NewRecorder(auditRepo, jobClient, logger, metrics.AuditDroppedCounter(), audit.RecorderConfig{
		QueueSize:     cfg.AuditQueueSize,
		BatchSize:     cfg.AuditBatchSize,
		FlushInterval: cfg.AuditFlushInterval,
	})
	go recorder.Run(ctx)

	rolesRepo := roles.NewRepository(pool)
	overridesRepo := overrides.NewRepository(pool)
	rulesRepo := rules.NewRepository(pool, logger)

	rulesService := rules.NewService(rulesRepo, recorder)
	engine := authz.NewEngine(catalogCache, rolesRepo, overridesRepo, rulesService)
	gateway := authz.Gateway{
		Engine:   engine,
		Recorder: recorder,
		Logger:   logger,
		Metrics:  metrics,
	}

	rolesService := roles.NewService(rolesRepo, recorder)
	overridesService := overrides.NewService(overridesRepo, catalogCache, recorder)
	auditService := audit.NewService(auditRepo)

	authzHandler := authz.NewHandler(logger, gateway)
	catalogHandler := catalog.NewHandler(catalogCache, gateway)
	rolesHandler := roles.NewHandler(logger, rolesService, gateway)
	overridesHandler := overrides.NewHandler(logger, overridesService, gateway)
	rulesHandler := rules.NewHandler(logger, rulesService, gateway)
	auditHandler := audit.NewHandler(logger, auditService, gateway)

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
		SessionManager:   sessionManager,
		CSRFManager:      csrfManager,
		Pool:             pool,
		AuthzHandler:     authzHandler,
		CatalogHandler:   catalogHandler,
		RolesHandler:     rolesHandler,
		OverridesHandler: overridesHandler,
		RulesHandler:     rulesHandler,
		AuditHandler:     auditHandler,
		JobHandler:       jobHandler,
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

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

	"github.com/meridian-procure/meridian-procure/internal/app"
	"github.com/meridian-procure/meridian-procure/internal/award"
	"github.com/meridian-procure/meridian-procure/internal/identity"
	"github.com/meridian-procure/meridian-procure/internal/mrf"
	"github.com/meridian-procure/meridian-procure/internal/notify"
	"github.com/meridian-procure/meridian-procure/internal/observability"
	"github.com/meridian-procure/meridian-procure/internal/platform/cache"
	"github.com/meridian-procure/meridian-procure/internal/platform/db"
	"github.com/meridian-procure/meridian-procure/internal/rfq"
	"github.com/meridian-procure/meridian-procure/internal/shared"
	"github.com/meridian-procure/meridian-procure/internal/vendors"
	"github.com/meridian-procure/meridian-procure/jobs"
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
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	threshold, err := cfg.Threshold()
	if err != nil {
		logger.Error("parse threshold", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Warn("asynq close", slog.Any("error", err))
		}
	}()
	sink := notify.MultiSink{
		notify.LogSink{Logger: logger},
		notify.MetricsSink{Counters: metrics},
		notify.NewAsynqSink(asynqClient),
	}

	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)
	awardLocks := shared.NewMutex(redisClient, cfg.AwardLockTTL)

	vendorsRepo := vendors.NewRepository(dbpool)
	vendorsService := vendors.NewService(vendorsRepo)
	vendorsHandler := vendors.NewHandler(logger, vendorsService)

	mrfRepo := mrf.NewRepository(dbpool)
	mrfService := mrf.NewService(mrfRepo, sink, auditLogger, logger, threshold)
	mrfHandler := mrf.NewHandler(logger, mrfService)

	rfqRepo := rfq.NewRepository(dbpool)
	rfqService := rfq.NewService(rfqRepo, mrfService, vendorsService, sink, idempotencyStore, logger)
	rfqHandler := rfq.NewHandler(logger, rfqService)

	awardRepo := award.NewRepository(dbpool)
	awardService := award.NewService(awardRepo, awardLocks, sink, auditLogger, logger, cfg.PORejectionSoftCap)
	awardHandler := award.NewHandler(logger, awardService)

	identityMiddleware := &identity.Middleware{
		Resolver: identity.NewPGResolver(dbpool),
		Logger:   logger,
	}

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, jobsClient, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		Identity:       identityMiddleware,
		MRFHandler:     mrfHandler,
		RFQHandler:     rfqHandler,
		AwardHandler:   awardHandler,
		VendorsHandler: vendorsHandler,
		JobsHandler:    jobsHandler,
		Metrics:        metrics,
		Pool:           dbpool,
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

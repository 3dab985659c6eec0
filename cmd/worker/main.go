package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/meridian-procure/meridian-procure/internal/app"
	"github.com/meridian-procure/meridian-procure/internal/mrf"
	"github.com/meridian-procure/meridian-procure/internal/notify"
	"github.com/meridian-procure/meridian-procure/internal/observability"
	"github.com/meridian-procure/meridian-procure/internal/platform/db"
	"github.com/meridian-procure/meridian-procure/internal/rfq"
	"github.com/meridian-procure/meridian-procure/internal/shared"
	"github.com/meridian-procure/meridian-procure/internal/vendors"
	"github.com/meridian-procure/meridian-procure/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	threshold, err := cfg.Threshold()
	if err != nil {
		logger.Error("parse threshold", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()
	logSink := notify.LogSink{Logger: logger}

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	vendorsService := vendors.NewService(vendors.NewRepository(pool))
	mrfService := mrf.NewService(mrf.NewRepository(pool), logSink, auditLogger, logger, threshold)
	rfqService := rfq.NewService(rfq.NewRepository(pool), mrfService, vendorsService, logSink, idempotencyStore, logger)

	delivery := jobs.NewEventDelivery(logSink, metrics, logger)
	deadlineJob := jobs.NewRFQDeadlineJob(rfqService, logSink, metrics, logger, cfg.RFQReminderWindow)

	deadlineTask, err := jobs.NewDeadlineScanTask(cfg.RFQReminderWindow)
	if err != nil {
		logger.Error("build deadline task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: notify.TaskTypeEvent, Handler: delivery.Handle},
			{Type: jobs.TaskRFQDeadlineScan, Handler: deadlineJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.RFQReminderCron, Task: deadlineTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/rs/cors"

	"github.com/caseflow/backend/internal/alerts"
	"github.com/caseflow/backend/internal/billing"
	"github.com/caseflow/backend/internal/config"
	"github.com/caseflow/backend/internal/dashboard"
	"github.com/caseflow/backend/internal/jobs"
	"github.com/caseflow/backend/internal/ledger"
	"github.com/caseflow/backend/internal/models"
	"github.com/caseflow/backend/internal/processors"
	"github.com/caseflow/backend/internal/quota"
	"github.com/caseflow/backend/internal/router"
	"github.com/caseflow/backend/internal/runner"
	"github.com/caseflow/backend/internal/store"
	"github.com/caseflow/backend/internal/telemetry"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	var logger *slog.Logger
	if cfg.Env == "dev" {
		logger = slog.New(tint.NewHandler(os.Stdout, &tint.Options{Level: slog.LevelDebug}))
	} else {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
	slog.SetDefault(logger)

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Error("unable to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Error("cannot reach PostgreSQL; ensure it is running, e.g. docker compose up -d", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to PostgreSQL")

	if err := store.RunMigrations(ctx, pool); err != nil {
		logger.Error("migrations failed", "error", err)
		os.Exit(1)
	}
	logger.Info("migrations applied")

	// Ledger.
	ledgerRepo := ledger.NewRepository(pool)
	ledgerSvc := ledger.NewService(ledgerRepo)

	// Quota engine: plan entitlements + usage windows + prepaid credits.
	planResolver := billing.NewResolver(pool)
	usageRepo := quota.NewRepository(pool)
	quotaEngine := quota.NewEngine(planResolver, usageRepo, ledgerSvc)

	// Alerting.
	dispatcher := alerts.NewDispatcher(alerts.Options{
		WebhookURL:     cfg.AlertWebhookURL,
		Throttle:       cfg.AlertThrottle,
		FailureWindow:  cfg.FailureWindow,
		SpikeThreshold: cfg.FailureSpikeThreshold,
	}, logger)

	// Runner: job rows double as the stale-reclamation store.
	jobsRepo := jobs.NewRepository(pool)
	jobRunner := runner.New(cfg.Concurrency, cfg.StaleThreshold, jobsRepo, logger)

	retryCfg := runner.RetryConfig{
		MaxRetries: cfg.MaxRetries,
		BaseDelay:  cfg.BaseDelay,
		MaxJitter:  cfg.RetryMaxJitter,
	}
	jobsSvc := jobs.NewService(jobsRepo, quotaEngine, ledgerSvc, dispatcher, jobRunner, retryCfg, logger)

	procClient := processors.NewClient(cfg.ProcessorBaseURL, logger)
	jobsSvc.RegisterProcessor(models.JobTypeOCRExtract, procClient.Processor("/v1/ocr"))
	jobsSvc.RegisterProcessor(models.JobTypeAIAnalyze, procClient.Processor("/v1/analyze"))
	jobsSvc.RegisterProcessor(models.JobTypeDocDraft, procClient.Processor("/v1/draft"))

	// Reclaim jobs abandoned by a previous process before serving traffic,
	// then sweep periodically.
	if n, err := jobRunner.RequeueStale(ctx); err != nil {
		logger.Error("initial stale requeue failed", "error", err)
	} else if n > 0 {
		logger.Info("requeued stale jobs", "count", n)
	}
	go func() {
		ticker := time.NewTicker(cfg.StaleSweep)
		defer ticker.Stop()
		for range ticker.C {
			if n, err := jobRunner.RequeueStale(ctx); err != nil {
				logger.Error("stale requeue failed", "error", err)
			} else if n > 0 {
				logger.Info("requeued stale jobs", "count", n)
			}
		}
	}()

	// Backlog watch.
	go func() {
		ticker := time.NewTicker(cfg.BacklogCheckInterval)
		defer ticker.Stop()
		for range ticker.C {
			dispatcher.CheckBacklog(ctx, jobRunner.Stats().QueueDepth, cfg.BacklogThreshold)
		}
	}()

	jobsHandler := jobs.NewHandler(jobsSvc, logger)
	billingHandler := billing.NewHandler(ledgerSvc, logger)
	dashHandler := dashboard.NewHandler(jobRunner, ledgerSvc, ledgerRepo, dispatcher, cfg.BacklogThreshold, logger)

	apiHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-User-ID"},
		AllowCredentials: true,
	}).Handler(router.New(jobsHandler, billingHandler, dashHandler))

	go func() {
		logger.Info("starting metrics server", "addr", cfg.MetricsAddr)
		if err := http.ListenAndServe(cfg.MetricsAddr, telemetry.Handler()); err != nil {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	addr := "0.0.0.0:" + cfg.HTTPPort
	logger.Info("starting HTTP server", "addr", addr)
	if err := http.ListenAndServe(addr, apiHandler); err != nil {
		logger.Error("HTTP server failed", "error", err)
		os.Exit(1)
	}
}

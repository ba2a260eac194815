// Package main provides the crawl worker entry point for the engagement
// monitor service.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/engagement-monitor/internal/adapter"
	"github.com/engagement-monitor/internal/config"
	"github.com/engagement-monitor/internal/index"
	"github.com/engagement-monitor/internal/logging"
	"github.com/engagement-monitor/internal/models"
	"github.com/engagement-monitor/internal/ratelimit"
	"github.com/engagement-monitor/internal/service"
	"github.com/engagement-monitor/internal/storage"
	"github.com/engagement-monitor/internal/types"
	"github.com/engagement-monitor/internal/worker"
)

func main() {
	fmt.Println("Engagement Monitor Crawl Worker")
	log.Println("Worker starting...")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logging.InitGlobalLogger(logLevel, logFormat)
	logger := logging.GetGlobalLogger()

	// Initialize database connections
	logger.Info("Connecting to databases...")

	// Connect to Postgres
	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	// Connect to Redis
	redis, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redis.Close()

	// ClickHouse sink is optional - the worker runs without analytics
	// when it is disabled or unreachable.
	var observations *storage.ObservationRepository
	if cfg.Database.ClickHouse.Enabled {
		clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
		if err != nil {
			logger.WithError(err).Warn("Failed to connect to ClickHouse, continuing without observation sink")
		} else {
			defer clickhouse.Close()
			observations = storage.NewObservationRepository(clickhouse)
			if err := observations.EnsureSchema(context.Background()); err != nil {
				logger.WithError(err).Warn("Failed to ensure ClickHouse schema, continuing without observation sink")
				observations = nil
			}
		}
	}

	logger.Info("Database connections established")

	// Initialize repositories
	jobRepo := storage.NewJobRepository(postgres, cfg.Worker.MaxJobRetries)
	stateRepo := storage.NewWorkerStateRepository(postgres)
	engagementRepo := storage.NewEngagementRepository(postgres)
	indexRepo := storage.NewFollowingIndexRepository(postgres)
	campaignRepo := storage.NewCampaignRepository(postgres)
	metricsRepo := storage.NewTargetMetricsRepository(postgres)
	alertRepo := storage.NewAlertRepository(postgres)
	historyRepo := storage.NewAlertHistoryRepository(postgres)

	// Initialize the engagement API client behind a shared pacing gate
	gate := ratelimit.NewGate(cfg.EngageAPI.QPS)
	client := adapter.NewHTTPClient(&adapter.HTTPClientConfig{
		BaseURL:        cfg.EngageAPI.BaseURL,
		APIKey:         cfg.EngageAPI.APIKey,
		Gate:           gate,
		RequestTimeout: cfg.EngageAPI.RequestTimeout,
		MaxRetries:     cfg.EngageAPI.MaxRetries,
		PageSize:       cfg.EngageAPI.PageSize,
	})
	logger.WithFields(map[string]interface{}{
		"base_url": cfg.EngageAPI.BaseURL,
		"qps":      cfg.EngageAPI.QPS,
	}).Info("Engagement API client initialized")

	// Initialize services
	indexService := index.NewService(indexRepo, redis, cfg.Database.Redis.ScoreCacheTTL)
	enricher := service.NewEnricher(engagementRepo)
	detector := service.NewAlertDetector(campaignRepo, engagementRepo, alertRepo, historyRepo, redis, service.AlertDetectorConfig{
		Lookback: cfg.Alerts.DetectionLookback,
	})

	// Register job handlers
	engagementHandler, err := worker.NewEngagementHandler(&worker.EngagementHandlerConfig{
		Client:         client,
		Targets:        campaignRepo,
		States:         stateRepo,
		Engagements:    engagementRepo,
		Observations:   observationSink(observations),
		Scorer:         indexService,
		MaxPagesPerRun: cfg.Crawler.MaxPagesPerRun,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create engagement handler")
	}

	metricsHandler, err := worker.NewMetricsHandler(client, campaignRepo, stateRepo, metricsRepo, metricsSnapshotSink(observations))
	if err != nil {
		logger.WithError(err).Fatal("Failed to create metrics handler")
	}

	registry := worker.NewRegistry()
	registry.Register(types.JobRetweets, engagementHandler)
	registry.Register(types.JobReplies, engagementHandler)
	registry.Register(types.JobQuotes, engagementHandler)
	registry.Register(types.JobMetrics, metricsHandler)

	// After each crawl job: re-apply index scores to stored rows, then
	// run a detection pass so fresh engagements can alert promptly.
	hook := func(ctx context.Context, job *models.Job) error {
		if _, err := enricher.RefreshCampaignScores(ctx, job.CampaignID); err != nil {
			return err
		}
		if job.JobType == types.JobMetrics {
			return nil
		}
		_, err := detector.DetectAndQueue(ctx, job.CampaignID)
		return err
	}

	orchestrator, err := worker.NewOrchestrator(worker.OrchestratorConfig{
		Concurrency:        cfg.Worker.Concurrency,
		MaxJobsPerBatch:    cfg.Worker.MaxJobsPerBatch,
		MaxEmptyClaims:     cfg.Worker.MaxEmptyClaims,
		InterBatchDelay:    cfg.Worker.InterBatchDelay,
		CompletedRetention: cfg.Worker.CompletedRetention,
	}, jobRepo, registry, hook)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create orchestrator")
	}

	ctx := context.Background()
	if err := orchestrator.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to start orchestrator")
	}
	logger.WithField("concurrency", cfg.Worker.Concurrency).Info("Worker started successfully")

	// Set up graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	<-sigCh
	log.Println("Shutdown signal received, stopping workers...")

	done := make(chan struct{})
	go func() {
		orchestrator.Stop()
		close(done)
	}()

	select {
	case <-done:
		log.Println("All executors stopped. Goodbye!")
	case <-time.After(30 * time.Second):
		log.Println("Shutdown timed out, exiting anyway")
	}
}

// observationSink adapts an optional repository to the handler's
// interface. A typed nil inside a non-nil interface would defeat the
// handler's nil check.
func observationSink(repo *storage.ObservationRepository) worker.ObservationSink {
	if repo == nil {
		return nil
	}
	return repo
}

func metricsSnapshotSink(repo *storage.ObservationRepository) worker.MetricsSnapshotSink {
	if repo == nil {
		return nil
	}
	return repo
}

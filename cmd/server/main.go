// Package main provides the API server entry point for the engagement
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

	"github.com/engagement-monitor/internal/api"
	"github.com/engagement-monitor/internal/config"
	"github.com/engagement-monitor/internal/index"
	"github.com/engagement-monitor/internal/logging"
	"github.com/engagement-monitor/internal/service"
	"github.com/engagement-monitor/internal/storage"
)

func main() {
	fmt.Println("Engagement Monitor API Server")
	log.Println("Server starting...")

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
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

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

	// The analytics sink is optional; the observation endpoints report
	// unavailable when it is disabled.
	var observations api.ObservationReaderInterface
	if cfg.Database.ClickHouse.Enabled {
		clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
		if err != nil {
			logger.WithError(err).Warn("Failed to connect to ClickHouse, observation endpoints disabled")
		} else {
			defer clickhouse.Close()
			observations = storage.NewObservationRepository(clickhouse)
		}
	}

	logger.Info("Database connections established")

	// Initialize repositories
	jobRepo := storage.NewJobRepository(postgres, cfg.Worker.MaxJobRetries)
	campaignRepo := storage.NewCampaignRepository(postgres)
	engagementRepo := storage.NewEngagementRepository(postgres)
	indexRepo := storage.NewFollowingIndexRepository(postgres)
	alertRepo := storage.NewAlertRepository(postgres)
	historyRepo := storage.NewAlertHistoryRepository(postgres)

	// Initialize services
	logger.Info("Initializing services...")

	queueService := service.NewQueueService(campaignRepo, jobRepo)
	indexService := index.NewService(indexRepo, redis, cfg.Database.Redis.ScoreCacheTTL)
	alertService := service.NewAlertDetector(campaignRepo, engagementRepo, alertRepo, historyRepo, redis, service.AlertDetectorConfig{
		Lookback: cfg.Alerts.DetectionLookback,
	})

	logger.Info("Services initialized")

	// Create server configuration
	serverConfig := &api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		ClientRPS:       20,
		ClientBurst:     40,
	}

	server := api.NewServer(serverConfig, queueService, alertService, indexService, engagementRepo, alertRepo, observations)

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Server started successfully")

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited")
}

// Package config provides configuration management for the engagement
// monitor. It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	EngageAPI EngageAPIConfig
	Worker    WorkerConfig
	Crawler   CrawlerConfig
	Alerts    AlertsConfig
	Logging   LoggingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string
	Port string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres   PostgresConfig
	Redis      RedisConfig
	ClickHouse ClickHouseConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
	ScoreCacheTTL  time.Duration
}

// ClickHouseConfig holds ClickHouse configuration for the observation sink
type ClickHouseConfig struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
	Enabled  bool
}

// EngageAPIConfig holds external engagement API configuration
type EngageAPIConfig struct {
	BaseURL        string
	APIKey         string
	QPS            int
	RequestTimeout time.Duration
	MaxRetries     int
	PageSize       int
}

// WorkerConfig holds worker orchestrator configuration
type WorkerConfig struct {
	Concurrency        int
	MaxJobsPerBatch    int
	MaxEmptyClaims     int
	InterBatchDelay    time.Duration
	MaxJobRetries      int
	CompletedRetention time.Duration
}

// CrawlerConfig holds crawl pacing configuration
type CrawlerConfig struct {
	MaxPagesPerRun int
}

// AlertsConfig holds alert detection configuration
type AlertsConfig struct {
	DetectionLookback time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// .env file is optional - environment variables can be set directly
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnv("SERVER_PORT", "8080"),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "engagement_monitor"),
				User:           getEnv("POSTGRES_USER", "monitor"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 50),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 50),
				ScoreCacheTTL:  getEnvAsDuration("REDIS_SCORE_CACHE_TTL", 5*time.Minute),
			},
			ClickHouse: ClickHouseConfig{
				Host:     getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "engagement_monitor"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
				Enabled:  getEnvAsBool("CLICKHOUSE_ENABLED", false),
			},
		},
		EngageAPI: EngageAPIConfig{
			BaseURL:        getEnv("ENGAGE_API_BASE_URL", "https://api.engage.example.com"),
			APIKey:         getEnv("ENGAGE_API_KEY", ""),
			QPS:            getEnvAsInt("ENGAGE_API_QPS", 3),
			RequestTimeout: getEnvAsDuration("ENGAGE_API_TIMEOUT", 30*time.Second),
			MaxRetries:     getEnvAsInt("ENGAGE_API_MAX_RETRIES", 5),
			PageSize:       getEnvAsInt("ENGAGE_API_PAGE_SIZE", 100),
		},
		Worker: WorkerConfig{
			Concurrency:        getEnvAsInt("WORKER_CONCURRENCY", 4),
			MaxJobsPerBatch:    getEnvAsInt("WORKER_MAX_JOBS_PER_BATCH", 50),
			MaxEmptyClaims:     getEnvAsInt("WORKER_MAX_EMPTY_CLAIMS", 3),
			InterBatchDelay:    getEnvAsDuration("WORKER_INTER_BATCH_DELAY", 30*time.Second),
			MaxJobRetries:      getEnvAsInt("WORKER_MAX_JOB_RETRIES", 3),
			CompletedRetention: getEnvAsDuration("WORKER_COMPLETED_RETENTION", 7*24*time.Hour),
		},
		Crawler: CrawlerConfig{
			MaxPagesPerRun: getEnvAsInt("CRAWLER_MAX_PAGES_PER_RUN", 10),
		},
		Alerts: AlertsConfig{
			DetectionLookback: getEnvAsDuration("ALERTS_DETECTION_LOOKBACK", 24*time.Hour),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return config, nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool gets an environment variable as a boolean with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

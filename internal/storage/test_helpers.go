package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/engagement-monitor/internal/config"
)

// testContext creates a context with timeout for tests
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func testEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// testPostgres connects to the local test database, skipping the test
// when Postgres is unavailable or the run is in short mode. Assumes
// migrations have been applied.
func testPostgres(t *testing.T) *PostgresDB {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cfg := &config.PostgresConfig{
		Host:           testEnv("POSTGRES_HOST", "localhost"),
		Port:           testEnv("POSTGRES_PORT", "5432"),
		Database:       testEnv("POSTGRES_DB", "engagement_monitor_test"),
		User:           testEnv("POSTGRES_USER", "monitor"),
		Password:       testEnv("POSTGRES_PASSWORD", "monitor_dev_password"),
		MaxConnections: 10,
	}

	db, err := NewPostgresDB(cfg)
	if err != nil {
		t.Skipf("Skipping test - Postgres not available: %v", err)
		return nil
	}
	t.Cleanup(db.Close)
	return db
}

// truncateTables clears the given tables so tests start from a clean
// slate.
func truncateTables(t *testing.T, db *PostgresDB, tables ...string) {
	t.Helper()
	ctx := testContext(t)
	for _, table := range tables {
		if _, err := db.Pool().Exec(ctx, "TRUNCATE TABLE "+table+" CASCADE"); err != nil {
			t.Fatalf("failed to truncate %s: %v", table, err)
		}
	}
}

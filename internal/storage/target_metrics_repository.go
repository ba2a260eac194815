package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/engagement-monitor/internal/models"
	"github.com/jackc/pgx/v5"
)

// TargetMetricsRepository persists the latest metric snapshot per target,
// refreshed by metrics jobs.
type TargetMetricsRepository struct {
	db *PostgresDB
}

// NewTargetMetricsRepository creates a new target metrics repository
func NewTargetMetricsRepository(db *PostgresDB) *TargetMetricsRepository {
	return &TargetMetricsRepository{db: db}
}

// Upsert replaces the snapshot for a target.
func (r *TargetMetricsRepository) Upsert(ctx context.Context, m *models.TargetMetrics) error {
	_, err := r.db.Pool().Exec(ctx, `
		INSERT INTO target_metrics (
			target_id, campaign_id, view_count, like_count, retweet_count,
			reply_count, quote_count, fetched_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (target_id)
		DO UPDATE SET
			view_count = EXCLUDED.view_count,
			like_count = EXCLUDED.like_count,
			retweet_count = EXCLUDED.retweet_count,
			reply_count = EXCLUDED.reply_count,
			quote_count = EXCLUDED.quote_count,
			fetched_at = EXCLUDED.fetched_at
	`, m.TargetID, m.CampaignID, m.ViewCount, m.LikeCount, m.RetweetCount,
		m.ReplyCount, m.QuoteCount, m.FetchedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert target metrics: %w", err)
	}
	return nil
}

// Get retrieves the latest snapshot for a target.
func (r *TargetMetricsRepository) Get(ctx context.Context, targetID string) (*models.TargetMetrics, error) {
	var m models.TargetMetrics
	err := r.db.Pool().QueryRow(ctx, `
		SELECT target_id, campaign_id, view_count, like_count, retweet_count,
			reply_count, quote_count, fetched_at
		FROM target_metrics
		WHERE target_id = $1
	`, targetID).Scan(&m.TargetID, &m.CampaignID, &m.ViewCount, &m.LikeCount,
		&m.RetweetCount, &m.ReplyCount, &m.QuoteCount, &m.FetchedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("target metrics not found: %s", targetID)
		}
		return nil, fmt.Errorf("failed to get target metrics: %w", err)
	}
	return &m, nil
}

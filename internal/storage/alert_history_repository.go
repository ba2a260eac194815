package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/engagement-monitor/internal/models"
	"github.com/engagement-monitor/internal/types"
)

// AlertHistoryRepository persists the dedup ledger of delivered alerts.
// Rows answer exactly one question: was this (campaign, user, action)
// alerted recently.
type AlertHistoryRepository struct {
	db *PostgresDB
}

// NewAlertHistoryRepository creates a new alert history repository
func NewAlertHistoryRepository(db *PostgresDB) *AlertHistoryRepository {
	return &AlertHistoryRepository{db: db}
}

// Record writes one history entry after a successful send. The hour bucket
// keeps the uniqueness key coarse enough that repeated sends inside one
// hour collapse onto a single row.
func (r *AlertHistoryRepository) Record(ctx context.Context, rec *models.AlertHistoryRecord) error {
	hour := rec.SentAt.UTC().Truncate(time.Hour)
	_, err := r.db.Pool().Exec(ctx, `
		INSERT INTO alert_history (campaign_id, user_id, action_type, timestamp_hour, sent_at, channel)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (campaign_id, user_id, action_type, timestamp_hour)
		DO UPDATE SET sent_at = EXCLUDED.sent_at, channel = EXCLUDED.channel
	`, rec.CampaignID, rec.UserID, rec.ActionType, hour, rec.SentAt, rec.Channel)
	if err != nil {
		return fmt.Errorf("failed to record alert history: %w", err)
	}
	return nil
}

// SentSince reports whether an alert for (campaign, user, action) was sent
// at or after the cutoff. This is the primary dedup check of alert
// detection.
func (r *AlertHistoryRepository) SentSince(ctx context.Context, campaignID, userID string, actionType types.ActionType, cutoff time.Time) (bool, error) {
	var exists bool
	err := r.db.Pool().QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM alert_history
			WHERE campaign_id = $1 AND user_id = $2 AND action_type = $3 AND sent_at >= $4
		)
	`, campaignID, userID, actionType, cutoff).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check alert history: %w", err)
	}
	return exists, nil
}

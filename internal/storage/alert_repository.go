package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/engagement-monitor/internal/models"
	"github.com/engagement-monitor/internal/types"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const alertColumns = `id, campaign_id, engagement_id, user_id, action_type,
	importance_score, run_batch, scheduled_send_time, status, sent_at,
	created_at, updated_at`

// AlertRepository persists scheduled alert records. Rows are unique per
// (campaign_id, engagement_id); re-detection updates scheduling fields on
// still-pending rows without duplicating.
type AlertRepository struct {
	db *PostgresDB
}

// NewAlertRepository creates a new alert repository
func NewAlertRepository(db *PostgresDB) *AlertRepository {
	return &AlertRepository{db: db}
}

// Upsert writes one alert record. An already sent or skipped alert keeps
// its terminal state; only pending rows accept new scheduling.
func (r *AlertRepository) Upsert(ctx context.Context, alert *models.AlertRecord) (*models.AlertRecord, error) {
	query := `
		INSERT INTO alerts (
			id, campaign_id, engagement_id, user_id, action_type,
			importance_score, run_batch, scheduled_send_time, status,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'pending', NOW(), NOW())
		ON CONFLICT (campaign_id, engagement_id)
		DO UPDATE SET
			importance_score = EXCLUDED.importance_score,
			run_batch = CASE WHEN alerts.status = 'pending' THEN EXCLUDED.run_batch ELSE alerts.run_batch END,
			scheduled_send_time = CASE WHEN alerts.status = 'pending' THEN EXCLUDED.scheduled_send_time ELSE alerts.scheduled_send_time END,
			updated_at = NOW()
		RETURNING ` + alertColumns

	row := r.db.Pool().QueryRow(ctx, query,
		uuid.New().String(),
		alert.CampaignID,
		alert.EngagementID,
		alert.UserID,
		alert.ActionType,
		alert.ImportanceScore,
		alert.RunBatch,
		alert.ScheduledSendTime,
	)

	stored, err := scanAlert(row)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert alert: %w", err)
	}
	return stored, nil
}

// ListDue returns pending alerts whose scheduled send time has passed,
// oldest first. The out-of-scope sender pulls from here.
func (r *AlertRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.AlertRecord, error) {
	rows, err := r.db.Pool().Query(ctx, `
		SELECT `+alertColumns+`
		FROM alerts
		WHERE status = 'pending' AND scheduled_send_time <= $1
		ORDER BY scheduled_send_time ASC
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list due alerts: %w", err)
	}
	defer rows.Close()

	return collectAlerts(rows)
}

// ListByCampaign returns a campaign's alerts, newest scheduling first.
func (r *AlertRepository) ListByCampaign(ctx context.Context, campaignID string, limit, offset int) ([]*models.AlertRecord, error) {
	rows, err := r.db.Pool().Query(ctx, `
		SELECT `+alertColumns+`
		FROM alerts
		WHERE campaign_id = $1
		ORDER BY scheduled_send_time DESC
		LIMIT $2 OFFSET $3
	`, campaignID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	return collectAlerts(rows)
}

// MarkSent transitions a pending alert to sent.
func (r *AlertRepository) MarkSent(ctx context.Context, alertID string, sentAt time.Time) error {
	result, err := r.db.Pool().Exec(ctx, `
		UPDATE alerts
		SET status = 'sent', sent_at = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, alertID, sentAt)
	if err != nil {
		return fmt.Errorf("failed to mark alert sent: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("alert not pending: %s", alertID)
	}
	return nil
}

// MarkSkipped transitions a pending alert to skipped.
func (r *AlertRepository) MarkSkipped(ctx context.Context, alertID string) error {
	result, err := r.db.Pool().Exec(ctx, `
		UPDATE alerts
		SET status = 'skipped', updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, alertID)
	if err != nil {
		return fmt.Errorf("failed to mark alert skipped: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("alert not pending: %s", alertID)
	}
	return nil
}

func collectAlerts(rows pgx.Rows) ([]*models.AlertRecord, error) {
	var alerts []*models.AlertRecord
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alerts: %w", err)
	}
	return alerts, nil
}

func scanAlert(row pgx.Row) (*models.AlertRecord, error) {
	var alert models.AlertRecord
	var actionType, status string

	err := row.Scan(
		&alert.ID,
		&alert.CampaignID,
		&alert.EngagementID,
		&alert.UserID,
		&actionType,
		&alert.ImportanceScore,
		&alert.RunBatch,
		&alert.ScheduledSendTime,
		&status,
		&alert.SentAt,
		&alert.CreatedAt,
		&alert.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	alert.ActionType = types.ActionType(actionType)
	alert.Status = types.AlertStatus(status)
	return &alert, nil
}

package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/engagement-monitor/internal/models"
	"github.com/jackc/pgx/v5"
)

// ErrCampaignNotFound is returned when a campaign id does not exist.
var ErrCampaignNotFound = errors.New("campaign not found")

// CampaignRepository reads campaign and target rows. Campaign CRUD lives
// outside the core; the pipeline only consumes these.
type CampaignRepository struct {
	db *PostgresDB
}

// NewCampaignRepository creates a new campaign repository
func NewCampaignRepository(db *PostgresDB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

// Get retrieves a campaign by id.
func (r *CampaignRepository) Get(ctx context.Context, campaignID string) (*models.Campaign, error) {
	var c models.Campaign
	// COALESCE guards rows created before spacing_minutes became NOT NULL;
	// 0 means "derive spacing from the schedule interval".
	err := r.db.Pool().QueryRow(ctx, `
		SELECT id, name, alert_threshold, frequency_window_minutes,
			schedule_interval_minutes, COALESCE(spacing_minutes, 0), active, created_at
		FROM campaigns
		WHERE id = $1
	`, campaignID).Scan(
		&c.ID,
		&c.Name,
		&c.AlertThreshold,
		&c.FrequencyWindowMinutes,
		&c.ScheduleIntervalMins,
		&c.SpacingMinutes,
		&c.Active,
		&c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCampaignNotFound
		}
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}
	return &c, nil
}

// ListTargets retrieves all targets for a campaign.
func (r *CampaignRepository) ListTargets(ctx context.Context, campaignID string) ([]*models.Target, error) {
	rows, err := r.db.Pool().Query(ctx, `
		SELECT id, campaign_id, post_id, category, created_at
		FROM targets
		WHERE campaign_id = $1
		ORDER BY created_at ASC
	`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}
	defer rows.Close()

	var targets []*models.Target
	for rows.Next() {
		var t models.Target
		if err := rows.Scan(&t.ID, &t.CampaignID, &t.PostID, &t.Category, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan target: %w", err)
		}
		targets = append(targets, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating targets: %w", err)
	}
	return targets, nil
}

// GetTarget retrieves one target by id.
func (r *CampaignRepository) GetTarget(ctx context.Context, targetID string) (*models.Target, error) {
	var t models.Target
	err := r.db.Pool().QueryRow(ctx, `
		SELECT id, campaign_id, post_id, category, created_at
		FROM targets
		WHERE id = $1
	`, targetID).Scan(&t.ID, &t.CampaignID, &t.PostID, &t.Category, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("target not found: %s", targetID)
		}
		return nil, fmt.Errorf("failed to get target: %w", err)
	}
	return &t, nil
}

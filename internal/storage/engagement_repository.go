package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/engagement-monitor/internal/models"
	"github.com/engagement-monitor/internal/types"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const engagementColumns = `id, campaign_id, target_id, target_category,
	user_id, action_type, occurred_at, engagement_tweet_id, account_profile,
	importance_score, account_categories, quote_view_count, created_at, updated_at`

// EngagementRepository persists enriched engagement records. Rows are
// unique per (campaign, target, user, action); re-observation updates
// profile and score fields but preserves the original created_at.
type EngagementRepository struct {
	db *PostgresDB
}

// NewEngagementRepository creates a new engagement repository
func NewEngagementRepository(db *PostgresDB) *EngagementRepository {
	return &EngagementRepository{db: db}
}

// Upsert writes one engagement record, collapsing re-observations onto the
// existing row. The returned record carries the authoritative created_at.
func (r *EngagementRepository) Upsert(ctx context.Context, rec *models.EngagementRecord) (*models.EngagementRecord, error) {
	profileJSON, err := json.Marshal(rec.Profile)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal account profile: %w", err)
	}

	query := `
		INSERT INTO engagements (
			id, campaign_id, target_id, target_category, user_id, action_type,
			occurred_at, engagement_tweet_id, account_profile, importance_score,
			account_categories, quote_view_count, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
		ON CONFLICT (campaign_id, target_id, user_id, action_type)
		DO UPDATE SET
			target_category = EXCLUDED.target_category,
			occurred_at = EXCLUDED.occurred_at,
			engagement_tweet_id = COALESCE(EXCLUDED.engagement_tweet_id, engagements.engagement_tweet_id),
			account_profile = EXCLUDED.account_profile,
			importance_score = EXCLUDED.importance_score,
			account_categories = EXCLUDED.account_categories,
			quote_view_count = COALESCE(EXCLUDED.quote_view_count, engagements.quote_view_count),
			updated_at = NOW()
		RETURNING ` + engagementColumns

	row := r.db.Pool().QueryRow(ctx, query,
		uuid.New().String(),
		rec.CampaignID,
		rec.TargetID,
		rec.TargetCategory,
		rec.UserID,
		rec.ActionType,
		rec.Timestamp,
		rec.EngagementTweetID,
		profileJSON,
		rec.ImportanceScore,
		rec.AccountCategories,
		rec.QuoteViewCount,
	)

	stored, err := scanEngagement(row)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert engagement: %w", err)
	}
	return stored, nil
}

// GetByID retrieves one engagement record.
func (r *EngagementRepository) GetByID(ctx context.Context, id string) (*models.EngagementRecord, error) {
	row := r.db.Pool().QueryRow(ctx,
		`SELECT `+engagementColumns+` FROM engagements WHERE id = $1`, id)
	rec, err := scanEngagement(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("engagement not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get engagement: %w", err)
	}
	return rec, nil
}

// ListAboveScore returns a campaign's engagements at or above the score
// threshold, updated within the lookback window, newest first.
func (r *EngagementRepository) ListAboveScore(ctx context.Context, campaignID string, minScore float64, since time.Time, limit int) ([]*models.EngagementRecord, error) {
	rows, err := r.db.Pool().Query(ctx, `
		SELECT `+engagementColumns+`
		FROM engagements
		WHERE campaign_id = $1 AND importance_score >= $2 AND updated_at >= $3
		ORDER BY occurred_at DESC
		LIMIT $4
	`, campaignID, minScore, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list engagements above score: %w", err)
	}
	defer rows.Close()

	return collectEngagements(rows)
}

// ListByCampaign returns a campaign's engagements, newest first.
func (r *EngagementRepository) ListByCampaign(ctx context.Context, campaignID string, limit, offset int) ([]*models.EngagementRecord, error) {
	rows, err := r.db.Pool().Query(ctx, `
		SELECT `+engagementColumns+`
		FROM engagements
		WHERE campaign_id = $1
		ORDER BY occurred_at DESC
		LIMIT $2 OFFSET $3
	`, campaignID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list engagements: %w", err)
	}
	defer rows.Close()

	return collectEngagements(rows)
}

// RefreshScores re-applies the current importance index to a campaign's
// engagement rows in a single statement. Accounts absent from the index
// score zero.
func (r *EngagementRepository) RefreshScores(ctx context.Context, campaignID string) (int64, error) {
	result, err := r.db.Pool().Exec(ctx, `
		UPDATE engagements e
		SET importance_score = COALESCE(fi.importance_score, 0), updated_at = NOW()
		FROM engagements e2
		LEFT JOIN following_index fi ON fi.followed_account_id = e2.user_id
		WHERE e.id = e2.id
			AND e.campaign_id = $1
			AND e.importance_score IS DISTINCT FROM COALESCE(fi.importance_score, 0)
	`, campaignID)
	if err != nil {
		return 0, fmt.Errorf("failed to refresh engagement scores: %w", err)
	}
	return result.RowsAffected(), nil
}

func collectEngagements(rows pgx.Rows) ([]*models.EngagementRecord, error) {
	var records []*models.EngagementRecord
	for rows.Next() {
		rec, err := scanEngagement(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan engagement: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating engagements: %w", err)
	}
	return records, nil
}

func scanEngagement(row pgx.Row) (*models.EngagementRecord, error) {
	var rec models.EngagementRecord
	var profileJSON []byte
	var actionType string

	err := row.Scan(
		&rec.ID,
		&rec.CampaignID,
		&rec.TargetID,
		&rec.TargetCategory,
		&rec.UserID,
		&actionType,
		&rec.Timestamp,
		&rec.EngagementTweetID,
		&profileJSON,
		&rec.ImportanceScore,
		&rec.AccountCategories,
		&rec.QuoteViewCount,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.ActionType = types.ActionType(actionType)
	if len(profileJSON) > 0 {
		if err := json.Unmarshal(profileJSON, &rec.Profile); err != nil {
			return nil, fmt.Errorf("failed to unmarshal account profile: %w", err)
		}
	}
	return &rec, nil
}

package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/engagement-monitor/internal/models"
)

// ObservationRepository writes append-only engagement observations to
// ClickHouse. Unlike the Postgres engagement rows, every crawl sighting
// lands here, re-observations included, so analytics can count raw
// activity over time.
type ObservationRepository struct {
	db *ClickHouseDB
}

// NewObservationRepository creates a new observation repository
func NewObservationRepository(db *ClickHouseDB) *ObservationRepository {
	return &ObservationRepository{db: db}
}

// EnsureSchema creates the analytics tables if they do not exist.
// Called once at worker startup.
func (r *ObservationRepository) EnsureSchema(ctx context.Context) error {
	err := r.db.Conn().Exec(ctx, `
		CREATE TABLE IF NOT EXISTS engagement_observations (
			campaign_id String,
			target_id   String,
			user_id     String,
			action_type LowCardinality(String),
			observed_at DateTime64(3),
			score       Float64
		)
		ENGINE = MergeTree()
		PARTITION BY toYYYYMM(observed_at)
		ORDER BY (campaign_id, target_id, observed_at)
	`)
	if err != nil {
		return fmt.Errorf("failed to create observations table: %w", err)
	}

	err = r.db.Conn().Exec(ctx, `
		CREATE TABLE IF NOT EXISTS target_metric_snapshots (
			campaign_id   String,
			target_id     String,
			view_count    Int64,
			like_count    Int64,
			retweet_count Int64,
			reply_count   Int64,
			quote_count   Int64,
			fetched_at    DateTime64(3)
		)
		ENGINE = MergeTree()
		PARTITION BY toYYYYMM(fetched_at)
		ORDER BY (campaign_id, target_id, fetched_at)
	`)
	if err != nil {
		return fmt.Errorf("failed to create metric snapshots table: %w", err)
	}
	return nil
}

// InsertMetricsSnapshot appends one per-run metric snapshot, preserving
// history the Postgres latest-row upsert overwrites.
func (r *ObservationRepository) InsertMetricsSnapshot(ctx context.Context, m *models.TargetMetrics) error {
	err := r.db.Conn().Exec(ctx, `
		INSERT INTO target_metric_snapshots (
			campaign_id, target_id, view_count, like_count,
			retweet_count, reply_count, quote_count, fetched_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, m.CampaignID, m.TargetID, m.ViewCount, m.LikeCount,
		m.RetweetCount, m.ReplyCount, m.QuoteCount, m.FetchedAt)
	if err != nil {
		return fmt.Errorf("failed to insert metric snapshot: %w", err)
	}
	return nil
}

// BatchInsert appends a page of observations.
func (r *ObservationRepository) BatchInsert(ctx context.Context, observations []*models.EngagementObservation) error {
	if len(observations) == 0 {
		return nil
	}

	batch, err := r.db.Conn().PrepareBatch(ctx, `
		INSERT INTO engagement_observations (
			campaign_id, target_id, user_id, action_type, observed_at, score
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare observation batch: %w", err)
	}

	for _, obs := range observations {
		err = batch.Append(
			obs.CampaignID,
			obs.TargetID,
			obs.UserID,
			string(obs.ActionType),
			obs.ObservedAt,
			obs.Score,
		)
		if err != nil {
			return fmt.Errorf("failed to append observation for user %s: %w", obs.UserID, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send observation batch: %w", err)
	}
	return nil
}

// CountSince returns the number of observations for a campaign since the
// cutoff, broken down by action type.
func (r *ObservationRepository) CountSince(ctx context.Context, campaignID string, since time.Time) (map[string]uint64, error) {
	rows, err := r.db.Conn().Query(ctx, `
		SELECT action_type, count() AS cnt
		FROM engagement_observations
		WHERE campaign_id = ? AND observed_at >= ?
		GROUP BY action_type
	`, campaignID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count observations: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]uint64)
	for rows.Next() {
		var actionType string
		var cnt uint64
		if err := rows.Scan(&actionType, &cnt); err != nil {
			return nil, fmt.Errorf("failed to scan observation count: %w", err)
		}
		counts[actionType] = cnt
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating observation counts: %w", err)
	}
	return counts, nil
}

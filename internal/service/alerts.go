package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/engagement-monitor/internal/logging"
	"github.com/engagement-monitor/internal/models"
	"github.com/engagement-monitor/internal/storage"
	"github.com/engagement-monitor/internal/types"
	"github.com/redis/go-redis/v9"
)

// EngagementReader lists candidate engagements for detection.
type EngagementReader interface {
	ListAboveScore(ctx context.Context, campaignID string, minScore float64, since time.Time, limit int) ([]*models.EngagementRecord, error)
}

// AlertWriter persists scheduled alerts.
type AlertWriter interface {
	Upsert(ctx context.Context, alert *models.AlertRecord) (*models.AlertRecord, error)
	MarkSent(ctx context.Context, alertID string, sentAt time.Time) error
	MarkSkipped(ctx context.Context, alertID string) error
}

// AlertHistory is the delivered-alert dedup ledger.
type AlertHistory interface {
	Record(ctx context.Context, rec *models.AlertHistoryRecord) error
	SentSince(ctx context.Context, campaignID, userID string, actionType types.ActionType, cutoff time.Time) (bool, error)
}

// AlertDetectorConfig tunes a detection pass.
type AlertDetectorConfig struct {
	// Lookback bounds how far back updated engagements are considered.
	Lookback time.Duration
	// MaxCandidates caps one pass's candidate list.
	MaxCandidates int
}

// Validate applies defaults.
func (c *AlertDetectorConfig) Validate() {
	if c.Lookback <= 0 {
		c.Lookback = 24 * time.Hour
	}
	if c.MaxCandidates <= 0 {
		c.MaxCandidates = 500
	}
}

// AlertDetector finds engagements whose importance crosses a campaign's
// threshold and queues spaced-out alerts for them. Detection is
// idempotent: re-running a pass updates pending rows instead of
// duplicating, and recently alerted (user, action) pairs are skipped.
type AlertDetector struct {
	campaigns   CampaignReader
	engagements EngagementReader
	alerts      AlertWriter
	history     AlertHistory
	cache       *storage.RedisCache
	cfg         AlertDetectorConfig

	now  func() time.Time
	rand *rand.Rand
}

// NewAlertDetector creates an alert detector. cache may be nil; the
// history table is authoritative and Redis is only a fast path.
func NewAlertDetector(campaigns CampaignReader, engagements EngagementReader, alerts AlertWriter, history AlertHistory, cache *storage.RedisCache, cfg AlertDetectorConfig) *AlertDetector {
	cfg.Validate()
	return &AlertDetector{
		campaigns:   campaigns,
		engagements: engagements,
		alerts:      alerts,
		history:     history,
		cache:       cache,
		cfg:         cfg,
		now:         time.Now,
		rand:        rand.New(rand.NewSource(time.Now().UnixNano())), // #nosec G404 - jitter, not crypto
	}
}

func dedupKey(campaignID, userID string, action types.ActionType) string {
	return fmt.Sprintf("alerted:%s:%s:%s", campaignID, userID, action)
}

// DetectAndQueue runs one detection pass for a campaign and returns the
// number of alerts queued. One engagement's failure is logged and never
// blocks the rest of the pass.
func (d *AlertDetector) DetectAndQueue(ctx context.Context, campaignID string) (int, error) {
	log := logging.FromContext(ctx).WithField("campaign_id", campaignID)

	campaign, err := d.campaigns.Get(ctx, campaignID)
	if err != nil {
		return 0, fmt.Errorf("failed to load campaign: %w", err)
	}
	if !campaign.Active {
		log.Info("campaign inactive, skipping detection")
		return 0, nil
	}

	now := d.now()
	candidates, err := d.engagements.ListAboveScore(ctx, campaignID, campaign.AlertThreshold, now.Add(-d.cfg.Lookback), d.cfg.MaxCandidates)
	if err != nil {
		return 0, fmt.Errorf("failed to list candidate engagements: %w", err)
	}

	interval := time.Duration(campaign.ScheduleIntervalMins) * time.Minute
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	// All alerts of one pass share a batch label so operators can group
	// them; spacing spreads actual sends across the window.
	runBatch := now.UTC().Truncate(interval)
	spacing := time.Duration(campaign.EffectiveSpacingMinutes()) * time.Minute

	queued := 0
	for _, eng := range candidates {
		duplicate, err := d.recentlyAlerted(ctx, campaignID, eng.UserID, eng.ActionType, now, campaign.FrequencyWindowMinutes)
		if err != nil {
			log.WithError(err).WithField("engagement_id", eng.ID).Error("dedup check failed, skipping engagement")
			continue
		}
		if duplicate {
			continue
		}

		alert := &models.AlertRecord{
			CampaignID:        campaignID,
			EngagementID:      eng.ID,
			UserID:            eng.UserID,
			ActionType:        eng.ActionType,
			ImportanceScore:   eng.ImportanceScore,
			RunBatch:          runBatch,
			ScheduledSendTime: now.Add(d.jitter(spacing)),
		}
		if _, err := d.alerts.Upsert(ctx, alert); err != nil {
			log.WithError(err).WithField("engagement_id", eng.ID).Error("failed to queue alert")
			continue
		}
		queued++
	}

	log.WithFields(map[string]interface{}{
		"candidates": len(candidates),
		"queued":     queued,
	}).Info("alert detection pass complete")
	return queued, nil
}

// MarkDelivered transitions an alert to sent and records the delivery in
// the dedup ledger, seeding the Redis fast path.
func (d *AlertDetector) MarkDelivered(ctx context.Context, alert *models.AlertRecord, channel string) error {
	sentAt := d.now()
	if err := d.alerts.MarkSent(ctx, alert.ID, sentAt); err != nil {
		return fmt.Errorf("failed to mark alert sent: %w", err)
	}
	if err := d.history.Record(ctx, &models.AlertHistoryRecord{
		CampaignID: alert.CampaignID,
		UserID:     alert.UserID,
		ActionType: alert.ActionType,
		SentAt:     sentAt,
		Channel:    channel,
	}); err != nil {
		return fmt.Errorf("failed to record alert history: %w", err)
	}

	if d.cache != nil {
		campaign, err := d.campaigns.Get(ctx, alert.CampaignID)
		if err == nil {
			ttl := time.Duration(campaign.FrequencyWindowMinutes) * time.Minute
			if err := d.cache.Set(ctx, dedupKey(alert.CampaignID, alert.UserID, alert.ActionType), "1", ttl); err != nil {
				logging.FromContext(ctx).WithError(err).Warn("dedup cache write failed")
			}
		}
	}
	return nil
}

// recentlyAlerted checks the Redis fast path first, then the durable
// ledger, which remains authoritative.
func (d *AlertDetector) recentlyAlerted(ctx context.Context, campaignID, userID string, action types.ActionType, now time.Time, windowMinutes int) (bool, error) {
	if d.cache != nil {
		_, err := d.cache.Get(ctx, dedupKey(campaignID, userID, action))
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, redis.Nil) {
			logging.FromContext(ctx).WithError(err).Warn("dedup cache read failed, falling back to ledger")
		}
	}

	cutoff := now.Add(-time.Duration(windowMinutes) * time.Minute)
	return d.history.SentSince(ctx, campaignID, userID, action, cutoff)
}

func (d *AlertDetector) jitter(spacing time.Duration) time.Duration {
	if spacing <= 0 {
		return 0
	}
	return time.Duration(d.rand.Int63n(int64(spacing)))
}

package service

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/engagement-monitor/internal/models"
	"github.com/engagement-monitor/internal/storage"
	"github.com/engagement-monitor/internal/types"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngagements struct {
	records []*models.EngagementRecord
	// captures the threshold the detector asked for
	lastMinScore float64
}

func (f *fakeEngagements) ListAboveScore(_ context.Context, _ string, minScore float64, _ time.Time, _ int) ([]*models.EngagementRecord, error) {
	f.lastMinScore = minScore
	var out []*models.EngagementRecord
	for _, rec := range f.records {
		if rec.ImportanceScore >= minScore {
			out = append(out, rec)
		}
	}
	return out, nil
}

type fakeAlerts struct {
	upserts []*models.AlertRecord
	failFor string // engagement id whose upsert fails
	sent    map[string]time.Time
	skipped map[string]bool
}

func newFakeAlerts() *fakeAlerts {
	return &fakeAlerts{sent: make(map[string]time.Time), skipped: make(map[string]bool)}
}

func (f *fakeAlerts) Upsert(_ context.Context, alert *models.AlertRecord) (*models.AlertRecord, error) {
	if f.failFor != "" && alert.EngagementID == f.failFor {
		return nil, errors.New("upsert failed")
	}
	stored := *alert
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	stored.Status = types.AlertPending
	f.upserts = append(f.upserts, &stored)
	return &stored, nil
}

func (f *fakeAlerts) MarkSent(_ context.Context, alertID string, sentAt time.Time) error {
	f.sent[alertID] = sentAt
	return nil
}

func (f *fakeAlerts) MarkSkipped(_ context.Context, alertID string) error {
	f.skipped[alertID] = true
	return nil
}

type fakeHistory struct {
	entries        []*models.AlertHistoryRecord
	sentSinceCalls int
}

func (f *fakeHistory) Record(_ context.Context, rec *models.AlertHistoryRecord) error {
	f.entries = append(f.entries, rec)
	return nil
}

func (f *fakeHistory) SentSince(_ context.Context, campaignID, userID string, actionType types.ActionType, cutoff time.Time) (bool, error) {
	f.sentSinceCalls++
	for _, e := range f.entries {
		if e.CampaignID == campaignID && e.UserID == userID && e.ActionType == actionType && !e.SentAt.Before(cutoff) {
			return true, nil
		}
	}
	return false, nil
}

func testDedupCache(t *testing.T) *storage.RedisCache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return storage.NewRedisCacheFromClient(client)
}

func testCampaign() *models.Campaign {
	return &models.Campaign{
		ID:                     "c1",
		Name:                   "launch",
		AlertThreshold:         2.0,
		FrequencyWindowMinutes: 1440,
		ScheduleIntervalMins:   30,
		Active:                 true,
	}
}

func candidate(id, userID string, score float64) *models.EngagementRecord {
	return &models.EngagementRecord{
		ID:              id,
		CampaignID:      "c1",
		UserID:          userID,
		ActionType:      types.ActionRetweet,
		ImportanceScore: score,
	}
}

func newTestDetector(t *testing.T, campaigns CampaignReader, engagements EngagementReader, alerts AlertWriter, history AlertHistory, cache *storage.RedisCache) *AlertDetector {
	t.Helper()
	d := NewAlertDetector(campaigns, engagements, alerts, history, cache, AlertDetectorConfig{})
	d.now = func() time.Time { return time.Date(2026, 3, 14, 10, 17, 0, 0, time.UTC) }
	d.rand = rand.New(rand.NewSource(42)) // #nosec G404 - deterministic test jitter
	return d
}

func TestAlertDetector_QueuesAboveThreshold(t *testing.T) {
	campaigns := &fakeCampaigns{campaign: testCampaign()}
	engagements := &fakeEngagements{records: []*models.EngagementRecord{
		candidate("e1", "u1", 3.0),
		candidate("e2", "u2", 5.0),
	}}
	alerts := newFakeAlerts()
	detector := newTestDetector(t, campaigns, engagements, alerts, &fakeHistory{}, nil)

	queued, err := detector.DetectAndQueue(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, queued)
	assert.InDelta(t, 2.0, engagements.lastMinScore, 1e-9, "threshold comes from the campaign")

	now := detector.now()
	spacing := time.Duration(testCampaign().EffectiveSpacingMinutes()) * time.Minute
	for _, alert := range alerts.upserts {
		// 10:17 truncated to the 30-minute schedule interval.
		assert.Equal(t, time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC), alert.RunBatch)
		assert.False(t, alert.ScheduledSendTime.Before(now))
		assert.True(t, alert.ScheduledSendTime.Before(now.Add(spacing)), "send time must fall inside the spacing window")
	}
}

func TestAlertDetector_HistoryDedup(t *testing.T) {
	campaigns := &fakeCampaigns{campaign: testCampaign()}
	engagements := &fakeEngagements{records: []*models.EngagementRecord{
		candidate("e1", "u1", 3.0),
		candidate("e2", "u2", 3.0),
	}}
	alerts := newFakeAlerts()
	history := &fakeHistory{}
	detector := newTestDetector(t, campaigns, engagements, alerts, history, nil)

	// u1 was alerted ten minutes ago, well inside the frequency window.
	history.entries = append(history.entries, &models.AlertHistoryRecord{
		CampaignID: "c1",
		UserID:     "u1",
		ActionType: types.ActionRetweet,
		SentAt:     detector.now().Add(-10 * time.Minute),
	})

	queued, err := detector.DetectAndQueue(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, queued)
	require.Len(t, alerts.upserts, 1)
	assert.Equal(t, "u2", alerts.upserts[0].UserID)
}

func TestAlertDetector_HistoryOutsideWindowNotDeduped(t *testing.T) {
	campaigns := &fakeCampaigns{campaign: testCampaign()}
	engagements := &fakeEngagements{records: []*models.EngagementRecord{
		candidate("e1", "u1", 3.0),
	}}
	alerts := newFakeAlerts()
	history := &fakeHistory{}
	detector := newTestDetector(t, campaigns, engagements, alerts, history, nil)

	// Alerted two days ago: the 24h frequency window has lapsed.
	history.entries = append(history.entries, &models.AlertHistoryRecord{
		CampaignID: "c1",
		UserID:     "u1",
		ActionType: types.ActionRetweet,
		SentAt:     detector.now().Add(-48 * time.Hour),
	})

	queued, err := detector.DetectAndQueue(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, queued)
}

func TestAlertDetector_RedisFastPathSkipsLedger(t *testing.T) {
	campaigns := &fakeCampaigns{campaign: testCampaign()}
	engagements := &fakeEngagements{records: []*models.EngagementRecord{
		candidate("e1", "u1", 3.0),
	}}
	alerts := newFakeAlerts()
	history := &fakeHistory{}
	cache := testDedupCache(t)
	detector := newTestDetector(t, campaigns, engagements, alerts, history, cache)

	require.NoError(t, cache.Set(context.Background(), dedupKey("c1", "u1", types.ActionRetweet), "1", time.Hour))

	queued, err := detector.DetectAndQueue(context.Background(), "c1")
	require.NoError(t, err)
	assert.Zero(t, queued)
	assert.Zero(t, history.sentSinceCalls, "fast path must short-circuit the ledger")
}

func TestAlertDetector_UpsertFailureIsolated(t *testing.T) {
	campaigns := &fakeCampaigns{campaign: testCampaign()}
	engagements := &fakeEngagements{records: []*models.EngagementRecord{
		candidate("e1", "u1", 3.0),
		candidate("e2", "u2", 3.0),
	}}
	alerts := newFakeAlerts()
	alerts.failFor = "e1"
	detector := newTestDetector(t, campaigns, engagements, alerts, &fakeHistory{}, nil)

	queued, err := detector.DetectAndQueue(context.Background(), "c1")
	require.NoError(t, err, "one engagement's failure must not fail the pass")
	assert.Equal(t, 1, queued)
}

func TestAlertDetector_InactiveCampaign(t *testing.T) {
	campaign := testCampaign()
	campaign.Active = false
	detector := newTestDetector(t, &fakeCampaigns{campaign: campaign}, &fakeEngagements{}, newFakeAlerts(), &fakeHistory{}, nil)

	queued, err := detector.DetectAndQueue(context.Background(), "c1")
	require.NoError(t, err)
	assert.Zero(t, queued)
}

func TestAlertDetector_MarkDeliveredFeedsDedup(t *testing.T) {
	campaigns := &fakeCampaigns{campaign: testCampaign()}
	engagements := &fakeEngagements{records: []*models.EngagementRecord{
		candidate("e1", "u1", 3.0),
	}}
	alerts := newFakeAlerts()
	history := &fakeHistory{}
	cache := testDedupCache(t)
	detector := newTestDetector(t, campaigns, engagements, alerts, history, cache)
	ctx := context.Background()

	queued, err := detector.DetectAndQueue(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, 1, queued)

	require.NoError(t, detector.MarkDelivered(ctx, alerts.upserts[0], "slack"))
	assert.Len(t, history.entries, 1)
	assert.Equal(t, "slack", history.entries[0].Channel)

	// The delivery must suppress re-detection of the same pair.
	queued, err = detector.DetectAndQueue(ctx, "c1")
	require.NoError(t, err)
	assert.Zero(t, queued)
}

package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/engagement-monitor/internal/adapter"
	"github.com/engagement-monitor/internal/models"
)

// MetricsStore persists the latest metric snapshot per target.
type MetricsStore interface {
	Upsert(ctx context.Context, m *models.TargetMetrics) error
}

// MetricsSnapshotSink receives the append-only per-run snapshot copy.
// Best-effort, like the observation sink.
type MetricsSnapshotSink interface {
	InsertMetricsSnapshot(ctx context.Context, m *models.TargetMetrics) error
}

// MetricsHandler fetches a target post's engagement-volume counters and
// stores the latest snapshot.
type MetricsHandler struct {
	client    adapter.EngagementClient
	targets   TargetResolver
	states    StateStore
	metrics   MetricsStore
	snapshots MetricsSnapshotSink
	now       func() time.Time
}

// NewMetricsHandler creates a new metrics handler. snapshots may be nil.
func NewMetricsHandler(client adapter.EngagementClient, targets TargetResolver, states StateStore, metrics MetricsStore, snapshots MetricsSnapshotSink) (*MetricsHandler, error) {
	if client == nil {
		return nil, fmt.Errorf("engagement client cannot be nil")
	}
	if targets == nil {
		return nil, fmt.Errorf("target resolver cannot be nil")
	}
	if states == nil {
		return nil, fmt.Errorf("state store cannot be nil")
	}
	if metrics == nil {
		return nil, fmt.Errorf("metrics store cannot be nil")
	}
	return &MetricsHandler{
		client:    client,
		targets:   targets,
		states:    states,
		metrics:   metrics,
		snapshots: snapshots,
		now:       time.Now,
	}, nil
}

// Handle fetches and stores one metric snapshot.
func (h *MetricsHandler) Handle(ctx context.Context, job *models.Job) error {
	target, err := h.targets.GetTarget(ctx, job.TargetID)
	if err != nil {
		return fmt.Errorf("failed to resolve target: %w", err)
	}

	fetched, err := h.client.FetchMetrics(ctx, target.PostID)
	if err != nil {
		if stateErr := h.states.RecordError(ctx, job.CampaignID, job.TargetID, job.JobType, err.Error()); stateErr != nil {
			log.Printf("[Metrics] Failed to record error for target %s: %v", job.TargetID, stateErr)
		}
		return fmt.Errorf("failed to fetch metrics: %w", err)
	}

	snapshot := &models.TargetMetrics{
		TargetID:     job.TargetID,
		CampaignID:   job.CampaignID,
		ViewCount:    fetched.Views,
		LikeCount:    fetched.Likes,
		RetweetCount: fetched.Retweets,
		ReplyCount:   fetched.Replies,
		QuoteCount:   fetched.Quotes,
		FetchedAt:    h.now().UTC(),
	}
	if err := h.metrics.Upsert(ctx, snapshot); err != nil {
		return fmt.Errorf("failed to store metrics: %w", err)
	}

	if h.snapshots != nil {
		if err := h.snapshots.InsertMetricsSnapshot(ctx, snapshot); err != nil {
			log.Printf("[Metrics] Snapshot sink write failed for target %s: %v", job.TargetID, err)
		}
	}

	if err := h.states.RecordSuccess(ctx, job.CampaignID, job.TargetID, job.JobType); err != nil {
		return fmt.Errorf("failed to record metrics success: %w", err)
	}
	return nil
}

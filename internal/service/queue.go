// Package service implements the pipeline's orchestration logic:
// enqueueing campaign jobs, score enrichment, and alert detection.
package service

import (
	"context"
	"fmt"

	"github.com/engagement-monitor/internal/logging"
	"github.com/engagement-monitor/internal/models"
	"github.com/engagement-monitor/internal/types"
)

// CampaignReader provides the campaign/target read model.
type CampaignReader interface {
	Get(ctx context.Context, campaignID string) (*models.Campaign, error)
	ListTargets(ctx context.Context, campaignID string) ([]*models.Target, error)
}

// JobQueue is the queue surface the service layer needs.
type JobQueue interface {
	Enqueue(ctx context.Context, campaignID, targetID string, jobType types.JobType, priority *int) (*models.Job, error)
	Stats(ctx context.Context) (*models.JobQueueStats, error)
}

// QueueService fans campaign targets out into crawl jobs.
type QueueService struct {
	campaigns CampaignReader
	jobs      JobQueue
}

// NewQueueService creates a new queue service
func NewQueueService(campaigns CampaignReader, jobs JobQueue) *QueueService {
	return &QueueService{campaigns: campaigns, jobs: jobs}
}

// EnqueueCampaignJobs enqueues one job per (target, job type) for a
// campaign. Re-running is safe: existing rows are reset to pending
// rather than duplicated. Returns the number of jobs enqueued.
func (s *QueueService) EnqueueCampaignJobs(ctx context.Context, campaignID string) (int, error) {
	campaign, err := s.campaigns.Get(ctx, campaignID)
	if err != nil {
		return 0, fmt.Errorf("failed to load campaign: %w", err)
	}
	if !campaign.Active {
		logging.FromContext(ctx).WithField("campaign_id", campaignID).Info("campaign inactive, skipping enqueue")
		return 0, nil
	}

	targets, err := s.campaigns.ListTargets(ctx, campaignID)
	if err != nil {
		return 0, fmt.Errorf("failed to list campaign targets: %w", err)
	}

	enqueued := 0
	for _, target := range targets {
		for _, jobType := range types.AllJobTypes {
			if _, err := s.jobs.Enqueue(ctx, campaignID, target.ID, jobType, nil); err != nil {
				return enqueued, fmt.Errorf("failed to enqueue %s job for target %s: %w", jobType, target.ID, err)
			}
			enqueued++
		}
	}

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"campaign_id": campaignID,
		"targets":     len(targets),
		"jobs":        enqueued,
	}).Info("campaign jobs enqueued")
	return enqueued, nil
}

// Stats returns queue counts by status.
func (s *QueueService) Stats(ctx context.Context) (*models.JobQueueStats, error) {
	return s.jobs.Stats(ctx)
}

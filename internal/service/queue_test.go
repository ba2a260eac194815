package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/engagement-monitor/internal/models"
	"github.com/engagement-monitor/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCampaigns struct {
	campaign *models.Campaign
	targets  []*models.Target
	err      error
}

func (f *fakeCampaigns) Get(_ context.Context, campaignID string) (*models.Campaign, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.campaign == nil || f.campaign.ID != campaignID {
		return nil, errors.New("campaign not found")
	}
	return f.campaign, nil
}

func (f *fakeCampaigns) ListTargets(_ context.Context, _ string) ([]*models.Target, error) {
	return f.targets, nil
}

type enqueueCall struct {
	targetID string
	jobType  types.JobType
}

type fakeQueue struct {
	calls   []enqueueCall
	failOn  types.JobType
	stats   *models.JobQueueStats
	nextSeq int
}

func (f *fakeQueue) Enqueue(_ context.Context, campaignID, targetID string, jobType types.JobType, _ *int) (*models.Job, error) {
	if f.failOn != "" && jobType == f.failOn {
		return nil, errors.New("enqueue failed")
	}
	f.calls = append(f.calls, enqueueCall{targetID: targetID, jobType: jobType})
	f.nextSeq++
	return &models.Job{
		ID:         fmt.Sprintf("job-%d", f.nextSeq),
		CampaignID: campaignID,
		TargetID:   targetID,
		JobType:    jobType,
		Status:     types.JobPending,
	}, nil
}

func (f *fakeQueue) Stats(_ context.Context) (*models.JobQueueStats, error) {
	return f.stats, nil
}

func TestQueueService_EnqueueCampaignJobs(t *testing.T) {
	campaigns := &fakeCampaigns{
		campaign: &models.Campaign{ID: "c1", Active: true},
		targets: []*models.Target{
			{ID: "t1", CampaignID: "c1", PostID: "100"},
			{ID: "t2", CampaignID: "c1", PostID: "200"},
		},
	}
	queue := &fakeQueue{}
	svc := NewQueueService(campaigns, queue)

	enqueued, err := svc.EnqueueCampaignJobs(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 2*len(types.AllJobTypes), enqueued)
	assert.Len(t, queue.calls, enqueued)

	// Every target gets every job type exactly once.
	seen := make(map[string]int)
	for _, call := range queue.calls {
		seen[call.targetID]++
	}
	assert.Equal(t, len(types.AllJobTypes), seen["t1"])
	assert.Equal(t, len(types.AllJobTypes), seen["t2"])
}

func TestQueueService_InactiveCampaignSkipped(t *testing.T) {
	campaigns := &fakeCampaigns{
		campaign: &models.Campaign{ID: "c1", Active: false},
		targets:  []*models.Target{{ID: "t1"}},
	}
	queue := &fakeQueue{}
	svc := NewQueueService(campaigns, queue)

	enqueued, err := svc.EnqueueCampaignJobs(context.Background(), "c1")
	require.NoError(t, err)
	assert.Zero(t, enqueued)
	assert.Empty(t, queue.calls)
}

func TestQueueService_EnqueueFailureStopsFanout(t *testing.T) {
	campaigns := &fakeCampaigns{
		campaign: &models.Campaign{ID: "c1", Active: true},
		targets:  []*models.Target{{ID: "t1"}},
	}
	queue := &fakeQueue{failOn: types.JobQuotes}
	svc := NewQueueService(campaigns, queue)

	_, err := svc.EnqueueCampaignJobs(context.Background(), "c1")
	assert.Error(t, err)
}

func TestQueueService_UnknownCampaign(t *testing.T) {
	svc := NewQueueService(&fakeCampaigns{}, &fakeQueue{})

	_, err := svc.EnqueueCampaignJobs(context.Background(), "missing")
	assert.Error(t, err)
}

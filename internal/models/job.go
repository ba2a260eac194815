package models

import (
	"time"

	"github.com/engagement-monitor/internal/types"
)

// Job represents one unit of crawl work for a campaign target.
// At most one row exists per (campaign_id, target_id, job_type);
// enqueueing upserts the row back to pending.
type Job struct {
	ID         string          `json:"id" db:"id"`
	CampaignID string          `json:"campaignId" db:"campaign_id"`
	TargetID   string          `json:"targetId" db:"target_id"`
	JobType    types.JobType   `json:"jobType" db:"job_type"`
	Status     types.JobStatus `json:"status" db:"status"`
	Priority   int             `json:"priority" db:"priority"`
	ClaimedBy  *string         `json:"claimedBy,omitempty" db:"claimed_by"`
	ClaimedAt  *time.Time      `json:"claimedAt,omitempty" db:"claimed_at"`
	RetryCount int             `json:"retryCount" db:"retry_count"`
	MaxRetries int             `json:"maxRetries" db:"max_retries"`
	RetryAfter *time.Time      `json:"retryAfter,omitempty" db:"retry_after"`
	LastError  *string         `json:"lastError,omitempty" db:"last_error"`
	CreatedAt  time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt  time.Time       `json:"updatedAt" db:"updated_at"`
}

// JobQueueStats holds counts by status for dashboards and CLIs.
type JobQueueStats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
	Retrying   int64 `json:"retrying"`
}

// Total returns the number of jobs across all statuses.
func (s JobQueueStats) Total() int64 {
	return s.Pending + s.Processing + s.Completed + s.Failed + s.Retrying
}

package models

import (
	"time"

	"github.com/engagement-monitor/internal/types"
)

// WorkerState records crawl progress for one (campaign, target, job type)
// tuple. A nil cursor with BackfillComplete=false means the backfill has
// never started; a non-nil cursor with BackfillComplete=false means an
// interrupted backfill that must resume from that cursor.
type WorkerState struct {
	CampaignID       string        `json:"campaignId" db:"campaign_id"`
	TargetID         string        `json:"targetId" db:"target_id"`
	JobType          types.JobType `json:"jobType" db:"job_type"`
	Cursor           *string       `json:"cursor,omitempty" db:"cursor"`
	BackfillComplete bool          `json:"backfillComplete" db:"backfill_complete"`
	LastSuccess      *time.Time    `json:"lastSuccess,omitempty" db:"last_success"`
	LastError        *string       `json:"lastError,omitempty" db:"last_error"`
	RetryCount       int           `json:"retryCount" db:"retry_count"`
	BlockedUntil     *time.Time    `json:"blockedUntil,omitempty" db:"blocked_until"`
	UpdatedAt        time.Time     `json:"updatedAt" db:"updated_at"`
}

// Started reports whether any crawl progress exists for this tuple.
func (s *WorkerState) Started() bool {
	return s.Cursor != nil || s.BackfillComplete
}

package models

import (
	"time"

	"github.com/engagement-monitor/internal/types"
)

// AlertRecord is one scheduled notification for an important engagement.
// Unique per (campaign_id, engagement_id); re-detection updates scheduling
// fields without creating a duplicate.
type AlertRecord struct {
	ID                string            `json:"id" db:"id"`
	CampaignID        string            `json:"campaignId" db:"campaign_id"`
	EngagementID      string            `json:"engagementId" db:"engagement_id"`
	UserID            string            `json:"userId" db:"user_id"`
	ActionType        types.ActionType  `json:"actionType" db:"action_type"`
	ImportanceScore   float64           `json:"importanceScore" db:"importance_score"`
	RunBatch          time.Time         `json:"runBatch" db:"run_batch"`
	ScheduledSendTime time.Time         `json:"scheduledSendTime" db:"scheduled_send_time"`
	Status            types.AlertStatus `json:"status" db:"status"`
	SentAt            *time.Time        `json:"sentAt,omitempty" db:"sent_at"`
	CreatedAt         time.Time         `json:"createdAt" db:"created_at"`
	UpdatedAt         time.Time         `json:"updatedAt" db:"updated_at"`
}

// AlertHistoryRecord is the dedup ledger entry answering "was this
// user/action alerted recently." Unique per
// (campaign_id, user_id, action_type, timestamp_hour).
type AlertHistoryRecord struct {
	CampaignID    string           `json:"campaignId" db:"campaign_id"`
	UserID        string           `json:"userId" db:"user_id"`
	ActionType    types.ActionType `json:"actionType" db:"action_type"`
	TimestampHour time.Time        `json:"timestampHour" db:"timestamp_hour"`
	SentAt        time.Time        `json:"sentAt" db:"sent_at"`
	Channel       string           `json:"channel" db:"channel"`
}

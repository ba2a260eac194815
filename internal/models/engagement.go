package models

import (
	"time"

	"github.com/engagement-monitor/internal/types"
)

// AccountProfile is the engaging account's public profile captured at
// observation time.
type AccountProfile struct {
	Username       string `json:"username"`
	DisplayName    string `json:"displayName,omitempty"`
	Description    string `json:"description,omitempty"`
	FollowersCount int    `json:"followersCount"`
	FollowingCount int    `json:"followingCount"`
	Verified       bool   `json:"verified"`
	ProfileImage   string `json:"profileImage,omitempty"`
}

// EngagementRecord is one engaging account's action on one target post.
// Unique per (campaign_id, target_id, user_id, action_type); re-observation
// updates profile and score fields but preserves the original created_at.
type EngagementRecord struct {
	ID                string           `json:"id" db:"id"`
	CampaignID        string           `json:"campaignId" db:"campaign_id"`
	TargetID          string           `json:"targetId" db:"target_id"`
	TargetCategory    string           `json:"targetCategory,omitempty" db:"target_category"`
	UserID            string           `json:"userId" db:"user_id"`
	ActionType        types.ActionType `json:"actionType" db:"action_type"`
	Timestamp         time.Time        `json:"timestamp" db:"occurred_at"`
	EngagementTweetID *string          `json:"engagementTweetId,omitempty" db:"engagement_tweet_id"`
	Profile           AccountProfile   `json:"profile" db:"account_profile"`
	ImportanceScore   float64          `json:"importanceScore" db:"importance_score"`
	AccountCategories []string         `json:"accountCategories,omitempty" db:"account_categories"`
	QuoteViewCount    *int64           `json:"quoteViewCount,omitempty" db:"quote_view_count"`
	CreatedAt         time.Time        `json:"createdAt" db:"created_at"`
	UpdatedAt         time.Time        `json:"updatedAt" db:"updated_at"`
}

// EngagementObservation is the append-only analytics row written to
// ClickHouse for every raw engagement seen during a crawl, including
// re-observations that the Postgres upsert collapses.
type EngagementObservation struct {
	CampaignID string           `json:"campaignId"`
	TargetID   string           `json:"targetId"`
	UserID     string           `json:"userId"`
	ActionType types.ActionType `json:"actionType"`
	ObservedAt time.Time        `json:"observedAt"`
	Score      float64          `json:"score"`
}

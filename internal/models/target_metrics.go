package models

import "time"

// TargetMetrics is the latest engagement-volume snapshot for one target
// post, refreshed by metrics jobs. One row per target.
type TargetMetrics struct {
	TargetID     string    `json:"targetId" db:"target_id"`
	CampaignID   string    `json:"campaignId" db:"campaign_id"`
	ViewCount    int64     `json:"viewCount" db:"view_count"`
	LikeCount    int64     `json:"likeCount" db:"like_count"`
	RetweetCount int64     `json:"retweetCount" db:"retweet_count"`
	ReplyCount   int64     `json:"replyCount" db:"reply_count"`
	QuoteCount   int64     `json:"quoteCount" db:"quote_count"`
	FetchedAt    time.Time `json:"fetchedAt" db:"fetched_at"`
}

package models

import "time"

// Campaign is a client monitoring effort spanning a set of target posts.
// Campaign CRUD lives outside the core; the pipeline only reads these rows
// for enqueueing, thresholds, and alert scheduling.
type Campaign struct {
	ID                     string    `json:"id" db:"id"`
	Name                   string    `json:"name" db:"name"`
	AlertThreshold         float64   `json:"alertThreshold" db:"alert_threshold"`
	FrequencyWindowMinutes int       `json:"frequencyWindowMinutes" db:"frequency_window_minutes"`
	ScheduleIntervalMins   int       `json:"scheduleIntervalMinutes" db:"schedule_interval_minutes"`
	SpacingMinutes         int       `json:"spacingMinutes" db:"spacing_minutes"`
	Active                 bool      `json:"active" db:"active"`
	CreatedAt              time.Time `json:"createdAt" db:"created_at"`
}

// EffectiveSpacingMinutes returns the alert spacing window, defaulting to
// 80% of the schedule interval when no explicit spacing is configured.
func (c *Campaign) EffectiveSpacingMinutes() int {
	if c.SpacingMinutes > 0 {
		return c.SpacingMinutes
	}
	spacing := c.ScheduleIntervalMins * 4 / 5
	if spacing < 1 {
		spacing = 1
	}
	return spacing
}

// Target is one monitored post whose engagements are crawled.
type Target struct {
	ID         string    `json:"id" db:"id"`
	CampaignID string    `json:"campaignId" db:"campaign_id"`
	PostID     string    `json:"postId" db:"post_id"`
	Category   string    `json:"category,omitempty" db:"category"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
}

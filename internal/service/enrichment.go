package service

import (
	"context"
	"fmt"

	"github.com/engagement-monitor/internal/logging"
)

// ScoreRefresher re-applies index scores to stored engagements.
type ScoreRefresher interface {
	RefreshScores(ctx context.Context, campaignID string) (int64, error)
}

// Enricher keeps stored engagement scores in step with the importance
// index. The crawl path scores records as they arrive; this catches rows
// whose accounts were indexed after the fact.
type Enricher struct {
	engagements ScoreRefresher
}

// NewEnricher creates a new enricher
func NewEnricher(engagements ScoreRefresher) *Enricher {
	return &Enricher{engagements: engagements}
}

// RefreshCampaignScores recomputes importance scores for a campaign's
// engagement rows from the current index.
func (e *Enricher) RefreshCampaignScores(ctx context.Context, campaignID string) (int64, error) {
	changed, err := e.engagements.RefreshScores(ctx, campaignID)
	if err != nil {
		return 0, fmt.Errorf("failed to refresh campaign scores: %w", err)
	}
	if changed > 0 {
		logging.FromContext(ctx).WithFields(map[string]interface{}{
			"campaign_id": campaignID,
			"rows":        changed,
		}).Info("engagement scores refreshed")
	}
	return changed, nil
}

package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/engagement-monitor/internal/adapter"
	"github.com/engagement-monitor/internal/models"
	"github.com/engagement-monitor/internal/types"
)

// DefaultMaxPagesPerRun caps how many pages one job execution walks
// before yielding the executor back to the queue.
const DefaultMaxPagesPerRun = 50

// StateStore persists crawl progress per (campaign, target, job type).
type StateStore interface {
	Get(ctx context.Context, campaignID, targetID string, jobType types.JobType) (*models.WorkerState, error)
	SaveCursor(ctx context.Context, campaignID, targetID string, jobType types.JobType, cursor string) error
	MarkBackfillComplete(ctx context.Context, campaignID, targetID string, jobType types.JobType) error
	RecordSuccess(ctx context.Context, campaignID, targetID string, jobType types.JobType) error
	RecordError(ctx context.Context, campaignID, targetID string, jobType types.JobType, message string) error
}

// EngagementSink persists enriched engagement records.
type EngagementSink interface {
	Upsert(ctx context.Context, rec *models.EngagementRecord) (*models.EngagementRecord, error)
}

// ObservationSink receives the append-only analytics copy of every
// sighting. Best-effort: its failures never fail the job.
type ObservationSink interface {
	BatchInsert(ctx context.Context, observations []*models.EngagementObservation) error
}

// Scorer answers importance lookups for engaging accounts.
type Scorer interface {
	Score(ctx context.Context, accountID string) (float64, error)
}

// TargetResolver resolves a job's target row.
type TargetResolver interface {
	GetTarget(ctx context.Context, targetID string) (*models.Target, error)
}

// EngagementHandler crawls one engagement kind (retweets, replies or
// quotes) for a target post. Runs are resumable: the cursor is persisted
// after every page, so an interrupted backfill picks up where it stopped
// instead of refetching from the start.
type EngagementHandler struct {
	client         adapter.EngagementClient
	targets        TargetResolver
	states         StateStore
	engagements    EngagementSink
	observations   ObservationSink
	scorer         Scorer
	maxPagesPerRun int
	now            func() time.Time
}

// EngagementHandlerConfig holds the handler's collaborators.
type EngagementHandlerConfig struct {
	Client         adapter.EngagementClient
	Targets        TargetResolver
	States         StateStore
	Engagements    EngagementSink
	Observations   ObservationSink // optional
	Scorer         Scorer
	MaxPagesPerRun int
}

// NewEngagementHandler creates a new engagement crawl handler
func NewEngagementHandler(cfg *EngagementHandlerConfig) (*EngagementHandler, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("engagement client cannot be nil")
	}
	if cfg.Targets == nil {
		return nil, fmt.Errorf("target resolver cannot be nil")
	}
	if cfg.States == nil {
		return nil, fmt.Errorf("state store cannot be nil")
	}
	if cfg.Engagements == nil {
		return nil, fmt.Errorf("engagement sink cannot be nil")
	}
	if cfg.Scorer == nil {
		return nil, fmt.Errorf("scorer cannot be nil")
	}
	maxPages := cfg.MaxPagesPerRun
	if maxPages <= 0 {
		maxPages = DefaultMaxPagesPerRun
	}
	return &EngagementHandler{
		client:         cfg.Client,
		targets:        cfg.Targets,
		states:         cfg.States,
		engagements:    cfg.Engagements,
		observations:   cfg.Observations,
		scorer:         cfg.Scorer,
		maxPagesPerRun: maxPages,
		now:            time.Now,
	}, nil
}

// Handle runs one crawl pass for the job's (target, job type) tuple.
func (h *EngagementHandler) Handle(ctx context.Context, job *models.Job) error {
	target, err := h.targets.GetTarget(ctx, job.TargetID)
	if err != nil {
		return fmt.Errorf("failed to resolve target: %w", err)
	}

	state, err := h.states.Get(ctx, job.CampaignID, job.TargetID, job.JobType)
	if err != nil {
		return fmt.Errorf("failed to load crawl state: %w", err)
	}

	cursor := ""
	if !state.BackfillComplete && state.Cursor != nil {
		cursor = *state.Cursor
		log.Printf("[Crawl] Resuming %s backfill for target %s from saved cursor", job.JobType, job.TargetID)
	}

	pages := 0
	records := 0
	exhausted := false

	for pages < h.maxPagesPerRun {
		page, err := h.client.FetchEngagements(ctx, job.JobType, target.PostID, cursor)
		if err != nil {
			if stateErr := h.states.RecordError(ctx, job.CampaignID, job.TargetID, job.JobType, err.Error()); stateErr != nil {
				log.Printf("[Crawl] Failed to record crawl error for target %s: %v", job.TargetID, stateErr)
			}
			return fmt.Errorf("failed to fetch %s page: %w", job.JobType, err)
		}
		pages++

		if err := h.storePage(ctx, job, target, page.Records); err != nil {
			if stateErr := h.states.RecordError(ctx, job.CampaignID, job.TargetID, job.JobType, err.Error()); stateErr != nil {
				log.Printf("[Crawl] Failed to record crawl error for target %s: %v", job.TargetID, stateErr)
			}
			return err
		}
		records += len(page.Records)

		// Exhaustion: no continuation token, has_more=false, or an empty
		// page (an empty page with a token would loop forever).
		if len(page.Records) == 0 || page.NextCursor == "" || !page.HasMore {
			exhausted = true
			break
		}

		cursor = page.NextCursor
		if err := h.states.SaveCursor(ctx, job.CampaignID, job.TargetID, job.JobType, cursor); err != nil {
			return fmt.Errorf("failed to persist cursor: %w", err)
		}
	}

	if exhausted {
		if err := h.states.MarkBackfillComplete(ctx, job.CampaignID, job.TargetID, job.JobType); err != nil {
			return fmt.Errorf("failed to mark backfill complete: %w", err)
		}
	} else {
		log.Printf("[Crawl] Target %s %s hit page ceiling (%d pages), will resume next run", job.TargetID, job.JobType, pages)
	}

	if err := h.states.RecordSuccess(ctx, job.CampaignID, job.TargetID, job.JobType); err != nil {
		return fmt.Errorf("failed to record crawl success: %w", err)
	}

	log.Printf("[Crawl] Target %s %s: %d records over %d pages (exhausted=%v)", job.TargetID, job.JobType, records, pages, exhausted)
	return nil
}

// storePage scores and upserts one page of raw engagements, then ships
// the analytics copy.
func (h *EngagementHandler) storePage(ctx context.Context, job *models.Job, target *models.Target, raws []adapter.RawEngagement) error {
	action := types.ActionForJob(job.JobType)
	observedAt := h.now().UTC()

	observations := make([]*models.EngagementObservation, 0, len(raws))
	for i := range raws {
		raw := &raws[i]
		score, err := h.scorer.Score(ctx, raw.UserID)
		if err != nil {
			return fmt.Errorf("failed to score account %s: %w", raw.UserID, err)
		}

		rec := &models.EngagementRecord{
			CampaignID:     job.CampaignID,
			TargetID:       job.TargetID,
			TargetCategory: target.Category,
			UserID:         raw.UserID,
			ActionType:     action,
			Timestamp:      raw.OccurredAt,
			Profile: models.AccountProfile{
				Username:       raw.Username,
				DisplayName:    raw.DisplayName,
				Description:    raw.Description,
				FollowersCount: raw.FollowersCount,
				FollowingCount: raw.FollowingCount,
				Verified:       raw.Verified,
				ProfileImage:   raw.ProfileImage,
			},
			ImportanceScore: score,
		}
		if raw.TweetID != "" {
			tweetID := raw.TweetID
			rec.EngagementTweetID = &tweetID
		}
		if job.JobType == types.JobQuotes && raw.ViewCount != nil {
			views := *raw.ViewCount
			rec.QuoteViewCount = &views
		}

		if _, err := h.engagements.Upsert(ctx, rec); err != nil {
			return fmt.Errorf("failed to store engagement by %s: %w", raw.UserID, err)
		}

		observations = append(observations, &models.EngagementObservation{
			CampaignID: job.CampaignID,
			TargetID:   job.TargetID,
			UserID:     raw.UserID,
			ActionType: action,
			ObservedAt: observedAt,
			Score:      score,
		})
	}

	if h.observations != nil && len(observations) > 0 {
		if err := h.observations.BatchInsert(ctx, observations); err != nil {
			// Analytics sink is best-effort.
			log.Printf("[Crawl] Observation sink write failed for target %s: %v", job.TargetID, err)
		}
	}
	return nil
}

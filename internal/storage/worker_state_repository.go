package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/engagement-monitor/internal/models"
	"github.com/engagement-monitor/internal/types"
	"github.com/jackc/pgx/v5"
)

const workerStateColumns = `campaign_id, target_id, job_type, cursor,
	backfill_complete, last_success, last_error, retry_count,
	blocked_until, updated_at`

// WorkerStateRepository persists crawl progress per
// (campaign, target, job type) tuple. All writes are single-statement
// upserts so concurrent executors never read-modify-write.
type WorkerStateRepository struct {
	db *PostgresDB
}

// NewWorkerStateRepository creates a new worker state repository
func NewWorkerStateRepository(db *PostgresDB) *WorkerStateRepository {
	return &WorkerStateRepository{db: db}
}

// Get retrieves the state for a key tuple. A missing row is returned as a
// zero state ("never started"), not an error.
func (r *WorkerStateRepository) Get(ctx context.Context, campaignID, targetID string, jobType types.JobType) (*models.WorkerState, error) {
	row := r.db.Pool().QueryRow(ctx, `
		SELECT `+workerStateColumns+`
		FROM worker_states
		WHERE campaign_id = $1 AND target_id = $2 AND job_type = $3
	`, campaignID, targetID, jobType)

	var state models.WorkerState
	err := row.Scan(
		&state.CampaignID,
		&state.TargetID,
		&state.JobType,
		&state.Cursor,
		&state.BackfillComplete,
		&state.LastSuccess,
		&state.LastError,
		&state.RetryCount,
		&state.BlockedUntil,
		&state.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &models.WorkerState{
				CampaignID: campaignID,
				TargetID:   targetID,
				JobType:    jobType,
			}, nil
		}
		return nil, fmt.Errorf("failed to get worker state: %w", err)
	}
	return &state, nil
}

// SaveCursor persists the pagination cursor after a page completes. The
// write is incremental and best-effort from the crawl loop's perspective:
// a crash mid-page loses at most that page, never the whole backfill.
func (r *WorkerStateRepository) SaveCursor(ctx context.Context, campaignID, targetID string, jobType types.JobType, cursor string) error {
	_, err := r.db.Pool().Exec(ctx, `
		INSERT INTO worker_states (campaign_id, target_id, job_type, cursor, backfill_complete, updated_at)
		VALUES ($1, $2, $3, $4, FALSE, NOW())
		ON CONFLICT (campaign_id, target_id, job_type)
		DO UPDATE SET cursor = EXCLUDED.cursor, updated_at = NOW()
	`, campaignID, targetID, jobType, cursor)
	if err != nil {
		return fmt.Errorf("failed to save cursor: %w", err)
	}
	return nil
}

// MarkBackfillComplete flags the backfill done and clears the cursor, so
// the next run starts fresh instead of resuming.
func (r *WorkerStateRepository) MarkBackfillComplete(ctx context.Context, campaignID, targetID string, jobType types.JobType) error {
	_, err := r.db.Pool().Exec(ctx, `
		INSERT INTO worker_states (campaign_id, target_id, job_type, cursor, backfill_complete, updated_at)
		VALUES ($1, $2, $3, NULL, TRUE, NOW())
		ON CONFLICT (campaign_id, target_id, job_type)
		DO UPDATE SET cursor = NULL, backfill_complete = TRUE, updated_at = NOW()
	`, campaignID, targetID, jobType)
	if err != nil {
		return fmt.Errorf("failed to mark backfill complete: %w", err)
	}
	return nil
}

// RecordSuccess stamps a successful crawl run and resets the error state.
func (r *WorkerStateRepository) RecordSuccess(ctx context.Context, campaignID, targetID string, jobType types.JobType) error {
	_, err := r.db.Pool().Exec(ctx, `
		INSERT INTO worker_states (campaign_id, target_id, job_type, last_success, retry_count, updated_at)
		VALUES ($1, $2, $3, NOW(), 0, NOW())
		ON CONFLICT (campaign_id, target_id, job_type)
		DO UPDATE SET last_success = NOW(), last_error = NULL, retry_count = 0,
			blocked_until = NULL, updated_at = NOW()
	`, campaignID, targetID, jobType)
	if err != nil {
		return fmt.Errorf("failed to record crawl success: %w", err)
	}
	return nil
}

// RecordError stamps a failed crawl run and increments the tuple's retry
// counter for operator inspection.
func (r *WorkerStateRepository) RecordError(ctx context.Context, campaignID, targetID string, jobType types.JobType, message string) error {
	_, err := r.db.Pool().Exec(ctx, `
		INSERT INTO worker_states (campaign_id, target_id, job_type, last_error, retry_count, updated_at)
		VALUES ($1, $2, $3, $4, 1, NOW())
		ON CONFLICT (campaign_id, target_id, job_type)
		DO UPDATE SET last_error = EXCLUDED.last_error,
			retry_count = worker_states.retry_count + 1, updated_at = NOW()
	`, campaignID, targetID, jobType, message)
	if err != nil {
		return fmt.Errorf("failed to record crawl error: %w", err)
	}
	return nil
}

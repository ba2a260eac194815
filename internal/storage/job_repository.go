package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/engagement-monitor/internal/models"
	"github.com/engagement-monitor/internal/types"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// DefaultMaxRetries is the retry ceiling applied when enqueueing without
// an explicit override.
const DefaultMaxRetries = 3

// ErrJobNotFound is returned when a job id does not exist.
var ErrJobNotFound = errors.New("job not found")

const jobColumns = `id, campaign_id, target_id, job_type, status, priority,
	claimed_by, claimed_at, retry_count, max_retries, retry_after,
	last_error, created_at, updated_at`

// JobRepository handles durable job queue persistence
type JobRepository struct {
	db         *PostgresDB
	maxRetries int
}

// NewJobRepository creates a new job repository
func NewJobRepository(db *PostgresDB, maxRetries int) *JobRepository {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &JobRepository{db: db, maxRetries: maxRetries}
}

// Enqueue creates or resets the job for (campaign, target, jobType).
// Idempotent: a second enqueue for the same key tuple returns the same row,
// reset to pending with claim fields and retry count cleared.
func (r *JobRepository) Enqueue(ctx context.Context, campaignID, targetID string, jobType types.JobType, priority *int) (*models.Job, error) {
	if !jobType.IsValid() {
		return nil, fmt.Errorf("invalid job type %q", jobType)
	}

	prio := jobType.DefaultPriority()
	if priority != nil {
		prio = *priority
	}

	query := `
		INSERT INTO jobs (
			id, campaign_id, target_id, job_type, status, priority,
			retry_count, max_retries, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, 'pending', $5, 0, $6, NOW(), NOW())
		ON CONFLICT (campaign_id, target_id, job_type)
		DO UPDATE SET
			status = 'pending',
			priority = EXCLUDED.priority,
			claimed_by = NULL,
			claimed_at = NULL,
			retry_count = 0,
			retry_after = NULL,
			last_error = NULL,
			updated_at = NOW()
		RETURNING ` + jobColumns

	row := r.db.Pool().QueryRow(ctx, query,
		uuid.New().String(), campaignID, targetID, jobType, prio, r.maxRetries)

	job, err := scanJob(row)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}
	return job, nil
}

// Claim atomically claims the oldest pending job for workerID. Before
// claiming it releases any retrying job whose backoff has elapsed back to
// pending. Ordering is (created_at asc, priority asc): fairness first,
// priority only breaks ties. Returns (nil, nil) when no job is available.
func (r *JobRepository) Claim(ctx context.Context, workerID string) (*models.Job, error) {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin claim transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	// Release due retries first so they compete in this claim pass.
	_, err = tx.Exec(ctx, `
		UPDATE jobs
		SET status = 'pending', updated_at = NOW()
		WHERE status = 'retrying' AND retry_after <= NOW()
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to release due retries: %w", err)
	}

	query := `
		UPDATE jobs
		SET status = 'processing', claimed_by = $1, claimed_at = NOW(), updated_at = NOW()
		WHERE id = (
			SELECT id FROM jobs
			WHERE status = 'pending'
			ORDER BY created_at ASC, priority ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + jobColumns

	row := tx.QueryRow(ctx, query, workerID)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if commitErr := tx.Commit(ctx); commitErr != nil {
				return nil, fmt.Errorf("failed to commit claim transaction: %w", commitErr)
			}
			return nil, nil
		}
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit claim transaction: %w", err)
	}
	return job, nil
}

// Complete marks a job completed.
func (r *JobRepository) Complete(ctx context.Context, jobID string) error {
	result, err := r.db.Pool().Exec(ctx, `
		UPDATE jobs
		SET status = 'completed', updated_at = NOW()
		WHERE id = $1
	`, jobID)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

// Fail records a job failure. The retry counter is incremented; below the
// retry ceiling the job moves to retrying with a durable
// retry_after = now + 2^retry_count minutes, otherwise it is failed
// permanently. The backoff lives in the row, not in memory, so retries
// survive process restarts.
func (r *JobRepository) Fail(ctx context.Context, jobID string, jobErr error) (*models.Job, error) {
	message := "unknown error"
	if jobErr != nil {
		message = jobErr.Error()
	}

	query := `
		UPDATE jobs
		SET retry_count = retry_count + 1,
			status = CASE
				WHEN retry_count + 1 < max_retries THEN 'retrying'
				ELSE 'failed'
			END,
			retry_after = CASE
				WHEN retry_count + 1 < max_retries
					THEN NOW() + make_interval(mins => (2 ^ (retry_count + 1))::int)
				ELSE NULL
			END,
			claimed_by = NULL,
			claimed_at = NULL,
			last_error = $2,
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + jobColumns

	row := r.db.Pool().QueryRow(ctx, query, jobID, message)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to record job failure: %w", err)
	}
	return job, nil
}

// GetByID retrieves a job by id.
func (r *JobRepository) GetByID(ctx context.Context, jobID string) (*models.Job, error) {
	row := r.db.Pool().QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, jobID)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// Stats returns job counts by status.
func (r *JobRepository) Stats(ctx context.Context) (*models.JobQueueStats, error) {
	rows, err := r.db.Pool().Query(ctx,
		`SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to query job stats: %w", err)
	}
	defer rows.Close()

	stats := &models.JobQueueStats{}
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan job stats: %w", err)
		}
		switch types.JobStatus(status) {
		case types.JobPending:
			stats.Pending = count
		case types.JobProcessing:
			stats.Processing = count
		case types.JobCompleted:
			stats.Completed = count
		case types.JobFailed:
			stats.Failed = count
		case types.JobRetrying:
			stats.Retrying = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating job stats: %w", err)
	}
	return stats, nil
}

// DeleteCompletedBefore removes completed jobs older than the cutoff.
// This is the only physical deletion the queue performs.
func (r *JobRepository) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.Pool().Exec(ctx, `
		DELETE FROM jobs
		WHERE status = 'completed' AND updated_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep completed jobs: %w", err)
	}
	return result.RowsAffected(), nil
}

// ListByStatus retrieves jobs with the given status, oldest first.
func (r *JobRepository) ListByStatus(ctx context.Context, status types.JobStatus, limit int) ([]*models.Job, error) {
	rows, err := r.db.Pool().Query(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE status = $1
		ORDER BY created_at ASC, priority ASC
		LIMIT $2
	`, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating jobs: %w", err)
	}
	return jobs, nil
}

// scanJob scans one job row from either a Row or Rows.
func scanJob(row pgx.Row) (*models.Job, error) {
	var job models.Job
	err := row.Scan(
		&job.ID,
		&job.CampaignID,
		&job.TargetID,
		&job.JobType,
		&job.Status,
		&job.Priority,
		&job.ClaimedBy,
		&job.ClaimedAt,
		&job.RetryCount,
		&job.MaxRetries,
		&job.RetryAfter,
		&job.LastError,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

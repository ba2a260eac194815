package worker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/engagement-monitor/internal/models"
	"github.com/google/uuid"
)

// JobQueue is the durable queue surface the orchestrator drives.
type JobQueue interface {
	Claim(ctx context.Context, workerID string) (*models.Job, error)
	Complete(ctx context.Context, jobID string) error
	Fail(ctx context.Context, jobID string, jobErr error) (*models.Job, error)
	DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// CompletionHook runs after a job completes, outside the job's
// success/failure accounting. Its error is logged only.
type CompletionHook func(ctx context.Context, job *models.Job) error

// OrchestratorConfig holds configuration for the worker pool.
type OrchestratorConfig struct {
	// Concurrency is the number of executor goroutines.
	Concurrency int
	// MaxJobsPerBatch caps jobs one executor processes before its
	// inter-batch pause. Zero means unlimited.
	MaxJobsPerBatch int
	// MaxEmptyClaims ends a batch after this many consecutive empty
	// claims.
	MaxEmptyClaims int
	// EmptyClaimDelay is the pause between consecutive empty claims.
	EmptyClaimDelay time.Duration
	// InterBatchDelay is the pause between batches.
	InterBatchDelay time.Duration
	// CompletedRetention is how long completed jobs are kept before the
	// sweep deletes them. Zero disables sweeping.
	CompletedRetention time.Duration
	// SweepInterval is how often the retention sweep runs.
	SweepInterval time.Duration
}

// Validate applies defaults.
func (c *OrchestratorConfig) Validate() error {
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.MaxEmptyClaims <= 0 {
		c.MaxEmptyClaims = 3
	}
	if c.EmptyClaimDelay <= 0 {
		c.EmptyClaimDelay = 500 * time.Millisecond
	}
	if c.InterBatchDelay <= 0 {
		c.InterBatchDelay = 5 * time.Second
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Hour
	}
	return nil
}

// Orchestrator runs a pool of executors over the durable job queue.
// Each executor claims, dispatches to the registered handler, and
// reports completion or failure back to the queue; the queue's atomic
// claim guarantees no job runs twice concurrently even across processes.
type Orchestrator struct {
	cfg      OrchestratorConfig
	queue    JobQueue
	registry *Registry
	hook     CompletionHook

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
	hookWg  sync.WaitGroup
}

// NewOrchestrator creates a new orchestrator. hook may be nil.
func NewOrchestrator(cfg OrchestratorConfig, queue JobQueue, registry *Registry, hook CompletionHook) (*Orchestrator, error) {
	if queue == nil {
		return nil, fmt.Errorf("job queue cannot be nil")
	}
	if registry == nil {
		return nil, fmt.Errorf("handler registry cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Orchestrator{
		cfg:      cfg,
		queue:    queue,
		registry: registry,
		hook:     hook,
	}, nil
}

// Start launches the executor pool and the retention sweep.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator already running")
	}
	o.running = true
	o.stopCh = make(chan struct{})
	o.mu.Unlock()

	log.Printf("[Orchestrator] Starting %d executors", o.cfg.Concurrency)
	for i := 0; i < o.cfg.Concurrency; i++ {
		o.wg.Add(1)
		go o.executorLoop(ctx, i)
	}

	if o.cfg.CompletedRetention > 0 {
		o.wg.Add(1)
		go o.sweepLoop(ctx)
	}
	return nil
}

// Stop stops claiming, drains in-flight jobs and hooks, and returns when
// everything has finished.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	o.running = false
	close(o.stopCh)
	o.mu.Unlock()

	o.wg.Wait()
	o.hookWg.Wait()
	log.Printf("[Orchestrator] Stopped")
}

func (o *Orchestrator) stopping() <-chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stopCh
}

// executorLoop processes batches until stopped.
func (o *Orchestrator) executorLoop(ctx context.Context, id int) {
	defer o.wg.Done()
	workerID := fmt.Sprintf("executor-%d-%s", id, uuid.New().String()[:8])
	stop := o.stopping()

	for {
		o.runBatch(ctx, workerID, stop)

		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-time.After(o.cfg.InterBatchDelay):
		}
	}
}

// runBatch claims and processes jobs until the batch cap or the
// configured run of empty claims.
func (o *Orchestrator) runBatch(ctx context.Context, workerID string, stop <-chan struct{}) {
	processed := 0
	emptyClaims := 0

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		default:
		}

		job, err := o.queue.Claim(ctx, workerID)
		if err != nil {
			log.Printf("[Orchestrator] %s: claim failed: %v", workerID, err)
			return
		}
		if job == nil {
			emptyClaims++
			if emptyClaims >= o.cfg.MaxEmptyClaims {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-time.After(o.cfg.EmptyClaimDelay):
			}
			continue
		}
		emptyClaims = 0

		o.processJob(ctx, workerID, job)

		processed++
		if o.cfg.MaxJobsPerBatch > 0 && processed >= o.cfg.MaxJobsPerBatch {
			return
		}
	}
}

// processJob dispatches one claimed job and settles its outcome.
func (o *Orchestrator) processJob(ctx context.Context, workerID string, job *models.Job) {
	handler, err := o.registry.Get(job.JobType)
	if err != nil {
		// Unroutable jobs burn a retry each pass until they fail out.
		if _, failErr := o.queue.Fail(ctx, job.ID, err); failErr != nil {
			log.Printf("[Orchestrator] %s: failed to fail unroutable job %s: %v", workerID, job.ID, failErr)
		}
		return
	}

	if err := handler.Handle(ctx, job); err != nil {
		log.Printf("[Orchestrator] %s: job %s (%s) failed: %v", workerID, job.ID, job.JobType, err)
		failed, failErr := o.queue.Fail(ctx, job.ID, err)
		if failErr != nil {
			log.Printf("[Orchestrator] %s: failed to record failure for job %s: %v", workerID, job.ID, failErr)
		} else if failed.Status.Terminal() {
			log.Printf("[Orchestrator] %s: job %s permanently failed after %d attempts", workerID, job.ID, failed.RetryCount)
		}
		return
	}

	if err := o.queue.Complete(ctx, job.ID); err != nil {
		log.Printf("[Orchestrator] %s: failed to complete job %s: %v", workerID, job.ID, err)
		return
	}

	if o.hook != nil {
		// Fire and forget: enrichment or detection failing must not
		// affect the job's outcome.
		o.hookWg.Add(1)
		go func(job *models.Job) {
			defer o.hookWg.Done()
			if err := o.hook(ctx, job); err != nil {
				log.Printf("[Orchestrator] Post-completion hook for job %s failed: %v", job.ID, err)
			}
		}(job)
	}
}

// sweepLoop periodically deletes old completed jobs.
func (o *Orchestrator) sweepLoop(ctx context.Context) {
	defer o.wg.Done()
	stop := o.stopping()

	ticker := time.NewTicker(o.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-o.cfg.CompletedRetention)
			deleted, err := o.queue.DeleteCompletedBefore(ctx, cutoff)
			if err != nil {
				log.Printf("[Orchestrator] Retention sweep failed: %v", err)
				continue
			}
			if deleted > 0 {
				log.Printf("[Orchestrator] Retention sweep removed %d completed jobs", deleted)
			}
		}
	}
}

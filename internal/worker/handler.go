// Package worker runs the job processing loop: claiming queued crawl
// jobs, dispatching them to per-type handlers, and keeping crawl progress
// durable so interrupted work resumes where it stopped.
package worker

import (
	"context"
	"fmt"

	"github.com/engagement-monitor/internal/models"
	"github.com/engagement-monitor/internal/types"
)

// Handler processes one claimed job to completion or error.
type Handler interface {
	Handle(ctx context.Context, job *models.Job) error
}

// Registry maps job types to their handlers.
type Registry struct {
	handlers map[types.JobType]Handler
}

// NewRegistry creates an empty handler registry
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[types.JobType]Handler)}
}

// Register binds a handler to a job type, replacing any previous binding.
func (r *Registry) Register(jobType types.JobType, h Handler) {
	r.handlers[jobType] = h
}

// Get returns the handler for a job type.
func (r *Registry) Get(jobType types.JobType) (Handler, error) {
	h, ok := r.handlers[jobType]
	if !ok {
		return nil, fmt.Errorf("no handler registered for job type %q", jobType)
	}
	return h, nil
}

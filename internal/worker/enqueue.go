package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/DukeRupert/fixmatch/internal/repository"
)

// Job type constants - these must match the JobHandler.Type() values
const (
	JobTypeAcceptTimeout = "accept_timeout"
)

// Priority constants for job scheduling
const (
	PriorityLow    = 0
	PriorityNormal = 10
	PriorityHigh   = 20
)

// AcceptTimeoutPayload is the payload for acceptance timeout jobs.
type AcceptTimeoutPayload struct {
	RequestID uuid.UUID `json:"request_id"`
	Attempt   int       `json:"attempt"`
}

// EnqueueOption is a functional option for customizing job enqueue parameters.
type EnqueueOption func(*repository.EnqueueJobParams)

// WithPriority sets the job priority.
func WithPriority(priority int32) EnqueueOption {
	return func(p *repository.EnqueueJobParams) {
		p.Priority = priority
	}
}

// WithMaxAttempts sets the maximum number of retry attempts.
func WithMaxAttempts(attempts int32) EnqueueOption {
	return func(p *repository.EnqueueJobParams) {
		p.MaxAttempts = attempts
	}
}

// WithRunAt schedules the job for a specific time.
func WithRunAt(at time.Time) EnqueueOption {
	return func(p *repository.EnqueueJobParams) {
		p.ScheduledAt = at
	}
}

// WithDelay schedules the job to run after a delay.
func WithDelay(delay time.Duration) EnqueueOption {
	return WithRunAt(time.Now().Add(delay))
}

// EnqueueJob is a generic helper for enqueuing jobs with custom options.
func EnqueueJob(
	ctx context.Context,
	queue Queue,
	jobType string,
	payload interface{},
	opts ...EnqueueOption,
) (repository.Job, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return repository.Job{}, fmt.Errorf("marshal payload: %w", err)
	}

	params := repository.EnqueueJobParams{
		JobType:     jobType,
		Payload:     payloadJSON,
		Priority:    PriorityNormal,
		MaxAttempts: 3,
		ScheduledAt: time.Now(),
	}

	for _, opt := range opts {
		opt(&params)
	}

	job, err := queue.Enqueue(ctx, params)
	if err != nil {
		return repository.Job{}, fmt.Errorf("enqueue job: %w", err)
	}

	return job, nil
}

// EnqueueAcceptTimeout enqueues the acceptance timeout check for one
// matching pass of a request.
func EnqueueAcceptTimeout(
	ctx context.Context,
	queue Queue,
	requestID uuid.UUID,
	attempt int,
	opts ...EnqueueOption,
) (repository.Job, error) {
	payload := AcceptTimeoutPayload{
		RequestID: requestID,
		Attempt:   attempt,
	}

	opts = append([]EnqueueOption{WithPriority(PriorityHigh)}, opts...)
	return EnqueueJob(ctx, queue, JobTypeAcceptTimeout, payload, opts...)
}

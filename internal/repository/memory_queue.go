package repository

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// retryBase matches the Postgres queue's first backoff step.
const retryBase = 30 * time.Second

// MemoryQueue is an in-process job queue with the same retry rules as
// PostgresQueue.
type MemoryQueue struct {
	mu    sync.Mutex
	jobs  map[uuid.UUID]*Job
	order []uuid.UUID
	now   func() time.Time
}

// NewMemoryQueue creates an empty queue. A nil clock uses time.Now.
func NewMemoryQueue(now func() time.Time) *MemoryQueue {
	if now == nil {
		now = time.Now
	}
	return &MemoryQueue{
		jobs: make(map[uuid.UUID]*Job),
		now:  now,
	}
}

func (q *MemoryQueue) Enqueue(_ context.Context, arg EnqueueJobParams) (Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job := &Job{
		ID:          uuid.New(),
		JobType:     arg.JobType,
		Payload:     append([]byte(nil), arg.Payload...),
		Status:      JobStatusPending,
		Priority:    arg.Priority,
		MaxAttempts: arg.MaxAttempts,
		ScheduledAt: arg.ScheduledAt,
		CreatedAt:   q.now(),
	}
	q.jobs[job.ID] = job
	q.order = append(q.order, job.ID)
	return *job, nil
}

// Claim returns the highest priority due job, or sql.ErrNoRows.
func (q *MemoryQueue) Claim(_ context.Context) (Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	var due []*Job
	for _, id := range q.order {
		j := q.jobs[id]
		if j.Status == JobStatusPending && !j.ScheduledAt.After(now) {
			due = append(due, j)
		}
	}
	if len(due) == 0 {
		return Job{}, sql.ErrNoRows
	}
	sort.SliceStable(due, func(a, b int) bool {
		if due[a].Priority != due[b].Priority {
			return due[a].Priority > due[b].Priority
		}
		return due[a].ScheduledAt.Before(due[b].ScheduledAt)
	})

	job := due[0]
	job.Status = JobStatusRunning
	job.Attempts++
	job.StartedAt = sql.NullTime{Time: now, Valid: true}
	return *job, nil
}

func (q *MemoryQueue) Complete(_ context.Context, id uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok {
		return sql.ErrNoRows
	}
	job.Status = JobStatusCompleted
	job.CompletedAt = sql.NullTime{Time: q.now(), Valid: true}
	job.ErrorMessage = sql.NullString{}
	return nil
}

func (q *MemoryQueue) Fail(_ context.Context, arg UpdateJobFailedParams) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[arg.ID]
	if !ok {
		return false, sql.ErrNoRows
	}
	job.ErrorMessage = arg.ErrorMessage
	if arg.Permanent || job.Attempts >= job.MaxAttempts {
		job.Status = JobStatusFailed
		return false, nil
	}
	job.Status = JobStatusPending
	job.ScheduledAt = q.now().Add(retryBase << max(job.Attempts-1, 0))
	return true, nil
}

func (q *MemoryQueue) RecoverStale(_ context.Context, threshold time.Duration) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := q.now().Add(-threshold)
	var n int64
	for _, j := range q.jobs {
		if j.Status == JobStatusRunning && j.StartedAt.Time.Before(cutoff) {
			j.Status = JobStatusPending
			j.StartedAt = sql.NullTime{}
			n++
		}
	}
	return n, nil
}

// Jobs returns a snapshot of every job in enqueue order.
func (q *MemoryQueue) Jobs() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Job, 0, len(q.order))
	for _, id := range q.order {
		out = append(out, *q.jobs[id])
	}
	return out
}

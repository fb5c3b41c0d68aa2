package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PostgresQueue is the jobs table used as a work queue.
type PostgresQueue struct {
	db      *sql.DB
	queries *Queries
}

// NewPostgresQueue creates a queue over db.
func NewPostgresQueue(db *sql.DB) *PostgresQueue {
	return &PostgresQueue{db: db, queries: New(db)}
}

func (q *PostgresQueue) Enqueue(ctx context.Context, arg EnqueueJobParams) (Job, error) {
	return q.queries.EnqueueJob(ctx, arg)
}

// Claim locks the next due job and marks it running in one transaction.
// It returns sql.ErrNoRows when nothing is due.
func (q *PostgresQueue) Claim(ctx context.Context) (Job, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return Job{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	qtx := q.queries.WithTx(tx)

	job, err := qtx.DequeueJob(ctx)
	if err != nil {
		return Job{}, err
	}
	if err := qtx.UpdateJobStarted(ctx, job.ID); err != nil {
		return Job{}, fmt.Errorf("mark job started: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Job{}, fmt.Errorf("commit dequeue: %w", err)
	}

	job.Status = JobStatusRunning
	return job, nil
}

func (q *PostgresQueue) Complete(ctx context.Context, id uuid.UUID) error {
	return q.queries.UpdateJobCompleted(ctx, id)
}

func (q *PostgresQueue) Fail(ctx context.Context, arg UpdateJobFailedParams) (bool, error) {
	return q.queries.UpdateJobFailed(ctx, arg)
}

func (q *PostgresQueue) RecoverStale(ctx context.Context, threshold time.Duration) (int64, error) {
	return q.queries.RecoverStaleJobs(ctx, threshold.Seconds())
}

package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/DukeRupert/fixmatch/internal/domain"
	"github.com/DukeRupert/fixmatch/internal/worker"
)

// TimeoutHandler is the part of the dispatch coordinator the acceptance
// timeout job drives.
type TimeoutHandler interface {
	HandleAcceptTimeout(ctx context.Context, id uuid.UUID, attempt int) error
}

// AcceptTimeoutHandler fires when nobody accepted a request within the
// acceptance window. The coordinator decides whether to re-match or
// escalate; stale hooks are no-ops.
type AcceptTimeoutHandler struct {
	dispatch TimeoutHandler
	logger   *slog.Logger
}

// NewAcceptTimeoutHandler creates a handler for acceptance timeout jobs.
func NewAcceptTimeoutHandler(dispatch TimeoutHandler, logger *slog.Logger) *AcceptTimeoutHandler {
	return &AcceptTimeoutHandler{
		dispatch: dispatch,
		logger:   logger,
	}
}

// Type returns the job type identifier.
func (h *AcceptTimeoutHandler) Type() string {
	return worker.JobTypeAcceptTimeout
}

// Handle runs the timeout policy for one matching pass.
func (h *AcceptTimeoutHandler) Handle(ctx context.Context, payload []byte) error {
	var p worker.AcceptTimeoutPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return worker.NewPermanentError(fmt.Errorf("invalid payload: %w", err))
	}
	if p.RequestID == uuid.Nil {
		return worker.NewPermanentError(fmt.Errorf("missing request id"))
	}

	h.logger.Info("Accept timeout fired",
		"request_id", p.RequestID,
		"attempt", p.Attempt,
	)

	if err := h.dispatch.HandleAcceptTimeout(ctx, p.RequestID, p.Attempt); err != nil {
		if domain.ErrorCode(err) == domain.ENOTFOUND {
			return worker.NewPermanentError(fmt.Errorf("request not found: %w", err))
		}
		return fmt.Errorf("handle accept timeout: %w", err)
	}
	return nil
}

// Scheduler enqueues acceptance timeout jobs on the worker queue.
type Scheduler struct {
	queue worker.Queue
	now   func() time.Time
}

// NewScheduler creates a Scheduler. A nil clock uses time.Now.
func NewScheduler(queue worker.Queue, now func() time.Time) *Scheduler {
	if now == nil {
		now = time.Now
	}
	return &Scheduler{queue: queue, now: now}
}

// ScheduleAcceptTimeout enqueues the check to run after delay.
func (s *Scheduler) ScheduleAcceptTimeout(ctx context.Context, requestID uuid.UUID, attempt int, delay time.Duration) error {
	_, err := worker.EnqueueAcceptTimeout(ctx, s.queue, requestID, attempt,
		worker.WithRunAt(s.now().Add(delay)))
	return err
}

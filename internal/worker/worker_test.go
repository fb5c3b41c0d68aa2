package worker

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DukeRupert/fixmatch/internal/repository"
)

func TestConfig_Validate(t *testing.T) {
	valid := DefaultConfig()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid default config", mutate: func(*Config) {}},
		{name: "concurrency too low", mutate: func(c *Config) { c.Concurrency = 0 }, wantErr: true},
		{name: "concurrency too high", mutate: func(c *Config) { c.Concurrency = 101 }, wantErr: true},
		{name: "poll interval too short", mutate: func(c *Config) { c.PollInterval = 50 * time.Millisecond }, wantErr: true},
		{name: "job timeout too short", mutate: func(c *Config) { c.JobTimeout = 0 }, wantErr: true},
		{name: "stale threshold too short", mutate: func(c *Config) { c.StaleJobThreshold = time.Second }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestIsPermanent(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "permanent error", err: NewPermanentError(context.Canceled), want: true},
		{name: "wrapped permanent error", err: errors.Join(errors.New("outer"), NewPermanentError(io.EOF)), want: true},
		{name: "regular error", err: context.Canceled, want: false},
		{name: "nil error", err: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsPermanent(tt.err))
		})
	}
}

type recordingHandler struct {
	jobType  string
	err      error
	payloads [][]byte
}

func (h *recordingHandler) Type() string { return h.jobType }

func (h *recordingHandler) Handle(_ context.Context, payload []byte) error {
	h.payloads = append(h.payloads, payload)
	return h.err
}

func newTestWorker(t *testing.T, q Queue, handlers ...JobHandler) *Worker {
	t.Helper()
	w, err := New(q, DefaultConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	for _, h := range handlers {
		w.Register(h)
	}
	return w
}

func TestWorker_ProcessNext(t *testing.T) {
	ctx := context.Background()
	q := repository.NewMemoryQueue(nil)
	h := &recordingHandler{jobType: JobTypeAcceptTimeout}
	w := newTestWorker(t, q, h)

	requestID := uuid.New()
	_, err := EnqueueAcceptTimeout(ctx, q, requestID, 2, WithRunAt(time.Now().Add(-time.Second)))
	require.NoError(t, err)

	require.NoError(t, w.ProcessNext(ctx, w.logger))

	require.Len(t, h.payloads, 1)
	var got AcceptTimeoutPayload
	require.NoError(t, json.Unmarshal(h.payloads[0], &got))
	assert.Equal(t, AcceptTimeoutPayload{RequestID: requestID, Attempt: 2}, got)
	assert.Equal(t, repository.JobStatusCompleted, q.Jobs()[0].Status)

	assert.ErrorIs(t, w.ProcessNext(ctx, w.logger), sql.ErrNoRows)
}

func TestWorker_ProcessNext_Failures(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		handlerErr error
		register   bool
		wantStatus string
	}{
		{name: "transient error is retried", handlerErr: errors.New("db down"), register: true, wantStatus: repository.JobStatusPending},
		{name: "permanent error is not retried", handlerErr: NewPermanentError(errors.New("bad payload")), register: true, wantStatus: repository.JobStatusFailed},
		{name: "unknown job type fails permanently", register: false, wantStatus: repository.JobStatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := repository.NewMemoryQueue(nil)
			var handlers []JobHandler
			if tt.register {
				handlers = append(handlers, &recordingHandler{jobType: "flaky", err: tt.handlerErr})
			}
			w := newTestWorker(t, q, handlers...)

			_, err := EnqueueJob(ctx, q, "flaky", map[string]string{}, WithRunAt(time.Now().Add(-time.Second)))
			require.NoError(t, err)

			err = w.ProcessNext(ctx, w.logger)
			assert.Error(t, err)

			job := q.Jobs()[0]
			assert.Equal(t, tt.wantStatus, job.Status)
			assert.True(t, job.ErrorMessage.Valid)
		})
	}
}

func TestEnqueueAcceptTimeout_Options(t *testing.T) {
	ctx := context.Background()
	q := repository.NewMemoryQueue(nil)
	runAt := time.Date(2026, 3, 2, 10, 2, 0, 0, time.UTC)

	job, err := EnqueueAcceptTimeout(ctx, q, uuid.New(), 1, WithRunAt(runAt), WithMaxAttempts(5))
	require.NoError(t, err)

	assert.Equal(t, JobTypeAcceptTimeout, job.JobType)
	assert.Equal(t, int32(PriorityHigh), job.Priority)
	assert.Equal(t, int32(5), job.MaxAttempts)
	assert.Equal(t, runAt, job.ScheduledAt)
}

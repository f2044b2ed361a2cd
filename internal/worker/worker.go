// Package worker executes background jobs from the SQLite job queue.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/quickdeliver/qdsupport/internal/metrics"
	"github.com/quickdeliver/qdsupport/internal/recommend"
	"github.com/quickdeliver/qdsupport/internal/storage"
)

// JobStore abstracts the job queue operations.
type JobStore interface {
	EnqueueJob(job storage.Job) (storage.Job, error)
	HasPendingJob(jobType string) (bool, error)
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
}

// Rebuilder rebuilds the recommendation model.
type Rebuilder interface {
	Rebuild(ctx context.Context) (*recommend.Snapshot, error)
}

// RebuildPayload is the payload of a model_rebuild job.
type RebuildPayload struct {
	Reason   string `json:"reason"`
	Username string `json:"username,omitempty"`
}

// Worker processes model_rebuild jobs.
type Worker struct {
	store   JobStore
	model   Rebuilder
	poll    time.Duration
	timeout time.Duration
	logger  *slog.Logger
}

// NewWorker creates a Worker. If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, model Rebuilder, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:   store,
		model:   model,
		poll:    pollInterval,
		timeout: 2 * time.Minute,
		logger:  slog.Default().With("component", "worker"),
	}
}

// RequestRebuild enqueues a model_rebuild job unless one is already waiting.
// It reports whether a job was enqueued.
func RequestRebuild(store JobStore, p RebuildPayload) (bool, error) {
	pending, err := store.HasPendingJob(storage.JobTypeModelRebuild)
	if err != nil {
		return false, fmt.Errorf("checking pending rebuilds: %w", err)
	}
	if pending {
		return false, nil
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return false, fmt.Errorf("encoding payload: %w", err)
	}
	if _, err := store.EnqueueJob(storage.Job{Type: storage.JobTypeModelRebuild, PayloadJSON: string(payload)}); err != nil {
		return false, fmt.Errorf("enqueueing rebuild: %w", err)
	}
	return true, nil
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{storage.JobTypeModelRebuild})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		metrics.JobsProcessed.WithLabelValues(job.Type, "error").Inc()
		w.logger.Warn("job failed", "job_id", job.ID, "attempt", job.Attempts+1, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	metrics.JobsProcessed.WithLabelValues(job.Type, "ok").Inc()
	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload RebuildPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	snap, err := w.model.Rebuild(ctx)
	if err != nil {
		return fmt.Errorf("rebuilding model: %w", err)
	}
	w.logger.Info("model rebuilt", "job_id", job.ID, "reason", payload.Reason, "generation", snap.Generation)
	return nil
}

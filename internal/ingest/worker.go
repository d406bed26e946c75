package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/meheroob/stremlit-agentic-ai/internal/storage"
)

// JobTypeCorpusRebuild is the job type processed by Worker.
const JobTypeCorpusRebuild = "corpus_rebuild"

// JobStore abstracts the job queue operations.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
}

// JobEnqueuer adds jobs to the queue.
type JobEnqueuer interface {
	EnqueueJob(job storage.Job) error
}

// CorpusBuilder runs one corpus build.
type CorpusBuilder interface {
	Build(ctx context.Context, prefix string) (BuildStats, error)
}

type rebuildPayload struct {
	Prefix string `json:"prefix,omitempty"`
}

// EnqueueRebuild queues a corpus rebuild and returns its job ID. An empty
// prefix means the configured default.
func EnqueueRebuild(q JobEnqueuer, prefix string) (string, error) {
	payload, err := json.Marshal(rebuildPayload{Prefix: prefix})
	if err != nil {
		return "", err
	}
	job := storage.Job{
		ID:          uuid.New().String(),
		Type:        JobTypeCorpusRebuild,
		PayloadJSON: string(payload),
	}
	if err := q.EnqueueJob(job); err != nil {
		return "", fmt.Errorf("enqueueing rebuild: %w", err)
	}
	return job.ID, nil
}

// Worker processes corpus_rebuild jobs from the SQLite job queue. A single
// worker runs builds one at a time.
type Worker struct {
	store   JobStore
	builder CorpusBuilder
	poll    time.Duration
	logger  *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, builder CorpusBuilder, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:   store,
		builder: builder,
		poll:    pollInterval,
		logger:  slog.Default(),
	}
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

// RunOnce claims and processes a single rebuild job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobTypeCorpusRebuild})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload rebuildPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}

	stats, err := w.builder.Build(ctx, payload.Prefix)
	if err != nil {
		return err
	}
	w.logger.Info("rebuild job completed", "job_id", job.ID, "build_id", stats.ID, "chunks", stats.Chunks)
	return nil
}
